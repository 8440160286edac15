package errors

import (
	sterrors "errors"
	"strings"
	"testing"

	"github.com/aws/smithy-go"
)

// smithy APIError minimal fake that satisfies smithy.APIError
type apiErr struct{ code string }

func (e apiErr) Error() string                 { return e.code }
func (e apiErr) ErrorCode() string             { return e.code }
func (e apiErr) ErrorMessage() string          { return e.code }
func (e apiErr) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

var _ smithy.APIError = (*apiErr)(nil)

func TestClassify(t *testing.T) {
	tests := []struct {
		in   error
		want string
	}{
		{apiErr{"ConcurrentModificationException"}, "conflict"},
		{apiErr{"ResourceConflictException"}, "conflict"},
		{apiErr{"TooManyRequestsException"}, "retryable"},
		{apiErr{"Throttling"}, "retryable"},
		{apiErr{"ThrottlingException"}, "retryable"},
		{apiErr{"ResourceNotFoundException"}, "not found"},
		{apiErr{"NoSuchEntity"}, "not found"},
		{sterrors.New("boom"), "op error"},
	}
	for _, tt := range tests {
		got := Classify(tt.in)
		if got == nil {
			t.Fatalf("classify(%v) returned nil", tt.in)
		}
		if !sterrors.Is(got, tt.in) {
			t.Fatalf("classify(%v) does not wrap its cause", tt.in)
		}
		if !strings.Contains(got.Error(), tt.want) {
			t.Fatalf("classify(%v) => %v; want contains %q", tt.in, got, tt.want)
		}
	}
	if Classify(nil) != nil {
		t.Fatalf("classify(nil) should be nil")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(Classify(apiErr{"TooManyRequestsException"})) {
		t.Fatalf("throttling should be retryable")
	}
	if IsRetryable(Classify(apiErr{"ResourceNotFoundException"})) {
		t.Fatalf("not found should not be retryable")
	}
}
