// Package testutil holds fakes shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"strings"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/smithy-go"

	"github.com/mikecbrant/opensearch-search-stack/internal/utils/logging"
)

type apiError struct{ code string }

func (e apiError) Error() string                 { return e.code }
func (e apiError) ErrorCode() string             { return e.code }
func (e apiError) ErrorMessage() string          { return e.code }
func (e apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

// APIError returns a smithy API error with the given code.
func APIError(code string) error { return apiError{code: code} }

// FakeUserPoolClients serves ListUserPoolClients from canned pages. Queued
// errors are returned first, one per call.
type FakeUserPoolClients struct {
	Pages  []*cip.ListUserPoolClientsOutput
	Errs   []error
	Calls  int
	Tokens []string
}

// ListUserPoolClients records the call and returns the next error or page.
func (f *FakeUserPoolClients) ListUserPoolClients(_ context.Context, in *cip.ListUserPoolClientsInput, _ ...func(*cip.Options)) (*cip.ListUserPoolClientsOutput, error) {
	f.Calls++
	if len(f.Errs) > 0 {
		err := f.Errs[0]
		f.Errs = f.Errs[1:]
		return nil, err
	}
	f.Tokens = append(f.Tokens, awsv2.ToString(in.NextToken))
	if len(f.Pages) == 0 {
		return &cip.ListUserPoolClientsOutput{}, nil
	}
	page := f.Pages[0]
	f.Pages = f.Pages[1:]
	return page, nil
}

// FakeSimulator answers SimulatePrincipalPolicy from a decision table keyed by
// "<roleArn>|<action>|<resource>". Missing keys evaluate to implicitDeny.
type FakeSimulator struct {
	Decisions map[string]string
	Err       error
	Inputs    []*iam.SimulatePrincipalPolicyInput
}

// SimulatePrincipalPolicy records the input and returns one result per action/resource pair.
func (f *FakeSimulator) SimulatePrincipalPolicy(_ context.Context, in *iam.SimulatePrincipalPolicyInput, _ ...func(*iam.Options)) (*iam.SimulatePrincipalPolicyOutput, error) {
	f.Inputs = append(f.Inputs, in)
	if f.Err != nil {
		return nil, f.Err
	}
	out := &iam.SimulatePrincipalPolicyOutput{}
	for _, action := range in.ActionNames {
		for _, res := range in.ResourceArns {
			decision, ok := f.Decisions[fmt.Sprintf("%s|%s|%s", awsv2.ToString(in.PolicySourceArn), action, res)]
			if !ok {
				decision = string(iamtypes.PolicyEvaluationDecisionTypeImplicitDeny)
			}
			out.EvaluationResults = append(out.EvaluationResults, iamtypes.EvaluationResult{
				EvalActionName:   awsv2.String(action),
				EvalResourceName: awsv2.String(res),
				EvalDecision:     iamtypes.PolicyEvaluationDecisionType(decision),
			})
		}
	}
	return out, nil
}

// FakeLambda records Invoke calls and returns a canned response.
type FakeLambda struct {
	Out    *lambda.InvokeOutput
	Err    error
	Inputs []*lambda.InvokeInput
}

// Invoke records the input and returns the configured response.
func (f *FakeLambda) Invoke(_ context.Context, in *lambda.InvokeInput, _ ...func(*lambda.Options)) (*lambda.InvokeOutput, error) {
	f.Inputs = append(f.Inputs, in)
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Out == nil {
		return &lambda.InvokeOutput{StatusCode: 200}, nil
	}
	return f.Out, nil
}

// BufferLogger is a buffer-backed logger that records calls for assertions.
type BufferLogger struct {
	Calls   []string
	Entries []string
}

// Debug records a debug-level log entry.
func (l *BufferLogger) Debug(msg string, ctx logging.Fields) { l.record("debug", msg, ctx) }

// Info records an info-level log entry.
func (l *BufferLogger) Info(msg string, ctx logging.Fields) { l.record("info", msg, ctx) }

// Warn records a warn-level log entry.
func (l *BufferLogger) Warn(msg string, ctx logging.Fields) { l.record("warn", msg, ctx) }

func (l *BufferLogger) record(level, msg string, ctx logging.Fields) {
	l.Calls = append(l.Calls, level)
	// simple human-readable capture for assertions; not a JSON serializer
	l.Entries = append(l.Entries, fmt.Sprintf("%s: %s ctx=%v", level, msg, ctx))
}

var _ logging.Logger = (*BufferLogger)(nil)

// Contains reports whether any recorded entry contains sub.
func (l *BufferLogger) Contains(sub string) bool {
	for _, e := range l.Entries {
		if strings.Contains(e, sub) {
			return true
		}
	}
	return false
}
