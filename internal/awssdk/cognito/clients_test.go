package cognito

import (
	"context"
	"errors"
	"testing"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	ciptypes "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-cmp/cmp"

	awserrors "github.com/mikecbrant/opensearch-search-stack/internal/awssdk/errors"
	"github.com/mikecbrant/opensearch-search-stack/internal/common/identity"
	"github.com/mikecbrant/opensearch-search-stack/internal/testutil"
)

func noWait() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3) }

func TestListUserPoolClients_Paginates(t *testing.T) {
	api := &testutil.FakeUserPoolClients{Pages: []*cip.ListUserPoolClientsOutput{
		{UserPoolClients: []ciptypes.UserPoolClientDescription{{ClientId: awsv2.String("a"), ClientName: awsv2.String("dashboards")}}, NextToken: awsv2.String("t1")},
		{UserPoolClients: []ciptypes.UserPoolClientDescription{{ClientId: awsv2.String("b")}}},
	}}
	got, err := New(api, nil).WithBackOff(noWait).ListUserPoolClients(context.Background(), "pool")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []identity.UserPoolClient{{ClientID: "a", ClientName: "dashboards"}, {ClientID: "b"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("clients mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"", "t1"}, api.Tokens); diff != "" {
		t.Fatalf("pagination tokens mismatch:\n%s", diff)
	}
}

func TestListUserPoolClients_RetriesThrottling(t *testing.T) {
	log := &testutil.BufferLogger{}
	api := &testutil.FakeUserPoolClients{
		Errs:  []error{testutil.APIError("TooManyRequestsException"), testutil.APIError("TooManyRequestsException")},
		Pages: []*cip.ListUserPoolClientsOutput{{UserPoolClients: []ciptypes.UserPoolClientDescription{{ClientId: awsv2.String("a")}}}},
	}
	got, err := New(api, log).WithBackOff(noWait).ListUserPoolClients(context.Background(), "pool")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || api.Calls != 3 {
		t.Fatalf("expected 1 client after 3 calls, got %d clients / %d calls", len(got), api.Calls)
	}
	if len(log.Calls) < 2 || log.Calls[0] != "warn" {
		t.Fatalf("expected throttling warnings, got %v", log.Entries)
	}
}

func TestListUserPoolClients_PermanentErrorNotRetried(t *testing.T) {
	api := &testutil.FakeUserPoolClients{Errs: []error{testutil.APIError("ResourceNotFoundException")}}
	_, err := New(api, nil).WithBackOff(noWait).ListUserPoolClients(context.Background(), "pool")
	var nf *awserrors.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if api.Calls != 1 {
		t.Fatalf("permanent errors must not be retried; calls=%d", api.Calls)
	}
}

func TestListUserPoolClients_Empty(t *testing.T) {
	api := &testutil.FakeUserPoolClients{Pages: []*cip.ListUserPoolClientsOutput{{}}}
	got, err := New(api, nil).ListUserPoolClients(context.Background(), "pool")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no clients, got %v", got)
	}
}
