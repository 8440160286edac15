package identity

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeLister struct {
	clients []UserPoolClient
	err     error
	gotPool string
}

func (f *fakeLister) ListUserPoolClients(_ context.Context, poolID string) ([]UserPoolClient, error) {
	f.gotPool = poolID
	return f.clients, f.err
}

func TestProviderName(t *testing.T) {
	tests := []struct {
		region, pool, client string
		want                 string
	}{
		{"eu-west-1", "eu-west-1_AbC", "client1", "cognito-idp.eu-west-1.amazonaws.com/eu-west-1_AbC:client1"},
		{"cn-north-1", "cn-north-1_X", "c", "cognito-idp.cn-north-1.amazonaws.com.cn/cn-north-1_X:c"},
	}
	for _, tt := range tests {
		got, err := ProviderName(tt.region, tt.pool, tt.client)
		if err != nil {
			t.Fatalf("ProviderName(%s): %v", tt.region, err)
		}
		if got != tt.want {
			t.Fatalf("ProviderName = %s; want %s", got, tt.want)
		}
	}
}

func TestProviderName_RejectsEmptySegments(t *testing.T) {
	for _, args := range [][3]string{{"", "p", "c"}, {"r", "", "c"}, {"r", "p", " "}} {
		if got, err := ProviderName(args[0], args[1], args[2]); err == nil {
			t.Fatalf("ProviderName(%q) = %q; expected error", args, got)
		}
	}
}

func TestResolve_FirstClient(t *testing.T) {
	f := &fakeLister{clients: []UserPoolClient{{ClientID: "abc", ClientName: "dashboards"}, {ClientID: "def"}}}
	got, err := Resolve(context.Background(), f, "us-east-1", "us-east-1_pool")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "cognito-idp.us-east-1.amazonaws.com/us-east-1_pool:abc" {
		t.Fatalf("unexpected provider name %s", got)
	}
	if f.gotPool != "us-east-1_pool" {
		t.Fatalf("lister called with %q", f.gotPool)
	}
}

func TestResolve_NoClients(t *testing.T) {
	_, err := Resolve(context.Background(), &fakeLister{}, "us-east-1", "us-east-1_pool")
	if !errors.Is(err, ErrNoClients) {
		t.Fatalf("expected ErrNoClients, got %v", err)
	}
	if strings.Contains(err.Error(), "undefined") {
		t.Fatalf("error must not leak a placeholder client id: %v", err)
	}
}

func TestResolve_ListError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Resolve(context.Background(), &fakeLister{err: boom}, "us-east-1", "p")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped lister error, got %v", err)
	}
}
