package security

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/google/go-cmp/cmp"

	"github.com/mikecbrant/opensearch-search-stack/internal/testutil"
	"github.com/mikecbrant/opensearch-search-stack/internal/utils"
	"github.com/mikecbrant/opensearch-search-stack/internal/utils/logging"
)

// fakeSecurityAPI stores the last document PUT to each path.
type fakeSecurityAPI struct {
	mu       sync.Mutex
	state    map[string]string
	failPath string
	requests []*http.Request
}

func newFakeSecurityAPI() *fakeSecurityAPI { return &fakeSecurityAPI{state: map[string]string{}} }

func (f *fakeSecurityAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r)
	if !strings.HasPrefix(r.Header.Get("Authorization"), "AWS4-HMAC-SHA256 ") {
		http.Error(w, `{"error":"unsigned"}`, http.StatusForbidden)
		return
	}
	if f.failPath != "" && strings.HasSuffix(r.URL.Path, f.failPath) {
		http.Error(w, `{"status":"INTERNAL_SERVER_ERROR"}`, http.StatusInternalServerError)
		return
	}
	b, _ := io.ReadAll(r.Body)
	f.state[r.URL.Path] = utils.NormalizeJSON(string(b))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"OK"}`))
}

func (f *fakeSecurityAPI) snapshot() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.state))
	for k, v := range f.state {
		out[k] = v
	}
	return out
}

var staticCreds = awsv2.CredentialsProviderFunc(func(context.Context) (awsv2.Credentials, error) {
	return awsv2.Credentials{AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "secret", Source: "test"}, nil
})

func newTestHandler(t *testing.T, srv *httptest.Server, log logging.Logger) *Handler {
	t.Helper()
	h, err := NewHandler(srv.URL, "eu-west-1", staticCreds, WithHTTPClient(srv.Client()), WithLogger(log))
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return h
}

func testEvent(t *testing.T, kind RequestType) Event {
	t.Helper()
	ds, err := Directives(testRoles, []string{"index-01", "index-02"})
	if err != nil {
		t.Fatalf("Directives: %v", err)
	}
	return Event{RequestType: kind, Requests: ds}
}

func TestHandle_AppliesAllDirectivesSigned(t *testing.T) {
	api := newFakeSecurityAPI()
	srv := httptest.NewServer(api)
	defer srv.Close()

	res, err := newTestHandler(t, srv, nil).Handle(context.Background(), testEvent(t, RequestCreate))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Applied != 4 || res.RequestType != RequestCreate || res.Digest == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(api.requests) != 4 {
		t.Fatalf("expected 4 calls, got %d", len(api.requests))
	}
	auth := api.requests[0].Header.Get("Authorization")
	if !strings.Contains(auth, "/eu-west-1/es/aws4_request") {
		t.Fatalf("request not signed for the es service: %s", auth)
	}
	if got := api.requests[2].URL.Path; got != "/_plugins/_security/api/roles/kibana_limited_role" {
		t.Fatalf("third call hit %s", got)
	}
}

func TestHandle_Idempotent(t *testing.T) {
	api := newFakeSecurityAPI()
	srv := httptest.NewServer(api)
	defer srv.Close()
	h := newTestHandler(t, srv, nil)

	if _, err := h.Handle(context.Background(), testEvent(t, RequestCreate)); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	first := api.snapshot()
	if _, err := h.Handle(context.Background(), testEvent(t, RequestUpdate)); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if diff := cmp.Diff(first, api.snapshot()); diff != "" {
		t.Fatalf("re-application changed the security state (-first +second):\n%s", diff)
	}
	var limited map[string]any
	if err := json.Unmarshal([]byte(first["/_plugins/_security/api/roles/kibana_limited_role"]), &limited); err != nil {
		t.Fatalf("stored role is not JSON: %v", err)
	}
	patterns := limited["index_permissions"].([]any)[0].(map[string]any)["index_patterns"]
	if diff := cmp.Diff([]any{"index-01", "index-02"}, patterns); diff != "" {
		t.Fatalf("stored index patterns mismatch:\n%s", diff)
	}
}

func TestHandle_StopsAtFirstFailureAndKeepsEarlierDirectives(t *testing.T) {
	api := newFakeSecurityAPI()
	api.failPath = "rolesmapping/security_manager"
	srv := httptest.NewServer(api)
	defer srv.Close()

	res, err := newTestHandler(t, srv, nil).Handle(context.Background(), testEvent(t, RequestCreate))
	var de *DirectiveError
	if !errors.As(err, &de) {
		t.Fatalf("expected DirectiveError, got %v", err)
	}
	if de.Index != 1 || de.Status != http.StatusInternalServerError || !strings.Contains(de.Body, "INTERNAL_SERVER_ERROR") {
		t.Fatalf("unexpected directive error %+v", de)
	}
	if res.Applied != 1 {
		t.Fatalf("expected one applied directive, got %d", res.Applied)
	}
	if len(api.requests) != 2 {
		t.Fatalf("handler must stop after the failing call; calls=%d", len(api.requests))
	}
	if _, ok := api.snapshot()["/_plugins/_security/api/rolesmapping/all_access"]; !ok {
		t.Fatalf("first directive should remain applied")
	}

	// The next event re-applies the whole list from the top.
	api.failPath = ""
	res, err = newTestHandler(t, srv, nil).Handle(context.Background(), testEvent(t, RequestUpdate))
	if err != nil || res.Applied != 4 {
		t.Fatalf("re-application failed: %+v %v", res, err)
	}
}

func TestHandle_DeleteIsNoop(t *testing.T) {
	api := newFakeSecurityAPI()
	srv := httptest.NewServer(api)
	defer srv.Close()
	log := &testutil.BufferLogger{}

	res, err := newTestHandler(t, srv, log).Handle(context.Background(), testEvent(t, RequestDelete))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Applied != 0 || len(api.requests) != 0 {
		t.Fatalf("delete should not call the API; result=%+v calls=%d", res, len(api.requests))
	}
	if !log.Contains("delete event") {
		t.Fatalf("expected delete log entry, got %v", log.Entries)
	}
}

func TestHandle_EngineDeleteActionWinsOverRequestType(t *testing.T) {
	api := newFakeSecurityAPI()
	srv := httptest.NewServer(api)
	defer srv.Close()

	ds, err := Directives(testRoles, []string{"index-01"})
	if err != nil {
		t.Fatalf("Directives: %v", err)
	}
	js, err := NewEvent(ds).JSON()
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(js), &doc); err != nil {
		t.Fatalf("event is not JSON: %v", err)
	}
	doc["tf"] = map[string]any{"action": "delete"}
	raw, _ := json.Marshal(doc)
	ev, err := ParseEvent(raw)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}

	res, err := newTestHandler(t, srv, nil).Handle(context.Background(), ev)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.RequestType != RequestDelete || len(api.requests) != 0 {
		t.Fatalf("engine delete must not touch the API; result=%+v calls=%d", res, len(api.requests))
	}
}

func TestNewHandler_Validation(t *testing.T) {
	if _, err := NewHandler("", "r", staticCreds); err == nil {
		t.Fatalf("expected endpoint error")
	}
	if _, err := NewHandler("e", "", staticCreds); err == nil {
		t.Fatalf("expected region error")
	}
	if _, err := NewHandler("e", "r", nil); err == nil {
		t.Fatalf("expected credentials error")
	}
}

func TestHandlerURL(t *testing.T) {
	h, _ := NewHandler("search-x.eu-west-1.es.amazonaws.com", "eu-west-1", staticCreds)
	if got := h.url("_plugins/_security/api/roles/r"); got != "https://search-x.eu-west-1.es.amazonaws.com/_plugins/_security/api/roles/r" {
		t.Fatalf("url = %s", got)
	}
	if h.client.Timeout != DefaultRequestTimeout {
		t.Fatalf("default timeout = %s", h.client.Timeout)
	}
}

func TestNewHandler_TimeoutIndependentOfOptionOrder(t *testing.T) {
	custom := &http.Client{}
	h, err := NewHandler("e", "r", staticCreds, WithTimeout(5*time.Second), WithHTTPClient(custom))
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	if h.client.Timeout != 5*time.Second {
		t.Fatalf("timeout lost when the client option came last: %s", h.client.Timeout)
	}
	if custom.Timeout != 0 {
		t.Fatalf("caller's client was modified")
	}
	h, _ = NewHandler("e", "r", staticCreds, WithHTTPClient(&http.Client{}), WithTimeout(7*time.Second))
	if h.client.Timeout != 7*time.Second {
		t.Fatalf("timeout = %s", h.client.Timeout)
	}
}

func TestNewHandler_TypedNilLogger(t *testing.T) {
	api := newFakeSecurityAPI()
	srv := httptest.NewServer(api)
	defer srv.Close()

	var log *testutil.BufferLogger
	h, err := NewHandler(srv.URL, "eu-west-1", staticCreds, WithHTTPClient(srv.Client()), WithLogger(log))
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	if _, err := h.Handle(context.Background(), testEvent(t, RequestCreate)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
}
