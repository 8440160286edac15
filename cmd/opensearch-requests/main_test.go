package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mikecbrant/opensearch-search-stack/internal/common/security"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !strings.HasPrefix(req.Header.Get("Authorization"), "AWS4-HMAC-SHA256 ") {
		http.Error(w, "unsigned", http.StatusForbidden)
		return
	}
	r.paths = append(r.paths, req.Method+" "+req.URL.Path)
	_, _ = w.Write([]byte(`{"status":"OK"}`))
}

// isolate points the handler at srv with static credentials and no shared config files.
func isolate(t *testing.T, srv *httptest.Server) {
	t.Setenv("DOMAIN", srv.URL)
	t.Setenv("REGION", "eu-west-1")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIDEXAMPLE")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret")
	t.Setenv("AWS_SESSION_TOKEN", "")
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "credentials"))
}

func eventJSON(t *testing.T, kind security.RequestType) string {
	t.Helper()
	ds, err := security.Directives(security.RoleArns{
		Admin:    "arn:aws:iam::123456789012:role/admin",
		Limited:  "arn:aws:iam::123456789012:role/limited",
		Master:   "arn:aws:iam::123456789012:role/master",
		Delivery: "arn:aws:iam::123456789012:role/delivery",
	}, []string{"orders"})
	if err != nil {
		t.Fatal(err)
	}
	js, err := security.Event{RequestType: kind, Requests: ds}.JSON()
	if err != nil {
		t.Fatal(err)
	}
	return js
}

func TestRun_AppliesEventFromFile(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()
	isolate(t, srv)

	path := filepath.Join(t.TempDir(), "event.json")
	if err := os.WriteFile(path, []byte(eventJSON(t, security.RequestCreate)), 0o600); err != nil {
		t.Fatal(err)
	}
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"-event", path}, nil, &stdout, &stderr); code != 0 {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}
	var res security.Result
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		t.Fatalf("stdout is not a result: %v (%q)", err, stdout.String())
	}
	if res.Applied != 4 || res.RequestType != security.RequestCreate {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(rec.paths) != 4 || rec.paths[3] != "PUT /_plugins/_security/api/rolesmapping/kibana_limited_role" {
		t.Fatalf("unexpected calls %v", rec.paths)
	}
}

func TestRun_DeleteFromStdinIsNoop(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()
	isolate(t, srv)

	var stdout, stderr bytes.Buffer
	stdin := strings.NewReader(eventJSON(t, security.RequestDelete))
	if code := run(context.Background(), nil, stdin, &stdout, &stderr); code != 0 {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}
	if len(rec.paths) != 0 {
		t.Fatalf("delete must not reach the security API: %v", rec.paths)
	}
}

func TestRun_RejectsBadInput(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"-event", "-"}, strings.NewReader("{"), &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1 for invalid JSON, got %d", code)
	}
	if code := run(context.Background(), []string{"-nope"}, nil, &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit 2 for an unknown flag, got %d", code)
	}
}

func TestRun_MissingEnvironment(t *testing.T) {
	for _, k := range []string{"DOMAIN", "REGION"} {
		t.Setenv(k, "")
		if err := os.Unsetenv(k); err != nil {
			t.Fatal(err)
		}
	}
	var stdout, stderr bytes.Buffer
	stdin := strings.NewReader(eventJSON(t, security.RequestCreate))
	if code := run(context.Background(), nil, stdin, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1 without DOMAIN/REGION, got %d", code)
	}
	if !strings.Contains(stderr.String(), "DOMAIN") {
		t.Fatalf("error should name the missing variable: %s", stderr.String())
	}
}
