package utils

import "testing"

func TestNormalizeJSON(t *testing.T) {
	a := NormalizeJSON("{ \"b\": 1,\n \"a\": [1, 2] }")
	b := NormalizeJSON(`{"a":[1,2],"b":1}`)
	if a != b {
		t.Fatalf("expected equal normalized forms: %s vs %s", a, b)
	}
	if NormalizeJSON("") != "" {
		t.Fatalf("empty input should stay empty")
	}
	if NormalizeJSON("not json") != "not json" {
		t.Fatalf("invalid JSON should be returned unchanged")
	}
}

func TestDigest_IgnoresFormatting(t *testing.T) {
	if Digest(`{"a":1, "b":2}`) != Digest("{\"b\":2,\"a\":1}") {
		t.Fatalf("digest should not depend on key order or whitespace")
	}
	if Digest(`{"a":1}`) == Digest(`{"a":2}`) {
		t.Fatalf("digest should change with content")
	}
}

func TestMatchAny(t *testing.T) {
	patterns := []string{"index-0*", "audit"}
	for _, name := range []string{"index-01", "index-02", "audit"} {
		if !MatchAny(patterns, name) {
			t.Fatalf("%s should match", name)
		}
	}
	if MatchAny(patterns, "metrics") {
		t.Fatalf("metrics should not match")
	}
	if MatchAny([]string{"[bad"}, "bad") {
		t.Fatalf("malformed patterns never match")
	}
}

func TestValidatePatterns(t *testing.T) {
	if err := ValidatePatterns([]string{"index-*", "logs-{a,b}"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidatePatterns([]string{"[unterminated"}); err == nil {
		t.Fatalf("expected error for malformed pattern")
	}
	if err := ValidatePatterns([]string{""}); err == nil {
		t.Fatalf("expected error for empty pattern")
	}
}
