package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	ds "github.com/bmatcuk/doublestar/v4"
)

// NormalizeJSON minifies JSON text for stable equality comparisons; when input is empty returns empty string.
func NormalizeJSON(s string) string {
	if len(s) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return s
	}
	return string(b)
}

// Digest returns the hex SHA-256 of the normalized form of a JSON document.
func Digest(s string) string {
	sum := sha256.Sum256([]byte(NormalizeJSON(s)))
	return hex.EncodeToString(sum[:])
}

// ValidatePatterns checks that every pattern is a well-formed doublestar pattern.
func ValidatePatterns(patterns []string) error {
	for _, p := range patterns {
		if p == "" || !ds.ValidatePattern(p) {
			return fmt.Errorf("invalid pattern %q", p)
		}
	}
	return nil
}

// MatchAny reports whether name matches at least one of the patterns.
// Malformed patterns never match.
func MatchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, err := ds.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}
