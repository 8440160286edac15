package stack

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sample() Config {
	c := Config{
		Stage:               "dev",
		AppPrefix:           "sample-os",
		DomainInstanceType:  "or1.medium.search",
		DomainEbsVolumeSize: 20,
		Indexes:             []string{"index-01", "index-02"},
	}
	c.Normalize()
	return c
}

func TestNames(t *testing.T) {
	c := sample()
	got := map[string]string{
		"domain":   c.DomainName(),
		"pool":     c.UserPoolName(),
		"hosted":   c.UserPoolDomain(),
		"identity": c.IdentityPoolName(),
		"role":     c.RoleName("LimitedUserRole"),
		"bucket":   c.RetryBucketName("index-01"),
		"stream":   c.StreamName("index-02"),
		"policy":   c.DeliveryPolicyName("index-01"),
		"logs":     c.DeliveryLogGroup("index-01"),
		"handler":  c.HandlerFunctionName(),
	}
	want := map[string]string{
		"domain":   "sample-os-cluster-dev",
		"pool":     "sample-os-dashboard-dev",
		"hosted":   "sample-os-domain-dev",
		"identity": "sample-os-IdentityPool-dev",
		"role":     "sample-os-LimitedUserRole-dev",
		"bucket":   "sample-os-index-01-retry-stream-bucket-dev",
		"stream":   "sample-os-index-02-delivery-stream-dev",
		"policy":   "sample-os-index-01-delivery-stream-policy-dev",
		"logs":     "/aws/kinesisfirehose/sample-os-index-01-delivery-stream-dev",
		"handler":  "sample-os-opensearch-requests-dev",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize_Defaults(t *testing.T) {
	c := Config{Stage: " dev ", Indexes: []string{" a "}}
	c.Normalize()
	if c.Stage != "dev" || c.Indexes[0] != "a" {
		t.Fatalf("expected trimmed identifiers, got %+v", c)
	}
	if c.EngineVersion != DefaultEngineVersion || c.HandlerArchive != DefaultHandlerArchive {
		t.Fatalf("defaults not applied: %+v", c)
	}
}

func TestValidate_OK(t *testing.T) {
	if err := sample().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_AggregatesViolations(t *testing.T) {
	c := Config{Indexes: []string{"a", "a", ""}, LimitedIndexPatterns: []string{"[bad"}}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{
		"stage is required",
		"appPrefix is required",
		"osDomainInstanceType is required",
		"osDomainEbsVolumeSize must be positive",
		"index \"a\" is declared more than once",
		"empty index name",
		"limitedIndexPatterns",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestValidate_RequiresIndexes(t *testing.T) {
	c := sample()
	c.Indexes = nil
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "at least one index") {
		t.Fatalf("expected empty index list error, got %v", err)
	}
}

func TestValidate_BucketNameLength(t *testing.T) {
	c := sample()
	c.Indexes = []string{strings.Repeat("x", 40)}
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "S3 allows 3-63") {
		t.Fatalf("expected bucket length error, got %v", err)
	}
}

func TestValidate_VpcPlacementNeedsSubnets(t *testing.T) {
	c := sample()
	c.Network = &Network{VpcID: "vpc-1", PlaceInVpc: true}
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "subnetIds") {
		t.Fatalf("expected subnet error, got %v", err)
	}
}

func TestLimitedPatterns(t *testing.T) {
	c := sample()
	if diff := cmp.Diff([]string{"index-01", "index-02"}, c.LimitedPatterns()); diff != "" {
		t.Fatalf("default patterns mismatch:\n%s", diff)
	}
	if got := c.UncoveredIndexes(); len(got) != 0 {
		t.Fatalf("expected every index covered, got %v", got)
	}
	c.LimitedIndexPatterns = []string{"index-01"}
	if diff := cmp.Diff([]string{"index-02"}, c.UncoveredIndexes()); diff != "" {
		t.Fatalf("uncovered mismatch:\n%s", diff)
	}
}

func TestResourceTags(t *testing.T) {
	c := sample()
	c.Tags = map[string]string{"team": "search"}
	want := map[string]string{"stack": "sample-os", "stage": "dev", "team": "search"}
	if diff := cmp.Diff(want, c.ResourceTags()); diff != "" {
		t.Fatalf("tags mismatch:\n%s", diff)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stack.yaml")
	body := `stage: dev
appPrefix: sample-os
osDomainInstanceType: or1.medium.search
osDomainEbsVolumeSize: 20
osIndexes: [index-01, index-02]
network:
  vpcId: vpc-00e377b27a8a29ba1
  subnetIds: [subnet-015427efb0ddf7e83]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("loaded config invalid: %v", err)
	}
	if c.Network == nil || c.Network.VpcID != "vpc-00e377b27a8a29ba1" || c.Network.PlaceInVpc {
		t.Fatalf("network not decoded: %+v", c.Network)
	}
	if c.EngineVersion != DefaultEngineVersion {
		t.Fatalf("defaults not applied on load")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("stage: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "invalid YAML") {
		t.Fatalf("expected YAML error, got %v", err)
	}
}
