// Package stack holds the configuration surface of the search stack and the
// deterministic naming rules every builder derives its resource names from.
package stack

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/mikecbrant/opensearch-search-stack/internal/utils"
)

const (
	DefaultEngineVersion  = "OpenSearch_2.15"
	DefaultHandlerArchive = "./dist/opensearch-requests.zip"
)

// Config is the stack configuration: stage, naming prefix, domain sizing, the
// declared indexes (one ingestion pipeline each) and network placement.
type Config struct {
	Stage               string            `yaml:"stage"`
	AppPrefix           string            `yaml:"appPrefix"`
	DomainInstanceType  string            `yaml:"osDomainInstanceType"`
	DomainEbsVolumeSize int               `yaml:"osDomainEbsVolumeSize"`
	Indexes             []string          `yaml:"osIndexes"`
	EngineVersion       string            `yaml:"engineVersion,omitempty"`
	Network             *Network          `yaml:"network,omitempty"`
	RetainOnDelete      bool              `yaml:"retainOnDelete,omitempty"`
	HandlerArchive      string            `yaml:"handlerArchive,omitempty"`
	BroadDeliveryGrants bool              `yaml:"broadDeliveryGrants,omitempty"`
	RunCanaries         bool              `yaml:"runCanaries,omitempty"`
	CanaryFile          string            `yaml:"canaryFile,omitempty"`
	Tags                map[string]string `yaml:"tags,omitempty"`
	// LimitedIndexPatterns overrides the index patterns readable by the limited
	// role. When empty the declared indexes are used verbatim.
	LimitedIndexPatterns []string `yaml:"limitedIndexPatterns,omitempty"`
}

// Network carries the opaque placement identifiers. The domain is only placed in
// the VPC when PlaceInVpc is set.
type Network struct {
	VpcID      string   `yaml:"vpcId"`
	SubnetIDs  []string `yaml:"subnetIds"`
	PlaceInVpc bool     `yaml:"placeInVpc,omitempty"`
}

// Load reads a YAML stack configuration file and applies defaults.
func Load(path string) (Config, error) {
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return Config{}, err
		}
		path = filepath.Join(cwd, path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read stack config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	cfg.Normalize()
	return cfg, nil
}

// Normalize trims identifiers and fills defaults in place.
func (c *Config) Normalize() {
	c.Stage = strings.TrimSpace(c.Stage)
	c.AppPrefix = strings.TrimSpace(c.AppPrefix)
	c.DomainInstanceType = strings.TrimSpace(c.DomainInstanceType)
	for i := range c.Indexes {
		c.Indexes[i] = strings.TrimSpace(c.Indexes[i])
	}
	if c.EngineVersion == "" {
		c.EngineVersion = DefaultEngineVersion
	}
	if c.HandlerArchive == "" {
		c.HandlerArchive = DefaultHandlerArchive
	}
}

// Validate reports every configuration violation at once.
func (c Config) Validate() error {
	var result *multierror.Error
	if c.Stage == "" {
		result = multierror.Append(result, fmt.Errorf("stage is required"))
	}
	if c.AppPrefix == "" {
		result = multierror.Append(result, fmt.Errorf("appPrefix is required"))
	}
	if c.DomainInstanceType == "" {
		result = multierror.Append(result, fmt.Errorf("osDomainInstanceType is required"))
	}
	if c.DomainEbsVolumeSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("osDomainEbsVolumeSize must be positive (got %d)", c.DomainEbsVolumeSize))
	}
	if len(c.Indexes) == 0 {
		result = multierror.Append(result, fmt.Errorf("osIndexes must declare at least one index"))
	}
	seen := map[string]struct{}{}
	for _, idx := range c.Indexes {
		if idx == "" {
			result = multierror.Append(result, fmt.Errorf("osIndexes contains an empty index name"))
			continue
		}
		if _, dup := seen[idx]; dup {
			result = multierror.Append(result, fmt.Errorf("index %q is declared more than once", idx))
			continue
		}
		seen[idx] = struct{}{}
		if n := len(c.RetryBucketName(idx)); n < 3 || n > 63 {
			result = multierror.Append(result, fmt.Errorf("retry bucket name for index %q is %d characters; S3 allows 3-63", idx, n))
		}
	}
	if err := utils.ValidatePatterns(c.LimitedIndexPatterns); err != nil {
		result = multierror.Append(result, fmt.Errorf("limitedIndexPatterns: %w", err))
	}
	if c.Network != nil && c.Network.PlaceInVpc && len(c.Network.SubnetIDs) == 0 {
		result = multierror.Append(result, fmt.Errorf("network.subnetIds is required when network.placeInVpc is set"))
	}
	return result.ErrorOrNil()
}

// LimitedPatterns returns the index patterns granted read-only to the limited role.
func (c Config) LimitedPatterns() []string {
	if len(c.LimitedIndexPatterns) > 0 {
		return append([]string(nil), c.LimitedIndexPatterns...)
	}
	return append([]string(nil), c.Indexes...)
}

// UncoveredIndexes lists declared indexes the limited role cannot read.
func (c Config) UncoveredIndexes() []string {
	patterns := c.LimitedPatterns()
	out := []string{}
	for _, idx := range c.Indexes {
		if !utils.MatchAny(patterns, idx) {
			out = append(out, idx)
		}
	}
	sort.Strings(out)
	return out
}

// name builds "<prefix>-<part>-<stage>".
func (c Config) name(part string) string {
	return fmt.Sprintf("%s-%s-%s", c.AppPrefix, part, c.Stage)
}

func (c Config) DomainName() string { return c.name("cluster") }
func (c Config) UserPoolName() string { return c.name("dashboard") }
func (c Config) UserPoolDomain() string { return c.name("domain") }
func (c Config) IdentityPoolName() string { return c.name("IdentityPool") }
func (c Config) RoleName(purpose string) string { return c.name(purpose) }

// RetryBucketName is the per-index retry store name.
func (c Config) RetryBucketName(index string) string {
	return c.name(index + "-retry-stream-bucket")
}

// StreamName is the per-index delivery stream name.
func (c Config) StreamName(index string) string {
	return c.name(index + "-delivery-stream")
}

// DeliveryPolicyName is the per-index inline policy on the shared delivery role.
func (c Config) DeliveryPolicyName(index string) string {
	return c.name(index + "-delivery-stream-policy")
}

// DeliveryLogGroup is the log group a delivery stream reports failures to.
func (c Config) DeliveryLogGroup(index string) string {
	return "/aws/kinesisfirehose/" + c.StreamName(index)
}

func (c Config) HandlerFunctionName() string { return c.name("opensearch-requests") }
func (c Config) CapabilityPolicyName() string { return c.name("limitedUserPolicy") }
func (c Config) SecurityGroupName() string { return c.name("domain-sg") }

// ResourceTags returns the tags applied to every taggable resource.
func (c Config) ResourceTags() map[string]string {
	out := map[string]string{"stack": c.AppPrefix, "stage": c.Stage}
	for k, v := range c.Tags {
		out[k] = v
	}
	return out
}
