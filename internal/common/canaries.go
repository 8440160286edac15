package common

import (
	"context"
	"embed"
	"fmt"
	"os"
	"strings"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"gopkg.in/yaml.v3"

	"github.com/mikecbrant/opensearch-search-stack/internal/awssdk"
	awserrors "github.com/mikecbrant/opensearch-search-stack/internal/awssdk/errors"
)

//go:embed assets/canaries/*.yaml
var canaryFS embed.FS

const domainPlaceholder = "{domain}"

// Simulator is the subset of the IAM client used by the canaries.
type Simulator interface {
	SimulatePrincipalPolicy(ctx context.Context, in *iam.SimulatePrincipalPolicyInput, optFns ...func(*iam.Options)) (*iam.SimulatePrincipalPolicyOutput, error)
}

// NewSimulator returns an IAM client for region using the default credential chain.
func NewSimulator(ctx context.Context, region string) (Simulator, error) {
	cfg, err := awssdk.LoadDefault(ctx, region)
	if err != nil {
		return nil, err
	}
	return iam.NewFromConfig(cfg), nil
}

type yamlCase struct {
	Role     string `yaml:"role"`
	Action   string `yaml:"action"`
	Resource string `yaml:"resource"`
	Expect   string `yaml:"expect"`
}

type canaryDoc struct {
	Cases []yamlCase `yaml:"cases"`
}

// CanaryTarget is what the canaries are evaluated against. Roles maps aliases
// such as "limited" to role ARNs.
type CanaryTarget struct {
	DomainArn string
	Roles     map[string]string
}

type canaryCase struct {
	RoleArn  string
	Action   string
	Resource string
	Allowed  bool
	Source   string
}

// RunAccessCanaries merges the embedded base cases with an optional consumer
// canary file and simulates each one against the attached IAM policies. It
// returns the number of cases that ran.
func RunAccessCanaries(ctx context.Context, sim Simulator, target CanaryTarget, consumerPath string) (int, error) {
	cases, err := loadCanaryCases(target, consumerPath)
	if err != nil {
		return 0, err
	}
	for i, c := range cases {
		out, err := sim.SimulatePrincipalPolicy(ctx, &iam.SimulatePrincipalPolicyInput{
			PolicySourceArn: awsv2.String(c.RoleArn),
			ActionNames:     []string{c.Action},
			ResourceArns:    []string{c.Resource},
		})
		if err != nil {
			return i, fmt.Errorf("canary #%d (%s) failed to execute: %w", i+1, c.Source, awserrors.Classify(err))
		}
		allowed := len(out.EvaluationResults) > 0
		for _, r := range out.EvaluationResults {
			if r.EvalDecision != iamtypes.PolicyEvaluationDecisionTypeAllowed {
				allowed = false
			}
		}
		if allowed != c.Allowed {
			return i, fmt.Errorf("canary #%d (%s) unexpected decision: got %s, want %s (role=%s, action=%s, resource=%s)",
				i+1, c.Source, decisionName(allowed), decisionName(c.Allowed), c.RoleArn, c.Action, c.Resource)
		}
	}
	return len(cases), nil
}

func decisionName(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}

func loadCanaryCases(target CanaryTarget, consumerPath string) ([]canaryCase, error) {
	if strings.TrimSpace(target.DomainArn) == "" {
		return nil, fmt.Errorf("canaries: domain ARN is required")
	}
	out := []canaryCase{}
	if consumerPath != "" {
		b, err := os.ReadFile(consumerPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read canary file %s: %w", consumerPath, err)
		}
		cases, err := resolveCanaryDoc(b, consumerPath, target)
		if err != nil {
			return nil, err
		}
		out = append(out, cases...)
	}
	b, err := canaryFS.ReadFile("assets/canaries/base.yaml")
	if err != nil {
		return nil, err
	}
	base, err := resolveCanaryDoc(b, "base.yaml", target)
	if err != nil {
		return nil, err
	}
	return append(out, base...), nil
}

func resolveCanaryDoc(b []byte, src string, target CanaryTarget) ([]canaryCase, error) {
	var doc canaryDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("invalid canary YAML %s: %w", src, err)
	}
	cases := make([]canaryCase, 0, len(doc.Cases))
	for i, c := range doc.Cases {
		role := strings.TrimSpace(c.Role)
		arn, ok := target.Roles[role]
		if !ok {
			if !strings.HasPrefix(role, "arn:") {
				return nil, fmt.Errorf("%s case #%d: unknown role %q", src, i+1, c.Role)
			}
			arn = role
		}
		var allowed bool
		switch strings.ToLower(strings.TrimSpace(c.Expect)) {
		case "allowed", "allow":
			allowed = true
		case "denied", "deny":
		default:
			return nil, fmt.Errorf("%s case #%d: expect must be allowed or denied (got %q)", src, i+1, c.Expect)
		}
		if strings.TrimSpace(c.Action) == "" {
			return nil, fmt.Errorf("%s case #%d: action is required", src, i+1)
		}
		cases = append(cases, canaryCase{
			RoleArn:  arn,
			Action:   c.Action,
			Resource: strings.ReplaceAll(c.Resource, domainPlaceholder, target.DomainArn),
			Allowed:  allowed,
			Source:   fmt.Sprintf("%s #%d", src, i+1),
		})
	}
	return cases, nil
}
