package provider

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/mikecbrant/opensearch-search-stack/internal/common"
	"github.com/mikecbrant/opensearch-search-stack/internal/common/stack"
	"github.com/mikecbrant/opensearch-search-stack/internal/utils/logging"
)

const defaultCanaryFile = "./search-stack/canaries.yaml"

func maybeExportCanaryStatus(ctx *pulumi.Context, name string, cfg stack.Config, env environment, roles *roleSet, dom *searchDomain, d deps) error {
	canaryPath, ok, err := resolveCanaryFile(cfg, d)
	if err != nil || !ok {
		return err
	}

	// The attachment gates the run: simulations against a role without the
	// capability grant would deny.
	canaryDeps := []pulumi.Output{
		dom.attachment.ID().ToStringOutput(),
		dom.resource.Arn,
		roles.limited.Arn,
		roles.admin.Arn,
		roles.lambda.Arn,
		roles.firehose.Arn,
	}
	canaryStatus := pulumi.All(outputsToInterfaces(canaryDeps)...).ApplyT(func(args []interface{}) (string, error) {
		domainArn, _ := args[1].(string)
		if domainArn == "" {
			return "", fmt.Errorf("failed to resolve domain ARN for canary execution")
		}
		target := common.CanaryTarget{
			DomainArn: domainArn,
			Roles: map[string]string{
				"limited":  args[2].(string),
				"admin":    args[3].(string),
				"master":   args[4].(string),
				"delivery": args[5].(string),
			},
		}
		sim, err := d.simulator(ctx.Context(), env.region)
		if err != nil {
			return "", err
		}
		n, err := common.RunAccessCanaries(ctx.Context(), sim, target, canaryPath)
		if err != nil {
			return "", err
		}
		engineLogger{ctx: ctx}.Info("access canaries passed", logging.Fields{"cases": n})
		return "ok", nil
	}).(pulumi.StringOutput)
	ctx.Export(fmt.Sprintf("%s-accessCanary", name), canaryStatus)
	return nil
}

// resolveCanaryFile reports whether canaries run and which consumer file, if
// any, extends the base cases. An empty path with ok set runs the base cases
// only. Relative paths are made absolute against the working directory.
func resolveCanaryFile(cfg stack.Config, d deps) (string, bool, error) {
	p := strings.TrimSpace(cfg.CanaryFile)
	if p == "" {
		if _, err := d.stat(defaultCanaryFile); err != nil {
			return "", cfg.RunCanaries, nil
		}
		p = defaultCanaryFile
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve canary file %s: %w", p, err)
	}
	return abs, true, nil
}
