package provider

import (
	"fmt"

	awscloudwatch "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/cloudwatch"
	awslambda "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/lambda"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/mikecbrant/opensearch-search-stack/internal/common/security"
	"github.com/mikecbrant/opensearch-search-stack/internal/common/stack"
)

// securityHandler is the deployed handler plus the invocation that feeds it
// the directive list.
type securityHandler struct {
	function   *awslambda.Function
	invocation *awslambda.Invocation
	digest     pulumi.StringOutput
}

func deploySecurityHandler(ctx *pulumi.Context, name string, cfg stack.Config, env environment, roles *roleSet, dom *searchDomain, opts []pulumi.ResourceOption) (*securityHandler, error) {
	fn, err := awslambda.NewFunction(ctx, fmt.Sprintf("%s-security-handler", name), &awslambda.FunctionArgs{
		Name:          pulumi.String(cfg.HandlerFunctionName()),
		Role:          roles.lambda.Arn,
		Runtime:       pulumi.String("provided.al2023"),
		Handler:       pulumi.String("bootstrap"),
		Architectures: pulumi.ToStringArray([]string{"arm64"}),
		Timeout:       pulumi.Int(30),
		MemorySize:    pulumi.Int(128),
		Code:          pulumi.NewFileArchive(cfg.HandlerArchive),
		Environment: &awslambda.FunctionEnvironmentArgs{Variables: pulumi.StringMap{
			"DOMAIN": dom.resource.Endpoint,
			"REGION": pulumi.String(env.region),
		}},
		Tags: tagMap(cfg.ResourceTags()),
	}, opts...)
	if err != nil {
		return nil, err
	}

	logs, err := awscloudwatch.NewLogGroup(ctx, fmt.Sprintf("%s-security-handler-lg", name), &awscloudwatch.LogGroupArgs{
		Name:            pulumi.String("/aws/lambda/" + cfg.HandlerFunctionName()),
		RetentionInDays: pulumi.IntPtr(14),
		Tags:            tagMap(cfg.ResourceTags()),
	}, opts...)
	if err != nil {
		return nil, err
	}

	patterns := cfg.LimitedPatterns()
	event := pulumi.All(roles.admin.Arn, roles.limited.Arn, roles.lambda.Arn, roles.firehose.Arn).ApplyT(func(args []interface{}) (string, error) {
		directives, err := security.Directives(security.RoleArns{
			Admin:    args[0].(string),
			Limited:  args[1].(string),
			Master:   args[2].(string),
			Delivery: args[3].(string),
		}, patterns)
		if err != nil {
			return "", err
		}
		return security.NewEvent(directives).JSON()
	}).(pulumi.StringOutput)
	digest := event.ApplyT(func(js string) (string, error) {
		ev, err := security.ParseEvent([]byte(js))
		if err != nil {
			return "", err
		}
		return security.Digest(ev.Requests)
	}).(pulumi.StringOutput)

	// Any change to the event input re-applies the whole directive list.
	invOpts := append(append([]pulumi.ResourceOption{}, opts...),
		pulumi.DependsOn([]pulumi.Resource{dom.resource, dom.attachment, logs}))
	inv, err := awslambda.NewInvocation(ctx, fmt.Sprintf("%s-security-config", name), &awslambda.InvocationArgs{
		FunctionName:   fn.Name,
		Input:          event,
		LifecycleScope: pulumi.String("CRUD"),
		Triggers:       pulumi.StringMap{"endpoint": dom.resource.Endpoint},
	}, invOpts...)
	if err != nil {
		return nil, err
	}
	return &securityHandler{function: fn, invocation: inv, digest: digest}, nil
}
