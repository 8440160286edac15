package provider

import (
	"context"
	"fmt"
	"os"

	p "github.com/pulumi/pulumi-go-provider"
	"github.com/pulumi/pulumi-go-provider/infer"
	"github.com/pulumi/pulumi/sdk/v3/go/common/tokens"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/mikecbrant/opensearch-search-stack/internal/awssdk"
	"github.com/mikecbrant/opensearch-search-stack/internal/awssdk/cognito"
	"github.com/mikecbrant/opensearch-search-stack/internal/common"
	"github.com/mikecbrant/opensearch-search-stack/internal/common/identity"
	"github.com/mikecbrant/opensearch-search-stack/internal/common/plan"
	"github.com/mikecbrant/opensearch-search-stack/internal/common/stack"
)

const searchStackType = "search-stack:index:SearchStack"

// NewProvider builds the component provider.
func NewProvider() (p.Provider, error) {
	return infer.NewProviderBuilder().
		WithComponents(infer.ComponentF(NewSearchStack)).
		Build()
}

// SearchStackArgs defines the inputs for the component resource.
type SearchStackArgs struct {
	// Stage suffix of every resource name (e.g. dev, prod).
	Stage string `pulumi:"stage"`
	// Prefix of every resource name.
	AppPrefix string `pulumi:"appPrefix"`
	// Instance type of the single data node.
	DomainInstanceType string `pulumi:"osDomainInstanceType"`
	// EBS volume size in GiB.
	DomainEbsVolumeSize int `pulumi:"osDomainEbsVolumeSize"`
	// One ingestion pipeline is created per index.
	Indexes []string `pulumi:"osIndexes"`
	// Defaults to OpenSearch_2.15.
	EngineVersion *string `pulumi:"engineVersion,optional"`
	// Index patterns readable by the limited role. Defaults to osIndexes.
	LimitedIndexPatterns []string `pulumi:"limitedIndexPatterns,optional"`
	// Optional VPC placement of the domain.
	Network *NetworkArgs `pulumi:"network,optional"`
	// When true, stateful resources are retained on delete.
	RetainOnDelete *bool `pulumi:"retainOnDelete,optional"`
	// Path of the packaged security handler (zip with a bootstrap binary).
	HandlerArchive *string `pulumi:"handlerArchive,optional"`
	// Grant kms:* and logs:* to the delivery role instead of the scoped set.
	BroadDeliveryGrants *bool `pulumi:"broadDeliveryGrants,optional"`
	// Post-deploy access canaries.
	Canaries *CanaryArgs `pulumi:"canaries,optional"`
	// Extra tags applied to every taggable resource.
	Tags map[string]string `pulumi:"tags,optional"`
}

// NetworkArgs carries VPC placement identifiers.
type NetworkArgs struct {
	VpcID      string   `pulumi:"vpcId"`
	SubnetIDs  []string `pulumi:"subnetIds"`
	PlaceInVpc *bool    `pulumi:"placeInVpc,optional"`
}

// CanaryArgs enables the IAM simulation canaries.
type CanaryArgs struct {
	Enabled *bool   `pulumi:"enabled,optional"`
	File    *string `pulumi:"file,optional"`
}

// SearchStack is the component implementing the Construct.
type SearchStack struct {
	pulumi.ResourceState

	DashboardUrl       pulumi.StringOutput    `pulumi:"dashboardUrl"`
	DomainArn          pulumi.StringOutput    `pulumi:"domainArn"`
	DomainEndpoint     pulumi.StringOutput    `pulumi:"domainEndpoint"`
	DeliveryStreamArns pulumi.StringMapOutput `pulumi:"deliveryStreamArns"`

	Identity IdentityOutputs `pulumi:"identity"`
	Roles    RoleOutputs     `pulumi:"roles"`
	Security SecurityOutputs `pulumi:"security"`
}

// IdentityOutputs groups the directory outputs under the `identity` object.
type IdentityOutputs struct {
	UserPoolId     pulumi.StringOutput `pulumi:"userPoolId"`
	IdentityPoolId pulumi.StringOutput `pulumi:"identityPoolId"`
	ProviderName   pulumi.StringOutput `pulumi:"providerName"`
}

// RoleOutputs groups the role ARNs under the `roles` object.
type RoleOutputs struct {
	LimitedUserRoleArn     pulumi.StringOutput `pulumi:"limitedUserRoleArn"`
	AdminUserRoleArn       pulumi.StringOutput `pulumi:"adminUserRoleArn"`
	ServiceRoleArn         pulumi.StringOutput `pulumi:"serviceRoleArn"`
	LambdaServiceRoleArn   pulumi.StringOutput `pulumi:"lambdaServiceRoleArn"`
	FirehoseServiceRoleArn pulumi.StringOutput `pulumi:"firehoseServiceRoleArn"`
}

// SecurityOutputs groups the security handler outputs under the `security` object.
type SecurityOutputs struct {
	HandlerFunctionArn pulumi.StringOutput `pulumi:"handlerFunctionArn"`
	DirectivesDigest   pulumi.StringOutput `pulumi:"directivesDigest"`
}

// Annotate attaches schema metadata used for provider docs and code generation.
func (c *SearchStack) Annotate(a infer.Annotator) {
	a.Describe(&c, "Provision a secured OpenSearch domain with Cognito sign-in, fine-grained access control and one Firehose ingestion pipeline per index.")
	a.SetToken(tokens.ModuleName("index"), tokens.TypeName("SearchStack"))
}

// deps are the SDK entry points used by post-creation steps.
type deps struct {
	clientLister func(ctx context.Context, region string) (identity.ClientLister, error)
	simulator    func(ctx context.Context, region string) (common.Simulator, error)
	stat         func(path string) (os.FileInfo, error)
}

func defaultDeps() deps {
	return deps{
		clientLister: func(ctx context.Context, region string) (identity.ClientLister, error) {
			cfg, err := awssdk.LoadDefault(ctx, region)
			if err != nil {
				return nil, err
			}
			return cognito.NewFromConfig(cfg, nil), nil
		},
		simulator: common.NewSimulator,
		stat:      os.Stat,
	}
}

// handles are what each step hands to the steps ordered after it.
type handles struct {
	env          environment
	directory    *directory
	roles        *roleSet
	domain       *searchDomain
	providerName pulumi.StringOutput
	security     *securityHandler
	pipelines    map[string]*pipeline
}

// NewSearchStack is the component constructor used by infer.Component.
func NewSearchStack(ctx *pulumi.Context, name string, args SearchStackArgs, opts ...pulumi.ResourceOption) (*SearchStack, error) {
	return newSearchStack(ctx, name, args, defaultDeps(), opts...)
}

func newSearchStack(ctx *pulumi.Context, name string, args SearchStackArgs, d deps, opts ...pulumi.ResourceOption) (*SearchStack, error) {
	cfg := args.toConfig()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid search stack configuration: %w", err)
	}
	if _, err := d.stat(cfg.HandlerArchive); err != nil {
		return nil, fmt.Errorf("security handler archive %q not found; build cmd/opensearch-requests first: %w", cfg.HandlerArchive, err)
	}

	comp := &SearchStack{}
	if err := ctx.RegisterComponentResource(searchStackType, name, comp, opts...); err != nil {
		return nil, err
	}
	childOpts, retOpts := buildChildOptions(comp, opts, cfg.RetainOnDelete)

	if uncovered := cfg.UncoveredIndexes(); len(uncovered) > 0 {
		if err := ctx.Log.Warn(fmt.Sprintf("limited role cannot read indexes %v; check limitedIndexPatterns", uncovered), &pulumi.LogArgs{Resource: comp}); err != nil {
			return nil, err
		}
	}

	env, err := lookupEnvironment(ctx)
	if err != nil {
		return nil, err
	}
	h := &handles{env: env, pipelines: map[string]*pipeline{}}

	pl := plan.New()
	pl.MustAdd("identity", func() (err error) {
		h.directory, err = createDirectory(ctx, name, cfg, childOpts, retOpts)
		return err
	})
	pl.MustAdd("roles", func() (err error) {
		h.roles, err = createRoles(ctx, name, cfg, env, h.directory, childOpts)
		return err
	}).After("identity")
	pl.MustAdd("groups", func() error {
		return bindGroups(ctx, name, h.directory, h.roles, childOpts)
	}).After("identity", "roles")
	pl.MustAdd("domain", func() (err error) {
		h.domain, err = createDomain(ctx, name, cfg, env, h.directory, h.roles, childOpts, retOpts)
		return err
	}).After("identity", "roles")
	pl.MustAdd("identity-resolver", func() (err error) {
		h.providerName, err = attachIdentityResolver(ctx, name, env, h.directory, h.roles, h.domain, d, childOpts)
		return err
	}).After("domain")
	pl.MustAdd("security", func() (err error) {
		h.security, err = deploySecurityHandler(ctx, name, cfg, env, h.roles, h.domain, childOpts)
		return err
	}).After("domain", "roles")
	for _, index := range cfg.Indexes {
		index := index
		pl.MustAdd("pipeline/"+index, func() (err error) {
			h.pipelines[index], err = createPipeline(ctx, name, cfg, env, index, h.roles, h.domain, childOpts, retOpts)
			return err
		}).After("domain", "roles")
	}
	pl.MustAdd("canaries", func() error {
		return maybeExportCanaryStatus(ctx, name, cfg, env, h.roles, h.domain, d)
	}).After("domain")
	if err := pl.Execute(); err != nil {
		return nil, err
	}

	streamArns := pulumi.StringMap{}
	for index, pipe := range h.pipelines {
		streamArns[index] = pipe.arn
	}

	comp.DashboardUrl = h.domain.dashboardUrl
	comp.DomainArn = h.domain.resource.Arn
	comp.DomainEndpoint = h.domain.resource.Endpoint
	comp.DeliveryStreamArns = streamArns.ToStringMapOutput()
	comp.Identity = IdentityOutputs{
		UserPoolId:     h.directory.userPool.ID().ToStringOutput(),
		IdentityPoolId: h.directory.identityPool.ID().ToStringOutput(),
		ProviderName:   h.providerName,
	}
	comp.Roles = h.roles.outputs()
	comp.Security = SecurityOutputs{HandlerFunctionArn: h.security.function.Arn, DirectivesDigest: h.security.digest}

	if err := ctx.RegisterResourceOutputs(comp, pulumi.Map{
		"dashboardUrl":       comp.DashboardUrl,
		"domainArn":          comp.DomainArn,
		"domainEndpoint":     comp.DomainEndpoint,
		"deliveryStreamArns": comp.DeliveryStreamArns,
	}); err != nil {
		return nil, err
	}
	return comp, nil
}

func (args SearchStackArgs) toConfig() stack.Config {
	cfg := stack.Config{
		Stage:                args.Stage,
		AppPrefix:            args.AppPrefix,
		DomainInstanceType:   args.DomainInstanceType,
		DomainEbsVolumeSize:  args.DomainEbsVolumeSize,
		Indexes:              append([]string(nil), args.Indexes...),
		EngineVersion:        stringOrDefault(args.EngineVersion, ""),
		HandlerArchive:       stringOrDefault(args.HandlerArchive, ""),
		LimitedIndexPatterns: append([]string(nil), args.LimitedIndexPatterns...),
		RetainOnDelete:       boolOrDefault(args.RetainOnDelete, false),
		BroadDeliveryGrants:  boolOrDefault(args.BroadDeliveryGrants, false),
		Tags:                 args.Tags,
	}
	if args.Network != nil {
		cfg.Network = &stack.Network{
			VpcID:      args.Network.VpcID,
			SubnetIDs:  append([]string(nil), args.Network.SubnetIDs...),
			PlaceInVpc: boolOrDefault(args.Network.PlaceInVpc, false),
		}
	}
	if args.Canaries != nil {
		cfg.RunCanaries = boolOrDefault(args.Canaries.Enabled, true)
		cfg.CanaryFile = stringOrDefault(args.Canaries.File, "")
	}
	cfg.Normalize()
	return cfg
}

// ArgsFromConfig maps a loaded stack configuration onto component args.
func ArgsFromConfig(cfg stack.Config) SearchStackArgs {
	args := SearchStackArgs{
		Stage:                cfg.Stage,
		AppPrefix:            cfg.AppPrefix,
		DomainInstanceType:   cfg.DomainInstanceType,
		DomainEbsVolumeSize:  cfg.DomainEbsVolumeSize,
		Indexes:              cfg.Indexes,
		EngineVersion:        pulumi.StringRef(cfg.EngineVersion),
		HandlerArchive:       pulumi.StringRef(cfg.HandlerArchive),
		LimitedIndexPatterns: cfg.LimitedIndexPatterns,
		RetainOnDelete:       pulumi.BoolRef(cfg.RetainOnDelete),
		BroadDeliveryGrants:  pulumi.BoolRef(cfg.BroadDeliveryGrants),
		Tags:                 cfg.Tags,
	}
	if cfg.Network != nil {
		args.Network = &NetworkArgs{VpcID: cfg.Network.VpcID, SubnetIDs: cfg.Network.SubnetIDs, PlaceInVpc: pulumi.BoolRef(cfg.Network.PlaceInVpc)}
	}
	if cfg.RunCanaries || cfg.CanaryFile != "" {
		args.Canaries = &CanaryArgs{Enabled: pulumi.BoolRef(cfg.RunCanaries), File: pulumi.StringRef(cfg.CanaryFile)}
	}
	return args
}

func buildChildOptions(comp pulumi.Resource, opts []pulumi.ResourceOption, retainOnDelete bool) (childOpts []pulumi.ResourceOption, retainOpts []pulumi.ResourceOption) {
	childOpts = append([]pulumi.ResourceOption{}, opts...)
	childOpts = append(childOpts, pulumi.Parent(comp))
	retainOpts = append([]pulumi.ResourceOption{}, childOpts...)
	if retainOnDelete {
		retainOpts = append(retainOpts, pulumi.RetainOnDelete(true))
	}
	return childOpts, retainOpts
}
