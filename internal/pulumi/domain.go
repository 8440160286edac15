package provider

import (
	"fmt"

	awsec2 "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/ec2"
	awsiam "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	awsopensearch "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/opensearch"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/mikecbrant/opensearch-search-stack/internal/common/iampolicy"
	"github.com/mikecbrant/opensearch-search-stack/internal/common/stack"
)

const tlsPolicy = "Policy-Min-TLS-1-2-2019-07"

// searchDomain is the domain plus the capability grant attached alongside it.
type searchDomain struct {
	resource     *awsopensearch.Domain
	capability   *awsiam.Policy
	attachment   *awsiam.PolicyAttachment
	dashboardUrl pulumi.StringOutput
	// settled resolves once the domain's ARN and endpoint are known.
	settled pulumi.StringOutput
}

func createDomain(ctx *pulumi.Context, name string, cfg stack.Config, env environment, dir *directory, roles *roleSet, opts, retOpts []pulumi.ResourceOption) (*searchDomain, error) {
	arn := iampolicy.DomainArn(env.partition, env.region, env.account, cfg.DomainName())
	domainArgs := &awsopensearch.DomainArgs{
		DomainName:    pulumi.String(cfg.DomainName()),
		EngineVersion: pulumi.String(cfg.EngineVersion),
		ClusterConfig: &awsopensearch.DomainClusterConfigArgs{
			InstanceType:              pulumi.String(cfg.DomainInstanceType),
			InstanceCount:             pulumi.Int(1),
			ZoneAwarenessEnabled:      pulumi.Bool(false),
			MultiAzWithStandbyEnabled: pulumi.Bool(false),
			DedicatedMasterEnabled:    pulumi.Bool(false),
		},
		EbsOptions: &awsopensearch.DomainEbsOptionsArgs{
			EbsEnabled: pulumi.Bool(true),
			VolumeSize: pulumi.Int(cfg.DomainEbsVolumeSize),
			VolumeType: pulumi.String("gp3"),
		},
		NodeToNodeEncryption: &awsopensearch.DomainNodeToNodeEncryptionArgs{Enabled: pulumi.Bool(true)},
		EncryptAtRest:        &awsopensearch.DomainEncryptAtRestArgs{Enabled: pulumi.Bool(true)},
		DomainEndpointOptions: &awsopensearch.DomainDomainEndpointOptionsArgs{
			EnforceHttps:      pulumi.Bool(true),
			TlsSecurityPolicy: pulumi.String(tlsPolicy),
		},
		AccessPolicies: pulumi.String(iampolicy.DomainAccessPolicy(arn).MustJSON()),
		CognitoOptions: &awsopensearch.DomainCognitoOptionsArgs{
			Enabled:        pulumi.Bool(true),
			IdentityPoolId: dir.identityPool.ID().ToStringOutput(),
			RoleArn:        roles.service.Arn,
			UserPoolId:     dir.userPool.ID().ToStringOutput(),
		},
		AdvancedSecurityOptions: &awsopensearch.DomainAdvancedSecurityOptionsArgs{
			Enabled:                     pulumi.Bool(true),
			InternalUserDatabaseEnabled: pulumi.Bool(false),
			MasterUserOptions: &awsopensearch.DomainAdvancedSecurityOptionsMasterUserOptionsArgs{
				MasterUserArn: roles.lambda.Arn,
			},
		},
		Tags: tagMap(cfg.ResourceTags()),
	}
	if cfg.Network != nil && cfg.Network.PlaceInVpc {
		sg, err := createDomainSecurityGroup(ctx, name, cfg, opts)
		if err != nil {
			return nil, err
		}
		domainArgs.VpcOptions = &awsopensearch.DomainVpcOptionsArgs{
			SubnetIds:        pulumi.ToStringArray(cfg.Network.SubnetIDs[:1]),
			SecurityGroupIds: pulumi.StringArray{sg.ID().ToStringOutput()},
		}
	}

	// The service role must be able to configure Cognito before the domain is created.
	domainOpts := append(append([]pulumi.ResourceOption{}, retOpts...), pulumi.DependsOn([]pulumi.Resource{roles.service}))
	dom, err := awsopensearch.NewDomain(ctx, fmt.Sprintf("%s-domain", name), domainArgs, domainOpts...)
	if err != nil {
		return nil, err
	}

	capability, err := awsiam.NewPolicy(ctx, fmt.Sprintf("%s-domain-http", name), &awsiam.PolicyArgs{
		Name:        pulumi.String(cfg.CapabilityPolicyName()),
		Description: pulumi.String("HTTP access to the search domain"),
		Policy: dom.Arn.ApplyT(func(domainArn string) string {
			return iampolicy.DomainHTTPGrant(domainArn).MustJSON()
		}).(pulumi.StringOutput),
		Tags: tagMap(cfg.ResourceTags()),
	}, opts...)
	if err != nil {
		return nil, err
	}
	// PolicyAttachment is exclusive: these three roles are the only holders.
	attachment, err := awsiam.NewPolicyAttachment(ctx, fmt.Sprintf("%s-domain-http-attachment", name), &awsiam.PolicyAttachmentArgs{
		Name:      pulumi.String(cfg.CapabilityPolicyName()),
		PolicyArn: capability.Arn,
		Roles:     pulumi.Array{roles.limited.Name, roles.lambda.Name, roles.firehose.Name},
	}, pulumi.Parent(capability))
	if err != nil {
		return nil, err
	}

	return &searchDomain{
		resource:     dom,
		capability:   capability,
		attachment:   attachment,
		dashboardUrl: pulumi.Sprintf("https://%s/_dashboards", dom.Endpoint),
		settled:      gate(dom.Arn, dom.Endpoint),
	}, nil
}

// createDomainSecurityGroup admits HTTPS from inside the VPC only.
func createDomainSecurityGroup(ctx *pulumi.Context, name string, cfg stack.Config, opts []pulumi.ResourceOption) (*awsec2.SecurityGroup, error) {
	vpcID := cfg.Network.VpcID
	vpc, err := awsec2.LookupVpc(ctx, &awsec2.LookupVpcArgs{Id: &vpcID})
	if err != nil {
		return nil, fmt.Errorf("failed to look up VPC %s: %w", vpcID, err)
	}
	return awsec2.NewSecurityGroup(ctx, fmt.Sprintf("%s-domain-sg", name), &awsec2.SecurityGroupArgs{
		Name:        pulumi.String(cfg.SecurityGroupName()),
		Description: pulumi.String("HTTPS access to the search domain"),
		VpcId:       pulumi.String(vpcID),
		Ingress: awsec2.SecurityGroupIngressArray{
			awsec2.SecurityGroupIngressArgs{
				Protocol:   pulumi.String("tcp"),
				FromPort:   pulumi.Int(443),
				ToPort:     pulumi.Int(443),
				CidrBlocks: pulumi.StringArray{pulumi.String(vpc.CidrBlock)},
			},
		},
		Tags: tagMap(cfg.ResourceTags()),
	}, opts...)
}
