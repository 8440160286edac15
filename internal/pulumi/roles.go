package provider

import (
	"fmt"

	awscognito "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/cognito"
	awsiam "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/mikecbrant/opensearch-search-stack/internal/awssdk"
	"github.com/mikecbrant/opensearch-search-stack/internal/common/iampolicy"
	"github.com/mikecbrant/opensearch-search-stack/internal/common/stack"
)

// Role purposes; each becomes part of the role name.
const (
	limitedUserRole     = "LimitedUserRole"
	adminUserRole       = "AdminUserRole"
	serviceRole         = "ServiceRole"
	lambdaServiceRole   = "lambdaServiceRole"
	firehoseServiceRole = "firehoseServiceRole"
)

// roleSet holds every role of the stack. Roles are created once and only
// referenced afterwards.
type roleSet struct {
	limited  *awsiam.Role
	admin    *awsiam.Role
	service  *awsiam.Role
	lambda   *awsiam.Role
	firehose *awsiam.Role
}

func (r *roleSet) outputs() RoleOutputs {
	return RoleOutputs{
		LimitedUserRoleArn:     r.limited.Arn,
		AdminUserRoleArn:       r.admin.Arn,
		ServiceRoleArn:         r.service.Arn,
		LambdaServiceRoleArn:   r.lambda.Arn,
		FirehoseServiceRoleArn: r.firehose.Arn,
	}
}

func createRoles(ctx *pulumi.Context, name string, cfg stack.Config, env environment, dir *directory, opts []pulumi.ResourceOption) (*roleSet, error) {
	var (
		rs  roleSet
		err error
	)
	if rs.limited, err = createFederatedRole(ctx, name, cfg, dir.identityPool, limitedUserRole, opts); err != nil {
		return nil, err
	}
	if rs.admin, err = createFederatedRole(ctx, name, cfg, dir.identityPool, adminUserRole, opts); err != nil {
		return nil, err
	}
	if rs.service, err = createServiceRole(ctx, name, cfg, env, serviceRole, "es.amazonaws.com",
		[]string{"AmazonOpenSearchServiceCognitoAccess"}, opts); err != nil {
		return nil, err
	}
	if rs.lambda, err = createServiceRole(ctx, name, cfg, env, lambdaServiceRole, "lambda.amazonaws.com",
		[]string{"service-role/AWSLambdaBasicExecutionRole"}, opts); err != nil {
		return nil, err
	}
	if rs.firehose, err = createServiceRole(ctx, name, cfg, env, firehoseServiceRole, "firehose.amazonaws.com",
		[]string{"AmazonOpenSearchServiceFullAccess", "AmazonKinesisFirehoseFullAccess"}, opts); err != nil {
		return nil, err
	}
	return &rs, nil
}

// createFederatedRole creates a role assumable only by authenticated identities
// of the identity pool. It carries no grants.
func createFederatedRole(ctx *pulumi.Context, name string, cfg stack.Config, pool *awscognito.IdentityPool, purpose string, opts []pulumi.ResourceOption) (*awsiam.Role, error) {
	trust := pool.ID().ToStringOutput().ApplyT(func(poolID string) string {
		return iampolicy.FederatedTrust(poolID).MustJSON()
	}).(pulumi.StringOutput)
	return awsiam.NewRole(ctx, fmt.Sprintf("%s-%s", name, purpose), &awsiam.RoleArgs{
		Name:             pulumi.String(cfg.RoleName(purpose)),
		AssumeRolePolicy: trust,
		Tags:             tagMap(cfg.ResourceTags()),
	}, opts...)
}

// createServiceRole creates a role assumable by a service principal with one
// attachment per AWS-managed policy.
func createServiceRole(ctx *pulumi.Context, name string, cfg stack.Config, env environment, purpose, principal string, managed []string, opts []pulumi.ResourceOption) (*awsiam.Role, error) {
	role, err := awsiam.NewRole(ctx, fmt.Sprintf("%s-%s", name, purpose), &awsiam.RoleArgs{
		Name:             pulumi.String(cfg.RoleName(purpose)),
		AssumeRolePolicy: pulumi.String(iampolicy.ServiceTrust(principal).MustJSON()),
		Tags:             tagMap(cfg.ResourceTags()),
	}, opts...)
	if err != nil {
		return nil, err
	}
	for i, policy := range managed {
		if _, err := awsiam.NewRolePolicyAttachment(ctx, fmt.Sprintf("%s-%s-managed-%d", name, purpose, i+1), &awsiam.RolePolicyAttachmentArgs{
			PolicyArn: pulumi.String(awssdk.ManagedPolicyArn(env.partition, policy)),
			Role:      role.Name,
		}, pulumi.Parent(role)); err != nil {
			return nil, fmt.Errorf("failed to attach %s to %s: %w", policy, purpose, err)
		}
	}
	return role, nil
}

// bindGroups creates the two directory groups and binds each to its role.
func bindGroups(ctx *pulumi.Context, name string, dir *directory, roles *roleSet, opts []pulumi.ResourceOption) error {
	groups := []struct {
		key, group, description string
		role                    *awsiam.Role
	}{
		{"admins", "OS-Admins", "OpenSearch admins access.", roles.admin},
		{"limited", "OS-Limited-Users", "OpenSearch limited access.", roles.limited},
	}
	for _, g := range groups {
		if _, err := awscognito.NewUserGroup(ctx, fmt.Sprintf("%s-group-%s", name, g.key), &awscognito.UserGroupArgs{
			Name:        pulumi.String(g.group),
			UserPoolId:  dir.userPool.ID(),
			Description: pulumi.String(g.description),
			RoleArn:     g.role.Arn,
		}, opts...); err != nil {
			return fmt.Errorf("failed to create group %s: %w", g.group, err)
		}
	}
	return nil
}
