package provider

import (
	"fmt"

	awscognito "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/cognito"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/mikecbrant/opensearch-search-stack/internal/common/stack"
)

const (
	inviteSubject = "Use the OpenSearch Dashboards with this account."
	inviteEmail   = "Hello {username}, you have been invited to join our OpenSearch Dashboards app! Your temporary password is {####}"
	inviteSms     = "Hi {username}, your temporary password for our OpenSearch Dashboards app is {####}"
)

// directory is the user directory plus the identity pool that exchanges its
// tokens for role credentials.
type directory struct {
	userPool     *awscognito.UserPool
	poolDomain   *awscognito.UserPoolDomain
	identityPool *awscognito.IdentityPool
}

func createDirectory(ctx *pulumi.Context, name string, cfg stack.Config, opts, retOpts []pulumi.ResourceOption) (*directory, error) {
	deletion := "INACTIVE"
	if cfg.RetainOnDelete {
		deletion = "ACTIVE"
	}
	up, err := awscognito.NewUserPool(ctx, fmt.Sprintf("%s-userpool", name), &awscognito.UserPoolArgs{
		Name: pulumi.String(cfg.UserPoolName()),
		AdminCreateUserConfig: &awscognito.UserPoolAdminCreateUserConfigArgs{
			AllowAdminCreateUserOnly: pulumi.Bool(false),
			InviteMessageTemplate: &awscognito.UserPoolAdminCreateUserConfigInviteMessageTemplateArgs{
				EmailSubject: pulumi.String(inviteSubject),
				EmailMessage: pulumi.String(inviteEmail),
				SmsMessage:   pulumi.String(inviteSms),
			},
		},
		AliasAttributes:        pulumi.ToStringArray([]string{"email"}),
		AutoVerifiedAttributes: pulumi.ToStringArray([]string{"email"}),
		DeletionProtection:     pulumi.String(deletion),
		Tags:                   tagMap(cfg.ResourceTags()),
	}, retOpts...)
	if err != nil {
		return nil, err
	}

	dom, err := awscognito.NewUserPoolDomain(ctx, fmt.Sprintf("%s-userpool-domain", name), &awscognito.UserPoolDomainArgs{
		Domain:     pulumi.String(cfg.UserPoolDomain()),
		UserPoolId: up.ID(),
	}, opts...)
	if err != nil {
		return nil, err
	}

	// Providers are attached by the domain when dashboards auth is enabled.
	idPoolOpts := append(append([]pulumi.ResourceOption{}, retOpts...), pulumi.IgnoreChanges([]string{"cognitoIdentityProviders"}))
	idp, err := awscognito.NewIdentityPool(ctx, fmt.Sprintf("%s-identitypool", name), &awscognito.IdentityPoolArgs{
		IdentityPoolName:               pulumi.String(cfg.IdentityPoolName()),
		AllowUnauthenticatedIdentities: pulumi.Bool(false),
		Tags:                           tagMap(cfg.ResourceTags()),
	}, idPoolOpts...)
	if err != nil {
		return nil, err
	}
	return &directory{userPool: up, poolDomain: dom, identityPool: idp}, nil
}
