package provider

import (
	"fmt"

	awscognito "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/cognito"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/mikecbrant/opensearch-search-stack/internal/common/identity"
	"github.com/mikecbrant/opensearch-search-stack/internal/utils/logging"
)

// attachIdentityResolver looks up the dashboards app client once the domain has
// settled and maps the identity pool's authenticated identities to the limited
// role. The domain registers that client, so the lookup cannot run earlier.
func attachIdentityResolver(ctx *pulumi.Context, name string, env environment, dir *directory, roles *roleSet, dom *searchDomain, d deps, opts []pulumi.ResourceOption) (pulumi.StringOutput, error) {
	providerName := pulumi.All(dom.settled, dir.userPool.ID().ToStringOutput()).ApplyT(func(args []interface{}) (string, error) {
		poolID := args[1].(string)
		lister, err := d.clientLister(ctx.Context(), env.region)
		if err != nil {
			return "", err
		}
		provider, err := identity.Resolve(ctx.Context(), lister, env.region, poolID)
		if err != nil {
			return "", err
		}
		engineLogger{ctx: ctx}.Info("identity provider resolved", logging.Fields{"providerName": provider, "userPoolId": poolID})
		return provider, nil
	}).(pulumi.StringOutput)

	attachOpts := append(append([]pulumi.ResourceOption{}, opts...), pulumi.DependsOn([]pulumi.Resource{dom.resource}))
	_, err := awscognito.NewIdentityPoolRoleAttachment(ctx, fmt.Sprintf("%s-identitypool-roles", name), &awscognito.IdentityPoolRoleAttachmentArgs{
		IdentityPoolId: dir.identityPool.ID().ToStringOutput(),
		Roles:          pulumi.StringMap{"authenticated": roles.limited.Arn},
		RoleMappings: awscognito.IdentityPoolRoleAttachmentRoleMappingArray{
			awscognito.IdentityPoolRoleAttachmentRoleMappingArgs{
				IdentityProvider:        providerName,
				Type:                    pulumi.String("Token"),
				AmbiguousRoleResolution: pulumi.String("AuthenticatedRole"),
			},
		},
	}, attachOpts...)
	if err != nil {
		return pulumi.StringOutput{}, err
	}
	return providerName, nil
}
