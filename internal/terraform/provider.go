package provider

import (
	"context"

	"github.com/hashicorp/terraform-plugin-framework/datasource"
	"github.com/hashicorp/terraform-plugin-framework/provider"
	"github.com/hashicorp/terraform-plugin-framework/provider/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/types"
)

// Ensure implementation satisfies expected interfaces
var _ provider.Provider = (*searchStackProvider)(nil)

type searchStackProvider struct {
	version string
}

// New returns a provider factory closure with the given version string.
func New(version string) func() provider.Provider {
	return func() provider.Provider {
		return &searchStackProvider{version: version}
	}
}

type providerModel struct {
	Region types.String `tfsdk:"region"`
}

// providerData is handed to resources through Configure.
type providerData struct {
	region string
}

func (p *searchStackProvider) Metadata(_ context.Context, _ provider.MetadataRequest, resp *provider.MetadataResponse) {
	resp.TypeName = "searchstack"
	resp.Version = p.version
}

func (p *searchStackProvider) Schema(_ context.Context, _ provider.SchemaRequest, resp *provider.SchemaResponse) {
	resp.Schema = schema.Schema{
		Description: "Applies the fine-grained access control configuration of a search domain.",
		Attributes: map[string]schema.Attribute{
			"region": schema.StringAttribute{
				Optional:    true,
				Description: "Default region; credentials come from the standard AWS chain.",
			},
		},
	}
}

func (p *searchStackProvider) Configure(ctx context.Context, req provider.ConfigureRequest, resp *provider.ConfigureResponse) {
	var cfg providerModel
	resp.Diagnostics.Append(req.Config.Get(ctx, &cfg)...)
	if resp.Diagnostics.HasError() {
		return
	}
	data := &providerData{region: cfg.Region.ValueString()}
	resp.ResourceData = data
}

func (p *searchStackProvider) Resources(_ context.Context) []func() resource.Resource {
	return []func() resource.Resource{
		NewSecurityConfigResource,
	}
}

func (p *searchStackProvider) DataSources(_ context.Context) []func() datasource.DataSource {
	return nil
}
