package provider

import (
	"context"
	"errors"
	"fmt"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/path"
	"github.com/hashicorp/terraform-plugin-framework/resource"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/planmodifier"
	"github.com/hashicorp/terraform-plugin-framework/resource/schema/stringplanmodifier"
	"github.com/hashicorp/terraform-plugin-framework/types"
	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/mikecbrant/opensearch-search-stack/internal/awssdk"
	"github.com/mikecbrant/opensearch-search-stack/internal/awssdk/invoke"
	"github.com/mikecbrant/opensearch-search-stack/internal/common/security"
	"github.com/mikecbrant/opensearch-search-stack/internal/utils/logging"
)

var _ resource.Resource = (*securityConfigResource)(nil)
var _ resource.ResourceWithConfigure = (*securityConfigResource)(nil)
var _ resource.ResourceWithModifyPlan = (*securityConfigResource)(nil)

// eventHandler is satisfied by security.Handler (direct, signed calls) and
// invoke.Handler (through the deployed Lambda).
type eventHandler interface {
	Handle(ctx context.Context, e security.Event) (security.Result, error)
}

// handlerDeps are the SDK entry points used to build an eventHandler.
type handlerDeps struct {
	loadConfig func(ctx context.Context, region string) (awsv2.Config, error)
	lambdaAPI  func(cfg awsv2.Config) invoke.API
	direct     func(endpoint string, cfg awsv2.Config, log logging.Logger) (eventHandler, error)
}

func defaultHandlerDeps() handlerDeps {
	return handlerDeps{
		loadConfig: awssdk.LoadDefault,
		lambdaAPI:  func(cfg awsv2.Config) invoke.API { return lambda.NewFromConfig(cfg) },
		direct: func(endpoint string, cfg awsv2.Config, log logging.Logger) (eventHandler, error) {
			h, err := security.NewHandler(endpoint, cfg.Region, cfg.Credentials, security.WithLogger(log))
			if err != nil {
				return nil, err
			}
			return h, nil
		},
	}
}

// NewSecurityConfigResource creates the searchstack_security_config resource.
func NewSecurityConfigResource() resource.Resource {
	return &securityConfigResource{deps: defaultHandlerDeps()}
}

type securityConfigResource struct {
	region string
	deps   handlerDeps
}

type securityConfigModel struct {
	ID                  types.String `tfsdk:"id"`
	Endpoint            types.String `tfsdk:"endpoint"`
	Region              types.String `tfsdk:"region"`
	AdminRoleArn        types.String `tfsdk:"admin_role_arn"`
	LimitedRoleArn      types.String `tfsdk:"limited_role_arn"`
	MasterRoleArn       types.String `tfsdk:"master_role_arn"`
	DeliveryRoleArn     types.String `tfsdk:"delivery_role_arn"`
	IndexPatterns       types.List   `tfsdk:"index_patterns"`
	HandlerFunctionName types.String `tfsdk:"handler_function_name"`

	// Outputs
	AppliedDigest types.String `tfsdk:"applied_digest"`
}

func (r *securityConfigResource) Metadata(_ context.Context, req resource.MetadataRequest, resp *resource.MetadataResponse) {
	resp.TypeName = req.ProviderTypeName + "_security_config"
}

func (r *securityConfigResource) Schema(_ context.Context, _ resource.SchemaRequest, resp *resource.SchemaResponse) {
	resp.Schema = schema.Schema{
		Description: "Maps IAM roles into the domain's security plugin roles and defines the read-only limited role. Every create or update re-applies the whole directive sequence; delete leaves the configuration in place.",
		Attributes: map[string]schema.Attribute{
			"id": schema.StringAttribute{Computed: true, PlanModifiers: []planmodifier.String{stringplanmodifier.UseStateForUnknown()}},
			"endpoint": schema.StringAttribute{
				Required:      true,
				Description:   "Domain endpoint host name.",
				PlanModifiers: []planmodifier.String{stringplanmodifier.RequiresReplace()},
			},
			"region":            schema.StringAttribute{Optional: true},
			"admin_role_arn":    schema.StringAttribute{Required: true},
			"limited_role_arn":  schema.StringAttribute{Required: true},
			"master_role_arn":   schema.StringAttribute{Required: true},
			"delivery_role_arn": schema.StringAttribute{Required: true},
			"index_patterns": schema.ListAttribute{
				Required:    true,
				ElementType: types.StringType,
				Description: "Index patterns readable by the limited role.",
			},
			"handler_function_name": schema.StringAttribute{
				Optional:    true,
				Description: "When set, directives are sent through this handler function instead of being applied directly.",
			},
			// Outputs
			"applied_digest": schema.StringAttribute{Computed: true},
		},
	}
}

func (r *securityConfigResource) Configure(_ context.Context, req resource.ConfigureRequest, resp *resource.ConfigureResponse) {
	if req.ProviderData == nil {
		return
	}
	data, ok := req.ProviderData.(*providerData)
	if !ok {
		resp.Diagnostics.AddError("Unexpected provider data", fmt.Sprintf("expected *providerData, got %T", req.ProviderData))
		return
	}
	r.region = data.region
}

// ModifyPlan computes the digest the apply will record so directive changes
// show up in the plan.
func (r *securityConfigResource) ModifyPlan(ctx context.Context, req resource.ModifyPlanRequest, resp *resource.ModifyPlanResponse) {
	if req.Plan.Raw.IsNull() {
		return
	}
	var plan securityConfigModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	if resp.Diagnostics.HasError() || !plan.known() {
		return
	}
	directives, diags := plan.directives(ctx)
	resp.Diagnostics.Append(diags...)
	if diags.HasError() {
		return
	}
	digest, err := security.Digest(directives)
	if err != nil {
		resp.Diagnostics.AddError("Digest failed", err.Error())
		return
	}
	resp.Diagnostics.Append(resp.Plan.SetAttribute(ctx, path.Root("applied_digest"), types.StringValue(digest))...)
}

func (r *securityConfigResource) Create(ctx context.Context, req resource.CreateRequest, resp *resource.CreateResponse) {
	var plan securityConfigModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	if resp.Diagnostics.HasError() {
		return
	}
	resp.Diagnostics.Append(r.apply(ctx, &plan, security.RequestCreate)...)
	if resp.Diagnostics.HasError() {
		return
	}
	resp.Diagnostics.Append(resp.State.Set(ctx, &plan)...)
}

func (r *securityConfigResource) Read(ctx context.Context, req resource.ReadRequest, resp *resource.ReadResponse) {
	var state securityConfigModel
	resp.Diagnostics.Append(req.State.Get(ctx, &state)...)
	if resp.Diagnostics.HasError() {
		return
	}
	resp.Diagnostics.Append(resp.State.Set(ctx, &state)...)
}

func (r *securityConfigResource) Update(ctx context.Context, req resource.UpdateRequest, resp *resource.UpdateResponse) {
	var plan securityConfigModel
	resp.Diagnostics.Append(req.Plan.Get(ctx, &plan)...)
	if resp.Diagnostics.HasError() {
		return
	}
	resp.Diagnostics.Append(r.apply(ctx, &plan, security.RequestUpdate)...)
	if resp.Diagnostics.HasError() {
		return
	}
	resp.Diagnostics.Append(resp.State.Set(ctx, &plan)...)
}

func (r *securityConfigResource) Delete(ctx context.Context, req resource.DeleteRequest, _ *resource.DeleteResponse) {
	var state securityConfigModel
	if diags := req.State.Get(ctx, &state); !diags.HasError() {
		tflog.Info(ctx, "leaving security configuration in place", map[string]any{"endpoint": state.Endpoint.ValueString()})
	}
}

func (r *securityConfigResource) apply(ctx context.Context, m *securityConfigModel, kind security.RequestType) diag.Diagnostics {
	var diags diag.Diagnostics
	directives, d := m.directives(ctx)
	diags.Append(d...)
	if diags.HasError() {
		return diags
	}
	h, err := r.handlerFor(ctx, *m)
	if err != nil {
		diags.AddError("Security handler setup failed", err.Error())
		return diags
	}
	res, err := h.Handle(ctx, security.Event{RequestType: kind, Requests: directives})
	if err != nil {
		var de *security.DirectiveError
		if errors.As(err, &de) {
			diags.AddError("Security configuration failed",
				fmt.Sprintf("%s; directives before #%d remain applied and the next apply re-sends the whole sequence", err, de.Index+1))
			return diags
		}
		diags.AddError("Security configuration failed", err.Error())
		return diags
	}
	digest, err := security.Digest(directives)
	if err != nil {
		diags.AddError("Digest failed", err.Error())
		return diags
	}
	m.ID = types.StringValue(m.Endpoint.ValueString())
	m.AppliedDigest = types.StringValue(digest)
	tflog.Info(ctx, "security configuration applied", map[string]any{
		"endpoint":    m.Endpoint.ValueString(),
		"requestType": string(kind),
		"applied":     res.Applied,
		"digest":      digest,
	})
	return diags
}

func (r *securityConfigResource) handlerFor(ctx context.Context, m securityConfigModel) (eventHandler, error) {
	region := m.Region.ValueString()
	if region == "" {
		region = r.region
	}
	cfg, err := r.deps.loadConfig(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("AWS config error: %w", err)
	}
	log := tfLogger{ctx: ctx}
	if fn := m.HandlerFunctionName.ValueString(); fn != "" {
		return invoke.New(r.deps.lambdaAPI(cfg), fn, log), nil
	}
	return r.deps.direct(m.Endpoint.ValueString(), cfg, log)
}

func (m securityConfigModel) known() bool {
	for _, v := range []types.String{m.AdminRoleArn, m.LimitedRoleArn, m.MasterRoleArn, m.DeliveryRoleArn} {
		if v.IsUnknown() {
			return false
		}
	}
	return !m.IndexPatterns.IsUnknown()
}

func (m securityConfigModel) directives(ctx context.Context) ([]security.Directive, diag.Diagnostics) {
	var patterns []string
	diags := m.IndexPatterns.ElementsAs(ctx, &patterns, false)
	if diags.HasError() {
		return nil, diags
	}
	ds, err := security.Directives(security.RoleArns{
		Admin:    m.AdminRoleArn.ValueString(),
		Limited:  m.LimitedRoleArn.ValueString(),
		Master:   m.MasterRoleArn.ValueString(),
		Delivery: m.DeliveryRoleArn.ValueString(),
	}, patterns)
	if err != nil {
		diags.AddAttributeError(path.Root("index_patterns"), "Invalid security configuration", err.Error())
		return nil, diags
	}
	return ds, diags
}

// tfLogger routes handler logs to the provider's log sink.
type tfLogger struct {
	ctx context.Context
}

func (l tfLogger) Debug(msg string, f logging.Fields) { tflog.Debug(l.ctx, msg, f) }
func (l tfLogger) Info(msg string, f logging.Fields)  { tflog.Info(l.ctx, msg, f) }
func (l tfLogger) Warn(msg string, f logging.Fields)  { tflog.Warn(l.ctx, msg, f) }
