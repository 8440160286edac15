package provider

import (
	"fmt"
	"sort"
	"strings"

	aws "github.com/pulumi/pulumi-aws/sdk/v6/go/aws"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/mikecbrant/opensearch-search-stack/internal/awssdk"
	"github.com/mikecbrant/opensearch-search-stack/internal/utils/logging"
)

// environment is the account context resources are created in.
type environment struct {
	region    string
	account   string
	partition string
}

func lookupEnvironment(ctx *pulumi.Context) (environment, error) {
	reg, err := aws.GetRegion(ctx, nil)
	if err != nil {
		return environment{}, fmt.Errorf("failed to resolve region: %w", err)
	}
	caller, err := aws.GetCallerIdentity(ctx, nil)
	if err != nil {
		return environment{}, fmt.Errorf("failed to resolve caller identity: %w", err)
	}
	return environment{region: reg.Name, account: caller.AccountId, partition: awssdk.PartitionForRegion(reg.Name)}, nil
}

// gate resolves only once every output is known; post-creation calls chain on it.
func gate(outs ...pulumi.Output) pulumi.StringOutput {
	return pulumi.All(outputsToInterfaces(outs)...).ApplyT(func(_ []interface{}) string {
		return "settled"
	}).(pulumi.StringOutput)
}

// outputsToInterfaces converts a slice of pulumi.Output to a slice of interface{}
// suitable for passing to variadic functions like pulumi.All.
func outputsToInterfaces(ins []pulumi.Output) []interface{} {
	out := make([]interface{}, len(ins))
	for i, v := range ins {
		out[i] = v
	}
	return out
}

// stringOrDefault dereferences ptr, or returns def when ptr is nil.
func stringOrDefault(ptr *string, def string) string {
	if ptr == nil {
		return def
	}
	return *ptr
}

func boolOrDefault(ptr *bool, def bool) bool {
	if ptr == nil {
		return def
	}
	return *ptr
}

func tagMap(tags map[string]string) pulumi.StringMap {
	return pulumi.ToStringMap(tags)
}

// engineLogger forwards structured logs to the engine's diagnostics stream.
type engineLogger struct {
	ctx *pulumi.Context
}

func (l engineLogger) Debug(msg string, f logging.Fields) {
	_ = l.ctx.Log.Debug(withFields(msg, f), &pulumi.LogArgs{})
}

func (l engineLogger) Info(msg string, f logging.Fields) {
	_ = l.ctx.Log.Info(withFields(msg, f), &pulumi.LogArgs{})
}

func (l engineLogger) Warn(msg string, f logging.Fields) {
	_ = l.ctx.Log.Warn(withFields(msg, f), &pulumi.LogArgs{})
}

func withFields(msg string, f logging.Fields) string {
	if len(f) == 0 {
		return msg
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, f[k]))
	}
	return msg + " " + strings.Join(parts, " ")
}
