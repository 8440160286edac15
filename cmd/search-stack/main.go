package main

import (
	"fmt"

	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi/config"

	"github.com/mikecbrant/opensearch-search-stack/internal/common/stack"
	provider "github.com/mikecbrant/opensearch-search-stack/internal/pulumi"
)

func main() {
	pulumi.Run(func(ctx *pulumi.Context) error {
		// see Pulumi.<stack>.yaml
		cfg := config.New(ctx, "")
		stackCfg, err := loadStackConfig(ctx, cfg)
		if err != nil {
			return err
		}

		comp, err := provider.NewSearchStack(ctx, "search", provider.ArgsFromConfig(stackCfg))
		if err != nil {
			return err
		}
		ctx.Export("dashboardUrl", comp.DashboardUrl)
		ctx.Export("domainEndpoint", comp.DomainEndpoint)
		ctx.Export("deliveryStreamArns", comp.DeliveryStreamArns)
		ctx.Export("userPoolId", comp.Identity.UserPoolId)
		return nil
	})
}

// loadStackConfig reads a YAML file when configFile is set and otherwise
// assembles the configuration from individual stack settings.
func loadStackConfig(ctx *pulumi.Context, cfg *config.Config) (stack.Config, error) {
	if path := cfg.Get("configFile"); path != "" {
		c, err := stack.Load(path)
		if err != nil {
			return stack.Config{}, err
		}
		if c.Stage == "" {
			c.Stage = ctx.Stack()
		}
		return c, nil
	}

	c := stack.Config{
		Stage:               cfg.Get("stage"),
		AppPrefix:           cfg.Require("appPrefix"),
		DomainInstanceType:  cfg.Get("osDomainInstanceType"),
		DomainEbsVolumeSize: cfg.GetInt("osDomainEbsVolumeSize"),
		EngineVersion:       cfg.Get("engineVersion"),
		HandlerArchive:      cfg.Get("handlerArchive"),
		RetainOnDelete:      cfg.GetBool("retainOnDelete"),
		BroadDeliveryGrants: cfg.GetBool("broadDeliveryGrants"),
		RunCanaries:         cfg.GetBool("runCanaries"),
		CanaryFile:          cfg.Get("canaryFile"),
	}
	if c.Stage == "" {
		c.Stage = ctx.Stack()
	}
	if c.DomainInstanceType == "" {
		c.DomainInstanceType = "t3.small.search"
	}
	if c.DomainEbsVolumeSize == 0 {
		c.DomainEbsVolumeSize = 10
	}
	if err := cfg.GetObject("osIndexes", &c.Indexes); err != nil {
		return stack.Config{}, fmt.Errorf("osIndexes: %w", err)
	}
	_ = cfg.GetObject("limitedIndexPatterns", &c.LimitedIndexPatterns)
	_ = cfg.GetObject("tags", &c.Tags)

	var network struct {
		VpcID      string   `json:"vpcId"`
		SubnetIDs  []string `json:"subnetIds"`
		PlaceInVpc bool     `json:"placeInVpc"`
	}
	if err := cfg.GetObject("network", &network); err == nil && network.VpcID != "" {
		c.Network = &stack.Network{VpcID: network.VpcID, SubnetIDs: network.SubnetIDs, PlaceInVpc: network.PlaceInVpc}
	}
	c.Normalize()
	return c, nil
}
