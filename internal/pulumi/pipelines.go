package provider

import (
	"fmt"

	awscloudwatch "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/cloudwatch"
	awsiam "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	awskinesis "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/kinesis"
	awss3 "github.com/pulumi/pulumi-aws/sdk/v6/go/aws/s3"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/mikecbrant/opensearch-search-stack/internal/common/iampolicy"
	"github.com/mikecbrant/opensearch-search-stack/internal/common/stack"
)

const (
	bufferingSeconds = 60
	bufferingMiB     = 1
	retrySeconds     = 60
)

// pipeline is one index's retry store, delivery grant and stream.
type pipeline struct {
	bucket *awss3.BucketV2
	policy *awsiam.RolePolicy
	stream *awskinesis.FirehoseDeliveryStream
	arn    pulumi.StringOutput
}

// createPipeline builds the ingestion path for one index. Logical names carry
// the index so removing it from the configuration removes only its resources.
func createPipeline(ctx *pulumi.Context, name string, cfg stack.Config, env environment, index string, roles *roleSet, dom *searchDomain, opts, retOpts []pulumi.ResourceOption) (*pipeline, error) {
	prefix := fmt.Sprintf("%s-%s", name, index)
	tags := tagMap(cfg.ResourceTags())

	bucket, err := awss3.NewBucketV2(ctx, prefix+"-retry-bucket", &awss3.BucketV2Args{
		Bucket:       pulumi.String(cfg.RetryBucketName(index)),
		ForceDestroy: pulumi.Bool(!cfg.RetainOnDelete),
		Tags:         tags,
	}, retOpts...)
	if err != nil {
		return nil, err
	}
	if _, err := awss3.NewBucketServerSideEncryptionConfigurationV2(ctx, prefix+"-retry-bucket-sse", &awss3.BucketServerSideEncryptionConfigurationV2Args{
		Bucket: bucket.ID(),
		Rules: awss3.BucketServerSideEncryptionConfigurationV2RuleArray{
			&awss3.BucketServerSideEncryptionConfigurationV2RuleArgs{
				ApplyServerSideEncryptionByDefault: &awss3.BucketServerSideEncryptionConfigurationV2RuleApplyServerSideEncryptionByDefaultArgs{
					SseAlgorithm: pulumi.String("AES256"),
				},
			},
		},
	}, pulumi.Parent(bucket)); err != nil {
		return nil, err
	}
	block, err := awss3.NewBucketPublicAccessBlock(ctx, prefix+"-retry-bucket-pab", &awss3.BucketPublicAccessBlockArgs{
		Bucket:                bucket.ID(),
		BlockPublicAcls:       pulumi.Bool(true),
		BlockPublicPolicy:     pulumi.Bool(true),
		IgnorePublicAcls:      pulumi.Bool(true),
		RestrictPublicBuckets: pulumi.Bool(true),
	}, pulumi.Parent(bucket))
	if err != nil {
		return nil, err
	}

	logGroup, err := awscloudwatch.NewLogGroup(ctx, prefix+"-delivery-lg", &awscloudwatch.LogGroupArgs{
		Name:            pulumi.String(cfg.DeliveryLogGroup(index)),
		RetentionInDays: pulumi.IntPtr(14),
		Tags:            tags,
	}, opts...)
	if err != nil {
		return nil, err
	}

	streamName := cfg.StreamName(index)
	policy, err := awsiam.NewRolePolicy(ctx, prefix+"-delivery-policy", &awsiam.RolePolicyArgs{
		Name: pulumi.String(cfg.DeliveryPolicyName(index)),
		Role: roles.firehose.Name,
		Policy: pulumi.All(bucket.Arn, dom.resource.Arn).ApplyT(func(args []interface{}) string {
			return iampolicy.DeliveryPolicy(iampolicy.DeliveryScope{
				Partition:  env.partition,
				Region:     env.region,
				Account:    env.account,
				StreamName: streamName,
				BucketArn:  args[0].(string),
				DomainArn:  args[1].(string),
				Broad:      cfg.BroadDeliveryGrants,
			}).MustJSON()
		}).(pulumi.StringOutput),
	}, opts...)
	if err != nil {
		return nil, err
	}

	streamOpts := append(append([]pulumi.ResourceOption{}, opts...), pulumi.DependsOn([]pulumi.Resource{policy, block}))
	stream, err := awskinesis.NewFirehoseDeliveryStream(ctx, prefix+"-delivery-stream", &awskinesis.FirehoseDeliveryStreamArgs{
		Name:        pulumi.String(streamName),
		Destination: pulumi.String("opensearch"),
		OpensearchConfiguration: &awskinesis.FirehoseDeliveryStreamOpensearchConfigurationArgs{
			DomainArn:           dom.resource.Arn,
			IndexName:           pulumi.String(index),
			IndexRotationPeriod: pulumi.String("NoRotation"),
			BufferingInterval:   pulumi.Int(bufferingSeconds),
			BufferingSize:       pulumi.Int(bufferingMiB),
			RetryDuration:       pulumi.Int(retrySeconds),
			RoleArn:             roles.firehose.Arn,
			S3BackupMode:        pulumi.String("AllDocuments"),
			S3Configuration: &awskinesis.FirehoseDeliveryStreamOpensearchConfigurationS3ConfigurationArgs{
				BucketArn:         bucket.Arn,
				RoleArn:           roles.firehose.Arn,
				BufferingInterval: pulumi.Int(bufferingSeconds),
				BufferingSize:     pulumi.Int(bufferingMiB),
				CompressionFormat: pulumi.String("UNCOMPRESSED"),
			},
			CloudwatchLoggingOptions: &awskinesis.FirehoseDeliveryStreamOpensearchConfigurationCloudwatchLoggingOptionsArgs{
				Enabled:       pulumi.Bool(true),
				LogGroupName:  logGroup.Name,
				LogStreamName: pulumi.String("DestinationDelivery"),
			},
		},
		Tags: tags,
	}, streamOpts...)
	if err != nil {
		return nil, err
	}

	arn := stream.Name.ApplyT(func(n string) string {
		return fmt.Sprintf("arn:%s:firehose:%s:%s:deliverystream/%s", env.partition, env.region, env.account, n)
	}).(pulumi.StringOutput)
	return &pipeline{bucket: bucket, policy: policy, stream: stream, arn: arn}, nil
}
