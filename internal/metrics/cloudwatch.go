// Package metrics publishes custom resource reply counts to CloudWatch.
package metrics

import (
	"context"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// MetricReplies is incremented once per reply sent to CloudFormation.
const MetricReplies = "CustomResourceReplies"

// CloudWatchClient is the subset of the CloudWatch API used here.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// ReplyRecorder counts replies by resource type and status.
type ReplyRecorder struct {
	client    CloudWatchClient
	namespace string
}

// NewReplyRecorder creates a ReplyRecorder publishing into namespace.
func NewReplyRecorder(client CloudWatchClient, namespace string) *ReplyRecorder {
	return &ReplyRecorder{
		client:    client,
		namespace: namespace,
	}
}

// RecordReply publishes a count of one for the reply.
func (r *ReplyRecorder) RecordReply(ctx context.Context, resourceType string, status cfn.StatusType) error {
	_, err := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(r.namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String(MetricReplies),
				Value:      aws.Float64(1),
				Unit:       types.StandardUnitCount,
				Dimensions: []types.Dimension{
					{Name: aws.String("ResourceType"), Value: aws.String(resourceType)},
					{Name: aws.String("Status"), Value: aws.String(string(status))},
				},
			},
		},
	})
	return err
}
