package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/connect"
	"github.com/jarrod-lowe/connect-custom-resources/internal/connectapi"
	"github.com/jarrod-lowe/connect-custom-resources/internal/customresource"
	"github.com/jarrod-lowe/connect-custom-resources/internal/metrics"
	"github.com/jarrod-lowe/jmap-service-libs/awsinit"
	"github.com/jarrod-lowe/jmap-service-libs/logging"
)

var logger = logging.New()

const resourceType = "Custom::ConnectLambdaAssociation"

// Dependencies for handler (injectable for testing)
type Dependencies struct {
	Connect  connectapi.LambdaAssociator
	Replier  customresource.Replier
	Recorder customresource.Recorder
}

var deps *Dependencies

// descriptor links a Lambda function to a Connect instance so contact flows
// may invoke it. Changing either property replaces the association.
func descriptor(client connectapi.LambdaAssociator) customresource.Descriptor {
	associate := func(ctx context.Context, req customresource.Request) (customresource.Result, error) {
		_, err := client.AssociateLambdaFunction(ctx, &connect.AssociateLambdaFunctionInput{
			InstanceId:  aws.String(req.Properties.Get("InstanceId")),
			FunctionArn: aws.String(req.Properties.Get("FunctionArn")),
		})
		if err != nil {
			return customresource.Result{}, &customresource.OperationError{Operation: "AssociateLambdaFunction", Err: err}
		}
		return customresource.Result{}, nil
	}

	disassociate := func(ctx context.Context, req customresource.Request) (customresource.Result, error) {
		_, err := client.DisassociateLambdaFunction(ctx, &connect.DisassociateLambdaFunctionInput{
			InstanceId:  aws.String(req.Properties.Get("InstanceId")),
			FunctionArn: aws.String(req.Properties.Get("FunctionArn")),
		})
		if err != nil {
			return customresource.Result{}, &customresource.OperationError{Operation: "DisassociateLambdaFunction", Err: err}
		}
		return customresource.Result{}, nil
	}

	return customresource.Descriptor{
		ResourceType: resourceType,
		Required:     []string{"InstanceId", "FunctionArn"},
		PhysicalID: func(p customresource.Properties) string {
			return p.Get("InstanceId") + "|" + p.Get("FunctionArn")
		},
		Create: associate,
		Update: associate,
		Delete: disassociate,
	}
}

// handler processes CloudFormation lifecycle events
func handler(ctx context.Context, event cfn.Event) error {
	h := &customresource.Handler{
		Descriptor: descriptor(deps.Connect),
		Replier:    deps.Replier,
		Recorder:   deps.Recorder,
		Logger:     logger,
	}
	return h.Invoke(ctx, event)
}

func main() {
	ctx := context.Background()

	result, err := awsinit.Init(ctx)
	if err != nil {
		logger.Error("FATAL: Failed to initialize AWS",
			slog.String("error", err.Error()),
		)
		panic(err)
	}
	defer result.Cleanup()

	deps = &Dependencies{
		Connect: connect.NewFromConfig(result.Config),
		Replier: customresource.CFNReplier{},
	}

	// Reply metrics are optional
	if namespace := os.Getenv("METRIC_NAMESPACE"); namespace != "" {
		deps.Recorder = metrics.NewReplyRecorder(cloudwatch.NewFromConfig(result.Config), namespace)
	}

	result.Start(handler)
}
