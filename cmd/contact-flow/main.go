package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/connect"
	"github.com/jarrod-lowe/connect-custom-resources/internal/connectapi"
	"github.com/jarrod-lowe/connect-custom-resources/internal/customresource"
	"github.com/jarrod-lowe/connect-custom-resources/internal/metrics"
	"github.com/jarrod-lowe/jmap-service-libs/awsinit"
	"github.com/jarrod-lowe/jmap-service-libs/logging"
)

var logger = logging.New()

const resourceType = "Custom::ConnectContactFlow"

// SuffixGenerator produces the random tail appended to retired flow names
type SuffixGenerator interface {
	Suffix(n int) string
}

// Dependencies for handler (injectable for testing)
type Dependencies struct {
	Connect           connectapi.ContactFlowManager
	Replier           customresource.Replier
	Recorder          customresource.Recorder
	Suffix            SuffixGenerator
	DefaultDeleteMode DeleteMode
}

var deps *Dependencies

// handler processes CloudFormation lifecycle events
func handler(ctx context.Context, event cfn.Event) error {
	flows := &FlowProvisioner{
		Client:            deps.Connect,
		Suffix:            deps.Suffix,
		DefaultDeleteMode: deps.DefaultDeleteMode,
	}
	h := &customresource.Handler{
		Descriptor: flows.Descriptor(),
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

	deleteMode := DeleteModeRename
	if v := os.Getenv("CONTACT_FLOW_DELETE_MODE"); v != "" {
		deleteMode, err = ParseDeleteMode(v)
		if err != nil {
			logger.Error("FATAL: CONTACT_FLOW_DELETE_MODE is invalid",
				slog.String("value", v),
				slog.String("error", err.Error()),
			)
			panic(fmt.Sprintf("CONTACT_FLOW_DELETE_MODE is invalid: %v", err))
		}
	}

	deps = &Dependencies{
		Connect:           connect.NewFromConfig(result.Config),
		Replier:           customresource.CFNReplier{},
		Suffix:            RandomSuffix{},
		DefaultDeleteMode: deleteMode,
	}

	if namespace := os.Getenv("METRIC_NAMESPACE"); namespace != "" {
		deps.Recorder = metrics.NewReplyRecorder(cloudwatch.NewFromConfig(result.Config), namespace)
	}

	logger.Info("Contact flow handler ready",
		slog.String("default_delete_mode", string(deleteMode)),
	)

	result.Start(handler)
}
