package customresource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/jarrod-lowe/connect-custom-resources/internal/connectapi"
	"github.com/jarrod-lowe/jmap-service-libs/tracing"
)

// FailedCreatePrefix marks the physical id reported for a Create that did
// not succeed. CloudFormation follows a failed Create with a Delete of that
// id, which must not touch the API.
const FailedCreatePrefix = "create-failed-"

// IsFailedCreateID reports whether id was produced by a failed Create.
func IsFailedCreateID(id string) bool {
	return strings.HasPrefix(id, FailedCreatePrefix)
}

// Recorder counts replies. Failures are logged and never alter the reply.
type Recorder interface {
	RecordReply(ctx context.Context, resourceType string, status cfn.StatusType) error
}

// Handler runs lifecycle events for one Descriptor.
type Handler struct {
	Descriptor Descriptor
	Replier    Replier
	Recorder   Recorder
	Logger     *slog.Logger
}

// Handle validates the event, runs the matching operation and builds the
// reply. The reply is always non-nil; the returned error is the reason the
// reply is FAILED.
func (h *Handler) Handle(ctx context.Context, event cfn.Event) (*cfn.Response, error) {
	resp := cfn.NewResponse(&event)

	result, err := h.dispatch(ctx, event)
	resp.PhysicalResourceID = h.physicalID(event, result, err)

	if err != nil {
		resp.Status = cfn.StatusFailed
		resp.Reason = failureReason(err)
		return resp, err
	}

	resp.Status = cfn.StatusSuccess
	if len(result.Data) > 0 {
		resp.Data = make(map[string]interface{}, len(result.Data))
		for k, v := range result.Data {
			resp.Data[k] = v
		}
	}
	return resp, nil
}

func (h *Handler) dispatch(ctx context.Context, event cfn.Event) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{}
			err = fmt.Errorf("%s %s panicked: %v", h.Descriptor.ResourceType, event.RequestType, r)
		}
	}()

	if event.RequestType == cfn.RequestDelete && IsFailedCreateID(event.PhysicalResourceID) {
		h.logger().InfoContext(ctx, "Resource was never created, nothing to delete",
			slog.String("physical_resource_id", event.PhysicalResourceID),
		)
		return Result{}, nil
	}

	req, err := h.Descriptor.request(event)
	if err != nil {
		return Result{}, err
	}

	return h.Descriptor.operation(event.RequestType)(ctx, req)
}

func (h *Handler) physicalID(event cfn.Event, result Result, err error) string {
	switch {
	case event.RequestType == cfn.RequestDelete:
		return event.PhysicalResourceID
	case err != nil && event.RequestType == cfn.RequestCreate:
		return FailedCreatePrefix + event.RequestID
	case err != nil:
		return event.PhysicalResourceID
	case result.PhysicalID != "":
		return result.PhysicalID
	}

	if h.Descriptor.PhysicalID != nil {
		props, cerr := h.Descriptor.Coerce.Apply(event.ResourceProperties)
		if cerr == nil {
			if id := h.Descriptor.PhysicalID(props); id != "" {
				return id
			}
		}
	}
	if event.PhysicalResourceID != "" {
		return event.PhysicalResourceID
	}
	return event.RequestID
}

// Invoke handles the event and sends exactly one reply. Only a failure to
// deliver that reply is returned.
func (h *Handler) Invoke(ctx context.Context, event cfn.Event) error {
	logger := h.logger()

	ctx, span := tracing.StartHandlerSpan(ctx, "CustomResourceHandler",
		tracing.RequestID(event.RequestID),
		RequestTypeAttr(string(event.RequestType)),
		ResourceTypeAttr(h.Descriptor.ResourceType),
		LogicalResourceIDAttr(event.LogicalResourceID),
	)
	defer span.End()
	if instanceID, ok := event.ResourceProperties["InstanceId"].(string); ok && instanceID != "" {
		span.SetAttributes(InstanceIDAttr(instanceID))
	}

	logger.InfoContext(ctx, "Received lifecycle event",
		slog.String("request_type", string(event.RequestType)),
		slog.String("resource_type", h.Descriptor.ResourceType),
		slog.String("logical_resource_id", event.LogicalResourceID),
		slog.String("physical_resource_id", event.PhysicalResourceID),
		slog.String("stack_id", event.StackID),
		slog.String("request_id", event.RequestID),
	)

	resp, err := h.Handle(ctx, event)
	if err != nil {
		tracing.RecordError(span, err)
		var verr *ValidationError
		if errors.As(err, &verr) {
			logger.WarnContext(ctx, "Lifecycle event failed validation",
				slog.String("field", verr.Field),
				slog.String("error", err.Error()),
			)
		} else {
			logger.ErrorContext(ctx, "Lifecycle event failed",
				slog.String("request_type", string(event.RequestType)),
				slog.String("error", err.Error()),
				slog.String("error_code", connectapi.ErrorCode(err)),
			)
		}
	}
	span.SetAttributes(
		PhysicalResourceIDAttr(resp.PhysicalResourceID),
		ReplyStatusAttr(string(resp.Status)),
	)

	if h.Recorder != nil {
		if rerr := h.Recorder.RecordReply(ctx, h.Descriptor.ResourceType, resp.Status); rerr != nil {
			logger.WarnContext(ctx, "Failed to record reply metric",
				slog.String("error", rerr.Error()),
			)
		}
	}

	if err := h.Replier.Send(ctx, resp); err != nil {
		tracing.RecordError(span, err)
		logger.ErrorContext(ctx, "Failed to send reply",
			slog.String("status", string(resp.Status)),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to send reply: %w", err)
	}

	logger.InfoContext(ctx, "Reply sent",
		slog.String("status", string(resp.Status)),
		slog.String("physical_resource_id", resp.PhysicalResourceID),
	)
	return nil
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
