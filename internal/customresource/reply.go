package customresource

import (
	"context"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-lambda-go/lambdacontext"
)

// Replier delivers the terminal reply for an invocation.
type Replier interface {
	Send(ctx context.Context, resp *cfn.Response) error
}

// CFNReplier PUTs the reply to the event's pre-signed ResponseURL.
type CFNReplier struct{}

// Send transmits resp. The pre-signed URL carries its own expiry, so ctx is
// not consulted.
func (CFNReplier) Send(_ context.Context, resp *cfn.Response) error {
	return resp.Send()
}

// The whole response body must stay under 4 KiB.
const maxReasonLength = 1024

func failureReason(err error) string {
	reason := err.Error()
	if len(reason) > maxReasonLength {
		cut := maxReasonLength - 3
		for cut > 0 && !utf8.RuneStart(reason[cut]) {
			cut--
		}
		reason = reason[:cut] + "..."
	}
	if lambdacontext.LogStreamName != "" {
		reason += " (see CloudWatch log stream " + lambdacontext.LogStreamName + ")"
	}
	return reason
}
