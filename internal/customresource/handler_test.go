package customresource

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/cfn"
)

type mockReplier struct {
	sent []*cfn.Response
	err  error
}

func (m *mockReplier) Send(ctx context.Context, resp *cfn.Response) error {
	m.sent = append(m.sent, resp)
	return m.err
}

type mockRecorder struct {
	statuses []cfn.StatusType
	err      error
}

func (m *mockRecorder) RecordReply(ctx context.Context, resourceType string, status cfn.StatusType) error {
	m.statuses = append(m.statuses, status)
	return m.err
}

type callLog struct {
	calls []Request
}

func (c *callLog) op(result Result, err error) Operation {
	return func(ctx context.Context, req Request) (Result, error) {
		c.calls = append(c.calls, req)
		return result, err
	}
}

func testDescriptor(calls *callLog, result Result, err error) Descriptor {
	return Descriptor{
		ResourceType: "Custom::Widget",
		Required:     []string{"InstanceId", "WidgetArn"},
		Coerce:       Coercion{"Size": KindInt},
		PhysicalID: func(p Properties) string {
			return p.Get("InstanceId") + "|" + p.Get("WidgetArn")
		},
		Create: calls.op(result, err),
		Update: calls.op(result, err),
		Delete: calls.op(result, err),
	}
}

func testEvent(requestType cfn.RequestType, props map[string]interface{}) cfn.Event {
	return cfn.Event{
		RequestType:        requestType,
		RequestID:          "req-123",
		ResponseURL:        "https://example.invalid/reply",
		ResourceType:       "Custom::Widget",
		LogicalResourceID:  "Widget",
		StackID:            "arn:aws:cloudformation:ap-southeast-2:123456789012:stack/test/abc",
		ResourceProperties: props,
	}
}

func validProps() map[string]interface{} {
	return map[string]interface{}{
		"ServiceToken": "arn:aws:lambda:ap-southeast-2:123456789012:function:cr",
		"InstanceId":   "inst-1",
		"WidgetArn":    "arn:widget",
		"Size":         "3",
	}
}

func TestHandle_MissingRequiredFieldsMakesNoCall(t *testing.T) {
	tests := []struct {
		name  string
		props map[string]interface{}
	}{
		{"missing both", map[string]interface{}{}},
		{"missing instance", map[string]interface{}{"WidgetArn": "arn:widget"}},
		{"missing widget", map[string]interface{}{"InstanceId": "inst-1"}},
		{"empty instance", map[string]interface{}{"InstanceId": "", "WidgetArn": "arn:widget"}},
	}
	for _, requestType := range []cfn.RequestType{cfn.RequestCreate, cfn.RequestUpdate, cfn.RequestDelete} {
		for _, tt := range tests {
			t.Run(string(requestType)+" "+tt.name, func(t *testing.T) {
				calls := &callLog{}
				h := &Handler{Descriptor: testDescriptor(calls, Result{}, nil)}

				event := testEvent(requestType, tt.props)
				event.PhysicalResourceID = "inst-1|arn:widget"
				resp, err := h.Handle(context.Background(), event)

				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("expected ValidationError, got %v", err)
				}
				if resp.Status != cfn.StatusFailed {
					t.Errorf("expected FAILED, got %s", resp.Status)
				}
				if len(resp.Data) != 0 {
					t.Errorf("expected no data, got %v", resp.Data)
				}
				if len(calls.calls) != 0 {
					t.Errorf("expected no API calls, got %d", len(calls.calls))
				}
			})
		}
	}
}

func TestHandle_CreateSuccess(t *testing.T) {
	calls := &callLog{}
	h := &Handler{Descriptor: testDescriptor(calls, Result{Data: map[string]string{"WidgetId": "w-1"}}, nil)}

	resp, err := h.Handle(context.Background(), testEvent(cfn.RequestCreate, validProps()))
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	if resp.Status != cfn.StatusSuccess {
		t.Errorf("expected SUCCESS, got %s", resp.Status)
	}
	if resp.PhysicalResourceID != "inst-1|arn:widget" {
		t.Errorf("expected derived physical id, got %q", resp.PhysicalResourceID)
	}
	if resp.Data["WidgetId"] != "w-1" {
		t.Errorf("expected WidgetId data, got %v", resp.Data)
	}
	if resp.RequestID != "req-123" || resp.LogicalResourceID != "Widget" {
		t.Errorf("response did not copy event identity: %+v", resp)
	}
	if len(calls.calls) != 1 {
		t.Fatalf("expected exactly one call, got %d", len(calls.calls))
	}

	req := calls.calls[0]
	if req.Properties.Get("InstanceId") != "inst-1" || req.Properties.Get("WidgetArn") != "arn:widget" {
		t.Errorf("properties not passed through: %v", req.Properties)
	}
	if _, ok := req.Properties["ServiceToken"]; ok {
		t.Error("ServiceToken should not reach the operation")
	}
	if req.Properties.Get("Size") != "3" {
		t.Errorf("expected coerced Size '3', got %q", req.Properties.Get("Size"))
	}
}

func TestHandle_OperationPhysicalIDWins(t *testing.T) {
	calls := &callLog{}
	h := &Handler{Descriptor: testDescriptor(calls, Result{PhysicalID: "widget-42"}, nil)}

	resp, _ := h.Handle(context.Background(), testEvent(cfn.RequestCreate, validProps()))
	if resp.PhysicalResourceID != "widget-42" {
		t.Errorf("expected operation physical id, got %q", resp.PhysicalResourceID)
	}
}

func TestHandle_CreateFallsBackToRequestID(t *testing.T) {
	calls := &callLog{}
	d := testDescriptor(calls, Result{}, nil)
	d.PhysicalID = nil
	h := &Handler{Descriptor: d}

	resp, _ := h.Handle(context.Background(), testEvent(cfn.RequestCreate, validProps()))
	if resp.PhysicalResourceID != "req-123" {
		t.Errorf("expected request id fallback, got %q", resp.PhysicalResourceID)
	}
}

func TestHandle_DeleteEchoesPhysicalID(t *testing.T) {
	calls := &callLog{}
	h := &Handler{Descriptor: testDescriptor(calls, Result{PhysicalID: "ignored"}, nil)}

	event := testEvent(cfn.RequestDelete, validProps())
	event.PhysicalResourceID = "original-id"
	resp, err := h.Handle(context.Background(), event)
	if err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}

	if resp.PhysicalResourceID != "original-id" {
		t.Errorf("expected original physical id, got %q", resp.PhysicalResourceID)
	}
	if len(calls.calls) != 1 || calls.calls[0].Type != cfn.RequestDelete {
		t.Errorf("expected one delete call, got %+v", calls.calls)
	}
}

func TestHandle_OperationErrorIsFailed(t *testing.T) {
	calls := &callLog{}
	apiErr := &OperationError{Operation: "AssociateWidget", Err: errors.New("AccessDeniedException")}
	h := &Handler{Descriptor: testDescriptor(calls, Result{Data: map[string]string{"x": "y"}}, apiErr)}

	event := testEvent(cfn.RequestUpdate, validProps())
	event.PhysicalResourceID = "inst-1|arn:old"
	resp, err := h.Handle(context.Background(), event)

	if !errors.Is(err, apiErr) {
		t.Fatalf("expected operation error, got %v", err)
	}
	if resp.Status != cfn.StatusFailed {
		t.Errorf("expected FAILED, got %s", resp.Status)
	}
	if !strings.Contains(resp.Reason, "AssociateWidget failed") {
		t.Errorf("expected reason to mention the operation, got %q", resp.Reason)
	}
	if resp.Data != nil {
		t.Errorf("failed reply should carry no data, got %v", resp.Data)
	}
	if resp.PhysicalResourceID != "inst-1|arn:old" {
		t.Errorf("failed update should keep the existing id, got %q", resp.PhysicalResourceID)
	}
}

func TestHandle_FailedCreateThenDeleteSkipsAPI(t *testing.T) {
	calls := &callLog{}
	h := &Handler{Descriptor: testDescriptor(calls, Result{}, errors.New("boom"))}

	createResp, _ := h.Handle(context.Background(), testEvent(cfn.RequestCreate, validProps()))
	if !IsFailedCreateID(createResp.PhysicalResourceID) {
		t.Fatalf("expected failed-create id, got %q", createResp.PhysicalResourceID)
	}

	deleteEvent := testEvent(cfn.RequestDelete, map[string]interface{}{})
	deleteEvent.PhysicalResourceID = createResp.PhysicalResourceID
	deleteResp, err := h.Handle(context.Background(), deleteEvent)
	if err != nil {
		t.Fatalf("expected delete of failed create to succeed, got %v", err)
	}
	if deleteResp.Status != cfn.StatusSuccess {
		t.Errorf("expected SUCCESS, got %s", deleteResp.Status)
	}
	if deleteResp.PhysicalResourceID != createResp.PhysicalResourceID {
		t.Errorf("expected id echoed, got %q", deleteResp.PhysicalResourceID)
	}
	if len(calls.calls) != 1 {
		t.Errorf("expected only the create call, got %d calls", len(calls.calls))
	}
}

func TestHandle_UnsupportedRequestType(t *testing.T) {
	calls := &callLog{}
	h := &Handler{Descriptor: testDescriptor(calls, Result{}, nil)}

	resp, err := h.Handle(context.Background(), testEvent("Replace", validProps()))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if resp.Status != cfn.StatusFailed || len(calls.calls) != 0 {
		t.Errorf("expected FAILED with no calls, got %s and %d calls", resp.Status, len(calls.calls))
	}
}

func TestHandle_RequiredForRequestType(t *testing.T) {
	calls := &callLog{}
	d := testDescriptor(calls, Result{}, nil)
	d.RequiredFor = map[cfn.RequestType][]string{cfn.RequestCreate: {"Name"}}
	h := &Handler{Descriptor: d}

	_, err := h.Handle(context.Background(), testEvent(cfn.RequestCreate, validProps()))
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "Name" {
		t.Fatalf("expected Name to be required on create, got %v", err)
	}

	event := testEvent(cfn.RequestUpdate, validProps())
	event.PhysicalResourceID = "inst-1|arn:widget"
	if _, err := h.Handle(context.Background(), event); err != nil {
		t.Errorf("Name should not be required on update, got %v", err)
	}
}

func TestHandle_IdenticalUpdatesGiveIdenticalReplies(t *testing.T) {
	calls := &callLog{}
	h := &Handler{Descriptor: testDescriptor(calls, Result{Data: map[string]string{"WidgetArn": "arn:widget"}}, nil)}

	event := testEvent(cfn.RequestUpdate, validProps())
	event.PhysicalResourceID = "inst-1|arn:widget"

	first, _ := h.Handle(context.Background(), event)
	second, _ := h.Handle(context.Background(), event)

	if first.PhysicalResourceID != second.PhysicalResourceID {
		t.Errorf("physical id changed between updates: %q vs %q", first.PhysicalResourceID, second.PhysicalResourceID)
	}
	if first.Data["WidgetArn"] != second.Data["WidgetArn"] || len(first.Data) != len(second.Data) {
		t.Errorf("data changed between updates: %v vs %v", first.Data, second.Data)
	}
}

func TestInvoke_SendsExactlyOneReply(t *testing.T) {
	tests := []struct {
		name   string
		op     Operation
		status cfn.StatusType
	}{
		{"success", func(ctx context.Context, req Request) (Result, error) { return Result{}, nil }, cfn.StatusSuccess},
		{"api error", func(ctx context.Context, req Request) (Result, error) {
			return Result{}, errors.New("ThrottlingException")
		}, cfn.StatusFailed},
		{"panic", func(ctx context.Context, req Request) (Result, error) { panic("nil pointer") }, cfn.StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replier := &mockReplier{}
			recorder := &mockRecorder{}
			h := &Handler{
				Descriptor: Descriptor{
					ResourceType: "Custom::Widget",
					Required:     []string{"InstanceId"},
					Create:       tt.op,
				},
				Replier:  replier,
				Recorder: recorder,
			}

			err := h.Invoke(context.Background(), testEvent(cfn.RequestCreate, validProps()))
			if err != nil {
				t.Fatalf("Invoke returned error: %v", err)
			}
			if len(replier.sent) != 1 {
				t.Fatalf("expected exactly one reply, got %d", len(replier.sent))
			}
			if replier.sent[0].Status != tt.status {
				t.Errorf("expected %s, got %s", tt.status, replier.sent[0].Status)
			}
			if len(recorder.statuses) != 1 || recorder.statuses[0] != tt.status {
				t.Errorf("expected recorder to see %s once, got %v", tt.status, recorder.statuses)
			}
		})
	}
}

func TestInvoke_ReplyFailureIsReturned(t *testing.T) {
	replier := &mockReplier{err: errors.New("connection reset")}
	calls := &callLog{}
	h := &Handler{Descriptor: testDescriptor(calls, Result{}, nil), Replier: replier}

	err := h.Invoke(context.Background(), testEvent(cfn.RequestCreate, validProps()))
	if err == nil {
		t.Fatal("expected error when reply cannot be sent")
	}
	if len(replier.sent) != 1 {
		t.Errorf("expected a single send attempt, got %d", len(replier.sent))
	}
}

func TestInvoke_RecorderFailureDoesNotChangeReply(t *testing.T) {
	replier := &mockReplier{}
	calls := &callLog{}
	h := &Handler{
		Descriptor: testDescriptor(calls, Result{}, nil),
		Replier:    replier,
		Recorder:   &mockRecorder{err: errors.New("cloudwatch down")},
	}

	if err := h.Invoke(context.Background(), testEvent(cfn.RequestCreate, validProps())); err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if len(replier.sent) != 1 || replier.sent[0].Status != cfn.StatusSuccess {
		t.Errorf("expected one SUCCESS reply, got %+v", replier.sent)
	}
}

func TestHandle_OptionalRejectsUnknownProperties(t *testing.T) {
	calls := &callLog{}
	d := testDescriptor(calls, Result{}, nil)
	d.Optional = []string{"Size"}
	h := &Handler{Descriptor: d}

	props := validProps()
	props["Colour"] = "blue"
	props["Alpha"] = "1"

	resp, err := h.Handle(context.Background(), testEvent(cfn.RequestCreate, props))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Field != "Alpha,Colour" {
		t.Errorf("expected sorted unknown fields, got %q", verr.Field)
	}
	if resp.Status != cfn.StatusFailed || len(calls.calls) != 0 {
		t.Errorf("expected FAILED with no call, got %s after %d calls", resp.Status, len(calls.calls))
	}

	event := testEvent(cfn.RequestDelete, props)
	event.PhysicalResourceID = "inst-1|arn:widget"
	if resp, err := h.Handle(context.Background(), event); err != nil || resp.Status != cfn.StatusSuccess {
		t.Errorf("delete should not check properties, got %v %v", resp.Status, err)
	}
}

func TestHandle_NilOptionalAcceptsAnything(t *testing.T) {
	calls := &callLog{}
	h := &Handler{Descriptor: testDescriptor(calls, Result{}, nil)}

	props := validProps()
	props["Colour"] = "blue"
	if _, err := h.Handle(context.Background(), testEvent(cfn.RequestCreate, props)); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}
