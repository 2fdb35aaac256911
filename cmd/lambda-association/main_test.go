package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-sdk-go-v2/service/connect"
	"github.com/aws/smithy-go"
)

// Mock implementations for testing

type mockConnect struct {
	associated    []*connect.AssociateLambdaFunctionInput
	disassociated []*connect.DisassociateLambdaFunctionInput
	err           error
	panicOnCall   bool
}

func (m *mockConnect) AssociateLambdaFunction(ctx context.Context, params *connect.AssociateLambdaFunctionInput, optFns ...func(*connect.Options)) (*connect.AssociateLambdaFunctionOutput, error) {
	if m.panicOnCall {
		panic("unexpected nil")
	}
	m.associated = append(m.associated, params)
	if m.err != nil {
		return nil, m.err
	}
	return &connect.AssociateLambdaFunctionOutput{}, nil
}

func (m *mockConnect) DisassociateLambdaFunction(ctx context.Context, params *connect.DisassociateLambdaFunctionInput, optFns ...func(*connect.Options)) (*connect.DisassociateLambdaFunctionOutput, error) {
	m.disassociated = append(m.disassociated, params)
	if m.err != nil {
		return nil, m.err
	}
	return &connect.DisassociateLambdaFunctionOutput{}, nil
}

func (m *mockConnect) calls() int {
	return len(m.associated) + len(m.disassociated)
}

type mockReplier struct {
	sent []*cfn.Response
}

func (m *mockReplier) Send(ctx context.Context, resp *cfn.Response) error {
	m.sent = append(m.sent, resp)
	return nil
}

func setupTestDeps(client *mockConnect, replier *mockReplier) {
	deps = &Dependencies{
		Connect: client,
		Replier: replier,
	}
}

const (
	testInstanceID  = "11111111-2222-3333-4444-555555555555"
	testFunctionArn = "arn:aws:lambda:ap-southeast-2:123456789012:function:lookup-customer"
)

func testEvent(requestType cfn.RequestType, props map[string]interface{}) cfn.Event {
	return cfn.Event{
		RequestType:        requestType,
		RequestID:          "req-1",
		ResponseURL:        "https://cloudformation-custom-resource-response.example/reply",
		ResourceType:       resourceType,
		LogicalResourceID:  "LookupCustomerAssociation",
		StackID:            "arn:aws:cloudformation:ap-southeast-2:123456789012:stack/connect/abc",
		ResourceProperties: props,
	}
}

func validProps() map[string]interface{} {
	return map[string]interface{}{
		"ServiceToken": "arn:aws:lambda:ap-southeast-2:123456789012:function:lambda-association",
		"InstanceId":   testInstanceID,
		"FunctionArn":  testFunctionArn,
	}
}

func TestHandler_CreateAssociates(t *testing.T) {
	client := &mockConnect{}
	replier := &mockReplier{}
	setupTestDeps(client, replier)

	if err := handler(context.Background(), testEvent(cfn.RequestCreate, validProps())); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	if len(client.associated) != 1 || len(client.disassociated) != 0 {
		t.Fatalf("expected exactly one associate call, got %d associate / %d disassociate",
			len(client.associated), len(client.disassociated))
	}
	in := client.associated[0]
	if *in.InstanceId != testInstanceID || *in.FunctionArn != testFunctionArn {
		t.Errorf("unexpected associate input: %s %s", *in.InstanceId, *in.FunctionArn)
	}

	if len(replier.sent) != 1 {
		t.Fatalf("expected one reply, got %d", len(replier.sent))
	}
	resp := replier.sent[0]
	if resp.Status != cfn.StatusSuccess {
		t.Errorf("expected SUCCESS, got %s (%s)", resp.Status, resp.Reason)
	}
	if resp.PhysicalResourceID != testInstanceID+"|"+testFunctionArn {
		t.Errorf("unexpected physical id %q", resp.PhysicalResourceID)
	}
	if len(resp.Data) != 0 {
		t.Errorf("expected no returned attributes, got %v", resp.Data)
	}
}

func TestHandler_UpdateAssociates(t *testing.T) {
	client := &mockConnect{}
	replier := &mockReplier{}
	setupTestDeps(client, replier)

	event := testEvent(cfn.RequestUpdate, validProps())
	event.PhysicalResourceID = testInstanceID + "|" + testFunctionArn
	if err := handler(context.Background(), event); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	if len(client.associated) != 1 {
		t.Errorf("expected associate on update, got %d", len(client.associated))
	}
	if replier.sent[0].Status != cfn.StatusSuccess {
		t.Errorf("expected SUCCESS, got %s", replier.sent[0].Status)
	}
}

func TestHandler_DeleteDisassociates(t *testing.T) {
	client := &mockConnect{}
	replier := &mockReplier{}
	setupTestDeps(client, replier)

	event := testEvent(cfn.RequestDelete, validProps())
	event.PhysicalResourceID = testInstanceID + "|" + testFunctionArn
	if err := handler(context.Background(), event); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	if len(client.disassociated) != 1 || len(client.associated) != 0 {
		t.Fatalf("expected exactly one disassociate call, got %d disassociate / %d associate",
			len(client.disassociated), len(client.associated))
	}
	in := client.disassociated[0]
	if *in.InstanceId != testInstanceID || *in.FunctionArn != testFunctionArn {
		t.Errorf("unexpected disassociate input: %s %s", *in.InstanceId, *in.FunctionArn)
	}
	if replier.sent[0].PhysicalResourceID != event.PhysicalResourceID {
		t.Errorf("expected physical id echoed, got %q", replier.sent[0].PhysicalResourceID)
	}
}

func TestHandler_MissingIdentifiers(t *testing.T) {
	tests := []struct {
		name  string
		props map[string]interface{}
	}{
		{"missing InstanceId", map[string]interface{}{"FunctionArn": testFunctionArn}},
		{"missing FunctionArn", map[string]interface{}{"InstanceId": testInstanceID}},
		{"missing both", map[string]interface{}{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockConnect{}
			replier := &mockReplier{}
			setupTestDeps(client, replier)

			if err := handler(context.Background(), testEvent(cfn.RequestCreate, tt.props)); err != nil {
				t.Fatalf("handler returned error: %v", err)
			}

			if client.calls() != 0 {
				t.Errorf("expected no API calls, got %d", client.calls())
			}
			if len(replier.sent) != 1 || replier.sent[0].Status != cfn.StatusFailed {
				t.Errorf("expected one FAILED reply, got %+v", replier.sent)
			}
		})
	}
}

func TestHandler_APIErrorFails(t *testing.T) {
	client := &mockConnect{err: &smithy.GenericAPIError{Code: "ResourceConflictException", Message: "already associated"}}
	replier := &mockReplier{}
	setupTestDeps(client, replier)

	if err := handler(context.Background(), testEvent(cfn.RequestCreate, validProps())); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	if len(replier.sent) != 1 {
		t.Fatalf("expected exactly one reply, got %d", len(replier.sent))
	}
	if replier.sent[0].Status != cfn.StatusFailed {
		t.Errorf("expected FAILED, got %s", replier.sent[0].Status)
	}
	if len(replier.sent[0].Data) != 0 {
		t.Errorf("expected no data on failure, got %v", replier.sent[0].Data)
	}
}

func TestHandler_PanicFailsOnce(t *testing.T) {
	client := &mockConnect{panicOnCall: true}
	replier := &mockReplier{}
	setupTestDeps(client, replier)

	if err := handler(context.Background(), testEvent(cfn.RequestCreate, validProps())); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if len(replier.sent) != 1 || replier.sent[0].Status != cfn.StatusFailed {
		t.Errorf("expected one FAILED reply, got %+v", replier.sent)
	}
}

func TestHandler_UnexpectedErrorIsNotReturned(t *testing.T) {
	client := &mockConnect{err: errors.New("dial tcp: i/o timeout")}
	replier := &mockReplier{}
	setupTestDeps(client, replier)

	event := testEvent(cfn.RequestDelete, validProps())
	event.PhysicalResourceID = testInstanceID + "|" + testFunctionArn
	if err := handler(context.Background(), event); err != nil {
		t.Fatalf("API errors are reported through the reply, got %v", err)
	}
	if replier.sent[0].Status != cfn.StatusFailed {
		t.Errorf("expected FAILED, got %s", replier.sent[0].Status)
	}
}
