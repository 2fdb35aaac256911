// Package connectapi holds the Amazon Connect management API surface used by
// the custom resources and the helpers for building and inspecting it.
package connectapi

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/connect"
	"github.com/aws/smithy-go"
)

// LambdaAssociator associates Lambda functions with an instance.
type LambdaAssociator interface {
	AssociateLambdaFunction(ctx context.Context, params *connect.AssociateLambdaFunctionInput, optFns ...func(*connect.Options)) (*connect.AssociateLambdaFunctionOutput, error)
	DisassociateLambdaFunction(ctx context.Context, params *connect.DisassociateLambdaFunctionInput, optFns ...func(*connect.Options)) (*connect.DisassociateLambdaFunctionOutput, error)
}

// BotAssociator associates Lex bots with an instance.
type BotAssociator interface {
	AssociateBot(ctx context.Context, params *connect.AssociateBotInput, optFns ...func(*connect.Options)) (*connect.AssociateBotOutput, error)
	DisassociateBot(ctx context.Context, params *connect.DisassociateBotInput, optFns ...func(*connect.Options)) (*connect.DisassociateBotOutput, error)
}

// ContactFlowManager creates, updates, reads and renames contact flows.
type ContactFlowManager interface {
	CreateContactFlow(ctx context.Context, params *connect.CreateContactFlowInput, optFns ...func(*connect.Options)) (*connect.CreateContactFlowOutput, error)
	UpdateContactFlowContent(ctx context.Context, params *connect.UpdateContactFlowContentInput, optFns ...func(*connect.Options)) (*connect.UpdateContactFlowContentOutput, error)
	DescribeContactFlow(ctx context.Context, params *connect.DescribeContactFlowInput, optFns ...func(*connect.Options)) (*connect.DescribeContactFlowOutput, error)
	UpdateContactFlowName(ctx context.Context, params *connect.UpdateContactFlowNameInput, optFns ...func(*connect.Options)) (*connect.UpdateContactFlowNameOutput, error)
}

// InstanceLister reads the inventory of an instance.
type InstanceLister interface {
	DescribeInstance(ctx context.Context, params *connect.DescribeInstanceInput, optFns ...func(*connect.Options)) (*connect.DescribeInstanceOutput, error)
	connect.ListContactFlowsAPIClient
	connect.ListContactFlowModulesAPIClient
	connect.ListHoursOfOperationsAPIClient
	connect.ListPhoneNumbersAPIClient
	connect.ListPromptsAPIClient
	connect.ListQueuesAPIClient
	connect.ListQuickConnectsAPIClient
	connect.ListRoutingProfilesAPIClient
}

// FlowExporter reads flows, flow modules and hours of operation for export.
type FlowExporter interface {
	DescribeInstance(ctx context.Context, params *connect.DescribeInstanceInput, optFns ...func(*connect.Options)) (*connect.DescribeInstanceOutput, error)
	DescribeContactFlow(ctx context.Context, params *connect.DescribeContactFlowInput, optFns ...func(*connect.Options)) (*connect.DescribeContactFlowOutput, error)
	DescribeContactFlowModule(ctx context.Context, params *connect.DescribeContactFlowModuleInput, optFns ...func(*connect.Options)) (*connect.DescribeContactFlowModuleOutput, error)
	DescribeHoursOfOperation(ctx context.Context, params *connect.DescribeHoursOfOperationInput, optFns ...func(*connect.Options)) (*connect.DescribeHoursOfOperationOutput, error)
	connect.ListContactFlowsAPIClient
	connect.ListContactFlowModulesAPIClient
	connect.ListHoursOfOperationsAPIClient
}

// ErrorCode returns the service error code of err, or "" if err is not an
// API error.
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
