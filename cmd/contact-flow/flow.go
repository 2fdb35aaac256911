package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/cfn"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/aws/aws-sdk-go-v2/service/connect"
	"github.com/aws/aws-sdk-go-v2/service/connect/types"
	"github.com/jarrod-lowe/connect-custom-resources/internal/connectapi"
	"github.com/jarrod-lowe/connect-custom-resources/internal/customresource"
)

// Contact flows cannot be deleted through the API. A deleted resource is
// either renamed out of the way or left untouched.
const (
	DeletedNamePrefix  = "ZZZZ_DELETED_"
	DeletedDescription = "Renamed by CloudFormation"
	deletedSuffixLen   = 5
	maxFlowNameLength  = 127
)

// DeleteMode selects what happens to a flow when its resource is deleted.
type DeleteMode string

const (
	DeleteModeRename DeleteMode = "Rename"
	DeleteModeRetain DeleteMode = "Retain"
)

// ParseDeleteMode accepts Rename or Retain in any case.
func ParseDeleteMode(s string) (DeleteMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rename":
		return DeleteModeRename, nil
	case "retain":
		return DeleteModeRetain, nil
	}
	return "", fmt.Errorf("delete mode must be Rename or Retain, got %q", s)
}

// RandomSuffix generates lowercase letters.
type RandomSuffix struct{}

func (RandomSuffix) Suffix(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + rand.IntN(26))
	}
	return string(b)
}

// FlowProvisioner maps lifecycle events onto contact flow API calls.
type FlowProvisioner struct {
	Client            connectapi.ContactFlowManager
	Suffix            SuffixGenerator
	DefaultDeleteMode DeleteMode
}

// Descriptor declares the contact flow resource.
func (f *FlowProvisioner) Descriptor() customresource.Descriptor {
	return customresource.Descriptor{
		ResourceType: resourceType,
		Required:     []string{"InstanceId"},
		RequiredFor: map[cfn.RequestType][]string{
			cfn.RequestCreate: {"Name", "Type", "Content"},
			cfn.RequestUpdate: {"Content"},
		},
		Optional: []string{"Description", "Tags", "Status", "DeleteMode"},
		Coerce: customresource.Coercion{
			"Content": customresource.KindJSON,
			"Tags":    customresource.KindJSON,
		},
		Create: f.create,
		Update: f.update,
		Delete: f.delete,
	}
}

func (f *FlowProvisioner) deleteMode(p customresource.Properties) (DeleteMode, error) {
	if !p.Has("DeleteMode") {
		if f.DefaultDeleteMode == "" {
			return DeleteModeRename, nil
		}
		return f.DefaultDeleteMode, nil
	}
	mode, err := ParseDeleteMode(p.Get("DeleteMode"))
	if err != nil {
		return "", &customresource.ValidationError{Field: "DeleteMode", Message: err.Error()}
	}
	return mode, nil
}

func (f *FlowProvisioner) create(ctx context.Context, req customresource.Request) (customresource.Result, error) {
	// Reject a bad DeleteMode now rather than when the stack is torn down.
	if _, err := f.deleteMode(req.Properties); err != nil {
		return customresource.Result{}, err
	}
	tags, err := req.Properties.StringMap("Tags")
	if err != nil {
		return customresource.Result{}, &customresource.ValidationError{Field: "Tags", Message: err.Error()}
	}

	input := &connect.CreateContactFlowInput{
		InstanceId: aws.String(req.Properties.Get("InstanceId")),
		Name:       aws.String(req.Properties.Get("Name")),
		Type:       types.ContactFlowType(req.Properties.Get("Type")),
		Content:    aws.String(req.Properties.Get("Content")),
	}
	if desc := req.Properties.Get("Description"); desc != "" {
		input.Description = aws.String(desc)
	}
	if status := req.Properties.Get("Status"); status != "" {
		input.Status = types.ContactFlowStatus(strings.ToUpper(status))
	}
	if len(tags) > 0 {
		input.Tags = tags
	}

	out, err := f.Client.CreateContactFlow(ctx, input)
	if err != nil {
		return customresource.Result{}, &customresource.OperationError{Operation: "CreateContactFlow", Err: err}
	}

	flowID := aws.ToString(out.ContactFlowId)
	return customresource.Result{
		PhysicalID: flowID,
		Data:       flowAttributes(flowID, aws.ToString(out.ContactFlowArn)),
	}, nil
}

func (f *FlowProvisioner) update(ctx context.Context, req customresource.Request) (customresource.Result, error) {
	if _, err := f.deleteMode(req.Properties); err != nil {
		return customresource.Result{}, err
	}

	instanceID := req.Properties.Get("InstanceId")
	flowID := req.PhysicalID

	_, err := f.Client.UpdateContactFlowContent(ctx, &connect.UpdateContactFlowContentInput{
		InstanceId:    aws.String(instanceID),
		ContactFlowId: aws.String(flowID),
		Content:       aws.String(req.Properties.Get("Content")),
	})
	if err != nil {
		return customresource.Result{}, &customresource.OperationError{Operation: "UpdateContactFlowContent", Err: err}
	}

	if renamed(req) {
		input := &connect.UpdateContactFlowNameInput{
			InstanceId:    aws.String(instanceID),
			ContactFlowId: aws.String(flowID),
		}
		if name := req.Properties.Get("Name"); name != "" {
			input.Name = aws.String(name)
		}
		// A removed description is cleared rather than left in place.
		if desc := req.Properties.Get("Description"); desc != req.OldProperties.Get("Description") {
			input.Description = aws.String(desc)
		}
		if input.Name != nil || input.Description != nil {
			if _, err := f.Client.UpdateContactFlowName(ctx, input); err != nil {
				return customresource.Result{}, &customresource.OperationError{Operation: "UpdateContactFlowName", Err: err}
			}
		}
	}

	flowArn := flowArnFromInstance(instanceID, flowID)
	if flowArn == "" {
		out, err := f.Client.DescribeContactFlow(ctx, &connect.DescribeContactFlowInput{
			InstanceId:    aws.String(instanceID),
			ContactFlowId: aws.String(flowID),
		})
		if err != nil {
			return customresource.Result{}, &customresource.OperationError{Operation: "DescribeContactFlow", Err: err}
		}
		if out.ContactFlow != nil {
			flowArn = aws.ToString(out.ContactFlow.Arn)
		}
	}

	return customresource.Result{
		PhysicalID: flowID,
		Data:       flowAttributes(flowID, flowArn),
	}, nil
}

// renamed reports whether Name or Description differ from the previous
// properties. Without previous properties nothing is renamed.
func renamed(req customresource.Request) bool {
	if req.OldProperties == nil {
		return false
	}
	return req.Properties.Get("Name") != req.OldProperties.Get("Name") ||
		req.Properties.Get("Description") != req.OldProperties.Get("Description")
}

func (f *FlowProvisioner) delete(ctx context.Context, req customresource.Request) (customresource.Result, error) {
	mode, err := f.deleteMode(req.Properties)
	if err != nil {
		return customresource.Result{}, err
	}
	if mode == DeleteModeRetain {
		return customresource.Result{}, nil
	}

	instanceID := req.Properties.Get("InstanceId")
	flowID := req.PhysicalID

	out, err := f.Client.DescribeContactFlow(ctx, &connect.DescribeContactFlowInput{
		InstanceId:    aws.String(instanceID),
		ContactFlowId: aws.String(flowID),
	})
	if err != nil {
		return customresource.Result{}, &customresource.OperationError{Operation: "DescribeContactFlow", Err: err}
	}
	if out.ContactFlow == nil {
		return customresource.Result{}, &customresource.OperationError{
			Operation: "DescribeContactFlow",
			Err:       fmt.Errorf("no contact flow returned for %s", flowID),
		}
	}

	current := aws.ToString(out.ContactFlow.Name)
	if strings.HasPrefix(current, DeletedNamePrefix) {
		// A retried Delete already renamed it.
		return customresource.Result{}, nil
	}

	_, err = f.Client.UpdateContactFlowName(ctx, &connect.UpdateContactFlowNameInput{
		InstanceId:    aws.String(instanceID),
		ContactFlowId: aws.String(flowID),
		Name:          aws.String(retiredName(current, f.Suffix.Suffix(deletedSuffixLen))),
		Description:   aws.String(DeletedDescription),
	})
	if err != nil {
		return customresource.Result{}, &customresource.OperationError{Operation: "UpdateContactFlowName", Err: err}
	}
	return customresource.Result{}, nil
}

// retiredName builds the soft-delete name, shortening the original so the
// result fits the flow name limit.
func retiredName(current, suffix string) string {
	room := maxFlowNameLength - utf8.RuneCountInString(DeletedNamePrefix) - utf8.RuneCountInString(suffix)
	if utf8.RuneCountInString(current) > room {
		current = string([]rune(current)[:room])
	}
	return DeletedNamePrefix + current + suffix
}

// flowArnFromInstance derives a flow ARN when the instance is given as an
// ARN. It returns "" for a bare instance id.
func flowArnFromInstance(instanceID, flowID string) string {
	if !arn.IsARN(instanceID) {
		return ""
	}
	parsed, err := arn.Parse(instanceID)
	if err != nil || !strings.HasPrefix(parsed.Resource, "instance/") {
		return ""
	}
	return instanceID + "/contact-flow/" + flowID
}

func flowAttributes(flowID, flowArn string) map[string]string {
	return map[string]string{
		"FlowId":         flowID,
		"FlowArn":        flowArn,
		"ContactFlowId":  flowID,
		"ContactFlowArn": flowArn,
	}
}
