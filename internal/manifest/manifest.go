// Package manifest records the named resources of an existing Connect
// instance so flows exported from it can be re-pointed at another instance.
package manifest

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/aws/aws-sdk-go-v2/service/connect"
	"github.com/aws/aws-sdk-go-v2/service/connect/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/jarrod-lowe/connect-custom-resources/internal/connectapi"
)

// DefaultPageSize matches the page size the Connect console uses.
const DefaultPageSize int32 = 50

// Upper bounds the list APIs accept for MaxResults.
const (
	MaxPageSize       int32 = 1000
	MaxModulePageSize int32 = 100
)

var (
	// ContactFlowTypes lists every flow type an instance can hold.
	ContactFlowTypes = []types.ContactFlowType{
		"CONTACT_FLOW",
		"CUSTOMER_QUEUE",
		"CUSTOMER_HOLD",
		"CUSTOMER_WHISPER",
		"AGENT_HOLD",
		"AGENT_WHISPER",
		"OUTBOUND_WHISPER",
		"AGENT_TRANSFER",
		"QUEUE_TRANSFER",
	}
	phoneNumberTypes  = []types.PhoneNumberType{"TOLL_FREE", "DID"}
	queueTypes        = []types.QueueType{"STANDARD", "AGENT"}
	quickConnectTypes = []types.QuickConnectType{"USER", "QUEUE", "PHONE_NUMBER"}
)

// Entry identifies one named resource.
type Entry struct {
	Arn  string `json:"Arn" yaml:"Arn"`
	ID   string `json:"Id,omitempty" yaml:"Id,omitempty"`
	Name string `json:"Name,omitempty" yaml:"Name,omitempty"`
}

// Source describes where the manifest was taken from.
type Source struct {
	AccountID   string `json:"AccountId" yaml:"AccountId"`
	InstanceID  string `json:"InstanceId" yaml:"InstanceId"`
	InstanceArn string `json:"InstanceArn" yaml:"InstanceArn"`
	Region      string `json:"Region" yaml:"Region"`
	Partition   string `json:"Partition" yaml:"Partition"`
}

// Manifest maps resource names to identifiers, keyed the way the Connect
// list APIs name their summary lists.
type Manifest struct {
	Source                        Source            `json:"Source" yaml:"Source"`
	ContactFlowModulesSummaryList map[string]Entry  `json:"ContactFlowModulesSummaryList" yaml:"ContactFlowModulesSummaryList"`
	ContactFlowSummaryList        map[string]Entry  `json:"ContactFlowSummaryList" yaml:"ContactFlowSummaryList"`
	HoursOfOperationSummaryList   map[string]string `json:"HoursOfOperationSummaryList" yaml:"HoursOfOperationSummaryList"`
	PhoneNumberSummaryList        map[string]Entry  `json:"PhoneNumberSummaryList" yaml:"PhoneNumberSummaryList"`
	PromptSummaryList             map[string]Entry  `json:"PromptSummaryList" yaml:"PromptSummaryList"`
	QueueSummaryList              map[string]Entry  `json:"QueueSummaryList" yaml:"QueueSummaryList"`
	QuickConnectSummaryList       map[string]Entry  `json:"QuickConnectSummaryList" yaml:"QuickConnectSummaryList"`
	RoutingProfileSummaryList     map[string]Entry  `json:"RoutingProfileSummaryList" yaml:"RoutingProfileSummaryList"`
}

// CallerIdentity returns the account the credentials belong to.
type CallerIdentity interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// Builder reads a manifest from a live instance.
type Builder struct {
	Connect  connectapi.InstanceLister
	STS      CallerIdentity
	PageSize int32
}

// pageSize returns the configured page size capped at limit.
func (b *Builder) pageSize(limit int32) *int32 {
	size := b.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	return aws.Int32(min(size, limit))
}

// Build lists every supported resource type in the instance.
func (b *Builder) Build(ctx context.Context, instanceID string) (*Manifest, error) {
	source, err := ReadSource(ctx, b.Connect, b.STS, instanceID)
	if err != nil {
		return nil, err
	}

	m := &Manifest{Source: *source}
	steps := []struct {
		name string
		fn   func(context.Context, string, *Manifest) error
	}{
		{"contact flow modules", b.contactFlowModules},
		{"contact flows", b.contactFlows},
		{"hours of operation", b.hoursOfOperation},
		{"phone numbers", b.phoneNumbers},
		{"prompts", b.prompts},
		{"queues", b.queues},
		{"quick connects", b.quickConnects},
		{"routing profiles", b.routingProfiles},
	}
	for _, step := range steps {
		if err := step.fn(ctx, instanceID, m); err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", step.name, err)
		}
	}
	return m, nil
}

// InstanceDescriber reads instance details.
type InstanceDescriber interface {
	DescribeInstance(ctx context.Context, params *connect.DescribeInstanceInput, optFns ...func(*connect.Options)) (*connect.DescribeInstanceOutput, error)
}

// ReadSource identifies the account, partition and region an instance
// lives in.
func ReadSource(ctx context.Context, instances InstanceDescriber, identity CallerIdentity, instanceID string) (*Source, error) {
	caller, err := identity.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("failed to get caller identity: %w", err)
	}

	instance, err := instances.DescribeInstance(ctx, &connect.DescribeInstanceInput{
		InstanceId: aws.String(instanceID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe instance: %w", err)
	}
	if instance.Instance == nil {
		return nil, fmt.Errorf("instance %s not found", instanceID)
	}

	instanceArn := aws.ToString(instance.Instance.Arn)
	parsed, err := arn.Parse(instanceArn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse instance arn %q: %w", instanceArn, err)
	}

	return &Source{
		AccountID:   aws.ToString(caller.Account),
		InstanceID:  aws.ToString(instance.Instance.Id),
		InstanceArn: instanceArn,
		Region:      parsed.Region,
		Partition:   parsed.Partition,
	}, nil
}

func (b *Builder) contactFlowModules(ctx context.Context, instanceID string, m *Manifest) error {
	m.ContactFlowModulesSummaryList = map[string]Entry{}
	p := connect.NewListContactFlowModulesPaginator(b.Connect, &connect.ListContactFlowModulesInput{
		InstanceId:             aws.String(instanceID),
		ContactFlowModuleState: types.ContactFlowModuleState("ACTIVE"),
		MaxResults:             b.pageSize(MaxModulePageSize),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, s := range page.ContactFlowModulesSummaryList {
			m.ContactFlowModulesSummaryList[aws.ToString(s.Name)] = Entry{Arn: aws.ToString(s.Arn), ID: aws.ToString(s.Id)}
		}
	}
	return nil
}

func (b *Builder) contactFlows(ctx context.Context, instanceID string, m *Manifest) error {
	m.ContactFlowSummaryList = map[string]Entry{}
	p := connect.NewListContactFlowsPaginator(b.Connect, &connect.ListContactFlowsInput{
		InstanceId:       aws.String(instanceID),
		ContactFlowTypes: ContactFlowTypes,
		MaxResults:       b.pageSize(MaxPageSize),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, s := range page.ContactFlowSummaryList {
			m.ContactFlowSummaryList[aws.ToString(s.Name)] = Entry{Arn: aws.ToString(s.Arn), ID: aws.ToString(s.Id)}
		}
	}
	return nil
}

func (b *Builder) hoursOfOperation(ctx context.Context, instanceID string, m *Manifest) error {
	m.HoursOfOperationSummaryList = map[string]string{}
	p := connect.NewListHoursOfOperationsPaginator(b.Connect, &connect.ListHoursOfOperationsInput{
		InstanceId: aws.String(instanceID),
		MaxResults: b.pageSize(MaxPageSize),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, s := range page.HoursOfOperationSummaryList {
			m.HoursOfOperationSummaryList[aws.ToString(s.Name)] = aws.ToString(s.Arn)
		}
	}
	return nil
}

func (b *Builder) phoneNumbers(ctx context.Context, instanceID string, m *Manifest) error {
	m.PhoneNumberSummaryList = map[string]Entry{}
	p := connect.NewListPhoneNumbersPaginator(b.Connect, &connect.ListPhoneNumbersInput{
		InstanceId:       aws.String(instanceID),
		PhoneNumberTypes: phoneNumberTypes,
		MaxResults:       b.pageSize(MaxPageSize),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, s := range page.PhoneNumberSummaryList {
			number := aws.ToString(s.PhoneNumber)
			m.PhoneNumberSummaryList[number] = Entry{Arn: aws.ToString(s.Arn), Name: number}
		}
	}
	return nil
}

func (b *Builder) prompts(ctx context.Context, instanceID string, m *Manifest) error {
	m.PromptSummaryList = map[string]Entry{}
	p := connect.NewListPromptsPaginator(b.Connect, &connect.ListPromptsInput{
		InstanceId: aws.String(instanceID),
		MaxResults: b.pageSize(MaxPageSize),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, s := range page.PromptSummaryList {
			m.PromptSummaryList[aws.ToString(s.Name)] = Entry{Arn: aws.ToString(s.Arn), ID: aws.ToString(s.Id)}
		}
	}
	return nil
}

func (b *Builder) queues(ctx context.Context, instanceID string, m *Manifest) error {
	m.QueueSummaryList = map[string]Entry{}
	p := connect.NewListQueuesPaginator(b.Connect, &connect.ListQueuesInput{
		InstanceId: aws.String(instanceID),
		QueueTypes: queueTypes,
		MaxResults: b.pageSize(MaxPageSize),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, s := range page.QueueSummaryList {
			// Agent queues have no name.
			if s.Name == nil {
				continue
			}
			m.QueueSummaryList[aws.ToString(s.Name)] = Entry{Arn: aws.ToString(s.Arn), ID: aws.ToString(s.Id)}
		}
	}
	return nil
}

func (b *Builder) quickConnects(ctx context.Context, instanceID string, m *Manifest) error {
	m.QuickConnectSummaryList = map[string]Entry{}
	p := connect.NewListQuickConnectsPaginator(b.Connect, &connect.ListQuickConnectsInput{
		InstanceId:        aws.String(instanceID),
		QuickConnectTypes: quickConnectTypes,
		MaxResults:        b.pageSize(MaxPageSize),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, s := range page.QuickConnectSummaryList {
			m.QuickConnectSummaryList[aws.ToString(s.Name)] = Entry{Arn: aws.ToString(s.Arn), ID: aws.ToString(s.Id)}
		}
	}
	return nil
}

func (b *Builder) routingProfiles(ctx context.Context, instanceID string, m *Manifest) error {
	m.RoutingProfileSummaryList = map[string]Entry{}
	p := connect.NewListRoutingProfilesPaginator(b.Connect, &connect.ListRoutingProfilesInput{
		InstanceId: aws.String(instanceID),
		MaxResults: b.pageSize(MaxPageSize),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, s := range page.RoutingProfileSummaryList {
			m.RoutingProfileSummaryList[aws.ToString(s.Name)] = Entry{Arn: aws.ToString(s.Arn), ID: aws.ToString(s.Id)}
		}
	}
	return nil
}
