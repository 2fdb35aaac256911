package template

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/connect"
	"github.com/aws/aws-sdk-go-v2/service/connect/types"
	"github.com/jarrod-lowe/connect-custom-resources/internal/connectapi"
	"github.com/jarrod-lowe/connect-custom-resources/internal/manifest"
	"github.com/lex00/cloudformation-schema-go/intrinsics"
)

// CloudFormation resource types written by the exporter.
const (
	ContactFlowType       = "AWS::Connect::ContactFlow"
	ContactFlowModuleType = "AWS::Connect::ContactFlowModule"
	HoursOfOperationType  = "AWS::Connect::HoursOfOperation"
)

const errContactFlowNotPublished = "ContactFlowNotPublishedException"

var nonAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]+`)

// Exporter builds a template from the flows, flow modules and hours of
// operation of a live instance. References to resources left out of the
// template are resolved through the Target manifest.
type Exporter struct {
	Connect connectapi.FlowExporter
	STS     manifest.CallerIdentity
	Target  *manifest.Manifest
	// Filters selects resources whose name contains any entry. Empty
	// selects everything.
	Filters []string
	// PhoneNumbers maps source numbers to their target replacements.
	PhoneNumbers map[string]string
	Description  string
	PageSize     int32
	Logger       *slog.Logger
}

type hoursConfig struct {
	Day       string    `json:"Day"`
	StartTime timeSlice `json:"StartTime"`
	EndTime   timeSlice `json:"EndTime"`
}

type timeSlice struct {
	Hours   int32 `json:"Hours"`
	Minutes int32 `json:"Minutes"`
}

// pendingContent is flow content waiting for every logical id to be known.
type pendingContent struct {
	logicalID  string
	content    string
	properties map[string]any
}

// Export reads instanceID and returns the template.
func (e *Exporter) Export(ctx context.Context, instanceID string) (*Template, error) {
	if e.Target == nil {
		return nil, fmt.Errorf("a target manifest is required")
	}

	source, err := manifest.ReadSource(ctx, e.Connect, e.STS, instanceID)
	if err != nil {
		return nil, err
	}

	r := &rewriter{
		source:  *source,
		target:  e.Target,
		phones:  e.PhoneNumbers,
		flows:   newInventory("contact flow", contactFlowArnAttr),
		modules: newInventory("contact flow module", contactFlowModuleArnAttr),
		hours:   newInventory("hours of operation", hoursOfOperationArnAttr),
	}

	flows, err := e.listFlows(ctx, source.InstanceID, r.flows)
	if err != nil {
		return nil, fmt.Errorf("failed to list contact flows: %w", err)
	}
	modules, err := e.listModules(ctx, source.InstanceID, r.modules)
	if err != nil {
		return nil, fmt.Errorf("failed to list contact flow modules: %w", err)
	}
	hours, err := e.listHours(ctx, source.InstanceID, r.hours)
	if err != nil {
		return nil, fmt.Errorf("failed to list hours of operation: %w", err)
	}

	t := New(e.Description)
	names := logicalNames{}
	var pending []pendingContent

	for _, id := range hours {
		if err := e.exportHours(ctx, source.InstanceID, id, t, names, r.hours); err != nil {
			return nil, err
		}
	}
	for _, id := range flows {
		p, err := e.exportFlow(ctx, source.InstanceID, id, t, names, r.flows)
		if err != nil {
			return nil, err
		}
		if p != nil {
			pending = append(pending, *p)
		}
	}
	for _, id := range modules {
		p, err := e.exportModule(ctx, source.InstanceID, id, t, names, r.modules)
		if err != nil {
			return nil, err
		}
		pending = append(pending, *p)
	}

	for _, p := range pending {
		content, err := r.rewrite(p.logicalID, p.content)
		if err != nil {
			return nil, err
		}
		p.properties["Content"] = intrinsics.Sub{String: content}
	}

	e.logger().Info("Exported template",
		slog.String("instance_id", source.InstanceID),
		slog.Int("resources", len(t.Resources)),
	)
	return t, nil
}

func (e *Exporter) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Exporter) selected(name string) bool {
	if len(e.Filters) == 0 {
		return true
	}
	for _, f := range e.Filters {
		if strings.Contains(name, f) {
			return true
		}
	}
	return false
}

func (e *Exporter) pageSize(limit int32) *int32 {
	size := e.PageSize
	if size <= 0 {
		size = manifest.DefaultPageSize
	}
	return aws.Int32(min(size, limit))
}

// listFlows records every flow name and returns the ids selected for export.
func (e *Exporter) listFlows(ctx context.Context, instanceID string, inv *inventory) ([]string, error) {
	var ids []string
	p := connect.NewListContactFlowsPaginator(e.Connect, &connect.ListContactFlowsInput{
		InstanceId:       aws.String(instanceID),
		ContactFlowTypes: manifest.ContactFlowTypes,
		MaxResults:       e.pageSize(manifest.MaxPageSize),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, s := range page.ContactFlowSummaryList {
			id, name := lastSegment(aws.ToString(s.Id)), aws.ToString(s.Name)
			inv.names[id] = name
			if e.selected(name) {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

func (e *Exporter) listModules(ctx context.Context, instanceID string, inv *inventory) ([]string, error) {
	var ids []string
	p := connect.NewListContactFlowModulesPaginator(e.Connect, &connect.ListContactFlowModulesInput{
		InstanceId:             aws.String(instanceID),
		ContactFlowModuleState: types.ContactFlowModuleState("ACTIVE"),
		MaxResults:             e.pageSize(manifest.MaxModulePageSize),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, s := range page.ContactFlowModulesSummaryList {
			id, name := lastSegment(aws.ToString(s.Id)), aws.ToString(s.Name)
			inv.names[id] = name
			if e.selected(name) {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

func (e *Exporter) listHours(ctx context.Context, instanceID string, inv *inventory) ([]string, error) {
	var ids []string
	p := connect.NewListHoursOfOperationsPaginator(e.Connect, &connect.ListHoursOfOperationsInput{
		InstanceId: aws.String(instanceID),
		MaxResults: e.pageSize(manifest.MaxPageSize),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, s := range page.HoursOfOperationSummaryList {
			id, name := lastSegment(aws.ToString(s.Id)), aws.ToString(s.Name)
			inv.names[id] = name
			if e.selected(name) {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// exportFlow adds one flow. Unpublished flows cannot be described and are
// skipped with a warning.
func (e *Exporter) exportFlow(ctx context.Context, instanceID, id string, t *Template, names logicalNames, inv *inventory) (*pendingContent, error) {
	out, err := e.Connect.DescribeContactFlow(ctx, &connect.DescribeContactFlowInput{
		InstanceId:    aws.String(instanceID),
		ContactFlowId: aws.String(id),
	})
	if connectapi.ErrorCode(err) == errContactFlowNotPublished {
		e.logger().Warn("Skipping unpublished contact flow",
			slog.String("contact_flow_id", id),
			slog.String("name", inv.names[id]),
		)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to describe contact flow %s: %w", id, err)
	}
	if out.ContactFlow == nil {
		return nil, fmt.Errorf("contact flow %s not found", id)
	}
	flow := out.ContactFlow

	logicalID := names.claim(aws.ToString(flow.Name), "")
	inv.exported[id] = logicalID
	props := map[string]any{
		"InstanceArn": intrinsics.Sub{String: instanceArnSub},
		"Name":        aws.ToString(flow.Name),
		"Type":        string(flow.Type),
	}
	if flow.State != "" {
		props["State"] = string(flow.State)
	}
	t.Resources[logicalID] = ResourceDef{Type: ContactFlowType, Properties: props}

	return &pendingContent{logicalID: logicalID, content: aws.ToString(flow.Content), properties: props}, nil
}

func (e *Exporter) exportModule(ctx context.Context, instanceID, id string, t *Template, names logicalNames, inv *inventory) (*pendingContent, error) {
	out, err := e.Connect.DescribeContactFlowModule(ctx, &connect.DescribeContactFlowModuleInput{
		InstanceId:          aws.String(instanceID),
		ContactFlowModuleId: aws.String(id),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe contact flow module %s: %w", id, err)
	}
	if out.ContactFlowModule == nil {
		return nil, fmt.Errorf("contact flow module %s not found", id)
	}
	module := out.ContactFlowModule

	logicalID := names.claim(aws.ToString(module.Name), "Module")
	inv.exported[id] = logicalID
	props := map[string]any{
		"InstanceArn": intrinsics.Sub{String: instanceArnSub},
		"Name":        aws.ToString(module.Name),
	}
	// The API reports the state in lower case but the resource wants upper.
	if module.State != "" {
		props["State"] = strings.ToUpper(string(module.State))
	}
	t.Resources[logicalID] = ResourceDef{Type: ContactFlowModuleType, Properties: props}

	return &pendingContent{logicalID: logicalID, content: aws.ToString(module.Content), properties: props}, nil
}

func (e *Exporter) exportHours(ctx context.Context, instanceID, id string, t *Template, names logicalNames, inv *inventory) error {
	out, err := e.Connect.DescribeHoursOfOperation(ctx, &connect.DescribeHoursOfOperationInput{
		InstanceId:         aws.String(instanceID),
		HoursOfOperationId: aws.String(id),
	})
	if err != nil {
		return fmt.Errorf("failed to describe hours of operation %s: %w", id, err)
	}
	if out.HoursOfOperation == nil {
		return fmt.Errorf("hours of operation %s not found", id)
	}
	hours := out.HoursOfOperation

	config := make([]hoursConfig, 0, len(hours.Config))
	for _, c := range hours.Config {
		config = append(config, hoursConfig{
			Day:       string(c.Day),
			StartTime: newTimeSlice(c.StartTime),
			EndTime:   newTimeSlice(c.EndTime),
		})
	}

	logicalID := names.claim(aws.ToString(hours.Name), "HoursOfOperation")
	inv.exported[id] = logicalID
	t.Resources[logicalID] = ResourceDef{
		Type: HoursOfOperationType,
		Properties: map[string]any{
			"InstanceArn": intrinsics.Sub{String: instanceArnSub},
			"Name":        aws.ToString(hours.Name),
			"TimeZone":    aws.ToString(hours.TimeZone),
			"Config":      config,
		},
	}
	return nil
}

func newTimeSlice(t *types.HoursOfOperationTimeSlice) timeSlice {
	if t == nil {
		return timeSlice{}
	}
	return timeSlice{Hours: aws.ToInt32(t.Hours), Minutes: aws.ToInt32(t.Minutes)}
}

// logicalNames hands out unique logical ids.
type logicalNames map[string]bool

// claim strips a resource name to letters and digits, appends suffix, and
// numbers repeats.
func (n logicalNames) claim(name, suffix string) string {
	base := nonAlphanumeric.ReplaceAllString(name, "")
	if base == "" {
		base = "Resource"
	}
	base += suffix
	id := base
	for i := 2; n[id]; i++ {
		id = base + strconv.Itoa(i)
	}
	n[id] = true
	return id
}
