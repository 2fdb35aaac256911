package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jarrod-lowe/connect-custom-resources/internal/manifest"
)

// instanceArnSub is the target instance ARN expressed with pseudo
// parameters and the instance parameter.
const instanceArnSub = "arn:${AWS::Partition}:connect:${AWS::Region}:${AWS::AccountId}:instance/${" + InstanceParameter + "}"

// Flow actions that reference other exportable resources.
const (
	actionTransferToFlow     = "TransferToFlow"
	actionEventHooks         = "UpdateContactEventHooks"
	actionInvokeFlowModule   = "InvokeFlowModule"
	actionCheckHours         = "CheckHoursOfOperation"
	audioTypePrompt          = "Prompt"
	contactFlowArnAttr       = "ContactFlowArn"
	contactFlowModuleArnAttr = "ContactFlowModuleArn"
	hoursOfOperationArnAttr  = "HoursOfOperationArn"
)

// flowDocument is the part of the flow language the rewriter reads.
type flowDocument struct {
	Actions []struct {
		Identifier string         `json:"Identifier"`
		Type       string         `json:"Type"`
		Parameters map[string]any `json:"Parameters"`
	} `json:"Actions"`
	Metadata struct {
		ActionMetadata map[string]json.RawMessage `json:"ActionMetadata"`
	} `json:"Metadata"`
}

type actionMetadata struct {
	Audio []struct {
		Type string `json:"type"`
		Text string `json:"text"`
		ID   string `json:"id"`
	} `json:"audio"`
	Queue json.RawMessage `json:"queue"`
}

type namedRef struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// inventory tracks one resource kind in the source instance.
type inventory struct {
	kind      string
	attribute string
	// names maps source id to name for every listed resource.
	names map[string]string
	// exported maps source id to logical id for resources in the template.
	exported map[string]string
}

func newInventory(kind, attribute string) *inventory {
	return &inventory{
		kind:      kind,
		attribute: attribute,
		names:     map[string]string{},
		exported:  map[string]string{},
	}
}

// rewriter re-points flow content from the source instance at the target.
type rewriter struct {
	source  manifest.Source
	target  *manifest.Manifest
	phones  map[string]string
	flows   *inventory
	modules *inventory
	hours   *inventory
}

type replacement struct {
	old, new string
}

// rewrite returns content ready for Fn::Sub. Literal "${" sequences are
// escaped first so only the substitutions added here are resolved.
func (r *rewriter) rewrite(owner, content string) (string, error) {
	var doc flowDocument
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return "", fmt.Errorf("content of %s is not valid json: %w", owner, err)
	}

	var pairs []replacement
	for _, action := range doc.Actions {
		found, err := r.actionReferences(action.Type, action.Parameters)
		if err != nil {
			return "", fmt.Errorf("%s action %s: %w", owner, action.Identifier, err)
		}
		pairs = append(pairs, found...)
	}

	for id, raw := range doc.Metadata.ActionMetadata {
		found, err := r.metadataReferences(raw)
		if err != nil {
			return "", fmt.Errorf("%s action %s: %w", owner, id, err)
		}
		pairs = append(pairs, found...)
	}

	for source, target := range r.phones {
		pairs = append(pairs, replacement{source, target})
	}

	out := strings.ReplaceAll(content, "${", "${!")
	seen := map[string]bool{}
	for _, p := range pairs {
		if p.old == "" || seen[p.old] {
			continue
		}
		seen[p.old] = true
		out = strings.ReplaceAll(out, p.old, p.new)
	}
	return r.pseudoParameters(out), nil
}

func (r *rewriter) actionReferences(actionType string, params map[string]any) ([]replacement, error) {
	switch actionType {
	case actionTransferToFlow:
		ref, _ := params["ContactFlowId"].(string)
		return r.resolve(r.flows, ref, r.target.ContactFlowSummaryList)
	case actionEventHooks:
		hooks, _ := params["EventHooks"].(map[string]any)
		var out []replacement
		for _, v := range hooks {
			ref, _ := v.(string)
			found, err := r.resolve(r.flows, ref, r.target.ContactFlowSummaryList)
			if err != nil {
				return nil, err
			}
			out = append(out, found...)
		}
		return out, nil
	case actionInvokeFlowModule:
		ref, _ := params["FlowModuleId"].(string)
		return r.resolve(r.modules, ref, r.target.ContactFlowModulesSummaryList)
	case actionCheckHours:
		ref, _ := params["Hours"].(string)
		entries := make(map[string]manifest.Entry, len(r.target.HoursOfOperationSummaryList))
		for name, arn := range r.target.HoursOfOperationSummaryList {
			entries[name] = manifest.Entry{Arn: arn}
		}
		return r.resolve(r.hours, ref, entries)
	}
	return nil, nil
}

// resolve maps one reference. Exported resources become attribute
// substitutions; anything else is looked up by name in the target manifest.
func (r *rewriter) resolve(inv *inventory, ref string, target map[string]manifest.Entry) ([]replacement, error) {
	if ref == "" || strings.Contains(ref, "$.") {
		// Empty or set dynamically from a contact attribute.
		return nil, nil
	}
	id := lastSegment(ref)
	if logicalID, ok := inv.exported[id]; ok {
		return []replacement{{ref, "${" + logicalID + "." + inv.attribute + "}"}}, nil
	}

	name, ok := inv.names[id]
	if !ok {
		return nil, fmt.Errorf("%s %s is not in the source instance", inv.kind, id)
	}
	entry, ok := target[name]
	if !ok {
		return nil, fmt.Errorf("%s %q is not in the target manifest", inv.kind, name)
	}
	if strings.HasPrefix(ref, "arn:") || entry.ID == "" {
		return []replacement{{ref, entry.Arn}}, nil
	}
	return []replacement{{ref, entry.ID}}, nil
}

// metadataReferences maps prompt and queue ids recorded in the editor
// metadata. Only the id segment is replaced, so ARNs pick up the target
// instance through the pseudo parameter pass.
func (r *rewriter) metadataReferences(raw json.RawMessage) ([]replacement, error) {
	var meta actionMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		// Other actions use different shapes.
		return nil, nil
	}

	var out []replacement
	for _, audio := range meta.Audio {
		if audio.Type != audioTypePrompt || audio.ID == "" {
			continue
		}
		entry, ok := r.target.PromptSummaryList[audio.Text]
		if !ok {
			return nil, fmt.Errorf("prompt %q is not in the target manifest", audio.Text)
		}
		out = append(out, replacement{lastSegment(audio.ID), entry.ID})
	}

	var queue namedRef
	if len(meta.Queue) > 0 && json.Unmarshal(meta.Queue, &queue) == nil && queue.ID != "" {
		entry, ok := r.target.QueueSummaryList[queue.Text]
		if !ok {
			return nil, fmt.Errorf("queue %q is not in the target manifest", queue.Text)
		}
		out = append(out, replacement{lastSegment(queue.ID), entry.ID})
	}
	return out, nil
}

// pseudoParameters swaps the source instance, account, partition and region
// for their template equivalents. Partition and region are only replaced
// inside ARNs of the source account.
func (r *rewriter) pseudoParameters(content string) string {
	s := r.source
	if s.InstanceArn != "" {
		content = strings.ReplaceAll(content, s.InstanceArn, instanceArnSub)
	}
	if s.InstanceID != "" {
		content = strings.ReplaceAll(content, s.InstanceID, "${"+InstanceParameter+"}")
	}
	if s.AccountID == "" {
		return content
	}
	if s.Partition != "" && s.Region != "" {
		arns := regexp.MustCompile(`arn:` + regexp.QuoteMeta(s.Partition) + `:([a-z0-9-]+):` +
			regexp.QuoteMeta(s.Region) + `:` + regexp.QuoteMeta(s.AccountID) + `:`)
		content = arns.ReplaceAllStringFunc(content, func(m string) string {
			service := strings.Split(m, ":")[2]
			return "arn:${AWS::Partition}:" + service + ":${AWS::Region}:${AWS::AccountId}:"
		})
	}
	return strings.ReplaceAll(content, s.AccountID, "${AWS::AccountId}")
}

func lastSegment(ref string) string {
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}
