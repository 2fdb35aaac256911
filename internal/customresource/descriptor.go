// Package customresource runs CloudFormation custom resource lifecycle events
// through a single pipeline: validate, call the management API, reply.
// Resource types differ only in their Descriptor.
package customresource

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/aws/aws-lambda-go/cfn"
)

// Request is the validated, coerced form of a lifecycle event.
type Request struct {
	Type          cfn.RequestType
	RequestID     string
	LogicalID     string
	PhysicalID    string
	Properties    Properties
	OldProperties Properties
}

// Result is what an operation reports back. An empty PhysicalID means the
// descriptor's PhysicalID function, or the event's id, is used.
type Result struct {
	PhysicalID string
	Data       map[string]string
}

// Operation performs the API call(s) for one request type.
type Operation func(ctx context.Context, req Request) (Result, error)

// Descriptor declares one custom resource type.
type Descriptor struct {
	ResourceType string

	// Required properties for every request type.
	Required []string
	// RequiredFor adds properties required only for a given request type.
	RequiredFor map[cfn.RequestType][]string
	// Optional lists the other accepted properties. When set, Create and
	// Update reject any property that is neither required nor optional.
	Optional []string

	Coerce Coercion

	// PhysicalID derives a stable id from the properties. Optional.
	PhysicalID func(Properties) string

	Create Operation
	Update Operation
	Delete Operation
}

func (d Descriptor) operation(t cfn.RequestType) Operation {
	switch t {
	case cfn.RequestCreate:
		return d.Create
	case cfn.RequestUpdate:
		return d.Update
	case cfn.RequestDelete:
		return d.Delete
	}
	return nil
}

// request validates an event and builds the Request for it. Every required
// property is independently mandatory.
func (d Descriptor) request(event cfn.Event) (Request, error) {
	if d.operation(event.RequestType) == nil {
		return Request{}, &ValidationError{
			Field:   "RequestType",
			Message: fmt.Sprintf("unsupported request type %q", event.RequestType),
		}
	}

	props, err := d.Coerce.Apply(event.ResourceProperties)
	if err != nil {
		return Request{}, err
	}

	var missing []string
	for _, name := range d.required(event.RequestType) {
		if !props.Has(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Request{}, &ValidationError{
			Field:   strings.Join(missing, ","),
			Message: "required",
		}
	}

	if unknown := d.unknown(event.RequestType, props); len(unknown) > 0 {
		return Request{}, &ValidationError{
			Field:   strings.Join(unknown, ","),
			Message: "unsupported property",
		}
	}

	var old Properties
	if event.OldResourceProperties != nil {
		// Old properties were accepted by a previous request; a coercion
		// failure here only loses information the operation may not need.
		old, _ = d.Coerce.Apply(event.OldResourceProperties)
	}

	return Request{
		Type:          event.RequestType,
		RequestID:     event.RequestID,
		LogicalID:     event.LogicalResourceID,
		PhysicalID:    event.PhysicalResourceID,
		Properties:    props,
		OldProperties: old,
	}, nil
}

func (d Descriptor) required(t cfn.RequestType) []string {
	extra := d.RequiredFor[t]
	if len(extra) == 0 {
		return d.Required
	}
	out := make([]string, 0, len(d.Required)+len(extra))
	out = append(out, d.Required...)
	return append(out, extra...)
}

// unknown lists properties the descriptor does not accept. Delete is never
// checked so a resource created under older rules can still be removed.
func (d Descriptor) unknown(t cfn.RequestType, props Properties) []string {
	if d.Optional == nil || t == cfn.RequestDelete {
		return nil
	}
	var out []string
	for name := range props {
		if slices.Contains(d.Required, name) || slices.Contains(d.Optional, name) {
			continue
		}
		known := false
		for _, names := range d.RequiredFor {
			if slices.Contains(names, name) {
				known = true
				break
			}
		}
		if !known {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}
