// Package template exports the flows of a Connect instance as a
// CloudFormation template that can be deployed to another instance.
package template

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/jarrod-lowe/connect-custom-resources/internal/manifest"
	"gopkg.in/yaml.v3"
)

// FormatVersion is the only template format version CloudFormation accepts.
const FormatVersion = "2010-09-09"

// InstanceParameter names the template parameter holding the target
// instance id.
const InstanceParameter = "ConnectInstanceID"

// Template is a CloudFormation template.
type Template struct {
	AWSTemplateFormatVersion string                 `json:"AWSTemplateFormatVersion"`
	Description              string                 `json:"Description,omitempty"`
	Parameters               map[string]Parameter   `json:"Parameters,omitempty"`
	Resources                map[string]ResourceDef `json:"Resources"`
}

// ResourceDef is a single resource in the template.
type ResourceDef struct {
	Type       string         `json:"Type"`
	Properties map[string]any `json:"Properties,omitempty"`
}

// Parameter is a template parameter.
type Parameter struct {
	Type                  string `json:"Type"`
	Description           string `json:"Description,omitempty"`
	AllowedPattern        string `json:"AllowedPattern,omitempty"`
	ConstraintDescription string `json:"ConstraintDescription,omitempty"`
}

// New returns an empty template that takes the target instance id as a
// parameter.
func New(description string) *Template {
	return &Template{
		AWSTemplateFormatVersion: FormatVersion,
		Description:              description,
		Parameters: map[string]Parameter{
			InstanceParameter: {
				Type:                  "String",
				AllowedPattern:        ".+",
				ConstraintDescription: InstanceParameter + " is required",
			},
		},
		Resources: map[string]ResourceDef{},
	}
}

// Encode renders the template. JSON is indented four spaces. YAML is
// produced from the JSON form so intrinsics keep their Fn:: keys.
func Encode(t *Template, format manifest.Format) ([]byte, error) {
	switch format {
	case manifest.FormatJSON:
		data, err := json.MarshalIndent(t, "", "    ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode json: %w", err)
		}
		return append(data, '\n'), nil
	case manifest.FormatYAML:
		data, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("failed to encode yaml: %w", err)
		}
		var doc yaml.Node
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to encode yaml: %w", err)
		}
		blockStyle(&doc)

		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(&doc); err != nil {
			return nil, fmt.Errorf("failed to encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode yaml: %w", err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

// blockStyle drops the flow and quoting styles the JSON parse left behind,
// letting the encoder pick block style and quote only where needed.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
