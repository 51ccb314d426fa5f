package declare

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Template is the rendered declaration submitted to CloudFormation
type Template struct {
	FormatVersion string                  `json:"AWSTemplateFormatVersion" yaml:"AWSTemplateFormatVersion"`
	Description   string                  `json:"Description,omitempty" yaml:"Description,omitempty"`
	Resources     map[string]ResourceBody `json:"Resources" yaml:"Resources"`
	Outputs       map[string]OutputBody   `json:"Outputs,omitempty" yaml:"Outputs,omitempty"`

	// Order lists logical ids dependencies first
	Order []string `json:"-" yaml:"-"`
}

// ResourceBody is one entry of the Resources section
type ResourceBody struct {
	Type       string                 `json:"Type" yaml:"Type"`
	Properties map[string]interface{} `json:"Properties,omitempty" yaml:"Properties,omitempty"`
	DependsOn  []string               `json:"DependsOn,omitempty" yaml:"DependsOn,omitempty"`
}

// OutputBody is one entry of the Outputs section
type OutputBody struct {
	Description string      `json:"Description,omitempty" yaml:"Description,omitempty"`
	Value       interface{} `json:"Value" yaml:"Value"`
	Export      *Export     `json:"Export,omitempty" yaml:"Export,omitempty"`
}

// Export names an output for Fn::ImportValue in other stacks
type Export struct {
	Name string `json:"Name" yaml:"Name"`
}

// Template renders the graph. The graph is not modified.
func (g *Graph) Template(description string) (Template, error) {
	resources, err := g.Resources()
	if err != nil {
		return Template{}, err
	}

	t := Template{
		FormatVersion: TemplateFormatVersion,
		Description:   description,
		Resources:     make(map[string]ResourceBody, len(resources)),
		Order:         make([]string, 0, len(resources)),
	}
	for _, r := range resources {
		t.Resources[r.LogicalID] = ResourceBody{
			Type:       r.Type,
			Properties: r.Properties,
			DependsOn:  r.DependsOn,
		}
		t.Order = append(t.Order, r.LogicalID)
	}

	if len(g.outputs) > 0 {
		t.Outputs = make(map[string]OutputBody, len(g.outputs))
		for _, o := range g.outputs {
			body := OutputBody{Description: o.Description, Value: o.Value}
			if o.ExportName != "" {
				body.Export = &Export{Name: o.ExportName}
			}
			t.Outputs[o.Key] = body
		}
	}

	return t, nil
}

// JSON renders the template as indented JSON
func (t Template) JSON() ([]byte, error) {
	b, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}
	return b, nil
}

// YAML renders the template as YAML using long-form intrinsic functions
func (t Template) YAML() ([]byte, error) {
	b, err := yaml.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}
	return b, nil
}
