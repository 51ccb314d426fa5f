// Package declare builds the resource graph that one stack evaluation hands
// to the provisioning engine. Nothing here talks to the cloud; the graph is
// rendered into a CloudFormation template value.
package declare

import (
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/dominikbraun/graph"
)

// Resource types declared by objsign
const (
	TypeIAMUser           = "AWS::IAM::User"
	TypeIAMPolicy         = "AWS::IAM::Policy"
	TypeIAMAccessKey      = "AWS::IAM::AccessKey"
	TypeSecret            = "AWS::SecretsManager::Secret"
	TypeSSMParameter      = "AWS::SSM::Parameter"
	TypeDiscoveryService  = "AWS::ServiceDiscovery::Service"
	TypeDiscoveryInstance = "AWS::ServiceDiscovery::Instance"
)

// TemplateFormatVersion is the CloudFormation template format version
const TemplateFormatVersion = "2010-09-09"

const maxLogicalIDLength = 255

var logicalIDPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// ErrDuplicateResource is returned when a logical id is declared twice
var ErrDuplicateResource = errors.New("resource already declared")

// ErrDuplicateOutput is returned when an output key is declared twice
var ErrDuplicateOutput = errors.New("output already declared")

// Resource is one declared cloud object
type Resource struct {
	LogicalID  string
	Type       string
	Properties map[string]interface{}
	DependsOn  []string
}

// Handle identifies a declared resource and exposes its output attributes
type Handle struct {
	LogicalID string
	Type      string
}

// Ref returns a reference to the resource's primary value
func (h Handle) Ref() Ref {
	return Ref{LogicalID: h.LogicalID}
}

// Attr returns a reference to one of the resource's output attributes
func (h Handle) Attr(name string) GetAtt {
	return GetAtt{LogicalID: h.LogicalID, Attribute: name}
}

// Output is a named stack output, optionally exported for cross-stack use
type Output struct {
	Key         string
	Description string
	Value       interface{}
	ExportName  string
}

// Graph collects declarations. Edges point from a dependency to the
// resources that reference it.
type Graph struct {
	g          graph.Graph[string, Resource]
	seq        map[string]int
	outputs    []Output
	outputKeys map[string]bool
}

// New creates an empty graph
func New() *Graph {
	return &Graph{
		g:          graph.New(func(r Resource) string { return r.LogicalID }, graph.Directed(), graph.PreventCycles()),
		seq:        make(map[string]int),
		outputKeys: make(map[string]bool),
	}
}

// Declare adds a resource. Dependencies are taken from Ref and GetAtt values
// in its properties plus DependsOn, all of which must already be declared.
func (g *Graph) Declare(r Resource) (Handle, error) {
	if err := validateLogicalID(r.LogicalID); err != nil {
		return Handle{}, err
	}
	if r.Type == "" {
		return Handle{}, fmt.Errorf("resource %s has no type", r.LogicalID)
	}

	deps := append(references(r.Properties), r.DependsOn...)
	for _, dep := range deps {
		if dep == r.LogicalID {
			return Handle{}, fmt.Errorf("resource %s refers to itself", r.LogicalID)
		}
		if _, err := g.g.Vertex(dep); err != nil {
			return Handle{}, fmt.Errorf("resource %s refers to undeclared resource %s", r.LogicalID, dep)
		}
	}

	if err := g.g.AddVertex(r); err != nil {
		if errors.Is(err, graph.ErrVertexAlreadyExists) {
			return Handle{}, fmt.Errorf("%w: %s", ErrDuplicateResource, r.LogicalID)
		}
		return Handle{}, err
	}
	g.seq[r.LogicalID] = len(g.seq)

	for _, dep := range deps {
		err := g.g.AddEdge(dep, r.LogicalID)
		if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
			return Handle{}, fmt.Errorf("resource %s: %w", r.LogicalID, err)
		}
	}

	return Handle{LogicalID: r.LogicalID, Type: r.Type}, nil
}

// Output adds a stack output
func (g *Graph) Output(o Output) error {
	if err := validateLogicalID(o.Key); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if g.outputKeys[o.Key] {
		return fmt.Errorf("%w: %s", ErrDuplicateOutput, o.Key)
	}
	for _, dep := range references(o.Value) {
		if _, err := g.g.Vertex(dep); err != nil {
			return fmt.Errorf("output %s refers to undeclared resource %s", o.Key, dep)
		}
	}
	g.outputKeys[o.Key] = true
	g.outputs = append(g.outputs, o)
	return nil
}

// Outputs returns the declared outputs in declaration order
func (g *Graph) Outputs() []Output {
	return append([]Output(nil), g.outputs...)
}

// Len is the number of declared resources
func (g *Graph) Len() int {
	return len(g.seq)
}

// Resource looks up a declared resource
func (g *Graph) Resource(logicalID string) (Resource, bool) {
	r, err := g.g.Vertex(logicalID)
	if err != nil {
		return Resource{}, false
	}
	return r, true
}

// Resources returns all resources, dependencies first. Ties are broken by
// declaration order so repeated evaluations produce identical output.
func (g *Graph) Resources() ([]Resource, error) {
	ids, err := graph.StableTopologicalSort(g.g, func(a, b string) bool {
		return g.seq[a] < g.seq[b]
	})
	if err != nil {
		return nil, fmt.Errorf("failed to order resources: %w", err)
	}

	out := make([]Resource, 0, len(ids))
	for _, id := range ids {
		r, err := g.g.Vertex(id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// OfType returns the declared resources of one type in dependency order
func (g *Graph) OfType(resourceType string) []Resource {
	all, err := g.Resources()
	if err != nil {
		return nil
	}
	var out []Resource
	for _, r := range all {
		if r.Type == resourceType {
			out = append(out, r)
		}
	}
	return out
}

// Dependencies returns the logical ids a resource directly depends on
func (g *Graph) Dependencies(logicalID string) ([]string, error) {
	preds, err := g.g.PredecessorMap()
	if err != nil {
		return nil, err
	}
	edges, ok := preds[logicalID]
	if !ok {
		return nil, fmt.Errorf("resource %s not declared", logicalID)
	}
	deps := make([]string, 0, len(edges))
	for id := range edges {
		deps = append(deps, id)
	}
	sort.Strings(deps)
	return deps, nil
}

func validateLogicalID(id string) error {
	if id == "" {
		return fmt.Errorf("logical id is empty")
	}
	if len(id) > maxLogicalIDLength {
		return fmt.Errorf("logical id %q is longer than %d characters", id, maxLogicalIDLength)
	}
	if !logicalIDPattern.MatchString(id) {
		return fmt.Errorf("logical id %q must be alphanumeric", id)
	}
	return nil
}
