// Package stack assembles one signing stack from its configuration. It is
// the only place the scope, credential, provider and discovery pieces meet.
package stack

import (
	"context"
	"fmt"
	"strconv"

	"github.com/systmms/objsign/internal/config"
	"github.com/systmms/objsign/internal/credential"
	"github.com/systmms/objsign/internal/declare"
	"github.com/systmms/objsign/internal/directory"
	"github.com/systmms/objsign/internal/discovery"
	dserrors "github.com/systmms/objsign/internal/errors"
	"github.com/systmms/objsign/internal/logging"
	"github.com/systmms/objsign/internal/providers"
)

// Stack is a fully evaluated signing stack. It is not modified after
// Assemble returns.
type Stack struct {
	Name          string
	Description   string
	Tags          map[string]string
	IsDevelopment bool
	Namespace     directory.Namespace
	Template      declare.Template
	Outputs       []declare.Output
	Discovery     discovery.Record
	Providers     *providers.Result
}

// RotationSerial returns the configured serial of the capable provider, or
// -1 when no provider issues credentials
func (s *Stack) RotationSerial() int {
	if s.Providers == nil || len(s.Providers.Credentials) == 0 {
		return -1
	}
	return s.Providers.Credentials[0].Serial
}

// Output returns the value of a literal output
func (s *Stack) Output(key string) (string, bool) {
	for _, o := range s.Outputs {
		if o.Key == key {
			v, ok := o.Value.(string)
			return v, ok
		}
	}
	return "", false
}

// Option configures assembly
type Option func(*options)

type options struct {
	logger   *logging.Logger
	registry *providers.Registry
}

// WithLogger sets the logger used during assembly
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegistry replaces the built-in provider registry
func WithRegistry(registry *providers.Registry) Option {
	return func(o *options) {
		o.registry = registry
	}
}

// Assemble evaluates def into a stack. The namespace is resolved before
// anything is declared; any failure returns no stack at all.
func Assemble(ctx context.Context, def *config.Definition, resolver directory.Resolver, opts ...Option) (*Stack, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = providers.NewRegistry()
	}

	if def == nil {
		return nil, dserrors.UserError{
			Message:    "Configuration not loaded",
			Suggestion: "This is an internal error. Please report it",
		}
	}
	if def.Description == "" {
		return nil, dserrors.ConfigError{
			Field:      "description",
			Message:    "description is required",
			Suggestion: "Add a description; it becomes the CloudFormation stack description",
		}
	}

	ns, err := resolver.ResolveNamespace(ctx, def.InfrastructureReferenceName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve infrastructure %s: %w", def.InfrastructureReferenceName, err)
	}
	o.logger.Debug("Binding %s to namespace %s", def.StackName, ns.Name)

	g := declare.New()
	manager := credential.NewManager(g, def.SecretsPrefix, o.logger)
	resolved, err := providers.NewResolver(g, manager, def.StackName, o.logger).
		Resolve(providers.SlotsFrom(def, o.registry))
	if err != nil {
		return nil, err
	}

	registrar := discovery.NewRegistrar(g, o.logger)
	for _, attr := range resolved.Attributes {
		if err := registrar.Add(attr); err != nil {
			return nil, err
		}
	}
	record, err := registrar.Publish(ns)
	if err != nil {
		return nil, err
	}

	tmpl, err := g.Template(def.Description)
	if err != nil {
		return nil, err
	}

	tags := make(map[string]string, len(def.Tags)+1)
	for k, v := range def.Tags {
		tags[k] = v
	}
	tags["objsign:development"] = strconv.FormatBool(def.IsDevelopment)

	return &Stack{
		Name:          def.StackName,
		Description:   def.Description,
		Tags:          tags,
		IsDevelopment: def.IsDevelopment,
		Namespace:     ns,
		Template:      tmpl,
		Outputs:       g.Outputs(),
		Discovery:     record,
		Providers:     resolved,
	}, nil
}
