// Package discovery publishes where a stack's secrets live as a single
// service instance in a Cloud Map HTTP namespace.
package discovery

import (
	"errors"
	"fmt"
	"sort"

	"github.com/systmms/objsign/internal/declare"
	"github.com/systmms/objsign/internal/directory"
	"github.com/systmms/objsign/internal/logging"
)

const (
	// ServiceName is the Cloud Map service every signing stack registers
	ServiceName = "ObjectSigning"
	// ServiceDescription describes the registered service
	ServiceDescription = "Object signing service"
	// InstanceID is the fixed id of the published instance. Registering
	// the same id again replaces its attributes.
	InstanceID = "IamUser"

	serviceLogicalID  = "Service"
	instanceLogicalID = "ServiceInstance"
)

// Errors returned by the registrar
var (
	ErrAlreadyPublished   = errors.New("discovery record already published")
	ErrDuplicateAttribute = errors.New("discovery attribute already added")
)

// Attribute is one name to secret-name pair. Source is the declared secret
// the value names, so the instance is registered after the secret exists.
type Attribute struct {
	Name   string
	Value  string
	Source declare.Handle
}

// Record is the published discovery entry
type Record struct {
	Namespace  directory.Namespace
	Service    declare.Handle
	Instance   declare.Handle
	Attributes map[string]string
}

// Names returns the attribute names in lexical order
func (r Record) Names() []string {
	names := make([]string, 0, len(r.Attributes))
	for k := range r.Attributes {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Registrar collects attributes and publishes them exactly once
type Registrar struct {
	graph     *declare.Graph
	logger    *logging.Logger
	attrs     []Attribute
	names     map[string]bool
	published bool
}

// NewRegistrar creates a registrar declaring into g
func NewRegistrar(g *declare.Graph, logger *logging.Logger) *Registrar {
	return &Registrar{
		graph:  g,
		logger: logger,
		names:  make(map[string]bool),
	}
}

// Add queues an attribute for publication
func (r *Registrar) Add(attr Attribute) error {
	if r.published {
		return fmt.Errorf("cannot add %s: %w", attr.Name, ErrAlreadyPublished)
	}
	if attr.Name == "" {
		return fmt.Errorf("discovery attribute name is empty")
	}
	if r.names[attr.Name] {
		return fmt.Errorf("%w: %s", ErrDuplicateAttribute, attr.Name)
	}
	r.names[attr.Name] = true
	r.attrs = append(r.attrs, attr)
	return nil
}

// Publish declares the service and its single instance in ns. An empty
// attribute set is valid and yields an instance with no attributes.
func (r *Registrar) Publish(ns directory.Namespace) (Record, error) {
	if r.published {
		return Record{}, ErrAlreadyPublished
	}
	if ns.ID == "" {
		return Record{}, fmt.Errorf("namespace %q has no id", ns.Name)
	}

	service, err := r.graph.Declare(declare.Resource{
		LogicalID: serviceLogicalID,
		Type:      declare.TypeDiscoveryService,
		Properties: map[string]interface{}{
			"Name":        ServiceName,
			"Description": ServiceDescription,
			"NamespaceId": ns.ID,
			"Type":        "HTTP",
		},
	})
	if err != nil {
		return Record{}, fmt.Errorf("failed to declare discovery service: %w", err)
	}
	r.logger.Declared(service.Type, service.LogicalID)

	attributes := make(map[string]string, len(r.attrs))
	properties := make(map[string]interface{}, len(r.attrs))
	dependsOn := make([]string, 0, len(r.attrs))
	for _, a := range r.attrs {
		attributes[a.Name] = a.Value
		properties[a.Name] = a.Value
		if a.Source.LogicalID != "" {
			dependsOn = append(dependsOn, a.Source.LogicalID)
		}
	}

	instance, err := r.graph.Declare(declare.Resource{
		LogicalID: instanceLogicalID,
		Type:      declare.TypeDiscoveryInstance,
		Properties: map[string]interface{}{
			"InstanceId":         InstanceID,
			"ServiceId":          service.Ref(),
			"InstanceAttributes": properties,
		},
		DependsOn: dependsOn,
	})
	if err != nil {
		return Record{}, fmt.Errorf("failed to declare discovery instance: %w", err)
	}
	r.logger.Declared(instance.Type, instance.LogicalID)

	r.published = true
	return Record{
		Namespace:  ns,
		Service:    service,
		Instance:   instance,
		Attributes: attributes,
	}, nil
}
