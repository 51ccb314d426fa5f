package providers

import (
	"fmt"
	"strconv"

	"github.com/systmms/objsign/internal/credential"
	"github.com/systmms/objsign/internal/declare"
	"github.com/systmms/objsign/internal/discovery"
	"github.com/systmms/objsign/internal/logging"
	"github.com/systmms/objsign/internal/scope"
)

// Output key suffixes appended to a provider tag
const (
	OutputSecretName          = "SecretName"
	OutputAccessKeySerial     = "AccessKeySerial"
	OutputAccessKeyIDParam    = "AccessKeyIdParameter"
	OutputAccessKeySecretName = "AccessKeySecretNameParameter"
)

// Result is what resolving every slot declared
type Result struct {
	Identities  []credential.Identity
	Scopes      map[string]scope.Scope
	Credentials []credential.Credential
	Secrets     []credential.SecretRecord
	Attributes  []discovery.Attribute
	Parameters  []string
}

// Resolver declares each provider's resources according to its slot
type Resolver struct {
	graph       *declare.Graph
	credentials *credential.Manager
	stackName   string
	logger      *logging.Logger
}

// NewResolver creates a resolver. stackName roots the SSM parameter paths.
func NewResolver(g *declare.Graph, credentials *credential.Manager, stackName string, logger *logging.Logger) *Resolver {
	return &Resolver{
		graph:       g,
		credentials: credentials,
		stackName:   stackName,
		logger:      logger,
	}
}

// Resolve walks the assignments in order. Absent slots contribute nothing.
func (r *Resolver) Resolve(assignments []Assignment) (*Result, error) {
	result := &Result{Scopes: make(map[string]scope.Scope)}

	for _, a := range assignments {
		var err error
		switch s := a.Slot.(type) {
		case Absent:
			r.logger.Debug("Provider %s not configured", a.Descriptor.Key)
		case Capable:
			err = r.resolveCapable(a.Descriptor, s, result)
		case Incapable:
			err = r.resolveIncapable(a.Descriptor, result)
		default:
			err = fmt.Errorf("unhandled slot type %T", s)
		}
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", a.Descriptor.Key, err)
		}
	}

	return result, nil
}

func (r *Resolver) resolveCapable(d Descriptor, s Capable, result *Result) error {
	user, err := r.graph.Declare(declare.Resource{
		LogicalID: d.Tag + "SigningUser",
		Type:      declare.TypeIAMUser,
	})
	if err != nil {
		return err
	}
	r.logger.Declared(user.Type, user.LogicalID)
	identity := credential.Identity{Name: user.LogicalID, Handle: user}

	// An identity with no statements gets no policy and so no access.
	granted := scope.Derive(s.DataBucketPaths, scope.S3Scheme)
	if !granted.Empty() {
		policy, err := r.graph.Declare(declare.Resource{
			LogicalID: d.Tag + "SigningPolicy",
			Type:      declare.TypeIAMPolicy,
			Properties: map[string]interface{}{
				"PolicyName":     r.stackName + "-" + d.Tag + "ObjectSigningRead",
				"PolicyDocument": granted.Document(),
				"Users":          []interface{}{user.Ref()},
			},
		})
		if err != nil {
			return err
		}
		r.logger.Declared(policy.Type, policy.LogicalID)
	} else {
		r.logger.Warn("%s identity has no bucket paths and will not be able to read anything", d.Tag)
	}

	cred, err := r.credentials.Issue(identity, s.RotationSerial)
	if err != nil {
		return err
	}
	record, err := r.credentials.Store(d.Tag, d.SecretDescription, cred)
	if err != nil {
		return err
	}

	idPath := "/" + r.stackName + "/AccessKey/id"
	secretPath := "/" + r.stackName + "/AccessKey/secretName"
	if err := r.declareParameter(d.Tag+"AccessKeyIdParameter", idPath, "Access key id of the object signing user", cred.AccessKeyID(), nil); err != nil {
		return err
	}
	if err := r.declareParameter(d.Tag+"AccessKeySecretNameParameter", secretPath, "Name of the secret holding the object signing access key", record.Name, []string{record.Handle.LogicalID}); err != nil {
		return err
	}

	outputs := []declare.Output{
		secretNameOutput(d, record),
		{Key: d.Tag + OutputAccessKeySerial, Description: "Rotation serial of the active access key", Value: strconv.Itoa(cred.Serial)},
		{Key: d.Tag + OutputAccessKeyIDParam, Description: "Parameter holding the access key id", Value: idPath},
		{Key: d.Tag + OutputAccessKeySecretName, Description: "Parameter holding the secret name", Value: secretPath},
	}
	for _, o := range outputs {
		if err := r.graph.Output(o); err != nil {
			return err
		}
	}

	result.Identities = append(result.Identities, identity)
	result.Scopes[identity.Name] = granted
	result.Credentials = append(result.Credentials, cred)
	result.Secrets = append(result.Secrets, record)
	result.Parameters = append(result.Parameters, idPath, secretPath)
	result.Attributes = append(result.Attributes, discovery.Attribute{
		Name:   d.DiscoveryAttribute,
		Value:  record.Name,
		Source: record.Handle,
	})
	return nil
}

func (r *Resolver) resolveIncapable(d Descriptor, result *Result) error {
	record, err := r.credentials.Placeholder(d.Tag, d.SecretDescription, d.Placeholder)
	if err != nil {
		return err
	}
	if err := r.graph.Output(secretNameOutput(d, record)); err != nil {
		return err
	}

	result.Secrets = append(result.Secrets, record)
	result.Attributes = append(result.Attributes, discovery.Attribute{
		Name:   d.DiscoveryAttribute,
		Value:  record.Name,
		Source: record.Handle,
	})
	return nil
}

func (r *Resolver) declareParameter(logicalID, name, description string, value interface{}, dependsOn []string) error {
	h, err := r.graph.Declare(declare.Resource{
		LogicalID: logicalID,
		Type:      declare.TypeSSMParameter,
		Properties: map[string]interface{}{
			"Name":        name,
			"Description": description,
			"Type":        "String",
			"Value":       value,
		},
		DependsOn: dependsOn,
	})
	if err != nil {
		return err
	}
	r.logger.Declared(h.Type, h.LogicalID)
	return nil
}

func secretNameOutput(d Descriptor, record credential.SecretRecord) declare.Output {
	return declare.Output{
		Key:         d.Tag + OutputSecretName,
		Description: "Name of the " + d.Tag + " object signing secret",
		Value:       record.Name,
		ExportName:  record.Name,
	}
}
