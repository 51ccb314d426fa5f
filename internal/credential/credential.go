// Package credential issues rotatable access keys for signing identities and
// wraps key material, or placeholders for it, in deterministically named
// secrets.
package credential

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/systmms/objsign/internal/declare"
	"github.com/systmms/objsign/internal/logging"
)

// SecretSuffix is appended to the provider tag to form secret names
const SecretSuffix = "ObjectSigningSecret"

// Secret tag keys
const (
	TagProvider       = "objsign:provider"
	TagRotationSerial = "objsign:rotation-serial"
	TagCredentialID   = "objsign:credential-id"
)

// credentialNamespace seeds the name-based credential ids
var credentialNamespace = uuid.MustParse("6f0c7c52-3c1e-4d0b-9a8e-1f5f2d7b8e21")

// ErrSerialConflict is returned when an identity is issued two different
// serials in the same evaluation
var ErrSerialConflict = errors.New("identity already has an active credential with a different serial")

// ErrSerialDecreased is returned when a deployment would lower the serial
var ErrSerialDecreased = errors.New("rotation serial must not decrease")

// SecretName returns the deterministic name of a provider's secret
func SecretName(prefix, tag string) string {
	return prefix + tag + SecretSuffix
}

// Identity is a declared principal that can own credentials
type Identity struct {
	Name   string
	Handle declare.Handle
}

// Credential is an access key bound to an identity at a rotation serial
type Credential struct {
	ID       uuid.UUID
	Identity string
	Serial   int
	Key      declare.Handle
}

// AccessKeyID refers to the key id once the engine has created the key
func (c Credential) AccessKeyID() declare.Ref {
	return c.Key.Ref()
}

// SecretAccessKey refers to the key material once created
func (c Credential) SecretAccessKey() declare.GetAtt {
	return c.Key.Attr("SecretAccessKey")
}

// SecretRecord is a declared secret holding credential material
type SecretRecord struct {
	Name        string
	Tag         string
	Placeholder bool
	Handle      declare.Handle
}

// CredentialID derives the stable id for an identity at a serial. The same
// inputs always give the same id and any serial change gives a new one.
func CredentialID(identity string, serial int) uuid.UUID {
	return uuid.NewSHA1(credentialNamespace, []byte(identity+"#"+strconv.Itoa(serial)))
}

// Manager declares credentials and secrets into a graph
type Manager struct {
	graph  *declare.Graph
	prefix string
	logger *logging.Logger
	issued map[string]Credential
}

// NewManager creates a manager naming secrets with prefix
func NewManager(g *declare.Graph, prefix string, logger *logging.Logger) *Manager {
	return &Manager{
		graph:  g,
		prefix: prefix,
		logger: logger,
		issued: make(map[string]Credential),
	}
}

// Issue declares the access key for identity at serial. The key's logical id
// is fixed per identity so a serial change makes the engine replace it,
// revoking the old key. Issuing the same serial again returns the existing
// credential.
func (m *Manager) Issue(identity Identity, serial int) (Credential, error) {
	if existing, ok := m.issued[identity.Name]; ok {
		if existing.Serial == serial {
			return existing, nil
		}
		return Credential{}, fmt.Errorf("%w: %s has serial %d, asked for %d", ErrSerialConflict, identity.Name, existing.Serial, serial)
	}
	if serial < 0 {
		return Credential{}, fmt.Errorf("rotation serial for %s must not be negative: %d", identity.Name, serial)
	}

	key, err := m.graph.Declare(declare.Resource{
		LogicalID: identity.Name + "AccessKey",
		Type:      declare.TypeIAMAccessKey,
		Properties: map[string]interface{}{
			"UserName": identity.Handle.Ref(),
			"Serial":   serial,
			"Status":   "Active",
		},
	})
	if err != nil {
		return Credential{}, fmt.Errorf("failed to declare access key for %s: %w", identity.Name, err)
	}
	m.logger.Declared(key.Type, key.LogicalID)

	cred := Credential{
		ID:       CredentialID(identity.Name, serial),
		Identity: identity.Name,
		Serial:   serial,
		Key:      key,
	}
	m.issued[identity.Name] = cred
	return cred, nil
}

// Store declares the secret holding a credential's key pair
func (m *Manager) Store(tag, description string, cred Credential) (SecretRecord, error) {
	value := declare.JSONObject(
		declare.Field{Key: "accessKeyId", Value: cred.AccessKeyID()},
		declare.Field{Key: "secretAccessKey", Value: cred.SecretAccessKey()},
	)
	tags := []map[string]interface{}{
		{"Key": TagProvider, "Value": tag},
		{"Key": TagRotationSerial, "Value": strconv.Itoa(cred.Serial)},
		{"Key": TagCredentialID, "Value": cred.ID.String()},
	}
	return m.declareSecret(tag, description, value, tags, false)
}

// Placeholder declares an inert secret that an operator replaces out of band
func (m *Manager) Placeholder(tag, description string, fields []declare.Field) (SecretRecord, error) {
	for _, f := range fields {
		if _, ok := f.Value.(string); !ok {
			return SecretRecord{}, fmt.Errorf("placeholder field %s must be a literal", f.Key)
		}
	}
	tags := []map[string]interface{}{
		{"Key": TagProvider, "Value": tag},
	}
	return m.declareSecret(tag, description, declare.JSONObject(fields...), tags, true)
}

func (m *Manager) declareSecret(tag, description string, value interface{}, tags []map[string]interface{}, placeholder bool) (SecretRecord, error) {
	name := SecretName(m.prefix, tag)
	handle, err := m.graph.Declare(declare.Resource{
		LogicalID: name,
		Type:      declare.TypeSecret,
		Properties: map[string]interface{}{
			"Name":         name,
			"Description":  description,
			"SecretString": value,
			"Tags":         tags,
		},
	})
	if err != nil {
		return SecretRecord{}, fmt.Errorf("failed to declare secret %s: %w", name, err)
	}
	m.logger.Declared(handle.Type, handle.LogicalID)

	return SecretRecord{
		Name:        name,
		Tag:         tag,
		Placeholder: placeholder,
		Handle:      handle,
	}, nil
}

// Rotation describes what a serial change does to a deployed credential
type Rotation int

const (
	// Initial means there is no deployed credential yet
	Initial Rotation = iota
	// Unchanged keeps the deployed credential
	Unchanged
	// Rotated replaces the deployed credential
	Rotated
)

func (r Rotation) String() string {
	switch r {
	case Initial:
		return "initial"
	case Unchanged:
		return "unchanged"
	case Rotated:
		return "rotated"
	default:
		return "unknown"
	}
}

// CheckSerial compares the deployed serial with the configured one. A
// negative previous serial means nothing is deployed.
func CheckSerial(previous, next int) (Rotation, error) {
	switch {
	case previous < 0:
		return Initial, nil
	case next < previous:
		return Unchanged, fmt.Errorf("%w: deployed %d, configured %d", ErrSerialDecreased, previous, next)
	case next == previous:
		return Unchanged, nil
	default:
		return Rotated, nil
	}
}
