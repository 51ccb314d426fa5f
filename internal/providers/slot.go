// Package providers turns each configured storage provider into the
// declarations it needs. Every provider occupies one slot, and a slot is
// either absent, capable of automated identity creation, or incapable of it.
package providers

import (
	"github.com/systmms/objsign/internal/config"
	"github.com/systmms/objsign/internal/scope"
)

// Slot is the state of one provider position. The concrete types are
// Absent, Capable and Incapable.
type Slot interface {
	slot()
}

// Absent means the provider block is not in the configuration
type Absent struct{}

// Capable means objsign creates the identity, its scope and its credential
type Capable struct {
	RotationSerial  int
	DataBucketPaths scope.BucketPaths
}

// Incapable means the remote side manages its own grants and objsign only
// reserves a secret for an operator to fill
type Incapable struct {
	BucketName string
}

func (Absent) slot()    {}
func (Capable) slot()   {}
func (Incapable) slot() {}

// Assignment pairs a provider with its slot state
type Assignment struct {
	Descriptor Descriptor
	Slot       Slot
}

// SlotsFrom maps a configuration onto the registry's providers, in registry
// order. Every registered provider gets an assignment, Absent when its block
// is missing.
func SlotsFrom(def *config.Definition, reg *Registry) []Assignment {
	out := make([]Assignment, 0, len(reg.order))
	for _, key := range reg.order {
		d := reg.descriptors[key]
		out = append(out, Assignment{Descriptor: d, Slot: slotFor(def, key)})
	}
	return out
}

func slotFor(def *config.Definition, key string) Slot {
	switch key {
	case KeyS3:
		if def.S3 != nil {
			return Capable{RotationSerial: def.S3.RotationSerial, DataBucketPaths: def.S3.DataBucketPaths}
		}
	case KeyGCS:
		if def.GCS != nil {
			return Incapable{BucketName: def.GCS.BucketName}
		}
	case KeyCloudflare:
		if def.Cloudflare != nil {
			return Incapable{BucketName: def.Cloudflare.BucketName}
		}
	}
	return Absent{}
}
