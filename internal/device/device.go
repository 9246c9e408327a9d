// Package device provides the registry of named smart-home devices known to
// the assistant.
//
// Devices are declared in the config file and loaded into a [Registry] at
// startup. Two consumers resolve spoken names against it: the tool
// integrations (internal/tools/lighting, internal/tools/homeassistant) map a
// spoken name like "the big lamp" to a backend identifier, and the transcript
// correction layer (internal/transcript) uses the registered names as the
// vocabulary for phonetic repair of misheard device names.
//
// The registry is safe for concurrent use and supports atomic replacement of
// its contents when the config file changes on disk.
package device

import (
	"errors"
	"fmt"
)

// Kind classifies a device by what it is, not by which backend controls it.
type Kind string

// Recognised device kinds.
const (
	KindLight   Kind = "light"
	KindGroup   Kind = "group"
	KindSwitch  Kind = "switch"
	KindClimate Kind = "climate"
	KindLock    Kind = "lock"
	KindCover   Kind = "cover"
	KindScene   Kind = "scene"
	KindScript  Kind = "script"
)

// IsValid reports whether k is a recognised device kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindLight, KindGroup, KindSwitch, KindClimate, KindLock, KindCover, KindScene, KindScript:
		return true
	}
	return false
}

// Device is a single named device the assistant can address.
type Device struct {
	// ID is the backend identifier: a Home Assistant entity id
	// ("light.office_desk"), a Hue light or room name, or whatever the
	// owning integration expects.
	ID string `yaml:"id" json:"id"`

	// Name is the canonical spoken name ("desk lamp").
	Name string `yaml:"name" json:"name"`

	// Kind classifies the device. Optional; an empty Kind matches no
	// kind filter but still resolves by name.
	Kind Kind `yaml:"kind,omitempty" json:"kind,omitempty"`

	// Aliases are additional spoken names that resolve to this device.
	Aliases []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`

	// Area is the room or zone the device lives in ("office", "bedroom").
	Area string `yaml:"area,omitempty" json:"area,omitempty"`
}

// Validate checks a [Device] for required fields and a recognised kind.
//
// Rules:
//   - ID must be non-empty.
//   - Name must be non-empty.
//   - Kind, when set, must be a recognised [Kind].
func Validate(d Device) error {
	var errs []error

	if d.ID == "" {
		errs = append(errs, errors.New("id must not be empty"))
	}

	if d.Name == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}

	if d.Kind != "" && !d.Kind.IsValid() {
		errs = append(errs, fmt.Errorf("kind %q is not a recognised device kind", d.Kind))
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
