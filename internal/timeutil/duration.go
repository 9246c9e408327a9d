// Package timeutil provides time types shared across the YAML config
// surface.
package timeutil

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a [time.Duration] that unmarshals from YAML duration
// strings such as "200ms" or "1.5s". yaml.v3 only decodes integers into
// time.Duration, which reads as nanoseconds and makes configs
// unreadable; this type accepts the [time.ParseDuration] syntax instead.
type Duration time.Duration

// Std returns the value as a standard [time.Duration].
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String renders the duration in [time.Duration] notation.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar like \"200ms\"", node.Line)
	}
	v, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", node.Line, node.Value)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler, emitting the string notation.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}
