package config

import "reflect"

// ConfigDiff describes what changed between two configs. Fields that can
// be hot-reloaded are tracked individually; any other change sets Other
// and needs a restart to take effect.
type ConfigDiff struct {
	WakewordChanged bool
	NewWakeword     string

	PatternsChanged bool

	LogLevelChanged bool
	NewLogLevel     LogLevel

	DevicesChanged bool

	// Other is true when a field outside the hot-reloadable set changed.
	Other bool
}

// Changed reports whether the diff contains any change at all.
func (d ConfigDiff) Changed() bool {
	return d.WakewordChanged || d.PatternsChanged || d.LogLevelChanged ||
		d.DevicesChanged || d.Other
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Assistant.Wakeword != new.Assistant.Wakeword {
		d.WakewordChanged = true
		d.NewWakeword = new.Assistant.Wakeword
	}
	if !reflect.DeepEqual(old.Assistant.Patterns, new.Assistant.Patterns) {
		d.PatternsChanged = true
	}
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if !reflect.DeepEqual(old.Devices, new.Devices) {
		d.DevicesChanged = true
	}

	d.Other = !reflect.DeepEqual(stripReloadable(old), stripReloadable(new))
	return d
}

// stripReloadable returns a copy of cfg with the hot-reloadable fields
// zeroed, leaving only the restart-required remainder for comparison.
func stripReloadable(cfg *Config) Config {
	c := *cfg
	c.Assistant.Wakeword = ""
	c.Assistant.Patterns = nil
	c.Server.LogLevel = ""
	c.Devices = nil
	return c
}
