package device

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is returned when a device id is not in the registry.
var ErrNotFound = errors.New("device not found")

// ErrDuplicateID is returned when two devices declare the same id.
var ErrDuplicateID = errors.New("device with that ID already exists")

// ListOptions filters the results of [Registry.List]. Zero-value fields
// match everything.
type ListOptions struct {
	// Kind restricts results to devices of this kind.
	Kind Kind
	// Area restricts results to devices in this area (case-insensitive).
	Area string
}

// Registry is an in-memory index of devices, keyed by id and by every
// spoken name. All methods are safe for concurrent use; [Registry.Replace]
// swaps the whole contents atomically, so resolution during a config reload
// sees either the old set or the new one, never a mix.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]Device
	spoken map[string]Device
}

// NewRegistry builds a registry from the given devices. It fails if any
// device is invalid or if two devices share an id.
func NewRegistry(devices []Device) (*Registry, error) {
	r := &Registry{
		byID:   make(map[string]Device),
		spoken: make(map[string]Device),
	}
	if err := r.Replace(devices); err != nil {
		return nil, err
	}
	return r, nil
}

// Replace swaps the registry contents for the given devices. On error the
// previous contents are kept unchanged, so a bad config reload cannot leave
// the assistant without its device names.
//
// Canonical names take precedence over aliases when two devices claim the
// same spoken name; within the same precedence level the first device wins
// and the collision is logged.
func (r *Registry) Replace(devices []Device) error {
	byID := make(map[string]Device, len(devices))
	spoken := make(map[string]Device, len(devices))

	for i, d := range devices {
		if err := Validate(d); err != nil {
			return fmt.Errorf("device[%d] %q: %w", i, d.ID, err)
		}
		if _, ok := byID[d.ID]; ok {
			return fmt.Errorf("device[%d] %q: %w", i, d.ID, ErrDuplicateID)
		}
		byID[d.ID] = d
	}

	// Canonical names first so no alias can shadow another device's name.
	for _, d := range devices {
		key := normalize(d.Name)
		if prev, ok := spoken[key]; ok {
			slog.Warn("device: duplicate name, keeping first registration",
				"name", d.Name, "kept", prev.ID, "ignored", d.ID)
			continue
		}
		spoken[key] = d
	}
	for _, d := range devices {
		for _, alias := range d.Aliases {
			key := normalize(alias)
			if key == "" {
				continue
			}
			if prev, ok := spoken[key]; ok {
				if prev.ID != d.ID {
					slog.Warn("device: duplicate alias, keeping first registration",
						"alias", alias, "kept", prev.ID, "ignored", d.ID)
				}
				continue
			}
			spoken[key] = d
		}
	}

	r.mu.Lock()
	r.byID = byID
	r.spoken = spoken
	r.mu.Unlock()
	return nil
}

// Get returns the device with the given id.
func (r *Registry) Get(id string) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.byID[id]
	if !ok {
		return Device{}, ErrNotFound
	}
	return d, nil
}

// Resolve looks up a spoken name against all canonical names and aliases.
// Matching ignores case and surrounding or repeated whitespace.
func (r *Registry) Resolve(name string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.spoken[normalize(name)]
	return d, ok
}

// ResolveID is [Registry.Resolve] reduced to the backend identifier. It is
// the shape the tool integrations plug in ahead of their own fallbacks.
func (r *Registry) ResolveID(name string) (string, bool) {
	d, ok := r.Resolve(name)
	if !ok {
		return "", false
	}
	return d.ID, true
}

// List returns the devices matching opts, sorted by name.
func (r *Registry) List(opts ListOptions) []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Device, 0, len(r.byID))
	for _, d := range r.byID {
		if opts.Kind != "" && d.Kind != opts.Kind {
			continue
		}
		if opts.Area != "" && !strings.EqualFold(d.Area, opts.Area) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns every spoken name in the registry, canonical and alias
// alike, deduplicated and sorted. This is the vocabulary handed to the
// transcription layer for keyword boosting and phonetic correction.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(r.spoken))
	out := make([]string, 0, len(r.spoken))
	for _, d := range r.byID {
		for _, name := range append([]string{d.Name}, d.Aliases...) {
			key := normalize(name)
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func normalize(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
