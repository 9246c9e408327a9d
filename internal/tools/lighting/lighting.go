// Package lighting drives Philips Hue lights and rooms over the hue
// bridge's REST API.
//
// Three tools are exported via [NewTools]: turn_on_lights and
// turn_off_lights switch a named light or room, and set_brightness
// dims it to a percentage. Locations are matched by title-cased name,
// individual lights before rooms, so a light and a room sharing a name
// resolves to the light.
package lighting

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/MrWong99/auricle/internal/timeutil"
	"github.com/MrWong99/auricle/internal/tools"
)

// Config describes how to reach the hue bridge.
type Config struct {
	// Host is the bridge address, with or without an http:// prefix.
	Host string `yaml:"hue_hub_ip"`
	// Username is the API key issued by the bridge pairing flow.
	Username string `yaml:"username"`
	// DefaultLocation is used when a tool call names no location.
	DefaultLocation string `yaml:"default_location"`
	// Timeout bounds every bridge request.
	Timeout timeutil.Duration `yaml:"timeout"`
}

func (c Config) withDefaults() Config {
	if c.DefaultLocation == "" {
		c.DefaultLocation = "Downlights Office"
	}
	if c.Timeout <= 0 {
		c.Timeout = timeutil.Duration(10 * time.Second)
	}
	return c
}

// Service resolves spoken location names against the bridge's lights
// and groups and applies state changes to whichever matches.
type Service struct {
	bridge          *Bridge
	defaultLocation string
	resolver        func(name string) (string, bool)
}

// Option configures a Service.
type Option func(*Service)

// WithResolver consults fn for spoken location names ahead of the
// bridge lookup. The device registry's ResolveID plugs in here, mapping
// "the big lamp" to the bridge resource name it is registered under.
func WithResolver(fn func(name string) (string, bool)) Option {
	return func(s *Service) { s.resolver = fn }
}

// New creates a Service talking to the bridge described by cfg.
func New(cfg Config, opts ...Option) *Service {
	cfg = cfg.withDefaults()
	s := &Service{
		bridge:          newBridge(cfg),
		defaultLocation: cfg.DefaultLocation,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// resolveLocation falls back to the configured default and title-cases
// the result, since bridge resources are conventionally named that way.
// A registry hit is used verbatim: the registered id is the bridge name.
func (s *Service) resolveLocation(location string) string {
	location = strings.TrimSpace(location)
	if s.resolver != nil && location != "" {
		if id, ok := s.resolver(location); ok {
			return id
		}
	}
	if location == "" {
		location = s.defaultLocation
	}
	return cases.Title(language.English).String(location)
}

func (s *Service) setPower(ctx context.Context, location string, on bool) string {
	loc := s.resolveLocation(location)
	word := "off"
	if on {
		word = "on"
	}

	lights, err := s.bridge.Lights(ctx)
	if err != nil {
		slog.Warn("lighting: bridge unreachable", "error", err)
		return "Unable to connect to lights for " + loc
	}
	if id, ok := lights[loc]; ok {
		if err := s.bridge.SetLight(ctx, id, state{"on": on}); err != nil {
			slog.Warn("lighting: set light failed", "light", loc, "error", err)
			return "Unable to connect to lights for " + loc
		}
		return loc + " lights " + word
	}

	groups, err := s.bridge.Groups(ctx)
	if err != nil {
		slog.Warn("lighting: bridge unreachable", "error", err)
		return "Unable to connect to lights for " + loc
	}
	if id, ok := groups[loc]; ok {
		if err := s.bridge.SetGroup(ctx, id, state{"on": on}); err != nil {
			slog.Warn("lighting: set group failed", "group", loc, "error", err)
			return "Unable to connect to lights for " + loc
		}
		return loc + " " + word
	}

	return "No lights or rooms with name " + loc
}

func (s *Service) setBrightness(ctx context.Context, percentArg, location string) string {
	loc := s.resolveLocation(location)

	percent := 100
	if p := strings.TrimSpace(percentArg); p != "" {
		n, err := strconv.Atoi(strings.TrimSuffix(p, "%"))
		if err != nil {
			return fmt.Sprintf("Error: Invalid brightness percent '%s'", percentArg)
		}
		percent = n
	}
	// Hue brightness runs 0-254.
	level := percent * 254 / 100

	lights, err := s.bridge.Lights(ctx)
	if err != nil {
		slog.Warn("lighting: bridge unreachable", "error", err)
		return "Unable to connect to lights for " + loc
	}
	if id, ok := lights[loc]; ok {
		if err := s.bridge.SetLight(ctx, id, state{"on": true, "bri": level}); err != nil {
			slog.Warn("lighting: set light failed", "light", loc, "error", err)
			return "Unable to connect to lights for " + loc
		}
		return fmt.Sprintf("%s lights set to %d percent.", loc, percent)
	}

	groups, err := s.bridge.Groups(ctx)
	if err != nil {
		slog.Warn("lighting: bridge unreachable", "error", err)
		return "Unable to connect to lights for " + loc
	}
	if id, ok := groups[loc]; ok {
		if err := s.bridge.SetGroup(ctx, id, state{"on": true, "bri": level}); err != nil {
			slog.Warn("lighting: set group failed", "group", loc, "error", err)
			return "Unable to connect to lights for " + loc
		}
		return fmt.Sprintf("%s set to %d percent.", loc, percent)
	}

	return "No lights or rooms with name " + loc
}

// NewTools returns the lighting tools backed by s.
func NewTools(s *Service) []tools.Tool {
	return []tools.Tool{
		{
			Name:        "turn_on_lights",
			Aliases:     []string{"lights_on", "switch_on_lights", "turn_on"},
			Description: "Turn on lights in a specific location",
			Run: func(ctx context.Context, args map[string]string) string {
				return s.setPower(ctx, args["location"], true)
			},
		},
		{
			Name:        "turn_off_lights",
			Aliases:     []string{"lights_off", "switch_off_lights", "turn_off"},
			Description: "Turn off lights in a specific location",
			Run: func(ctx context.Context, args map[string]string) string {
				return s.setPower(ctx, args["location"], false)
			},
		},
		{
			Name:        "set_brightness",
			Aliases:     []string{"brightness", "dim_lights", "brighten_lights"},
			Description: "Set brightness level for lights in a specific location",
			Run: func(ctx context.Context, args map[string]string) string {
				return s.setBrightness(ctx, args["percent"], args["location"])
			},
		},
	}
}
