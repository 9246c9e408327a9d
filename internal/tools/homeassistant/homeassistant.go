// Package homeassistant bridges tool calls to a Home Assistant
// instance over its REST API, authenticated with a long-lived access
// token.
//
// Fourteen tools are exported via [NewTools], covering switching,
// brightness and color, climate, locks, covers, scripts and scenes,
// plus a raw ha_service escape hatch for everything else. The generic
// turn_on and turn_off names collide with the hue lighting aliases;
// the registry resolves canonical names before aliases, so these tools
// win whenever both integrations are enabled.
package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/auricle/internal/timeutil"
)

// Config describes how to reach Home Assistant.
type Config struct {
	// URL is the base address of the instance.
	URL string `yaml:"url"`
	// Token is a long-lived access token created in the Home Assistant
	// profile page.
	Token string `yaml:"token"`
	// Timeout bounds every request.
	Timeout timeutil.Duration `yaml:"timeout"`
	// EntityAliases maps spoken names to entity ids, checked before any
	// other resolution. Keys are matched case-insensitively.
	EntityAliases map[string]string `yaml:"entity_aliases"`
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = "http://localhost:8123"
	}
	if c.Timeout <= 0 {
		c.Timeout = timeutil.Duration(10 * time.Second)
	}
	return c
}

// Client calls Home Assistant services and reads entity state.
type Client struct {
	baseURL  string
	token    string
	aliases  map[string]string
	resolver func(name string) (string, bool)
	http     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithResolver consults fn for spoken names ahead of the configured
// aliases and the naming convention. The device registry's ResolveID
// plugs in here.
func WithResolver(fn func(name string) (string, bool)) Option {
	return func(c *Client) { c.resolver = fn }
}

// New creates a Client for the instance described by cfg.
func New(cfg Config, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	aliases := make(map[string]string, len(cfg.EntityAliases))
	for name, id := range cfg.EntityAliases {
		aliases[strings.ToLower(name)] = id
	}
	c := &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		aliases: aliases,
		http:    &http.Client{Timeout: cfg.Timeout.Std()},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// resolveEntity turns a spoken name or alias into an entity id. The
// device registry is consulted first, then configured aliases, then a
// name already containing a dot passes through, and otherwise the
// domain is prepended to the snake_cased name, so "living room lights"
// becomes "light.living_room_lights".
func (c *Client) resolveEntity(name, domain string) string {
	if c.resolver != nil {
		if id, ok := c.resolver(name); ok {
			return id
		}
	}
	if id, ok := c.aliases[strings.ToLower(name)]; ok {
		return id
	}
	if strings.Contains(name, ".") {
		return name
	}
	if domain != "" {
		return domain + "." + strings.ReplaceAll(strings.ToLower(name), " ", "_")
	}
	return name
}

// entityDomain extracts the domain from an entity id, falling back to
// the catch-all homeassistant domain for bare names.
func entityDomain(entityID string) string {
	if domain, _, ok := strings.Cut(entityID, "."); ok {
		return domain
	}
	return "homeassistant"
}

// callService invokes domain.service on an entity and reports the
// outcome as spoken text.
func (c *Client) callService(ctx context.Context, domain, service, entityID string, data map[string]any) string {
	if c.token == "" {
		return "Error: Home Assistant token not configured. Add 'token' to home_assistant config."
	}

	payload := map[string]any{"entity_id": entityID}
	for k, v := range data {
		payload[k] = v
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "Error: " + err.Error()
	}

	url := fmt.Sprintf("%s/api/services/%s/%s", c.baseURL, domain, service)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "Error: " + err.Error()
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return "Error: Home Assistant request timed out"
		}
		slog.Warn("homeassistant: service call failed", "domain", domain, "service", service, "error", err)
		return "Error: Could not connect to Home Assistant at " + c.baseURL
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		text, _ := io.ReadAll(resp.Body)
		return fmt.Sprintf("Error: Home Assistant returned %d: %s", resp.StatusCode, strings.TrimSpace(string(text)))
	}
	return fmt.Sprintf("Successfully called %s.%s on %s", domain, service, entityID)
}

type entityState struct {
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

func (c *Client) getState(ctx context.Context, entityID string) (*entityState, bool) {
	if c.token == "" {
		return nil, false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/states/"+entityID, nil)
	if err != nil {
		return nil, false
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Warn("homeassistant: state fetch failed", "entity", entityID, "error", err)
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false
	}
	var st entityState
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, false
	}
	return &st, true
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
}

// stateSummary renders an entity state for speech, appending the
// attributes worth saying out loud.
func stateSummary(entityID string, st *entityState) string {
	name := entityID
	if fn, ok := st.Attributes["friendly_name"].(string); ok && fn != "" {
		name = fn
	}
	stateText := st.State
	if stateText == "" {
		stateText = "unknown"
	}

	details := []string{name + " is " + stateText}
	if b, ok := st.Attributes["brightness"].(float64); ok {
		details = append(details, fmt.Sprintf("brightness: %d%%", int(b)*100/255))
	}
	if v, ok := st.Attributes["temperature"]; ok {
		details = append(details, "temperature: "+formatNumber(v)+"°")
	}
	if v, ok := st.Attributes["current_temperature"]; ok {
		details = append(details, "current temperature: "+formatNumber(v)+"°")
	}
	return strings.Join(details, ", ")
}

func formatNumber(v any) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

var colorNames = map[string][]int{
	"red":        {255, 0, 0},
	"green":      {0, 255, 0},
	"blue":       {0, 0, 255},
	"yellow":     {255, 255, 0},
	"orange":     {255, 165, 0},
	"purple":     {128, 0, 128},
	"pink":       {255, 192, 203},
	"white":      {255, 255, 255},
	"warm white": {255, 244, 229},
	"cool white": {255, 255, 255},
	"cyan":       {0, 255, 255},
	"magenta":    {255, 0, 255},
}

// parseColor accepts a known color name or an "r,g,b" triple and
// returns the RGB values, or the error text to speak.
func parseColor(color string) ([]int, string) {
	if rgb, ok := colorNames[strings.ToLower(strings.TrimSpace(color))]; ok {
		return rgb, ""
	}
	if strings.Contains(color, ",") {
		parts := strings.Split(color, ",")
		rgb := make([]int, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil, fmt.Sprintf("Error: Invalid RGB color format '%s'", color)
			}
			rgb = append(rgb, n)
		}
		if len(rgb) != 3 {
			return nil, "Error: RGB color must have 3 values (e.g., '255,128,0')"
		}
		return rgb, ""
	}
	return nil, fmt.Sprintf("Error: Unknown color '%s'. Use a color name or RGB format.", color)
}
