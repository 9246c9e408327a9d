package lighting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Bridge is a minimal Philips Hue REST client covering the calls the
// lighting tools need: listing lights and groups by name and writing
// state changes.
type Bridge struct {
	base   string
	client *http.Client
}

func newBridge(cfg Config) *Bridge {
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	host := cfg.Host
	if host != "" && !hasScheme(host) {
		host = "http://" + host
	}
	return &Bridge{
		base:   fmt.Sprintf("%s/api/%s", host, cfg.Username),
		client: &http.Client{Timeout: timeout},
	}
}

func hasScheme(host string) bool {
	for i := 0; i+2 < len(host); i++ {
		if host[i] == ':' && host[i+1] == '/' && host[i+2] == '/' {
			return true
		}
	}
	return false
}

// state is one Hue state-change payload.
type state map[string]any

// Lights returns the bridge's lights as a name → id map.
func (b *Bridge) Lights(ctx context.Context) (map[string]string, error) {
	return b.namedResources(ctx, "lights")
}

// Groups returns the bridge's groups (rooms and zones) as a name → id map.
func (b *Bridge) Groups(ctx context.Context) (map[string]string, error) {
	return b.namedResources(ctx, "groups")
}

func (b *Bridge) namedResources(ctx context.Context, kind string) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.base+"/"+kind, nil)
	if err != nil {
		return nil, fmt.Errorf("lighting: build %s request: %w", kind, err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lighting: list %s: %w", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lighting: list %s: bridge returned %d", kind, resp.StatusCode)
	}

	var raw map[string]struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("lighting: decode %s: %w", kind, err)
	}

	byName := make(map[string]string, len(raw))
	for id, r := range raw {
		byName[r.Name] = id
	}
	return byName, nil
}

// SetLight writes a state change to one light.
func (b *Bridge) SetLight(ctx context.Context, id string, st state) error {
	return b.put(ctx, fmt.Sprintf("/lights/%s/state", id), st)
}

// SetGroup writes an action to one group.
func (b *Bridge) SetGroup(ctx context.Context, id string, st state) error {
	return b.put(ctx, fmt.Sprintf("/groups/%s/action", id), st)
}

func (b *Bridge) put(ctx context.Context, path string, st state) error {
	body, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("lighting: encode state: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, b.base+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("lighting: build state request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("lighting: write state: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("lighting: write state: bridge returned %d", resp.StatusCode)
	}
	return nil
}
