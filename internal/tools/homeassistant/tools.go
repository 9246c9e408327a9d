package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrWong99/auricle/internal/tools"
)

func (c *Client) turnOn(ctx context.Context, entity, brightness string) string {
	entityID := c.resolveEntity(entity, "light")
	domain := entityDomain(entityID)

	var data map[string]any
	if b := strings.TrimSpace(brightness); b != "" && domain == "light" {
		if n, err := strconv.Atoi(strings.TrimSuffix(b, "%")); err == nil {
			data = map[string]any{"brightness": n * 255 / 100}
		}
	}
	return c.callService(ctx, domain, "turn_on", entityID, data)
}

func (c *Client) turnOff(ctx context.Context, entity string) string {
	entityID := c.resolveEntity(entity, "")
	return c.callService(ctx, entityDomain(entityID), "turn_off", entityID, nil)
}

func (c *Client) toggle(ctx context.Context, entity string) string {
	entityID := c.resolveEntity(entity, "")
	return c.callService(ctx, entityDomain(entityID), "toggle", entityID, nil)
}

func (c *Client) setBrightness(ctx context.Context, entity, brightness string) string {
	entityID := c.resolveEntity(entity, "light")
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(brightness), "%"))
	if err != nil {
		return fmt.Sprintf("Error: Invalid brightness '%s'", brightness)
	}
	n = min(100, max(0, n))
	return c.callService(ctx, "light", "turn_on", entityID, map[string]any{"brightness": n * 255 / 100})
}

func (c *Client) setColor(ctx context.Context, entity, color string) string {
	entityID := c.resolveEntity(entity, "light")
	rgb, errText := parseColor(color)
	if errText != "" {
		return errText
	}
	return c.callService(ctx, "light", "turn_on", entityID, map[string]any{"rgb_color": rgb})
}

func (c *Client) entityStateText(ctx context.Context, entity string) string {
	entityID := c.resolveEntity(entity, "")
	st, ok := c.getState(ctx, entityID)
	if !ok {
		return "Error: Could not get state for " + entityID
	}
	return stateSummary(entityID, st)
}

func (c *Client) callAny(ctx context.Context, domain, service, entity, data string) string {
	entityID := c.resolveEntity(entity, "")
	var extra map[string]any
	if d := strings.TrimSpace(data); d != "" {
		if err := json.Unmarshal([]byte(d), &extra); err != nil {
			return "Error: Invalid JSON data: " + data
		}
	}
	return c.callService(ctx, domain, service, entityID, extra)
}

func (c *Client) setClimate(ctx context.Context, entity, temperature, hvacMode string) string {
	entityID := c.resolveEntity(entity, "climate")
	t, err := strconv.ParseFloat(strings.TrimSpace(temperature), 64)
	if err != nil {
		return fmt.Sprintf("Error: Invalid temperature '%s'", temperature)
	}
	data := map[string]any{"temperature": t}
	if m := strings.TrimSpace(hvacMode); m != "" {
		data["hvac_mode"] = strings.ToLower(m)
	}
	return c.callService(ctx, "climate", "set_temperature", entityID, data)
}

// simpleService resolves an entity within one domain and calls a
// single fixed service on it. Locks, covers, scripts and scenes are
// all this shape.
func (c *Client) simpleService(ctx context.Context, entity, domain, service string) string {
	entityID := c.resolveEntity(entity, domain)
	return c.callService(ctx, domain, service, entityID, nil)
}

// NewTools returns the Home Assistant tools backed by c.
func NewTools(c *Client) []tools.Tool {
	return []tools.Tool{
		{
			Name:        "turn_on",
			Aliases:     []string{"ha_turn_on", "switch_on", "turn_on_device"},
			Description: "Turn on a device, light, switch, or other Home Assistant entity",
			Run: func(ctx context.Context, args map[string]string) string {
				return c.turnOn(ctx, args["entity"], args["brightness"])
			},
		},
		{
			Name:        "turn_off",
			Aliases:     []string{"ha_turn_off", "switch_off", "turn_off_device"},
			Description: "Turn off a device, light, switch, or other Home Assistant entity",
			Run: func(ctx context.Context, args map[string]string) string {
				return c.turnOff(ctx, args["entity"])
			},
		},
		{
			Name:        "toggle",
			Aliases:     []string{"ha_toggle", "toggle_device"},
			Description: "Toggle a Home Assistant entity on or off",
			Run: func(ctx context.Context, args map[string]string) string {
				return c.toggle(ctx, args["entity"])
			},
		},
		{
			Name:        "ha_set_brightness",
			Aliases:     []string{"ha_brightness", "ha_dim_light"},
			Description: "Set the brightness of a light in Home Assistant",
			Run: func(ctx context.Context, args map[string]string) string {
				return c.setBrightness(ctx, args["entity"], args["brightness"])
			},
		},
		{
			Name:        "ha_set_color",
			Aliases:     []string{"ha_color", "change_light_color"},
			Description: "Set the color of a light in Home Assistant using color name or RGB",
			Run: func(ctx context.Context, args map[string]string) string {
				return c.setColor(ctx, args["entity"], args["color"])
			},
		},
		{
			Name:        "get_entity_state",
			Aliases:     []string{"ha_state", "check_state", "is_on"},
			Description: "Get the current state of a Home Assistant entity",
			Run: func(ctx context.Context, args map[string]string) string {
				return c.entityStateText(ctx, args["entity"])
			},
		},
		{
			Name:        "ha_service",
			Aliases:     []string{"call_service", "ha_call"},
			Description: "Call any Home Assistant service with custom data",
			Run: func(ctx context.Context, args map[string]string) string {
				return c.callAny(ctx, args["domain"], args["service"], args["entity"], args["data"])
			},
		},
		{
			Name:        "ha_set_climate",
			Aliases:     []string{"ha_climate", "ha_thermostat"},
			Description: "Set the temperature of a climate/thermostat entity in Home Assistant",
			Run: func(ctx context.Context, args map[string]string) string {
				return c.setClimate(ctx, args["entity"], args["temperature"], args["hvac_mode"])
			},
		},
		{
			Name:        "ha_lock",
			Aliases:     []string{"lock_door"},
			Description: "Lock a lock entity in Home Assistant",
			Run: func(ctx context.Context, args map[string]string) string {
				return c.simpleService(ctx, args["entity"], "lock", "lock")
			},
		},
		{
			Name:        "ha_unlock",
			Aliases:     []string{"unlock_door"},
			Description: "Unlock a lock entity in Home Assistant",
			Run: func(ctx context.Context, args map[string]string) string {
				return c.simpleService(ctx, args["entity"], "lock", "unlock")
			},
		},
		{
			Name:        "ha_open_cover",
			Aliases:     []string{"ha_open", "open_blind", "open_garage"},
			Description: "Open a cover/blind/garage in Home Assistant",
			Run: func(ctx context.Context, args map[string]string) string {
				return c.simpleService(ctx, args["entity"], "cover", "open_cover")
			},
		},
		{
			Name:        "ha_close_cover",
			Aliases:     []string{"ha_close", "close_blind", "close_garage"},
			Description: "Close a cover/blind/garage in Home Assistant",
			Run: func(ctx context.Context, args map[string]string) string {
				return c.simpleService(ctx, args["entity"], "cover", "close_cover")
			},
		},
		{
			Name:        "ha_run_script",
			Aliases:     []string{"ha_script", "run_automation"},
			Description: "Run a Home Assistant script or automation",
			Run: func(ctx context.Context, args map[string]string) string {
				return c.simpleService(ctx, args["script_name"], "script", "turn_on")
			},
		},
		{
			Name:        "ha_activate_scene",
			Aliases:     []string{"ha_scene", "set_scene"},
			Description: "Activate a Home Assistant scene",
			Run: func(ctx context.Context, args map[string]string) string {
				return c.simpleService(ctx, args["scene_name"], "scene", "turn_on")
			},
		},
	}
}
