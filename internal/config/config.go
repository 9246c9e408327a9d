// Package config provides the configuration schema, loader, and provider
// registry for the auricle voice assistant.
package config

import (
	"log/slog"

	"github.com/MrWong99/auricle/internal/timeutil"
	"github.com/MrWong99/auricle/internal/tools/homeassistant"
	"github.com/MrWong99/auricle/internal/tools/lighting"
	"github.com/MrWong99/auricle/internal/tools/weather"
	"github.com/MrWong99/auricle/internal/tools/websearch"
)

// LogLevel controls log verbosity for the assistant.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to its slog level. Unset or unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for the assistant.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Assistant  AssistantConfig  `yaml:"assistant"`
	Audio      AudioConfig      `yaml:"audio"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Devices    []DeviceConfig   `yaml:"devices"`
	Tools      ToolsConfig      `yaml:"tools"`
	Resilience ResilienceConfig `yaml:"resilience"`
}

// ServerConfig holds the optional HTTP surface and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address serving /healthz, /readyz, /metrics,
	// and the /ctl control socket (e.g., ":8590"). Empty disables the
	// listener entirely; the voice loop does not need it.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the listener. When nil, it runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// AssistantConfig holds the conversational settings.
type AssistantConfig struct {
	// Wakeword is the phrase a transcript must contain before the
	// assistant reacts. Matched case-insensitively. Hot-reloadable.
	Wakeword string `yaml:"wakeword"`

	// UseAI gates the language-model stages. When false only the fast-path
	// intents answer; anything else gets the canned fallback line.
	// Unset means true.
	UseAI *bool `yaml:"use_ai"`

	// Patterns appends fast-path intent patterns to the built-in set.
	// Hot-reloadable.
	Patterns []PatternConfig `yaml:"patterns"`

	// BoostWords biases transcription toward extra vocabulary, on top of
	// the wakeword and device names which are boosted automatically.
	BoostWords []BoostWord `yaml:"boost_words"`
}

// ModelEnabled reports whether the language-model stages are active.
func (a AssistantConfig) ModelEnabled() bool {
	return a.UseAI == nil || *a.UseAI
}

// PatternConfig declares one fast-path intent pattern.
type PatternConfig struct {
	// Name identifies the pattern in logs.
	Name string `yaml:"name"`

	// Match is the regular expression tried against the text spoken after
	// the wakeword. Capture groups are available to Args values as $1..$9.
	Match string `yaml:"match"`

	// Tool is the registry tool invoked on a match.
	Tool string `yaml:"tool"`

	// Args are the arguments passed to the tool.
	Args map[string]string `yaml:"args"`
}

// BoostWord biases the transcription vocabulary toward one keyword.
type BoostWord struct {
	Keyword string  `yaml:"keyword"`
	Boost   float64 `yaml:"boost"`
}

// AudioConfig holds capture and segmentation settings. Zero values fall
// back to the segmenter defaults (16 kHz, 200 ms frames, 1 s silence,
// 1.5 s minimum, 10 s maximum).
type AudioConfig struct {
	// InputDevice selects the capture device by case-insensitive substring
	// match against device names. Empty uses the host default.
	InputDevice string `yaml:"input_device"`

	// SampleRate of capture in Hz.
	SampleRate int `yaml:"sample_rate"`

	// FrameInterval is the capture poll cadence (e.g., "200ms").
	FrameInterval timeutil.Duration `yaml:"frame_interval"`

	// SilenceAfter is how much trailing silence closes an utterance.
	SilenceAfter timeutil.Duration `yaml:"silence_after"`

	// MinUtterance discards anything shorter as noise.
	MinUtterance timeutil.Duration `yaml:"min_utterance"`

	// MaxUtterance force-closes an utterance even while speech is ongoing.
	MaxUtterance timeutil.Duration `yaml:"max_utterance"`

	// SilenceThreshold is the RMS level below which a frame counts as
	// silent.
	SilenceThreshold float64 `yaml:"silence_threshold"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each entry selects a named factory registered in the
// [Registry].
type ProvidersConfig struct {
	STT ChainConfig `yaml:"stt"`
	TTS ChainConfig `yaml:"tts"`
	LLM ChainConfig `yaml:"llm"`

	// Audio selects the host audio platform. Empty means "portaudio".
	Audio ProviderEntry `yaml:"audio"`
}

// ChainConfig is a primary provider plus ordered fallbacks. Each entry in
// the chain gets its own circuit breaker.
type ChainConfig struct {
	ProviderEntry `yaml:",inline"`

	// Fallbacks are tried in order when the primary fails.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the
// [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "whisper-server", "cori", "anyllm").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "gpt-4o-mini", "qwen3:4b").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above. Values may be strings, numbers, booleans,
	// or nested maps.
	Options map[string]any `yaml:"options"`
}

// OptionString returns the string option under key, or fallback when the
// key is absent or not a string.
func (e ProviderEntry) OptionString(key, fallback string) string {
	if v, ok := e.Options[key].(string); ok {
		return v
	}
	return fallback
}

// OptionFloat returns the numeric option under key, or fallback when the
// key is absent or not a number. YAML integers and floats both qualify.
func (e ProviderEntry) OptionFloat(key string, fallback float64) float64 {
	switch v := e.Options[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}

// OptionBool returns the boolean option under key, or fallback when the
// key is absent or not a boolean.
func (e ProviderEntry) OptionBool(key string, fallback bool) bool {
	if v, ok := e.Options[key].(bool); ok {
		return v
	}
	return fallback
}

// DeviceConfig declares one controllable device or area for spoken-name
// resolution. Hot-reloadable.
type DeviceConfig struct {
	// ID is the backend identifier, e.g. a Home Assistant entity id or a
	// hue group name.
	ID string `yaml:"id"`

	// Name is the canonical spoken name.
	Name string `yaml:"name"`

	// Kind groups the device: light, group, switch, climate, lock, cover,
	// scene, script.
	Kind string `yaml:"kind"`

	// Aliases are alternative spoken names resolving to the same device.
	Aliases []string `yaml:"aliases"`

	// Area is the room the device belongs to.
	Area string `yaml:"area"`
}

// ToolsConfig enables and configures the integrations backing the tool
// registry. A nil section disables that integration entirely, matching
// how commenting out a block behaves.
type ToolsConfig struct {
	// Philips enables the hue bridge tools when present.
	Philips *lighting.Config `yaml:"philips"`

	// HomeAssistant enables the Home Assistant tools when present.
	HomeAssistant *homeassistant.Config `yaml:"home_assistant"`

	// Search enables web search when present.
	Search *websearch.Config `yaml:"search"`

	// Weather configures the forecast source. The clock and weather tools
	// are always enabled.
	Weather weather.Config `yaml:"weather"`

	// Timers configures countdown timers, which are always enabled.
	Timers TimersConfig `yaml:"timers"`
}

// TimersConfig holds countdown timer settings.
type TimersConfig struct {
	// AlarmSound is a WAV file played three times when a timer expires.
	// Empty uses a generated tone.
	AlarmSound string `yaml:"alarm_sound"`
}

// ResilienceConfig tunes the per-provider circuit breakers. Zero values
// fall back to the breaker defaults (5 failures, 30s cooldown, 3 probes).
type ResilienceConfig struct {
	// MaxFailures is how many consecutive failures open a breaker.
	MaxFailures int `yaml:"max_failures"`

	// Cooldown is how long an open breaker waits before probing again.
	Cooldown timeutil.Duration `yaml:"cooldown"`

	// ProbeBudget is the number of half-open probe calls.
	ProbeBudget int `yaml:"probe_budget"`
}
