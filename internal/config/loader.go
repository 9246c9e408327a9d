package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":   {"whisper", "whisper-server", "deepgram", "mock"},
	"tts":   {"cori", "elevenlabs", "mock"},
	"llm":   {"openai", "anyllm", "ollama", "llamacpp", "mock"},
	"audio": {"portaudio", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
// Suspicious-but-workable values are logged as warnings instead.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" || tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
		if cfg.Server.ListenAddr == "" {
			slog.Warn("server.tls is configured but server.listen_addr is empty; the listener is disabled")
		}
	}

	// Assistant
	if cfg.Assistant.Wakeword == "" {
		errs = append(errs, errors.New("assistant.wakeword is required"))
	}
	for i, p := range cfg.Assistant.Patterns {
		prefix := fmt.Sprintf("assistant.patterns[%d]", i)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if p.Tool == "" {
			errs = append(errs, fmt.Errorf("%s.tool is required", prefix))
		}
		if p.Match == "" {
			errs = append(errs, fmt.Errorf("%s.match is required", prefix))
		} else if _, err := regexp.Compile(p.Match); err != nil {
			errs = append(errs, fmt.Errorf("%s.match: %w", prefix, err))
		}
	}
	for i, b := range cfg.Assistant.BoostWords {
		if b.Keyword == "" {
			errs = append(errs, fmt.Errorf("assistant.boost_words[%d].keyword is required", i))
		}
		if b.Boost <= 0 {
			slog.Warn("boost word with non-positive boost has no effect",
				"keyword", b.Keyword, "boost", b.Boost)
		}
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is negative", cfg.Audio.SampleRate))
	} else if cfg.Audio.SampleRate != 0 && cfg.Audio.SampleRate != 16000 {
		slog.Warn("audio.sample_rate differs from the 16 kHz the transcription models are tuned for",
			"sample_rate", cfg.Audio.SampleRate)
	}
	if cfg.Audio.SilenceThreshold < 0 {
		errs = append(errs, fmt.Errorf("audio.silence_threshold %g is negative", cfg.Audio.SilenceThreshold))
	}
	if min, max := cfg.Audio.MinUtterance, cfg.Audio.MaxUtterance; min > 0 && max > 0 && min > max {
		errs = append(errs, fmt.Errorf("audio.min_utterance %v exceeds audio.max_utterance %v", min, max))
	}

	// Providers
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts.name is required"))
	}
	if cfg.Assistant.ModelEnabled() {
		if cfg.Providers.LLM.Name == "" {
			errs = append(errs, errors.New("providers.llm.name is required unless assistant.use_ai is false"))
		}
	} else if cfg.Providers.LLM.Name != "" {
		slog.Warn("providers.llm is configured but assistant.use_ai is false; model stages are disabled")
	}
	validateChain("stt", cfg.Providers.STT, &errs)
	validateChain("tts", cfg.Providers.TTS, &errs)
	validateChain("llm", cfg.Providers.LLM, &errs)
	validateProviderName("audio", cfg.Providers.Audio.Name)

	// Devices
	deviceIDs := make(map[string]int, len(cfg.Devices))
	for i, d := range cfg.Devices {
		prefix := fmt.Sprintf("devices[%d]", i)
		if d.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else {
			if prev, ok := deviceIDs[d.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of devices[%d]", prefix, d.ID, prev))
			}
			deviceIDs[d.ID] = i
		}
		if d.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
	}

	// Tools
	if hue := cfg.Tools.Philips; hue != nil {
		if hue.Host == "" {
			errs = append(errs, errors.New("tools.philips.hue_hub_ip is required"))
		}
		if hue.Username == "" {
			errs = append(errs, errors.New("tools.philips.username is required"))
		}
	}
	if ha := cfg.Tools.HomeAssistant; ha != nil && ha.Token == "" {
		// The tools answer with a spoken error instead of failing startup.
		slog.Warn("tools.home_assistant.token is empty; Home Assistant calls will be rejected")
	}
	if s := cfg.Tools.Search; s != nil && s.SearxURL == "" {
		errs = append(errs, errors.New("tools.search.searxng_url is required"))
	}

	return errors.Join(errs...)
}

// validateChain checks the primary and fallback entries of one provider
// chain.
func validateChain(kind string, chain ChainConfig, errs *[]error) {
	validateProviderName(kind, chain.Name)
	for i, fb := range chain.Fallbacks {
		if fb.Name == "" {
			*errs = append(*errs, fmt.Errorf("providers.%s.fallbacks[%d].name is required", kind, i))
			continue
		}
		validateProviderName(kind, fb.Name)
	}
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
