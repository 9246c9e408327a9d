// Command auricle is a local voice assistant daemon: it listens on the
// microphone, segments speech, and answers through the configured speech
// and model providers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/auricle/internal/app"
	"github.com/MrWong99/auricle/internal/config"
	"github.com/MrWong99/auricle/internal/health"
	"github.com/MrWong99/auricle/internal/observe"
	"github.com/MrWong99/auricle/internal/resilience"
	"github.com/MrWong99/auricle/pkg/audio"
	audiomock "github.com/MrWong99/auricle/pkg/audio/mock"
	"github.com/MrWong99/auricle/pkg/audio/portaudio"
	"github.com/MrWong99/auricle/pkg/provider/llm"
	"github.com/MrWong99/auricle/pkg/provider/llm/anyllm"
	llmmock "github.com/MrWong99/auricle/pkg/provider/llm/mock"
	"github.com/MrWong99/auricle/pkg/provider/llm/openai"
	"github.com/MrWong99/auricle/pkg/provider/stt"
	"github.com/MrWong99/auricle/pkg/provider/stt/deepgram"
	sttmock "github.com/MrWong99/auricle/pkg/provider/stt/mock"
	"github.com/MrWong99/auricle/pkg/provider/stt/whisper"
	"github.com/MrWong99/auricle/pkg/provider/tts"
	"github.com/MrWong99/auricle/pkg/provider/tts/cori"
	"github.com/MrWong99/auricle/pkg/provider/tts/elevenlabs"
	ttsmock "github.com/MrWong99/auricle/pkg/provider/tts/mock"
)

// version is stamped at release build time via -ldflags "-X main.version=…".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	logLevel := flag.String("log-level", "", "override the configured log level (debug, info, warn, error)")
	listDevices := flag.Bool("list-devices", false, "list the audio devices visible to the host, then exit")
	flag.Parse()

	if *listDevices {
		return listAudioDevices()
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "auricle: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "auricle: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so config hot reload can adjust it while
	// the daemon runs. The -log-level flag pins it for the whole run.
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	if *logLevel != "" {
		flagLevel := config.LogLevel(*logLevel)
		if !flagLevel.IsValid() {
			fmt.Fprintf(os.Stderr, "auricle: invalid -log-level %q; valid values: debug, info, warn, error\n", *logLevel)
			return 2
		}
		level.Set(flagLevel.Level())
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("auricle starting",
		"version", version,
		"config", *configPath,
		"wakeword", cfg.Assistant.Wakeword,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, keywordBoosts(cfg))

	providers, checks, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, app.WithChecks(checks...))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, next *config.Config) {
		d := config.Diff(old, next)
		if !d.Changed() {
			return
		}
		if d.LogLevelChanged && *logLevel == "" {
			level.Set(next.Server.LogLevel.Level())
			slog.Info("log level updated", "level", next.Server.LogLevel)
		}
		application.ApplyConfig(d, next)
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("assistant ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// keywordBoosts collects the vocabulary hints forwarded to transcription
// backends: explicit boost words first so they win deduplication, then the
// wakeword, then the configured device names and aliases.
func keywordBoosts(cfg *config.Config) []stt.KeywordBoost {
	// Deepgram reads the weight on its intensifier scale; whisper builds a
	// bias prompt and ignores it.
	const (
		wakewordBoost = 5
		deviceBoost   = 3
	)

	seen := make(map[string]bool)
	var out []stt.KeywordBoost
	add := func(word string, boost float64) {
		w := strings.ToLower(strings.TrimSpace(word))
		if w == "" || seen[w] {
			return
		}
		seen[w] = true
		out = append(out, stt.KeywordBoost{Keyword: w, Boost: boost})
	}

	for _, b := range cfg.Assistant.BoostWords {
		add(b.Keyword, b.Boost)
	}
	add(cfg.Assistant.Wakeword, wakewordBoost)
	for _, d := range cfg.Devices {
		add(d.Name, deviceBoost)
		for _, alias := range d.Aliases {
			add(alias, deviceBoost)
		}
	}
	return out
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// The boosts are baked into every transcription factory so each backend
// recognises the wakeword and device names.
func registerBuiltinProviders(reg *config.Registry, boosts []stt.KeywordBoost) {
	// ── STT ───────────────────────────────────────────────────────────────────

	// whisper runs the model in-process through the CGO bindings.
	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.OptionString("model_path", "")
		}
		opts := []whisper.NativeOption{whisper.WithNativeKeywords(boosts)}
		if lang := entry.OptionString("language", ""); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// whisper-server talks to an external whisper.cpp server over HTTP.
	reg.RegisterSTT("whisper-server", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []whisper.Option{whisper.WithKeywords(boosts)}
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.OptionString("language", ""); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []deepgram.Option{deepgram.WithKeywords(boosts)}
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := entry.OptionString("language", ""); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("cori", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []cori.Option
		if voice := entry.OptionString("voice", ""); voice != "" {
			opts = append(opts, cori.WithVoice(voice))
		}
		if lang := entry.OptionString("language", ""); lang != "" {
			opts = append(opts, cori.WithLanguage(lang))
		}
		if speed := entry.OptionFloat("speed", 0); speed > 0 {
			opts = append(opts, cori.WithSpeed(speed))
		}
		return cori.New(entry.BaseURL, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if voice := entry.OptionString("voice", ""); voice != "" {
			opts = append(opts, elevenlabs.WithVoice(voice))
		}
		if format := entry.OptionString("output_format", ""); format != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(format))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// anyllm selects its backend via options.provider; ollama and llamacpp
	// are shortcuts for the two common local servers.
	reg.RegisterLLM("anyllm", func(entry config.ProviderEntry) (llm.Provider, error) {
		backend := entry.OptionString("provider", "ollama")
		return anyllm.New(backend, entry.Model, anyllmOptions(entry)...)
	})
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		return anyllm.NewOllama(entry.Model, anyllmOptions(entry)...)
	})
	reg.RegisterLLM("llamacpp", func(entry config.ProviderEntry) (llm.Provider, error) {
		return anyllm.NewLlamaCpp(entry.Model, anyllmOptions(entry)...)
	})

	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("portaudio", func(config.ProviderEntry) (audio.Platform, error) {
		return portaudio.New()
	})

	// Mocks let a config run with no sound hardware or live backends attached.
	reg.RegisterSTT("mock", func(config.ProviderEntry) (stt.Provider, error) {
		return &sttmock.Provider{}, nil
	})
	reg.RegisterTTS("mock", func(config.ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{}, nil
	})
	reg.RegisterLLM("mock", func(config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})
	reg.RegisterAudio("mock", func(config.ProviderEntry) (audio.Platform, error) {
		return &audiomock.Platform{}, nil
	})

	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// anyllmOptions maps the shared provider entry fields onto any-llm options.
func anyllmOptions(entry config.ProviderEntry) []anyllmlib.Option {
	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	return opts
}

// buildProviders instantiates the configured provider chains and returns
// them alongside the readiness checks for their circuit breakers. Every
// chain is wrapped in a fallback group even with zero fallbacks, so a
// single flaky primary still gets breaker protection.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, []health.Checker, error) {
	fallbackCfg := resilience.FallbackConfig{
		Breaker: resilience.BreakerConfig{
			MaxFailures: cfg.Resilience.MaxFailures,
			Cooldown:    cfg.Resilience.Cooldown.Std(),
			ProbeBudget: cfg.Resilience.ProbeBudget,
		},
	}

	ps := &app.Providers{}
	var checks []health.Checker

	// ── STT chain ─────────────────────────────────────────────────────────────
	primarySTT, err := reg.CreateSTT(cfg.Providers.STT.ProviderEntry)
	if err != nil {
		return nil, nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	sttChain := resilience.NewSTTFallback(primarySTT, cfg.Providers.STT.Name, fallbackCfg)
	for _, fb := range cfg.Providers.STT.Fallbacks {
		p, err := reg.CreateSTT(fb)
		if err != nil {
			return nil, nil, fmt.Errorf("create stt fallback %q: %w", fb.Name, err)
		}
		sttChain.AddFallback(fb.Name, p)
	}
	ps.STT = sttChain
	checks = append(checks, health.BreakerCheck("stt", sttChain))
	if cfg.Providers.STT.Name == "whisper-server" && cfg.Providers.STT.BaseURL != "" {
		checks = append(checks, health.PingCheck("whisper-server", cfg.Providers.STT.BaseURL+"/health", nil))
	}
	slog.Info("provider chain ready", "kind", "stt",
		"primary", cfg.Providers.STT.Name, "fallbacks", len(cfg.Providers.STT.Fallbacks))

	// ── TTS chain ─────────────────────────────────────────────────────────────
	primaryTTS, err := reg.CreateTTS(cfg.Providers.TTS.ProviderEntry)
	if err != nil {
		return nil, nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	ttsChain := resilience.NewTTSFallback(primaryTTS, cfg.Providers.TTS.Name, fallbackCfg)
	for _, fb := range cfg.Providers.TTS.Fallbacks {
		p, err := reg.CreateTTS(fb)
		if err != nil {
			return nil, nil, fmt.Errorf("create tts fallback %q: %w", fb.Name, err)
		}
		ttsChain.AddFallback(fb.Name, p)
	}
	ps.TTS = ttsChain
	checks = append(checks, health.BreakerCheck("tts", ttsChain))
	slog.Info("provider chain ready", "kind", "tts",
		"primary", cfg.Providers.TTS.Name, "fallbacks", len(cfg.Providers.TTS.Fallbacks))

	// ── LLM chain ─────────────────────────────────────────────────────────────
	// Skipped entirely when the model stages are off; the assistant then
	// serves fast-path intents only.
	if cfg.Assistant.ModelEnabled() && cfg.Providers.LLM.Name != "" {
		primaryLLM, err := reg.CreateLLM(cfg.Providers.LLM.ProviderEntry)
		if err != nil {
			return nil, nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
		}
		llmChain := resilience.NewLLMFallback(primaryLLM, cfg.Providers.LLM.Name, fallbackCfg)
		for _, fb := range cfg.Providers.LLM.Fallbacks {
			p, err := reg.CreateLLM(fb)
			if err != nil {
				return nil, nil, fmt.Errorf("create llm fallback %q: %w", fb.Name, err)
			}
			llmChain.AddFallback(fb.Name, p)
		}
		ps.LLM = llmChain
		checks = append(checks, health.BreakerCheck("llm", llmChain))
		slog.Info("provider chain ready", "kind", "llm",
			"primary", cfg.Providers.LLM.Name, "fallbacks", len(cfg.Providers.LLM.Fallbacks))
	}

	// ── Audio platform ────────────────────────────────────────────────────────
	audioEntry := cfg.Providers.Audio
	if audioEntry.Name == "" {
		audioEntry.Name = "portaudio"
	}
	platform, err := reg.CreateAudio(audioEntry)
	if err != nil {
		return nil, nil, fmt.Errorf("create audio platform %q: %w", audioEntry.Name, err)
	}
	ps.Audio = platform
	slog.Info("audio platform ready", "name", audioEntry.Name)

	return ps, checks, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔════════════════════════════════════════╗")
	fmt.Println("║       auricle — startup summary        ║")
	fmt.Println("╠════════════════════════════════════════╣")
	printRow("Version", version)
	printRow("Wakeword", cfg.Assistant.Wakeword)
	printRow("STT", providerValue(cfg.Providers.STT.Name, cfg.Providers.STT.Model))
	printRow("TTS", providerValue(cfg.Providers.TTS.Name, cfg.Providers.TTS.Model))
	if cfg.Assistant.ModelEnabled() {
		printRow("LLM", providerValue(cfg.Providers.LLM.Name, cfg.Providers.LLM.Model))
	} else {
		printRow("LLM", "(disabled)")
	}
	audioName := cfg.Providers.Audio.Name
	if audioName == "" {
		audioName = "portaudio"
	}
	printRow("Audio", audioName)
	printRow("Devices", strconv.Itoa(len(cfg.Devices)))
	printRow("Philips Hue", enabledMark(cfg.Tools.Philips != nil))
	printRow("Home Assistant", enabledMark(cfg.Tools.HomeAssistant != nil))
	printRow("Web search", enabledMark(cfg.Tools.Search != nil))
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	} else {
		printRow("Listen addr", "(disabled)")
	}
	fmt.Println("╚════════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-15s : %-19s ║\n", label, value)
}

func providerValue(name, model string) string {
	if name == "" {
		return "(not configured)"
	}
	if model != "" {
		return name + " / " + model
	}
	return name
}

func enabledMark(on bool) string {
	if on {
		return "enabled"
	}
	return "(disabled)"
}

// ── Device listing ────────────────────────────────────────────────────────────

// listAudioDevices prints the sound devices PortAudio can see, for picking
// an audio.input_device value.
func listAudioDevices() int {
	platform, err := portaudio.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "auricle: %v\n", err)
		return 1
	}
	defer platform.Close()

	devices, err := platform.Devices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "auricle: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Println("no audio devices found")
		return 0
	}

	for _, d := range devices {
		var marks []string
		if d.MaxInputChannels > 0 {
			marks = append(marks, "in")
		}
		if d.MaxOutputChannels > 0 {
			marks = append(marks, "out")
		}
		if d.DefaultInput {
			marks = append(marks, "default-input")
		}
		if d.DefaultOutput {
			marks = append(marks, "default-output")
		}
		fmt.Printf("%3d  %-45s %6.0f Hz  %s\n", d.ID, d.Name, d.DefaultSampleRate, strings.Join(marks, ", "))
	}
	return 0
}
