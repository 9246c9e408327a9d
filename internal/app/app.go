// Package app wires all auricle subsystems into a running assistant.
//
// The App struct owns the full lifecycle: New builds and connects every
// subsystem from the config, Run drives the voice pipeline until the
// context ends, and Shutdown tears the pieces down in order.
//
// Providers come in from main.go via the config registry, already wrapped
// in their fallback chains. Everything else — device registry, intent
// matcher, capture, segmentation, playback, tools, assistant, control
// socket — is constructed here. Functional options add event listeners
// and readiness checks without widening the constructor.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/auricle/internal/assistant"
	"github.com/MrWong99/auricle/internal/config"
	"github.com/MrWong99/auricle/internal/ctl"
	"github.com/MrWong99/auricle/internal/device"
	"github.com/MrWong99/auricle/internal/health"
	"github.com/MrWong99/auricle/internal/intent"
	"github.com/MrWong99/auricle/internal/observe"
	"github.com/MrWong99/auricle/internal/playback"
	"github.com/MrWong99/auricle/internal/segment"
	"github.com/MrWong99/auricle/internal/tools"
	"github.com/MrWong99/auricle/internal/tools/clock"
	"github.com/MrWong99/auricle/internal/tools/homeassistant"
	"github.com/MrWong99/auricle/internal/tools/lighting"
	"github.com/MrWong99/auricle/internal/tools/timers"
	"github.com/MrWong99/auricle/internal/tools/weather"
	"github.com/MrWong99/auricle/internal/tools/websearch"
	"github.com/MrWong99/auricle/internal/transcript"
	"github.com/MrWong99/auricle/internal/transcript/phonetic"
	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/MrWong99/auricle/pkg/provider/llm"
	"github.com/MrWong99/auricle/pkg/provider/stt"
	"github.com/MrWong99/auricle/pkg/provider/tts"
)

// listenerDrain bounds how long the HTTP listener may take to finish
// in-flight requests once the run context ends.
const listenerDrain = 5 * time.Second

// Providers holds one interface value per provider slot. Audio, STT and
// TTS are required; a nil LLM disables the model stages. Populated by
// main.go via the config registry.
type Providers struct {
	STT   stt.Provider
	TTS   tts.Provider
	LLM   llm.Provider
	Audio audio.Platform
}

// App owns all subsystem lifetimes and orchestrates the voice pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	devices   *device.Registry
	matcher   *intent.Matcher
	buffer    *audio.FrameBuffer
	gate      *audio.Gate
	capture   *segment.Capture
	segmenter *segment.Segmenter
	speaker   *playback.Speaker
	timers    *timers.Manager
	registry  *tools.Registry
	assistant *assistant.Assistant
	ctl       *ctl.Server
	server    *http.Server

	checks    []health.Checker
	listeners []func(assistant.Event)

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithChecks adds readiness checkers to the /readyz endpoint. The provider
// fallback chains plug in their breaker checks here.
func WithChecks(checks ...health.Checker) Option {
	return func(a *App) { a.checks = append(a.checks, checks...) }
}

// WithEvents registers an extra listener for assistant phase events,
// alongside the control socket stream. The listener runs on the
// interaction goroutine and must not block.
func WithEvents(fn func(assistant.Event)) Option {
	return func(a *App) { a.listeners = append(a.listeners, fn) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers
// struct comes from main.go; Audio, STT and TTS must be set, LLM may be
// nil when the model stages are disabled.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("app: context already cancelled: %w", err)
	}
	if providers == nil || providers.Audio == nil || providers.STT == nil || providers.TTS == nil {
		return nil, errors.New("app: audio, stt and tts providers are required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Device registry ───────────────────────────────────────────────
	if err := a.initDevices(); err != nil {
		return nil, fmt.Errorf("app: init devices: %w", err)
	}

	// ── 2. Fast-path intents ─────────────────────────────────────────────
	if err := a.initIntents(); err != nil {
		return nil, fmt.Errorf("app: init intents: %w", err)
	}

	// ── 3. Capture and segmentation ──────────────────────────────────────
	if err := a.initPipeline(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	// ── 4. Playback ──────────────────────────────────────────────────────
	a.speaker = playback.New(providers.Audio, providers.TTS)

	// ── 5. Tool registry ─────────────────────────────────────────────────
	a.initTools()

	// ── 6. Assistant ─────────────────────────────────────────────────────
	if err := a.initAssistant(); err != nil {
		return nil, fmt.Errorf("app: init assistant: %w", err)
	}

	// ── 7. Control and health listener ───────────────────────────────────
	a.initServer()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initDevices builds the spoken-name registry from the configured devices.
func (a *App) initDevices() error {
	devices, err := device.NewRegistry(configDevices(a.cfg.Devices))
	if err != nil {
		return err
	}
	a.devices = devices
	if a.devices.Len() > 0 {
		slog.Info("app: device registry loaded", "devices", a.devices.Len())
	}
	return nil
}

// initIntents builds the fast-path matcher: built-in patterns plus the
// custom ones declared in config.
func (a *App) initIntents() error {
	a.matcher = intent.NewMatcher()
	patterns, err := compilePatterns(a.cfg.Assistant.Patterns)
	if err != nil {
		return err
	}
	a.matcher.SetCustom(patterns)
	if len(patterns) > 0 {
		slog.Info("app: custom intent patterns compiled", "count", len(patterns))
	}
	return nil
}

// initPipeline opens the capture stream and prepares the segmenter. The
// gate starts open; the assistant closes it while thinking and speaking.
func (a *App) initPipeline() error {
	a.buffer = audio.NewFrameBuffer()
	a.gate = audio.NewGate(true)

	segCfg := segmentConfig(a.cfg.Audio)
	capture, err := segment.OpenCapture(a.providers.Audio, segCfg, a.cfg.Audio.InputDevice, a.buffer, a.gate)
	if err != nil {
		return err
	}
	a.capture = capture
	a.closers = append(a.closers, capture.Close)

	a.segmenter = segment.New(segCfg, a.buffer, a.gate)
	return nil
}

// initTools assembles the tool registry. Clock, weather and timers are
// always on; the hue, Home Assistant and web search integrations register
// only when their config section is present.
func (a *App) initTools() {
	a.timers = timers.NewManager(a.alarmRing())
	a.closers = append(a.closers, func() error {
		a.timers.Stop()
		return nil
	})

	ts := clock.Tools()
	ts = append(ts, weather.NewTools(weather.New(a.cfg.Tools.Weather))...)
	ts = append(ts, timers.NewTools(a.timers)...)

	if hue := a.cfg.Tools.Philips; hue != nil {
		svc := lighting.New(*hue, lighting.WithResolver(a.devices.ResolveID))
		ts = append(ts, lighting.NewTools(svc)...)
		slog.Info("app: hue tools enabled", "host", hue.Host)
	}
	if ha := a.cfg.Tools.HomeAssistant; ha != nil {
		client := homeassistant.New(*ha, homeassistant.WithResolver(a.devices.ResolveID))
		ts = append(ts, homeassistant.NewTools(client)...)
		slog.Info("app: home assistant tools enabled", "url", ha.URL)
	}
	if search := a.cfg.Tools.Search; search != nil {
		ts = append(ts, websearch.NewTools(websearch.New(*search))...)
		slog.Info("app: web search tools enabled")
	}

	a.registry = tools.NewRegistry(ts...)
}

// alarmRing returns the expiry callback for countdown timers: one play of
// the configured alarm sound, or of the generated tone when no sound is
// configured or the file is unusable. The timer manager handles the
// repeats and pauses.
func (a *App) alarmRing() func(context.Context) {
	samples, rate := timers.FallbackTone()
	if path := a.cfg.Tools.Timers.AlarmSound; path != "" {
		loaded, loadedRate, err := timers.LoadAlarm(path)
		if err != nil {
			slog.Warn("app: alarm sound unusable, using generated tone", "path", path, "error", err)
		} else {
			samples, rate = loaded, loadedRate
		}
	}
	return func(ctx context.Context) {
		if err := a.speaker.Play(ctx, samples, rate); err != nil {
			slog.Error("app: alarm playback failed", "error", err)
		}
	}
}

// initAssistant builds the conversation loop. The phonetic corrector is
// always registered: it pulls device names per call, so devices added by
// a config reload start correcting without a rebuild.
func (a *App) initAssistant() error {
	opts := []assistant.Option{
		assistant.WithNotifier(a.publish),
		assistant.WithCorrector(transcript.NewCorrector(phonetic.New(), a.devices.Names)),
	}
	switch {
	case !a.cfg.Assistant.ModelEnabled():
		slog.Info("app: model stages disabled by config")
	case a.providers.LLM == nil:
		slog.Warn("app: model stages disabled: no generator provided")
	default:
		opts = append(opts, assistant.WithGenerator(a.providers.LLM))
	}

	asst, err := assistant.New(assistant.Config{
		Wakeword: a.cfg.Assistant.Wakeword,
		Matcher:  a.matcher,
		Registry: a.registry,
		Speaker:  a.speaker,
		Gate:     a.gate,
	}, opts...)
	if err != nil {
		return err
	}
	a.assistant = asst
	return nil
}

// initServer prepares the HTTP surface: health probes and the Prometheus
// scrape behind the observability middleware, and the control socket on
// the bare mux. No listener is created when listen_addr is empty.
func (a *App) initServer() {
	if a.cfg.Server.ListenAddr == "" {
		return
	}

	a.ctl = ctl.NewServer(a.assistant, a.gate)

	probes := http.NewServeMux()
	health.New(a.checks...).Register(probes)
	probes.Handle("GET /metrics", promhttp.Handler())

	mux := http.NewServeMux()
	// The websocket upgrade hijacks the connection, which the middleware's
	// status-recording writer cannot pass through. The control socket logs
	// its own connects instead.
	mux.Handle("GET /ctl", a.ctl)
	mux.Handle("/", observe.Middleware(observe.DefaultMetrics())(probes))

	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// publish forwards a phase event to the control socket and every extra
// listener. Runs on the interaction goroutine.
func (a *App) publish(e assistant.Event) {
	if a.ctl != nil {
		a.ctl.Notify(e)
	}
	for _, fn := range a.listeners {
		fn(e)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the capture stream and blocks while the pipeline goroutines
// work: the segmenter cutting utterances, the transcription worker, the
// assistant loop, and the optional HTTP listener. It returns the first
// goroutine error; on ordinary shutdown that is the context's error.
func (a *App) Run(ctx context.Context) error {
	transcripts, err := a.providers.STT.Transcribe(ctx, a.segmenter.Utterances())
	if err != nil {
		return fmt.Errorf("app: open transcription stream: %w", err)
	}
	if err := a.capture.Start(); err != nil {
		return fmt.Errorf("app: start capture: %w", err)
	}

	slog.Info("app: running",
		"wakeword", a.assistant.Wakeword(),
		"tools", a.registry.Len(),
		"model", a.assistant.ModelEnabled(),
		"devices", a.devices.Len(),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.segmenter.Run(ctx)
	})
	g.Go(func() error {
		return a.assistant.Run(ctx, transcripts)
	})
	if a.server != nil {
		g.Go(func() error {
			return a.serve(ctx)
		})
	}
	return g.Wait()
}

// serve runs the HTTP listener until ctx ends, then drains it. The drain
// gets a fresh deadline because ctx is already cancelled by then.
func (a *App) serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if tls := a.cfg.Server.TLS; tls != nil {
			errCh <- a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- a.server.ListenAndServe()
	}()
	slog.Info("app: http listener started", "addr", a.cfg.Server.ListenAddr, "tls", a.cfg.Server.TLS != nil)

	select {
	case <-ctx.Done():
		drainCtx, cancel := context.WithTimeout(context.Background(), listenerDrain)
		defer cancel()
		if err := a.server.Shutdown(drainCtx); err != nil {
			a.server.Close()
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: http listener: %w", err)
	}
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable fields of next after the config
// watcher reports a change: wakeword, custom intent patterns, and the
// device registry. The log level is main's concern; everything else needs
// a restart and is logged as such.
func (a *App) ApplyConfig(d config.ConfigDiff, next *config.Config) {
	if d.WakewordChanged {
		a.assistant.SetWakeword(d.NewWakeword)
		slog.Info("app: wakeword updated", "wakeword", a.assistant.Wakeword())
	}
	if d.PatternsChanged {
		patterns, err := compilePatterns(next.Assistant.Patterns)
		if err != nil {
			slog.Warn("app: keeping previous intent patterns", "error", err)
		} else {
			a.matcher.SetCustom(patterns)
			slog.Info("app: intent patterns updated", "count", len(patterns))
		}
	}
	if d.DevicesChanged {
		if err := a.devices.Replace(configDevices(next.Devices)); err != nil {
			slog.Warn("app: keeping previous device registry", "error", err)
		} else {
			slog.Info("app: device registry updated", "devices", a.devices.Len())
		}
	}
	if d.Other {
		slog.Warn("app: config changes outside the reloadable set need a restart")
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down the subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, the remaining ones
// are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("app: shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("app: closer failed", "index", i, "error", err)
			}
		}
		slog.Info("app: shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// configDevices maps the config device blocks onto registry devices.
func configDevices(specs []config.DeviceConfig) []device.Device {
	out := make([]device.Device, 0, len(specs))
	for _, d := range specs {
		out = append(out, device.Device{
			ID:      d.ID,
			Name:    d.Name,
			Kind:    device.Kind(d.Kind),
			Aliases: d.Aliases,
			Area:    d.Area,
		})
	}
	return out
}

// compilePatterns builds the custom fast-path patterns declared in config.
// All compile failures are reported together.
func compilePatterns(specs []config.PatternConfig) ([]intent.Pattern, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	patterns := make([]intent.Pattern, 0, len(specs))
	var errs []error
	for _, p := range specs {
		pat, err := intent.CompilePattern(p.Name, p.Match, p.Tool, p.Args)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		patterns = append(patterns, pat)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return patterns, nil
}

// segmentConfig maps the audio config block onto segmenter settings. Zero
// values stay zero; the segmenter substitutes its defaults.
func segmentConfig(cfg config.AudioConfig) segment.Config {
	return segment.Config{
		SampleRate:       cfg.SampleRate,
		FrameInterval:    cfg.FrameInterval.Std(),
		SilenceAfter:     cfg.SilenceAfter.Std(),
		MinUtterance:     cfg.MinUtterance.Std(),
		MaxUtterance:     cfg.MaxUtterance.Std(),
		SilenceThreshold: cfg.SilenceThreshold,
	}
}
