// Package assistant implements the interaction loop of the voice daemon:
// wakeword detection on incoming transcripts, intent resolution through the
// fast-path matcher and the model, tool dispatch, and spoken responses.
//
// The loop is single-threaded — one transcript is carried through its whole
// cycle, including playback, before the next is considered. The capture gate
// closes for the duration of a cycle and re-opens on every exit path, so the
// microphone never hears the assistant's own voice and a failed cycle can
// never leave the assistant deaf.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/auricle/internal/intent"
	"github.com/MrWong99/auricle/internal/observe"
	"github.com/MrWong99/auricle/internal/tools"
	"github.com/MrWong99/auricle/internal/transcript"
	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/MrWong99/auricle/pkg/provider/llm"
	"github.com/MrWong99/auricle/pkg/provider/stt"
)

// userQuestionMarker flags a tool result that is not an answer but composed
// context for the chat model; web search results end with it.
const userQuestionMarker = "User question:"

// Interaction outcomes recorded on the interactions counter.
const (
	outcomeNoWakeword  = "no_wakeword"
	outcomeFastPath    = "fast_path"
	outcomeModelIntent = "model_intent"
	outcomeModelChat   = "model_chat"
	outcomeFallback    = "fallback"
)

// Speaker voices text through the playback device. [playback.Speaker]
// satisfies it.
type Speaker interface {
	Say(ctx context.Context, text string) error
}

// Config carries the required collaborators of an [Assistant].
type Config struct {
	// Wakeword is the activation phrase. Matching is case-insensitive.
	Wakeword string

	// Matcher resolves fast-path intents without a model round-trip.
	Matcher *intent.Matcher

	// Registry dispatches structured tool calls into spoken answers.
	Registry *tools.Registry

	// Speaker voices answers.
	Speaker Speaker

	// Gate suspends capture while the assistant thinks and speaks.
	Gate *audio.Gate
}

// Assistant consumes transcripts and speaks responses. Construct with [New];
// the zero value is not usable.
type Assistant struct {
	wake     *WakeDetector
	matcher  *intent.Matcher
	registry *tools.Registry
	speaker  Speaker
	gate     *audio.Gate

	generator    llm.Provider // nil → model paths disabled
	grammar      *llm.Grammar
	intentPrompt string
	chatPrompt   string

	corrector *transcript.Corrector
	notify    func(Event)
	metrics   *observe.Metrics

	phase atomic.Int32

	// handleMu serializes interaction cycles: the loop is single-threaded,
	// but the control channel can inject utterances and speech concurrently.
	handleMu sync.Mutex
}

// Option configures an [Assistant] during construction.
type Option func(*Assistant)

// WithGenerator enables the model paths: grammar-constrained intent
// detection for commands the fast path does not catch, and open chat for
// everything else. Without a generator those commands degrade to a spoken
// fallback phrase.
func WithGenerator(g llm.Provider) Option {
	return func(a *Assistant) {
		a.generator = g
	}
}

// WithCorrector applies phonetic device-name correction to each extracted
// command before intent resolution.
func WithCorrector(c *transcript.Corrector) Option {
	return func(a *Assistant) {
		a.corrector = c
	}
}

// WithNotifier registers a callback receiving every phase [Event]. The
// callback runs on the interaction goroutine and must not block.
func WithNotifier(fn func(Event)) Option {
	return func(a *Assistant) {
		a.notify = fn
	}
}

// New builds an Assistant from cfg. All Config fields are required; the
// model paths stay disabled unless [WithGenerator] is given.
func New(cfg Config, opts ...Option) (*Assistant, error) {
	if strings.TrimSpace(cfg.Wakeword) == "" {
		return nil, fmt.Errorf("assistant: wakeword must not be empty")
	}
	if cfg.Matcher == nil || cfg.Registry == nil || cfg.Speaker == nil || cfg.Gate == nil {
		return nil, fmt.Errorf("assistant: matcher, registry, speaker and gate are required")
	}

	a := &Assistant{
		wake:     NewWakeDetector(cfg.Wakeword),
		matcher:  cfg.Matcher,
		registry: cfg.Registry,
		speaker:  cfg.Speaker,
		gate:     cfg.Gate,
		metrics:  observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.generator != nil {
		a.grammar = intent.GrammarFor(cfg.Registry.Names())
		a.intentPrompt = intentSystemPrompt(cfg.Registry.Catalog())
		a.chatPrompt = chatSystemPrompt
	}
	return a, nil
}

// SetWakeword replaces the activation phrase at runtime (config reload).
func (a *Assistant) SetWakeword(word string) {
	a.wake.SetWakeword(word)
}

// Wakeword returns the current activation phrase, lowercased.
func (a *Assistant) Wakeword() string {
	return a.wake.Wakeword()
}

// ModelEnabled reports whether a generator is configured.
func (a *Assistant) ModelEnabled() bool {
	return a.generator != nil
}

// Phase returns the current interaction phase.
func (a *Assistant) Phase() Phase {
	return Phase(a.phase.Load())
}

// Run consumes transcripts until the channel closes or ctx is cancelled.
// Every transcript is handled in its own cycle; failures degrade to a spoken
// fallback and never stop the loop.
func (a *Assistant) Run(ctx context.Context, transcripts <-chan stt.Transcript) error {
	slog.Info("assistant: listening", "wakeword", a.wake.Wakeword(), "model", a.ModelEnabled())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tr, ok := <-transcripts:
			if !ok {
				return nil
			}
			a.Handle(ctx, tr)
		}
	}
}

// Handle carries one transcript through a full interaction cycle: wakeword
// check, device-name correction, intent resolution, response, playback. It
// blocks until the response has been spoken. Handle is safe for concurrent
// use; cycles are serialized.
func (a *Assistant) Handle(ctx context.Context, tr stt.Transcript) {
	text := strings.TrimSpace(tr.Text)
	if text == "" {
		return
	}
	slog.Debug("assistant: transcribed", "text", text, "audio", tr.AudioDuration)

	prompt, ok := a.wake.Detect(text)
	if !ok {
		a.metrics.RecordInteraction(ctx, outcomeNoWakeword)
		return
	}

	a.handleMu.Lock()
	defer a.handleMu.Unlock()

	// One trace per interaction; its ID keys the cycle's logs and events.
	ctx, span := observe.StartSpan(ctx, "assistant.interaction")
	defer span.End()

	// Capture stays suspended for the whole cycle. The deferred reopen runs
	// on every exit path, so no failure can leave the assistant deaf.
	a.gate.Close()
	defer a.gate.Open()

	if a.corrector != nil {
		corrected, corrections := a.corrector.Apply(prompt)
		for _, c := range corrections {
			slog.Debug("assistant: device name corrected",
				"from", c.Original, "to", c.Corrected, "confidence", c.Confidence)
		}
		prompt = corrected
	}

	observe.Logger(ctx).Info("assistant: wakeword detected", "prompt", prompt)
	a.emit(Event{Phase: PhaseWakewordMatched, Transcript: text, Prompt: prompt})

	start := time.Now()
	answer, outcome := a.respond(ctx, prompt)

	// No answer always becomes a spoken fallback, so an internal failure is
	// audible instead of silent.
	if strings.Trim(answer, `"`) == "" {
		answer = fallbackPhrase()
		outcome = outcomeFallback
	}

	cleaned := Clean(answer)
	a.emit(Event{Phase: PhaseSpeaking, Answer: cleaned})
	a.say(ctx, cleaned)

	a.metrics.RecordInteraction(ctx, outcome)
	a.metrics.InteractionDuration.Record(ctx, time.Since(start).Seconds())
	a.emit(Event{Phase: PhaseListening})
}

// Speak voices text directly, bypassing intent resolution. The control
// channel's "say" command uses it. The capture gate closes for the duration
// so the microphone does not pick the speech back up.
func (a *Assistant) Speak(ctx context.Context, text string) error {
	cleaned := Clean(text)
	if cleaned == "" {
		return nil
	}

	a.handleMu.Lock()
	defer a.handleMu.Unlock()

	a.gate.Close()
	defer a.gate.Open()

	a.emit(Event{Phase: PhaseSpeaking, Answer: cleaned})
	defer a.emit(Event{Phase: PhaseListening})

	a.metrics.Speaking.Add(ctx, 1)
	defer a.metrics.Speaking.Add(ctx, -1)
	if err := a.speaker.Say(ctx, cleaned); err != nil {
		return fmt.Errorf("assistant: speak: %w", err)
	}
	return nil
}

// respond resolves prompt into raw answer text and the outcome label for the
// interactions counter. An empty answer means the caller substitutes a
// fallback phrase.
func (a *Assistant) respond(ctx context.Context, prompt string) (string, string) {
	// Fast path: anchored patterns resolve common phrasings with no model
	// round-trip.
	if call, ok := a.matcher.Match(prompt); ok {
		slog.Info("assistant: fast-path intent", "tool", call.Tool, "args", call.Args)
		a.emit(Event{Phase: PhaseFastPathIntent, Prompt: prompt, Tool: call.Tool})
		answer := a.registry.Dispatch(ctx, call)
		slog.Info("assistant: intent answer", "answer", answer)
		return answer, outcomeFastPath
	}

	if a.generator == nil {
		return "", outcomeFallback
	}
	return a.modelIntent(ctx, prompt)
}

// modelIntent asks the generator to parse prompt into a tool call under the
// intent grammar and dispatches the result.
func (a *Assistant) modelIntent(ctx context.Context, prompt string) (string, string) {
	a.emit(Event{Phase: PhaseModelIntent, Prompt: prompt})
	slog.Info("assistant: model intent query", "prompt", prompt)

	raw, err := a.generator.Generate(ctx, llm.Request{
		SystemPrompt: a.intentPrompt,
		UserPrompt:   prompt,
		Grammar:      a.grammar,
	})
	if err != nil {
		slog.Error("assistant: intent generation failed", "err", err)
		return "", outcomeFallback
	}
	slog.Info("assistant: model intent output", "raw", raw)

	// Output that is empty once quote characters are stripped means the
	// model saw no tool intent: the original prompt goes to open chat.
	if strings.Trim(raw, `"`) == "" {
		return a.modelChat(ctx, prompt)
	}

	call, err := intent.Parse(raw)
	if err != nil {
		slog.Warn("assistant: model output is not a tool call", "raw", raw, "err", err)
		return "", outcomeFallback
	}

	answer := a.registry.Dispatch(ctx, call)
	slog.Info("assistant: intent answer", "answer", answer)

	// A result carrying the marker is composed context (web search results),
	// not an answer: it becomes the prompt for open chat.
	if strings.Contains(answer, userQuestionMarker) {
		return a.modelChat(ctx, answer)
	}
	return answer, outcomeModelIntent
}

// modelChat answers prompt conversationally with the chat system prompt.
func (a *Assistant) modelChat(ctx context.Context, prompt string) (string, string) {
	a.emit(Event{Phase: PhaseModelChat, Prompt: prompt})

	// Spoken filler masks generation latency. Playback blocks until the
	// filler is done, so it never overlaps the answer.
	a.say(ctx, thinkingPhrase())

	slog.Info("assistant: chat query", "prompt", prompt)
	answer, err := a.generator.Generate(ctx, llm.Request{
		SystemPrompt: a.chatPrompt,
		UserPrompt:   prompt,
	})
	if err != nil {
		slog.Error("assistant: chat generation failed", "err", err)
		return "", outcomeFallback
	}
	slog.Info("assistant: chat answer", "answer", answer)
	return answer, outcomeModelChat
}

// say voices text and tracks the speaking gauge. Playback errors are logged,
// not propagated — the interaction is already over.
func (a *Assistant) say(ctx context.Context, text string) {
	if text == "" {
		return
	}
	a.metrics.Speaking.Add(ctx, 1)
	defer a.metrics.Speaking.Add(ctx, -1)
	if err := a.speaker.Say(ctx, text); err != nil {
		slog.Error("assistant: playback failed", "err", err)
	}
}

// emit records the phase and forwards the event to the notifier, if any.
func (a *Assistant) emit(e Event) {
	a.phase.Store(int32(e.Phase))
	if a.notify != nil {
		if e.Time.IsZero() {
			e.Time = time.Now()
		}
		a.notify(e)
	}
}
