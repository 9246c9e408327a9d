package assistant

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/auricle/internal/intent"
	"github.com/MrWong99/auricle/internal/tools"
	"github.com/MrWong99/auricle/internal/transcript"
	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/MrWong99/auricle/pkg/provider/llm/mock"
	"github.com/MrWong99/auricle/pkg/provider/stt"
)

// speakerStub records every spoken line and whether the capture gate was
// open at the moment of playback.
type speakerStub struct {
	gate     *audio.Gate
	texts    []string
	gateOpen []bool
	err      error
}

func (s *speakerStub) Say(_ context.Context, text string) error {
	s.texts = append(s.texts, text)
	if s.gate != nil {
		s.gateOpen = append(s.gateOpen, s.gate.IsOpen())
	}
	return s.err
}

func testRegistry() *tools.Registry {
	return tools.NewRegistry(
		tools.Tool{
			Name:        "get_current_time",
			Description: "Tells the current time.",
			Run: func(context.Context, map[string]string) string {
				return "It is nine thirty."
			},
		},
		tools.Tool{
			Name:        "start_countdown",
			Description: "Starts a countdown timer.",
			Run: func(_ context.Context, args map[string]string) string {
				return "Timer set for " + args["duration"] + "."
			},
		},
		tools.Tool{
			Name:        "turn_on",
			Description: "Turns a device on.",
			Run: func(_ context.Context, args map[string]string) string {
				return "Turned on the " + args["entity"] + "."
			},
		},
		tools.Tool{
			Name:        "search_internet",
			Description: "Searches the web and composes a question from the results.",
			Run: func(context.Context, map[string]string) string {
				return "Web search results: Paris is the capital of France.\n" +
					"User question: what is the capital of France?"
			},
		},
	)
}

// fixture wires an Assistant with a recording speaker, an open gate and an
// event log.
type fixture struct {
	assistant *Assistant
	matcher   *intent.Matcher
	speaker   *speakerStub
	gate      *audio.Gate
	events    []Event
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		matcher: intent.NewMatcher(),
		gate:    audio.NewGate(true),
	}
	f.speaker = &speakerStub{gate: f.gate}

	opts = append(opts, WithNotifier(func(e Event) {
		f.events = append(f.events, e)
	}))
	a, err := New(Config{
		Wakeword: "computer",
		Matcher:  f.matcher,
		Registry: testRegistry(),
		Speaker:  f.speaker,
		Gate:     f.gate,
	}, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.assistant = a
	return f
}

func (f *fixture) phases() []Phase {
	out := make([]Phase, len(f.events))
	for i, e := range f.events {
		out[i] = e.Phase
	}
	return out
}

func (f *fixture) handle(text string) {
	f.assistant.Handle(context.Background(), stt.Transcript{Text: text})
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	base := Config{
		Wakeword: "computer",
		Matcher:  intent.NewMatcher(),
		Registry: testRegistry(),
		Speaker:  &speakerStub{},
		Gate:     audio.NewGate(true),
	}

	if _, err := New(base); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	noWake := base
	noWake.Wakeword = "  "
	if _, err := New(noWake); err == nil {
		t.Error("empty wakeword accepted, want error")
	}

	noGate := base
	noGate.Gate = nil
	if _, err := New(noGate); err == nil {
		t.Error("nil gate accepted, want error")
	}
}

func TestHandle_FastPath(t *testing.T) {
	t.Parallel()

	gen := &mock.Provider{Response: `{"tool": "start_countdown", "args": {}}`}
	f := newFixture(t, WithGenerator(gen))

	f.handle("hey computer what time is it")

	want := []string{"It is nine thirty."}
	if !slices.Equal(f.speaker.texts, want) {
		t.Fatalf("spoken = %v, want %v", f.speaker.texts, want)
	}
	if gen.CallCount() != 0 {
		t.Errorf("generator called %d times, want 0 on the fast path", gen.CallCount())
	}

	wantPhases := []Phase{PhaseWakewordMatched, PhaseFastPathIntent, PhaseSpeaking, PhaseListening}
	if got := f.phases(); !slices.Equal(got, wantPhases) {
		t.Fatalf("phases = %v, want %v", got, wantPhases)
	}
	if f.events[0].Prompt != "what time is it" {
		t.Errorf("extracted prompt = %q, want %q", f.events[0].Prompt, "what time is it")
	}
	if f.events[1].Tool != "get_current_time" {
		t.Errorf("resolved tool = %q, want %q", f.events[1].Tool, "get_current_time")
	}
	if f.events[2].Answer != "It is nine thirty." {
		t.Errorf("speaking answer = %q, want %q", f.events[2].Answer, "It is nine thirty.")
	}
}

func TestHandle_GateClosedDuringPlayback(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.handle("computer what time is it")

	if !slices.Equal(f.speaker.gateOpen, []bool{false}) {
		t.Errorf("gate open during playback = %v, want [false]", f.speaker.gateOpen)
	}
	if !f.gate.IsOpen() {
		t.Error("gate still closed after the cycle, want reopened")
	}
}

func TestHandle_GateReopensAfterPlaybackFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.speaker.err = errors.New("device gone")

	f.handle("computer what time is it")

	if !f.gate.IsOpen() {
		t.Error("gate still closed after a playback failure, want reopened")
	}
}

func TestHandle_NoWakeword(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.handle("turn on the lights")

	if len(f.speaker.texts) != 0 {
		t.Errorf("spoken = %v, want nothing without the wakeword", f.speaker.texts)
	}
	if len(f.events) != 0 {
		t.Errorf("events = %v, want none without the wakeword", f.phases())
	}
	if !f.gate.IsOpen() {
		t.Error("gate closed by a transcript without the wakeword")
	}
}

func TestHandle_BareWakeword(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.handle("computer.")

	if len(f.speaker.texts) != 0 {
		t.Errorf("spoken = %v, want nothing for a bare wakeword", f.speaker.texts)
	}
}

func TestHandle_EmptyTranscript(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.handle("")
	f.handle("   ")

	if len(f.speaker.texts) != 0 {
		t.Errorf("spoken = %v, want nothing for empty transcripts", f.speaker.texts)
	}
}

func TestHandle_NoModelSpeaksFallback(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	f.handle("computer tell me a bedtime story")

	if len(f.speaker.texts) != 1 {
		t.Fatalf("spoken = %v, want exactly one fallback phrase", f.speaker.texts)
	}
	if !slices.Contains(FallbackPhrases, f.speaker.texts[0]) {
		t.Errorf("spoken %q is not a fallback phrase", f.speaker.texts[0])
	}
}

func TestHandle_ModelIntent(t *testing.T) {
	t.Parallel()

	gen := &mock.Provider{Responses: []string{
		`{"tool": "start_countdown", "args": {"duration": "5 minutes"}}`,
	}}
	f := newFixture(t, WithGenerator(gen))

	f.handle("computer please count down five minutes")

	want := []string{"Timer set for 5 minutes."}
	if !slices.Equal(f.speaker.texts, want) {
		t.Fatalf("spoken = %v, want %v", f.speaker.texts, want)
	}
	if gen.CallCount() != 1 {
		t.Fatalf("generator called %d times, want 1", gen.CallCount())
	}

	req := gen.Requests[0]
	if req.Grammar == nil {
		t.Error("intent request has no grammar constraint")
	}
	if req.UserPrompt != "please count down five minutes" {
		t.Errorf("intent prompt = %q, want the extracted command", req.UserPrompt)
	}
	if !strings.Contains(req.SystemPrompt, "- start_countdown: Starts a countdown timer.") {
		t.Errorf("intent system prompt is missing the tool catalog:\n%s", req.SystemPrompt)
	}

	wantPhases := []Phase{PhaseWakewordMatched, PhaseModelIntent, PhaseSpeaking, PhaseListening}
	if got := f.phases(); !slices.Equal(got, wantPhases) {
		t.Errorf("phases = %v, want %v", got, wantPhases)
	}
}

// TestHandle_EmptyIntentGoesToChat checks the handoff for prompts the model
// sees no tool in: the original command is answered conversationally, with a
// thinking phrase spoken while the chat completion runs.
func TestHandle_EmptyIntentGoesToChat(t *testing.T) {
	t.Parallel()

	gen := &mock.Provider{Responses: []string{`""`, "The sky is blue."}}
	f := newFixture(t, WithGenerator(gen))

	f.handle("computer why is the sky blue")

	if len(f.speaker.texts) != 2 {
		t.Fatalf("spoken = %v, want thinking phrase plus answer", f.speaker.texts)
	}
	if !slices.Contains(ThinkingPhrases, f.speaker.texts[0]) {
		t.Errorf("spoken %q is not a thinking phrase", f.speaker.texts[0])
	}
	if f.speaker.texts[1] != "The sky is blue." {
		t.Errorf("answer = %q, want %q", f.speaker.texts[1], "The sky is blue.")
	}

	if gen.CallCount() != 2 {
		t.Fatalf("generator called %d times, want 2", gen.CallCount())
	}
	chat := gen.Requests[1]
	if chat.Grammar != nil {
		t.Error("chat request carries a grammar constraint, want none")
	}
	if chat.UserPrompt != "why is the sky blue" {
		t.Errorf("chat prompt = %q, want the original command", chat.UserPrompt)
	}
	if chat.SystemPrompt == gen.Requests[0].SystemPrompt {
		t.Error("chat reused the intent system prompt")
	}

	wantPhases := []Phase{PhaseWakewordMatched, PhaseModelIntent, PhaseModelChat, PhaseSpeaking, PhaseListening}
	if got := f.phases(); !slices.Equal(got, wantPhases) {
		t.Errorf("phases = %v, want %v", got, wantPhases)
	}
}

// TestHandle_SearchResultsGoToChat checks that a tool result carrying a
// composed "User question:" block is not spoken verbatim but answered by the
// chat model with the block as its prompt.
func TestHandle_SearchResultsGoToChat(t *testing.T) {
	t.Parallel()

	gen := &mock.Provider{Responses: []string{
		`{"tool": "search_internet", "args": {}}`,
		"The capital of France is Paris.",
	}}
	f := newFixture(t, WithGenerator(gen))

	f.handle("computer look up the capital of france")

	if len(f.speaker.texts) != 2 {
		t.Fatalf("spoken = %v, want thinking phrase plus answer", f.speaker.texts)
	}
	if f.speaker.texts[1] != "The capital of France is Paris." {
		t.Errorf("answer = %q, want the chat completion", f.speaker.texts[1])
	}

	chat := gen.Requests[1]
	if !strings.Contains(chat.UserPrompt, "User question: what is the capital of France?") {
		t.Errorf("chat prompt = %q, want the composed search context", chat.UserPrompt)
	}
}

func TestHandle_InvalidModelOutputSpeaksFallback(t *testing.T) {
	t.Parallel()

	gen := &mock.Provider{Responses: []string{"not a tool call at all"}}
	f := newFixture(t, WithGenerator(gen))

	f.handle("computer do something strange")

	if len(f.speaker.texts) != 1 {
		t.Fatalf("spoken = %v, want exactly one fallback phrase", f.speaker.texts)
	}
	if !slices.Contains(FallbackPhrases, f.speaker.texts[0]) {
		t.Errorf("spoken %q is not a fallback phrase", f.speaker.texts[0])
	}
	if gen.CallCount() != 1 {
		t.Errorf("generator called %d times, want 1 (no chat retry)", gen.CallCount())
	}
}

func TestHandle_GeneratorErrorSpeaksFallback(t *testing.T) {
	t.Parallel()

	gen := &mock.Provider{GenerateErr: errors.New("model offline")}
	f := newFixture(t, WithGenerator(gen))

	f.handle("computer do something strange")

	if len(f.speaker.texts) != 1 {
		t.Fatalf("spoken = %v, want exactly one fallback phrase", f.speaker.texts)
	}
	if !slices.Contains(FallbackPhrases, f.speaker.texts[0]) {
		t.Errorf("spoken %q is not a fallback phrase", f.speaker.texts[0])
	}
	if !f.gate.IsOpen() {
		t.Error("gate still closed after a generation failure")
	}
}

func TestHandle_EmptyChatAnswerSpeaksFallback(t *testing.T) {
	t.Parallel()

	gen := &mock.Provider{Responses: []string{`""`, `""`}}
	f := newFixture(t, WithGenerator(gen))

	f.handle("computer why is the sky blue")

	if len(f.speaker.texts) != 2 {
		t.Fatalf("spoken = %v, want thinking phrase plus fallback", f.speaker.texts)
	}
	if !slices.Contains(ThinkingPhrases, f.speaker.texts[0]) {
		t.Errorf("spoken %q is not a thinking phrase", f.speaker.texts[0])
	}
	if !slices.Contains(FallbackPhrases, f.speaker.texts[1]) {
		t.Errorf("spoken %q is not a fallback phrase", f.speaker.texts[1])
	}
}

func TestHandle_AnswerIsCleanedBeforePlayback(t *testing.T) {
	t.Parallel()

	gen := &mock.Provider{Responses: []string{
		`""`,
		"<think>reasoning goes here</think>*Sure!* It is warm today.\U0001F600",
	}}
	f := newFixture(t, WithGenerator(gen))

	f.handle("computer how warm is it")

	if len(f.speaker.texts) != 2 {
		t.Fatalf("spoken = %v, want thinking phrase plus answer", f.speaker.texts)
	}
	want := "Sure! It is warm today."
	if f.speaker.texts[1] != want {
		t.Errorf("answer = %q, want %q", f.speaker.texts[1], want)
	}
}

// TestHandle_CorrectorApplied checks that device-name correction runs before
// intent matching, so a misheard name still hits the configured pattern.
func TestHandle_CorrectorApplied(t *testing.T) {
	t.Parallel()

	corr := transcript.NewCorrector(
		&phoneticStub{replacements: map[string]string{"dezk lamp": "desk lamp"}},
		func() []string { return []string{"desk lamp"} },
	)
	f := newFixture(t, WithCorrector(corr))

	pat, err := intent.CompilePattern("device-on", `(?i)^turn on (?:the )?(.+)$`,
		"turn_on", map[string]string{"entity": "$1"})
	if err != nil {
		t.Fatalf("CompilePattern: %v", err)
	}
	f.matcher.SetCustom([]intent.Pattern{pat})

	f.handle("computer turn on the dezk lamp")

	want := []string{"Turned on the desk lamp."}
	if !slices.Equal(f.speaker.texts, want) {
		t.Fatalf("spoken = %v, want %v", f.speaker.texts, want)
	}
	if f.events[0].Prompt != "turn on the desk lamp" {
		t.Errorf("corrected prompt = %q, want %q", f.events[0].Prompt, "turn on the desk lamp")
	}
}

// phoneticStub corrects whole phrases from a fixed table, honoring the
// vocabulary it is offered.
type phoneticStub struct {
	replacements map[string]string
}

func (m *phoneticStub) Match(phrase string, names []string) (string, float64, bool) {
	name, ok := m.replacements[strings.ToLower(phrase)]
	if !ok || !slices.Contains(names, name) {
		return phrase, 0, false
	}
	return name, 0.9, true
}

func TestSetWakeword(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.assistant.SetWakeword("Barry")

	if got := f.assistant.Wakeword(); got != "barry" {
		t.Errorf("Wakeword() = %q, want %q", got, "barry")
	}

	f.handle("computer what time is it")
	if len(f.speaker.texts) != 0 {
		t.Fatalf("old wakeword still triggers: %v", f.speaker.texts)
	}

	f.handle("barry what time is it")
	if len(f.speaker.texts) != 1 {
		t.Errorf("new wakeword did not trigger: %v", f.speaker.texts)
	}
}

func TestSpeak(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	if err := f.assistant.Speak(context.Background(), `Hello *world*`); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	want := []string{"Hello world"}
	if !slices.Equal(f.speaker.texts, want) {
		t.Fatalf("spoken = %v, want %v", f.speaker.texts, want)
	}
	if !slices.Equal(f.speaker.gateOpen, []bool{false}) {
		t.Errorf("gate open during Speak = %v, want [false]", f.speaker.gateOpen)
	}
	if !f.gate.IsOpen() {
		t.Error("gate still closed after Speak")
	}

	wantPhases := []Phase{PhaseSpeaking, PhaseListening}
	if got := f.phases(); !slices.Equal(got, wantPhases) {
		t.Errorf("phases = %v, want %v", got, wantPhases)
	}
}

func TestSpeak_EmptyAfterCleaning(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	if err := f.assistant.Speak(context.Background(), "\U0001F680"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if len(f.speaker.texts) != 0 {
		t.Errorf("spoken = %v, want nothing for text that cleans to empty", f.speaker.texts)
	}
}

func TestSpeak_PlaybackError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.speaker.err = errors.New("device gone")

	err := f.assistant.Speak(context.Background(), "Hello")
	if err == nil {
		t.Fatal("Speak returned nil, want the playback error")
	}
	if !strings.Contains(err.Error(), "assistant: speak") {
		t.Errorf("error = %v, want it wrapped with context", err)
	}
	if !f.gate.IsOpen() {
		t.Error("gate still closed after a Speak failure")
	}
}

func TestRun_StopsOnChannelClose(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	ch := make(chan stt.Transcript, 1)
	ch <- stt.Transcript{Text: "computer what time is it"}
	close(ch)

	if err := f.assistant.Run(context.Background(), ch); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"It is nine thirty."}
	if !slices.Equal(f.speaker.texts, want) {
		t.Errorf("spoken = %v, want %v", f.speaker.texts, want)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- f.assistant.Run(ctx, make(chan stt.Transcript))
	}()

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}
