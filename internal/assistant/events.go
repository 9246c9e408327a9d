package assistant

import (
	"fmt"
	"time"
)

// Phase identifies where the assistant is in its interaction cycle.
type Phase int

const (
	// PhaseListening: waiting for a transcript containing the wakeword.
	PhaseListening Phase = iota
	// PhaseWakewordMatched: wakeword found, command extracted.
	PhaseWakewordMatched
	// PhaseFastPathIntent: an anchored pattern resolved the command.
	PhaseFastPathIntent
	// PhaseModelIntent: the model is parsing the command into a tool call.
	PhaseModelIntent
	// PhaseModelChat: the model is answering conversationally.
	PhaseModelChat
	// PhaseSpeaking: the response is playing.
	PhaseSpeaking
)

// String returns the snake_case name used in logs, metrics and control
// channel events.
func (p Phase) String() string {
	switch p {
	case PhaseListening:
		return "listening"
	case PhaseWakewordMatched:
		return "wakeword_matched"
	case PhaseFastPathIntent:
		return "fast_path_intent"
	case PhaseModelIntent:
		return "model_intent"
	case PhaseModelChat:
		return "model_chat"
	case PhaseSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// MarshalText encodes the phase as its string name, so JSON events carry
// "model_chat" instead of a bare integer.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a phase name produced by [Phase.MarshalText].
func (p *Phase) UnmarshalText(text []byte) error {
	for candidate := PhaseListening; candidate <= PhaseSpeaking; candidate++ {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("assistant: unknown phase %q", text)
}

// Event is one observable step of an interaction, published to the notifier
// registered with [WithNotifier]. Fields other than Phase and Time are set
// only where they apply: Transcript and Prompt on a wakeword match, Tool on
// a resolved intent, Answer when speaking.
type Event struct {
	Phase      Phase     `json:"phase"`
	Transcript string    `json:"transcript,omitempty"`
	Prompt     string    `json:"prompt,omitempty"`
	Tool       string    `json:"tool,omitempty"`
	Answer     string    `json:"answer,omitempty"`
	Time       time.Time `json:"time"`
}
