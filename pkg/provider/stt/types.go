package stt

import "time"

// Transcript represents a speech-to-text result for one utterance.
type Transcript struct {
	// Text is the transcribed speech content, whitespace-trimmed. Empty
	// when the engine found no speech in the utterance.
	Text string

	// AudioDuration is the length of the source utterance.
	AudioDuration time.Duration
}

// KeywordBoost is a vocabulary hint forwarded to STT backends that support
// recognition boosting, used for the wakeword and configured device names.
type KeywordBoost struct {
	Keyword string  // the text to bias toward (e.g., "barry")
	Boost   float64 // bias strength, on the backend's own scale
}
