// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider wraps a speech synthesis engine (a local cori streaming
// server, ElevenLabs, or a test double) behind a uniform lazy-stream
// interface: Synthesize returns a channel that emits audio chunks as they
// become available, so playback can begin before the full answer is
// synthesised.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize starts synthesis of text and returns a channel emitting
	// audio chunks in playback order. All chunks of one response share one
	// sample rate; the first chunk's SampleRate is authoritative for the
	// output stream.
	//
	// The channel is closed when synthesis completes, when ctx is
	// cancelled, or when a mid-stream error occurs. Mid-stream errors are
	// logged by the implementation rather than surfaced — a closed channel
	// is the only termination signal, and the caller must drain it. A
	// channel closed before the first chunk means no audio was produced.
	//
	// A non-nil error is returned only when the stream cannot be started
	// at all (empty text, cancelled context, invalid configuration).
	Synthesize(ctx context.Context, text string) (<-chan Chunk, error)
}

// VoiceLister is implemented by providers with a queryable voice catalogue.
type VoiceLister interface {
	// ListVoices returns all voice profiles available from this provider.
	// The list reflects the provider's current catalogue and may change
	// between calls.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
