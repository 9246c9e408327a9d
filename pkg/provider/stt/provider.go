// Package stt defines the Provider interface for Speech-to-Text backends.
//
// Auricle segments the microphone stream into discrete utterances before
// transcription, so STT providers are batch engines: each utterance
// arriving on the input channel produces at most one [Transcript] on the
// output channel. The channel-transformer shape keeps provider internals
// (HTTP calls, CGO inference, connection management) off the assistant's
// goroutine.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"

	"github.com/MrWong99/auricle/pkg/audio"
)

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe consumes utterances from in until the channel closes or
	// ctx is cancelled, emitting one [Transcript] per utterance on the
	// returned channel, in order. Transcripts may carry empty text when
	// the engine finds no speech; utterances whose transcription fails
	// are logged and skipped. The returned channel is closed when
	// processing ends; the caller must drain it.
	Transcribe(ctx context.Context, in <-chan audio.Utterance) (<-chan Transcript, error)
}
