package resilience

import (
	"context"

	"github.com/MrWong99/auricle/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across
// multiple synthesis backends. Each backend has its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred
// backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional synthesis provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Status reports the breaker state of every registered backend.
func (f *TTSFallback) Status() []EntryStatus {
	return f.group.Status()
}

// Synthesize starts synthesis of text against the first healthy backend.
// Only the initial setup is covered by failover; a backend that accepts the
// request and then fails mid-stream produces a short or empty chunk stream,
// which the speaker treats as a finished sentence.
func (f *TTSFallback) Synthesize(ctx context.Context, text string) (<-chan tts.Chunk, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (<-chan tts.Chunk, error) {
		return p.Synthesize(ctx, text)
	})
}
