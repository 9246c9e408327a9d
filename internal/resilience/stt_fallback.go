package resilience

import (
	"context"

	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/MrWong99/auricle/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across
// multiple transcription backends. Each backend has its own circuit
// breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred
// backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional transcription provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Status reports the breaker state of every registered backend.
func (f *STTFallback) Status() []EntryStatus {
	return f.group.Status()
}

// Transcribe opens a transcription stream against the first healthy
// backend. Only the initial setup is covered by failover; once a stream is
// established, the winning backend owns the utterance channel and
// mid-stream errors surface as skipped transcripts, not as a provider
// switch.
func (f *STTFallback) Transcribe(ctx context.Context, in <-chan audio.Utterance) (<-chan stt.Transcript, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (<-chan stt.Transcript, error) {
		return p.Transcribe(ctx, in)
	})
}
