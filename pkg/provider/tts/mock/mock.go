// Package mock is a scriptable in-memory tts.Provider for tests.
//
// Pre-populate Chunks with the audio every Synthesize call should emit; the
// channel closes after the last one, mirroring a completed (or failed)
// synthesis. Texts records what was spoken.
//
// Example:
//
//	p := &mock.Provider{Chunks: []tts.Chunk{{Samples: []float32{0.1}, SampleRate: 16000}}}
//	ch, _ := p.Synthesize(ctx, "hello")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/auricle/pkg/provider/tts"
)

// Provider plays back scripted chunks instead of talking to a real
// synthesizer.
type Provider struct {
	mu sync.Mutex

	// Chunks are emitted, in order, for every Synthesize call. Leave empty
	// to simulate a synthesis that produces no audio (channel closed before
	// the first chunk).
	Chunks []tts.Chunk

	// SynthesizeErr makes Synthesize fail when set.
	SynthesizeErr error

	// Texts records the text of every Synthesize call, in order.
	Texts []string

	// Voices is returned by ListVoices.
	Voices []tts.VoiceProfile

	// ListVoicesErr makes ListVoices fail when set.
	ListVoicesErr error
}

// Synthesize records the call and returns a channel fed with the scripted
// chunks, closed after the last one.
func (p *Provider) Synthesize(ctx context.Context, text string) (<-chan tts.Chunk, error) {
	p.mu.Lock()
	p.Texts = append(p.Texts, text)
	err := p.SynthesizeErr
	chunks := make([]tts.Chunk, len(p.Chunks))
	copy(chunks, p.Chunks)
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make(chan tts.Chunk, len(chunks))
	go func() {
		defer close(out)
		for _, c := range chunks {
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// ListVoices returns the scripted voice catalogue.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ListVoicesErr != nil {
		return nil, p.ListVoicesErr
	}
	return p.Voices, nil
}

// SpokenTexts returns a copy of all recorded texts. Thread-safe.
func (p *Provider) SpokenTexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Texts))
	copy(out, p.Texts)
	return out
}

// Reset forgets every recorded call.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Texts = nil
}

// Ensure Provider implements the tts interfaces at compile time.
var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)
