// Package mock provides a test double for the stt.Provider interface.
//
// Pre-populate Results with the Transcript values the consumer should
// receive; each received utterance pops the next entry. Utterances past the
// end of the script produce an empty transcript.
//
// Example:
//
//	p := &mock.Provider{Results: []stt.Transcript{{Text: "hey barry what time is it"}}}
//	out, _ := p.Transcribe(ctx, in)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/MrWong99/auricle/pkg/provider/stt"
)

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Results are the transcripts emitted for received utterances, in order.
	// An entry with zero AudioDuration inherits the utterance's duration.
	Results []stt.Transcript

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// TranscribeCallCount is the number of times Transcribe was called.
	TranscribeCallCount int

	// Utterances records every utterance received, in order.
	Utterances []audio.Utterance

	next int
}

// Transcribe records the call and spawns a worker that answers each received
// utterance with the next scripted result. The output channel closes when the
// input channel closes or ctx is done, matching the stt.Provider contract.
func (p *Provider) Transcribe(ctx context.Context, in <-chan audio.Utterance) (<-chan stt.Transcript, error) {
	p.mu.Lock()
	p.TranscribeCallCount++
	err := p.TranscribeErr
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make(chan stt.Transcript, 16)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-in:
				if !ok {
					return
				}
				tr := p.record(u)
				select {
				case out <- tr:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// record stores the utterance and pops the next scripted transcript.
func (p *Provider) record(u audio.Utterance) stt.Transcript {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Utterances = append(p.Utterances, u)

	var tr stt.Transcript
	if p.next < len(p.Results) {
		tr = p.Results[p.next]
		p.next++
	}
	if tr.AudioDuration == 0 {
		tr.AudioDuration = u.Duration()
	}
	return tr
}

// UtteranceCount returns the number of utterances received so far. Thread-safe.
func (p *Provider) UtteranceCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Utterances)
}

// Reset clears all recorded calls and rewinds the result script. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCallCount = 0
	p.Utterances = nil
	p.next = 0
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
