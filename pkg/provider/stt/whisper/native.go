// NativeProvider runs whisper.cpp in-process via CGO. Linking needs the
// whisper.cpp static library and headers on LIBRARY_PATH and C_INCLUDE_PATH.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/auricle/internal/observe"
	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/MrWong99/auricle/pkg/provider/stt"
)

// Compile-time assertion that NativeProvider implements stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider is an stt.Provider with no HTTP hop: inference happens
// in-process through the whisper.cpp Go bindings. The model loads once and
// every inference gets its own whisper context, which keeps concurrent
// Transcribe streams independent.
type NativeProvider struct {
	model    whisperlib.Model
	language string
	prompt   string
	metrics  *observe.Metrics
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativeKeywords joins the given vocabulary hints into the initial
// inference prompt. Boost values are ignored; whisper.cpp has no
// per-keyword weighting.
func WithNativeKeywords(keywords []stt.KeywordBoost) NativeOption {
	return func(p *NativeProvider) { p.prompt = keywordPrompt(keywords) }
}

// NewNative loads the whisper.cpp model at modelPath and returns a provider
// backed by it. Callers own the model lifetime and must Close the provider.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: model path is empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: open model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:    model,
		language: defaultLanguage,
		metrics:  observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the loaded model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe implements [stt.Provider]. Inference runs sequentially on a
// single worker goroutine; whisper.cpp saturates the CPU per request, so
// there is nothing to gain from overlap.
func (p *NativeProvider) Transcribe(ctx context.Context, in <-chan audio.Utterance) (<-chan stt.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context cancelled: %w", err)
	}

	out := make(chan stt.Transcript, transcriptQueueSize)
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
				start := time.Now()
				text, err := p.infer(u)
				if err != nil {
					p.metrics.RecordProviderError(ctx, "whisper-native", "stt")
					slog.Error("whisper native inference failed", "error", err, "audioDuration", u.Duration())
					continue
				}
				p.metrics.RecordProviderRequest(ctx, "whisper-native", "stt", "ok")
				p.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())

				select {
				case out <- stt.Transcript{Text: strings.TrimSpace(text), AudioDuration: u.Duration()}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// infer resamples the utterance to 16 kHz, runs one whisper.cpp inference,
// and returns the segment texts joined with single spaces.
func (p *NativeProvider) infer(u audio.Utterance) (string, error) {
	samples := audio.Resample(u.Samples, u.SampleRate, whisperSampleRate)

	// Contexts are single-use and not thread-safe; only the model is shared.
	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: new context: %w", err)
	}

	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper language not applied, staying on default", "language", p.language, "error", err)
	}
	if p.prompt != "" {
		wctx.SetInitialPrompt(p.prompt)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: inference: %w", err)
	}

	var text strings.Builder
	for {
		segment, err := wctx.NextSegment()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return text.String(), nil
			}
			return "", fmt.Errorf("whisper: next segment: %w", err)
		}
		if part := strings.TrimSpace(segment.Text); part != "" {
			if text.Len() > 0 {
				text.WriteByte(' ')
			}
			text.WriteString(part)
		}
	}
}
