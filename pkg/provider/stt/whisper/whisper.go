// Package whisper provides local whisper.cpp-backed STT providers.
//
// Two implementations are available:
//
//   - [Provider] connects to a running whisper-server binary (which
//     exposes a REST API at POST /inference) and submits each utterance
//     as a batch inference request.
//   - [NativeProvider] loads a whisper.cpp model in-process through the
//     CGO bindings, eliminating HTTP overhead entirely.
//
// Both accept utterances at any mono sample rate and resample to the
// 16 kHz input whisper.cpp requires.
//
// Usage:
//
//	p, _ := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	transcripts, err := p.Transcribe(ctx, utterances)
//	for tr := range transcripts { ... }
package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/auricle/internal/observe"
	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/MrWong99/auricle/pkg/provider/stt"
)

const (
	// whisperSampleRate is the input rate whisper.cpp requires. Utterances
	// captured at other rates are resampled before inference.
	whisperSampleRate = 16000

	defaultLanguage = "en"

	// transcriptQueueSize bounds the output channel; one entry per
	// pending utterance result.
	transcriptQueueSize = 8
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the whisper Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper-server
// (e.g., "base.en", "small"). When empty the server uses whichever model
// it was started with — this is the default.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the BCP-47 language code sent to the whisper-server,
// e.g. "en", "de" or "fr". The default is "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithKeywords joins the given vocabulary hints into the inference
// prompt, nudging recognition toward the wakeword and device names.
// whisper.cpp has no per-keyword boost weights, so Boost values are
// ignored.
func WithKeywords(keywords []stt.KeywordBoost) Option {
	return func(p *Provider) { p.prompt = keywordPrompt(keywords) }
}

// WithHTTPClient replaces the default HTTP client (30 s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements stt.Provider backed by a local whisper-server.
type Provider struct {
	serverURL  string
	model      string
	language   string
	prompt     string
	httpClient *http.Client
	metrics    *observe.Metrics
}

// New creates a Provider that talks to the whisper-server at serverURL,
// e.g. "http://localhost:8080".
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: server URL is empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		metrics:    observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements [stt.Provider]. Utterances are transcribed
// sequentially on a single worker goroutine, preserving order.
func (p *Provider) Transcribe(ctx context.Context, in <-chan audio.Utterance) (<-chan stt.Transcript, error) {
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
				text, err := p.infer(ctx, u)
				if err != nil {
					p.metrics.RecordProviderError(ctx, "whisper", "stt")
					slog.Error("whisper inference failed", "error", err, "audioDuration", u.Duration())
					continue
				}
				p.metrics.RecordProviderRequest(ctx, "whisper", "stt", "ok")
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

// Ping reports whether the whisper-server is reachable. Older server
// builds lack a /health route, so any HTTP response below 500 counts as
// reachable.
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("whisper: build health request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whisper: server unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("whisper: server replied HTTP %d", resp.StatusCode)
	}
	return nil
}

// infer encodes the utterance as a 16 kHz WAV file and POSTs it to the
// whisper-server /inference endpoint as multipart/form-data.
func (p *Provider) infer(ctx context.Context, u audio.Utterance) (string, error) {
	samples := audio.Resample(u.Samples, u.SampleRate, whisperSampleRate)
	wav := encodeWAV(audio.PCM16Bytes(samples), whisperSampleRate, 1)

	var payload bytes.Buffer
	form := multipart.NewWriter(&payload)

	part, err := form.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: write wav: %w", err)
	}

	hints := []struct{ name, value string }{
		{"language", p.language},
		{"model", p.model},
		{"prompt", p.prompt},
	}
	for _, h := range hints {
		if h.value == "" {
			continue
		}
		if err := form.WriteField(h.name, h.value); err != nil {
			return "", fmt.Errorf("whisper: form field %s: %w", h.name, err)
		}
	}

	if err := form.Close(); err != nil {
		return "", fmt.Errorf("whisper: finish form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &payload)
	if err != nil {
		return "", fmt.Errorf("whisper: build request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server replied HTTP %d", resp.StatusCode)
	}

	var reply struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("whisper: decode response: %w", err)
	}
	return reply.Text, nil
}

// ---- helpers ----

// keywordPrompt joins keyword hints into a short context prompt for
// whisper.cpp inference.
func keywordPrompt(keywords []stt.KeywordBoost) string {
	hints := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k.Keyword != "" {
			hints = append(hints, k.Keyword)
		}
	}
	return strings.Join(hints, ", ")
}

// encodeWAV wraps raw 16-bit little-endian PCM in a RIFF/WAV container,
// ready for a multipart upload.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const bps = 16
	frame := channels * bps / 8

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	le := func(v any) { _ = binary.Write(buf, binary.LittleEndian, v) }

	buf.WriteString("RIFF")
	le(uint32(36 + len(pcm))) // total size minus the 8-byte RIFF header
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	le(uint32(16)) // PCM fmt chunk size
	le(uint16(1))  // PCM format tag
	le(uint16(channels))
	le(uint32(sampleRate))
	le(uint32(sampleRate * frame)) // byte rate
	le(uint16(frame))              // block align
	le(uint16(bps))

	buf.WriteString("data")
	le(uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}
