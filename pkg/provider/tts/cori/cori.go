// Package cori provides a TTS provider backed by a local cori streaming
// synthesis server.
//
// The server exposes POST /api/stream, which answers with a chunked WAV
// stream: the RIFF header arrives first, then 16-bit PCM is appended as the
// model generates it. Decoding incrementally lets playback begin as soon as
// the first frames arrive instead of waiting for the full response.
//
// Typical usage:
//
//	p, err := cori.New("http://localhost:8880",
//	    cori.WithVoice("cori"),
//	    cori.WithSpeed(1.0),
//	)
//	chunks, err := p.Synthesize(ctx, "The heating is set to 21 degrees.")
//	for c := range chunks { ... }
package cori

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/auricle/internal/observe"
	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/MrWong99/auricle/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	streamEndpoint = "/api/stream"
	healthEndpoint = "/health"

	defaultVoice    = "cori"
	defaultLanguage = "english"
	defaultSpeed    = 1.0

	// chunkSamples is the number of PCM samples per emitted Chunk
	// (128 ms at 16 kHz, 85 ms at 24 kHz).
	chunkSamples = 2048

	// chunkQueueSize bounds the returned chunk channel.
	chunkQueueSize = 8
)

// Option is a functional option for configuring a cori Provider.
type Option func(*Provider)

// WithVoice sets the voice name requested from the server. Defaults to "cori".
func WithVoice(voice string) Option {
	return func(p *Provider) { p.voice = voice }
}

// WithLanguage sets the synthesis language. Defaults to "english".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSpeed adjusts the speaking rate (0.5–2.0, 1.0 = default).
func WithSpeed(speed float64) Option {
	return func(p *Provider) { p.speed = speed }
}

// WithHTTPClient replaces the default HTTP client. The default carries no
// overall timeout; synthesis streams outlive any fixed deadline and are
// cancelled through ctx instead.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements tts.Provider backed by a locally-running cori server.
// It is safe for concurrent use.
type Provider struct {
	serverURL  string
	voice      string
	language   string
	speed      float64
	httpClient *http.Client
	metrics    *observe.Metrics
}

// New creates a Provider that targets the cori server at serverURL
// (e.g., "http://localhost:8880"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("cori: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		voice:      defaultVoice,
		language:   defaultLanguage,
		speed:      defaultSpeed,
		httpClient: &http.Client{},
		metrics:    observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// synthesisRequest is the JSON body sent to POST /api/stream.
type synthesisRequest struct {
	Text     string  `json:"text"`
	Voice    string  `json:"voice"`
	Language string  `json:"language"`
	Speed    float64 `json:"speed"`
}

// Synthesize implements [tts.Provider]. It issues one streaming request and
// emits decoded chunks as the server produces them. Mid-stream failures are
// logged and close the channel early.
func (p *Provider) Synthesize(ctx context.Context, text string) (<-chan tts.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("cori: text must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("cori: context already cancelled: %w", err)
	}

	out := make(chan tts.Chunk, chunkQueueSize)
	go p.stream(ctx, text, out)
	return out, nil
}

// stream performs the HTTP round trip and forwards decoded PCM until the
// response body ends. Channel close is the only termination signal the
// consumer observes.
func (p *Provider) stream(ctx context.Context, text string, out chan<- tts.Chunk) {
	defer close(out)
	start := time.Now()

	data, err := json.Marshal(synthesisRequest{
		Text:     text,
		Voice:    p.voice,
		Language: p.language,
		Speed:    p.speed,
	})
	if err != nil {
		slog.Error("cori synthesis request marshal failed", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+streamEndpoint, bytes.NewReader(data))
	if err != nil {
		slog.Error("cori synthesis request failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.metrics.RecordProviderError(ctx, "cori", "tts")
		slog.Error("cori server unreachable", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.metrics.RecordProviderError(ctx, "cori", "tts")
		slog.Error("cori synthesis rejected", "status", resp.StatusCode)
		return
	}

	rate, err := readWAVHeader(resp.Body)
	if err != nil {
		p.metrics.RecordProviderError(ctx, "cori", "tts")
		slog.Error("cori stream header invalid", "error", err)
		return
	}

	buf := make([]byte, chunkSamples*2)
	for {
		n, err := io.ReadFull(resp.Body, buf)
		if n > 0 {
			n -= n % 2 // a torn trailing byte cannot form a sample
			samples, cerr := audio.SamplesFromPCM16(buf[:n])
			if cerr != nil {
				slog.Error("cori stream decode failed", "error", cerr)
				return
			}
			select {
			case out <- tts.Chunk{Samples: samples, SampleRate: rate}:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break // end of stream
			}
			if ctx.Err() != nil {
				return
			}
			p.metrics.RecordProviderError(ctx, "cori", "tts")
			slog.Error("cori stream read failed", "error", err)
			return
		}
	}

	p.metrics.RecordProviderRequest(ctx, "cori", "tts", "ok")
	p.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
}

// Ping reports whether the cori server is reachable. Any HTTP response
// below 500 counts as reachable.
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+healthEndpoint, nil)
	if err != nil {
		return fmt.Errorf("cori: create health request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cori: server unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("cori: server returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// readWAVHeader consumes the RIFF/WAVE container header from r up to the
// start of the data chunk and returns the stream's sample rate. Chunks are
// walked rather than assuming a fixed 44-byte layout because the fmt chunk
// size may vary. Streaming servers write a placeholder data length, so the
// data chunk size is ignored; the body's end marks the end of audio.
func readWAVHeader(r io.Reader) (int, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return 0, fmt.Errorf("read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return 0, errors.New("response is not a RIFF/WAVE stream")
	}

	sampleRate := 0
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return 0, fmt.Errorf("read chunk header: %w", err)
		}
		chunkID := string(hdr[0:4])
		chunkSize := int(binary.LittleEndian.Uint32(hdr[4:8]))

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return 0, fmt.Errorf("fmt chunk too small: %d bytes", chunkSize)
			}
			fmtData := make([]byte, chunkSize+chunkSize%2) // chunks are word-aligned
			if _, err := io.ReadFull(r, fmtData); err != nil {
				return 0, fmt.Errorf("read fmt chunk: %w", err)
			}
			if format := binary.LittleEndian.Uint16(fmtData[0:2]); format != 1 {
				return 0, fmt.Errorf("expected PCM audio, got format %d", format)
			}
			if channels := binary.LittleEndian.Uint16(fmtData[2:4]); channels != 1 {
				return 0, fmt.Errorf("expected mono audio, got %d channels", channels)
			}
			if bits := binary.LittleEndian.Uint16(fmtData[14:16]); bits != 16 {
				return 0, fmt.Errorf("expected 16-bit samples, got %d", bits)
			}
			sampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
		case "data":
			if sampleRate == 0 {
				return 0, errors.New("data chunk before fmt chunk")
			}
			return sampleRate, nil
		default:
			// Skip unknown chunks (LIST etc.), word-aligned.
			if _, err := io.CopyN(io.Discard, r, int64(chunkSize+chunkSize%2)); err != nil {
				return 0, fmt.Errorf("skip %q chunk: %w", chunkID, err)
			}
		}
	}
}
