// Package deepgram transcribes utterances with the Deepgram streaming
// WebSocket API. A connection is dialed per utterance and torn down after
// the server flushes its results, which keeps the provider stateless
// between turns.
//
// Unlike whisper.cpp, Deepgram supports true per-keyword boost weights, so
// [stt.KeywordBoost.Boost] values are honored here.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/auricle/internal/observe"
	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/MrWong99/auricle/pkg/provider/stt"
	"github.com/coder/websocket"
)

const (
	listenEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel    = "nova-3"
	defaultLanguage = "en"

	// sendChunkBytes is the binary message size audio is streamed in.
	sendChunkBytes = 8192

	transcriptQueueSize = 8
)

// closeStream asks Deepgram to flush buffered audio and end the stream.
var closeStream = []byte(`{"type":"CloseStream"}`)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel overrides the default "nova-3" recognition model.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithKeywords sets vocabulary boosts applied to every utterance, biasing
// recognition toward the wakeword and device names.
func WithKeywords(keywords []stt.KeywordBoost) Option {
	return func(p *Provider) { p.keywords = keywords }
}

// Provider is an stt.Provider that sends audio to Deepgram's hosted
// streaming recognizer.
type Provider struct {
	apiKey   string
	model    string
	language string
	keywords []stt.KeywordBoost
	metrics  *observe.Metrics
}

// New creates a Provider authenticated with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: api key is empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		metrics:  observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements [stt.Provider]. Each utterance is submitted on its
// own WebSocket connection; results arrive in utterance order.
func (p *Provider) Transcribe(ctx context.Context, in <-chan audio.Utterance) (<-chan stt.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("deepgram: context cancelled: %w", err)
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
				text, err := p.transcribeUtterance(ctx, u)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					p.metrics.RecordProviderError(ctx, "deepgram", "stt")
					slog.Error("deepgram transcription failed", "error", err, "audioDuration", u.Duration())
					continue
				}
				p.metrics.RecordProviderRequest(ctx, "deepgram", "stt", "ok")
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

// transcribeUtterance streams one utterance to Deepgram, requests a flush,
// and collects the final results until the server closes the socket.
func (p *Provider) transcribeUtterance(ctx context.Context, u audio.Utterance) (string, error) {
	wsURL, err := p.buildURL(u.SampleRate)
	if err != nil {
		return "", fmt.Errorf("build URL: %w", err)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Token " + p.apiKey}},
	})
	if err != nil {
		return "", fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusInternalError, "abandoned")

	pcm := audio.PCM16Bytes(u.Samples)
	for off := 0; off < len(pcm); off += sendChunkBytes {
		end := min(off+sendChunkBytes, len(pcm))
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			return "", fmt.Errorf("send audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, closeStream); err != nil {
		return "", fmt.Errorf("close stream: %w", err)
	}

	var parts []string
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, io.EOF) {
				break
			}
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			// The flush already happened; keep whatever was collected.
			if len(parts) > 0 {
				break
			}
			return "", fmt.Errorf("read results: %w", err)
		}
		r, ok := parseResult(msg)
		if !ok || !r.IsFinal || r.Text == "" {
			continue
		}
		parts = append(parts, r.Text)
	}
	conn.Close(websocket.StatusNormalClosure, "done")

	return strings.Join(parts, " "), nil
}

// buildURL renders the streaming endpoint URL for raw linear16 mono audio
// at the given sample rate.
func (p *Provider) buildURL(sampleRate int) (string, error) {
	u, err := url.Parse(listenEndpoint)
	if err != nil {
		return "", err
	}

	q := url.Values{
		"model":       {p.model},
		"language":    {p.language},
		"punctuate":   {"true"},
		"encoding":    {"linear16"},
		"sample_rate": {strconv.Itoa(sampleRate)},
		"channels":    {"1"},
	}
	for _, kw := range p.keywords {
		// Wire format is word:boost with the boost printed minimally, e.g. "barry:5".
		q.Add("keywords", kw.Keyword+":"+strconv.FormatFloat(kw.Boost, 'g', -1, 64))
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// ---- response parsing ----

// resultsEvent is the shape of a Deepgram "Results" message.
type resultsEvent struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []alternative `json:"alternatives"`
	} `json:"channel"`
}

type alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// result is a single parsed recognition event.
type result struct {
	Text    string
	IsFinal bool
}

// parseResult decodes a raw WebSocket message. The second return is false
// for anything that is not a usable Results event.
func parseResult(data []byte) (result, bool) {
	var ev resultsEvent
	if json.Unmarshal(data, &ev) != nil || ev.Type != "Results" {
		return result{}, false
	}
	alts := ev.Channel.Alternatives
	if len(alts) == 0 {
		return result{}, false
	}
	return result{Text: alts[0].Transcript, IsFinal: ev.IsFinal}, true
}
