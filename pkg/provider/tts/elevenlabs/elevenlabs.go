// Package elevenlabs implements tts.Provider on the ElevenLabs stream-input
// WebSocket API. Synthesis audio arrives as base64 PCM frames that are
// decoded and handed to the caller chunk by chunk, so playback can start
// before the full reply is rendered.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/auricle/internal/observe"
	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/MrWong99/auricle/pkg/provider/tts"
	"github.com/coder/websocket"
)

const (
	streamEndpoint = "wss://api.elevenlabs.io/v1/text-to-speech/%s/stream-input?model_id=%s"
	voicesEndpoint = "https://api.elevenlabs.io/v1/voices"

	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"

	chunkQueueSize = 8
)

// Compile-time interface assertions.
var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	model        string
	voiceID      string
	outputFormat string
	sampleRate   int
	httpClient   *http.Client
	metrics      *observe.Metrics
}

// Option configures a [Provider].
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g. "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithVoice sets the voice ID used for synthesis. Required before the first
// Synthesize call.
func WithVoice(voiceID string) Option {
	return func(p *Provider) { p.voiceID = voiceID }
}

// WithOutputFormat sets the audio output format. Only raw pcm_<rate>
// variants are accepted; the rate suffix becomes the sample rate of emitted
// chunks.
func WithOutputFormat(format string) Option {
	return func(p *Provider) { p.outputFormat = format }
}

// New builds a Provider for the given API key. The output format must be a
// pcm_<rate> variant; compressed formats cannot feed the playback sink.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		metrics:      observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(p)
	}

	rate, err := pcmRate(p.outputFormat)
	if err != nil {
		return nil, err
	}
	p.sampleRate = rate
	return p, nil
}

// pcmRate extracts the sample rate from a pcm_<rate> output format string.
func pcmRate(format string) (int, error) {
	suffix, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: unsupported output format %q (raw pcm_<rate> required)", format)
	}
	rate, err := strconv.Atoi(suffix)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("elevenlabs: invalid output format %q", format)
	}
	return rate, nil
}

// openMessage authenticates and configures the stream. ElevenLabs requires
// its text to be a single space.
type openMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
	OutputFormat  string         `json:"output_format,omitempty"`
}

// textMessage carries one text fragment; an empty Text is the flush command
// that ends the input.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// streamEvent is one server-to-client message on the synthesis socket.
type streamEvent struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
}

// Synthesize implements [tts.Provider]. It opens a WebSocket to ElevenLabs,
// submits the full text followed by a flush, and emits decoded PCM chunks
// until the service reports the final one.
func (p *Provider) Synthesize(ctx context.Context, text string) (<-chan tts.Chunk, error) {
	if p.voiceID == "" {
		return nil, errors.New("elevenlabs: voice ID must be configured (WithVoice)")
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("elevenlabs: text must not be empty")
	}

	conn, err := p.open(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan tts.Chunk, chunkQueueSize)
	go p.stream(ctx, conn, text, out)
	return out, nil
}

func (p *Provider) streamURL() string {
	return fmt.Sprintf(streamEndpoint, p.voiceID, p.model)
}

// open dials the synthesis socket and performs the handshake.
func (p *Provider) open(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, p.streamURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}

	hello, _ := json.Marshal(openMessage{
		Text:          " ",
		VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
		XiAPIKey:      p.apiKey,
		OutputFormat:  p.outputFormat,
	})
	if err := conn.Write(ctx, websocket.MessageText, hello); err != nil {
		conn.Close(websocket.StatusInternalError, "handshake failed")
		return nil, fmt.Errorf("elevenlabs: open stream: %w", err)
	}
	return conn, nil
}

// stream submits the text and forwards decoded audio until ElevenLabs marks
// the final chunk. Mid-stream failures are logged; channel close is the
// only signal the consumer observes.
func (p *Provider) stream(ctx context.Context, conn *websocket.Conn, text string, out chan<- tts.Chunk) {
	defer close(out)
	defer conn.Close(websocket.StatusNormalClosure, "done")
	start := time.Now()

	if err := conn.Write(ctx, websocket.MessageText, fragment(text)); err != nil {
		p.metrics.RecordProviderError(ctx, "elevenlabs", "tts")
		slog.Error("elevenlabs text submit failed", "error", err)
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, fragment("")); err != nil {
		p.metrics.RecordProviderError(ctx, "elevenlabs", "tts")
		slog.Error("elevenlabs flush failed", "error", err)
		return
	}

	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			// The service closes the socket after the final chunk; anything
			// else mid-stream is a real failure.
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || ctx.Err() != nil {
				return
			}
			p.metrics.RecordProviderError(ctx, "elevenlabs", "tts")
			slog.Error("elevenlabs stream read failed", "error", err)
			return
		}

		var ev streamEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			continue
		}
		if ev.Audio == "" {
			if ev.Message != "" {
				slog.Warn("elevenlabs service message", "message", ev.Message)
			}
			if ev.IsFinal {
				break
			}
			continue
		}

		samples, err := pcmSamples(ev.Audio)
		if err != nil {
			slog.Warn("elevenlabs audio payload decode failed", "error", err)
			continue
		}

		select {
		case out <- tts.Chunk{Samples: samples, SampleRate: p.sampleRate}:
		case <-ctx.Done():
			return
		}

		if ev.IsFinal {
			break
		}
	}

	p.metrics.RecordProviderRequest(ctx, "elevenlabs", "tts", "ok")
	p.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
}

// fragment renders the wire form of one text submission.
func fragment(text string) []byte {
	b, _ := json.Marshal(textMessage{Text: text})
	return b
}

// pcmSamples decodes a base64 audio payload into float32 samples. A torn
// trailing byte cannot form a sample and is dropped.
func pcmSamples(b64 string) ([]float32, error) {
	pcm, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	return audio.SamplesFromPCM16(pcm[:len(pcm)-len(pcm)%2])
}

// voicesResponse is the body of GET /v1/voices.
type voicesResponse struct {
	Voices []voiceEntry `json:"voices"`
}

type voiceEntry struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns the voices available to the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, voicesEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices read: %w", err)
	}
	return parseVoices(body)
}

// parseVoices converts a /v1/voices response body into voice profiles. The
// category joins the label map so callers see one flat metadata set.
func parseVoices(data []byte) ([]tts.VoiceProfile, error) {
	var vr voicesResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: decode voices: %w", err)
	}

	profiles := make([]tts.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		profiles = append(profiles, tts.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Metadata: meta,
		})
	}
	return profiles, nil
}
