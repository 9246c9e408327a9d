// Package segment turns the continuously captured frame stream into
// discrete spoken utterances.
//
// The segmenter polls the shared frame buffer on a fixed cadence and
// watches the energy of the most recently captured frame. An utterance
// closes once enough consecutive trailing frames are silent, or once the
// buffered audio exceeds the maximum utterance length. Everything
// accumulated up to that point — leading silence included — is
// concatenated and emitted when it meets the minimum length; shorter
// spans are discarded as noise.
//
// While the capture gate is closed the segmenter clears the buffer and
// silence counter on every poll, so audio captured moments before the
// assistant started speaking never leaks into the next utterance.
package segment

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/auricle/internal/observe"
	"github.com/MrWong99/auricle/pkg/audio"
)

// Defaults for [Config]. The cadence and thresholds are tuned for
// conversational speech on a living-room microphone.
const (
	DefaultSampleRate    = 16000
	DefaultFrameInterval = 200 * time.Millisecond
	DefaultSilenceAfter  = time.Second
	DefaultMinUtterance  = 1500 * time.Millisecond
	DefaultMaxUtterance  = 10 * time.Second
)

// utteranceQueueSize bounds the emit channel. The transcription stage
// normally keeps up; the buffer only absorbs short bursts.
const utteranceQueueSize = 8

// Config holds the segmentation parameters. Zero values fall back to the
// package defaults.
type Config struct {
	// SampleRate of the captured audio in Hz.
	SampleRate int

	// FrameInterval is the poll cadence and the nominal duration of one
	// captured frame.
	FrameInterval time.Duration

	// SilenceAfter is how much trailing silence closes an utterance.
	SilenceAfter time.Duration

	// MinUtterance is the minimum total length an utterance must reach to
	// be emitted.
	MinUtterance time.Duration

	// MaxUtterance force-closes an utterance once the buffered audio
	// exceeds it, even while speech is ongoing.
	MaxUtterance time.Duration

	// SilenceThreshold is the RMS level below which a frame counts as
	// silent.
	SilenceThreshold float64
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = DefaultFrameInterval
	}
	if c.SilenceAfter <= 0 {
		c.SilenceAfter = DefaultSilenceAfter
	}
	if c.MinUtterance <= 0 {
		c.MinUtterance = DefaultMinUtterance
	}
	if c.MaxUtterance <= 0 {
		c.MaxUtterance = DefaultMaxUtterance
	}
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = audio.DefaultSilenceThreshold
	}
	return c
}

// samplesFor converts a duration to a sample count at the configured rate.
func (c Config) samplesFor(d time.Duration) int {
	return int(int64(c.SampleRate) * int64(d) / int64(time.Second))
}

// Segmenter watches a shared [audio.FrameBuffer] and emits utterances.
// Create one per capture stream with [New]; it is not restartable.
type Segmenter struct {
	cfg     Config
	buffer  *audio.FrameBuffer
	gate    *audio.Gate
	out     chan audio.Utterance
	metrics *observe.Metrics

	// closeFrames is the number of consecutive silent frames that closes
	// an utterance; maxSamples and minSamples are the length bounds.
	closeFrames int
	maxSamples  int
	minSamples  int

	// silentFrames counts consecutive trailing silent frames. Only the
	// polling goroutine touches it.
	silentFrames int
}

// New returns a segmenter reading from buffer, gated by gate. The zero
// fields of cfg take package defaults.
func New(cfg Config, buffer *audio.FrameBuffer, gate *audio.Gate) *Segmenter {
	cfg = cfg.withDefaults()
	return &Segmenter{
		cfg:         cfg,
		buffer:      buffer,
		gate:        gate,
		out:         make(chan audio.Utterance, utteranceQueueSize),
		metrics:     observe.DefaultMetrics(),
		closeFrames: int(cfg.SilenceAfter / cfg.FrameInterval),
		maxSamples:  cfg.samplesFor(cfg.MaxUtterance),
		minSamples:  cfg.samplesFor(cfg.MinUtterance),
	}
}

// Utterances returns the channel on which segmented utterances are
// delivered. The channel is closed when [Segmenter.Run] returns.
func (s *Segmenter) Utterances() <-chan audio.Utterance {
	return s.out
}

// Run polls the buffer every frame interval until ctx is cancelled. It
// closes the utterance channel on return; the consumer must drain it.
func (s *Segmenter) Run(ctx context.Context) error {
	defer close(s.out)

	slog.Info("segmenter started",
		"frameInterval", s.cfg.FrameInterval,
		"silenceAfter", s.cfg.SilenceAfter,
		"minUtterance", s.cfg.MinUtterance,
		"maxUtterance", s.cfg.MaxUtterance,
	)

	ticker := time.NewTicker(s.cfg.FrameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.scan(ctx)
		}
	}
}

// scan runs one poll cycle. The cycle either keeps accumulating (gate
// open, utterance still growing), flushes the buffer across an utterance
// boundary, or resets while the gate is closed.
func (s *Segmenter) scan(ctx context.Context) {
	if !s.gate.IsOpen() {
		// Capture suspended: drop partial audio so nothing stale carries
		// into the next utterance.
		s.buffer.Clear()
		s.silentFrames = 0
		return
	}

	if s.buffer.Len() == 0 {
		// Nothing captured since the last flush. The silence counter is
		// deliberately left alone: it describes the frames already in the
		// buffer, and there are none to re-judge.
		return
	}

	tail, _ := s.buffer.Tail()
	if audio.Silent(tail, s.cfg.SilenceThreshold) {
		s.silentFrames++
	} else {
		s.silentFrames = 0
	}

	if s.silentFrames < s.closeFrames && s.buffer.Samples() <= s.maxSamples {
		return
	}

	s.flush(ctx)
}

// flush closes the current utterance: it drains the whole buffer, resets
// the silence counter, and emits the samples if they are long enough.
func (s *Segmenter) flush(ctx context.Context) {
	samples := s.buffer.Drain()
	s.silentFrames = 0

	if len(samples) < s.minSamples {
		s.metrics.RecordUtterance(ctx, "discarded")
		slog.Debug("discarding short utterance",
			"samples", len(samples),
			"minSamples", s.minSamples,
		)
		return
	}

	u := audio.Utterance{Samples: samples, SampleRate: s.cfg.SampleRate}
	select {
	case s.out <- u:
		s.metrics.RecordUtterance(ctx, "emitted")
		slog.Debug("utterance segmented", "duration", u.Duration())
	case <-ctx.Done():
	}
}
