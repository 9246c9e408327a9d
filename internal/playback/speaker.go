// Package playback drives synthesized speech to the output device.
//
// One response is one continuous output stream: the speaker blocks until the
// first chunk arrives, opens the device at that chunk's sample rate, and
// writes every following chunk in arrival order until the stream ends.
// Writing each chunk through its own short-lived stream would be simpler, but
// the stream open/close boundaries produce audible clicks between chunks, so
// the single-stream policy is deliberate.
//
// Synthesis runs ahead of the device through a small bounded queue; once the
// queue is full the producer blocks, so a slow device naturally throttles how
// far synthesis can lead playback.
package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/auricle/internal/observe"
	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/MrWong99/auricle/pkg/provider/tts"
)

// queueSize bounds how many chunks synthesis may run ahead of the device.
const queueSize = 5

// Speaker plays synthesized responses through an audio platform.
//
// Say serializes callers: the assistant loop is single-threaded, but control
// channel "say" commands may arrive while a response is playing, and two
// responses must never overlap on the device.
type Speaker struct {
	platform audio.Platform
	synth    tts.Provider
	metrics  *observe.Metrics

	mu sync.Mutex
}

// New returns a Speaker that synthesizes through synth and plays through
// platform.
func New(platform audio.Platform, synth tts.Provider) *Speaker {
	return &Speaker{
		platform: platform,
		synth:    synth,
		metrics:  observe.DefaultMetrics(),
	}
}

// Say synthesizes text and blocks until the whole response has been written
// to the output device. A synthesis stream that ends before its first chunk
// (upstream failure or an empty response) plays nothing and returns nil; mid-
// stream synthesis errors likewise end playback after the chunks already
// received. Only device errors and a refused synthesis start are returned.
func (s *Speaker) Say(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()

	stream, err := s.synth.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("playback: start synthesis: %w", err)
	}

	queue := make(chan tts.Chunk, queueSize)
	go func() {
		defer close(queue)
		for chunk := range stream {
			select {
			case queue <- chunk:
			case <-ctx.Done():
				audio.Drain(stream)
				return
			}
		}
	}()

	first, ok := <-queue
	if !ok {
		slog.Debug("synthesis produced no audio", "text_len", len(text))
		return nil
	}

	out, err := s.platform.OpenOutput(first.SampleRate)
	if err != nil {
		go audio.Drain(queue)
		return fmt.Errorf("playback: open output at %d Hz: %w", first.SampleRate, err)
	}

	if err := s.writeAll(out, first, queue); err != nil {
		out.Close()
		go audio.Drain(queue)
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("playback: close output: %w", err)
	}

	s.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	return nil
}

// writeAll writes the first chunk and then every queued chunk to out.
// Chunks arriving at a different rate than the first are resampled to keep
// the single stream valid.
func (s *Speaker) writeAll(out audio.OutputStream, first tts.Chunk, queue <-chan tts.Chunk) error {
	if err := out.Write(first.Samples); err != nil {
		return fmt.Errorf("playback: write: %w", err)
	}
	for chunk := range queue {
		samples := chunk.Samples
		if chunk.SampleRate != first.SampleRate {
			slog.Warn("sample rate changed mid-response",
				"first", first.SampleRate, "got", chunk.SampleRate)
			samples = audio.Resample(samples, chunk.SampleRate, first.SampleRate)
		}
		if err := out.Write(samples); err != nil {
			return fmt.Errorf("playback: write: %w", err)
		}
	}
	return nil
}

// Play writes a raw sample buffer to the output device as one stream,
// blocking until the device has consumed it. Timers use it for alarm tones;
// no synthesis is involved.
func (s *Speaker) Play(ctx context.Context, samples []float32, sampleRate int) error {
	if len(samples) == 0 {
		return nil
	}
	if sampleRate <= 0 {
		return fmt.Errorf("playback: invalid sample rate %d", sampleRate)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := s.platform.OpenOutput(sampleRate)
	if err != nil {
		return fmt.Errorf("playback: open output at %d Hz: %w", sampleRate, err)
	}
	if err := out.Write(samples); err != nil {
		out.Close()
		return fmt.Errorf("playback: write: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("playback: close output: %w", err)
	}
	return nil
}
