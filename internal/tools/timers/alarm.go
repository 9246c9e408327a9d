package timers

import (
	"errors"
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// LoadAlarm decodes a WAV file into mono float32 samples and its sample
// rate for use as the expiry alarm sound.
func LoadAlarm(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("timers: open alarm: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("timers: %s is not a valid WAV file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil || buf == nil || buf.Data == nil {
		if err == nil {
			err = errors.New("empty file")
		}
		return nil, 0, fmt.Errorf("timers: decode alarm: %w", err)
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = 16
	}
	samples, rate := monoFloat32(buf, depth)
	return samples, rate, nil
}

// monoFloat32 converts a decoded PCM buffer to normalized mono samples,
// averaging interleaved channels.
func monoFloat32(buf *goaudio.IntBuffer, depth int) ([]float32, int) {
	scale := float32(int(1) << (depth - 1))
	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / scale
	}

	channels, rate := 1, 44100
	if buf.Format != nil {
		if buf.Format.NumChannels > 0 {
			channels = buf.Format.NumChannels
		}
		if buf.Format.SampleRate > 0 {
			rate = buf.Format.SampleRate
		}
	}
	if channels > 1 {
		mono := make([]float32, len(samples)/channels)
		for i := range mono {
			var sum float32
			for c := 0; c < channels; c++ {
				sum += samples[i*channels+c]
			}
			mono[i] = sum / float32(channels)
		}
		samples = mono
	}
	return samples, rate
}

// FallbackTone synthesizes the built-in alarm beep used when no alarm WAV
// is configured: half a second of 880 Hz sine with a linear fade-out.
func FallbackTone() ([]float32, int) {
	const (
		rate = 16000
		freq = 880.0
	)
	n := rate / 2
	samples := make([]float32, n)
	for i := range samples {
		v := 0.4 * math.Sin(2*math.Pi*freq*float64(i)/rate)
		fade := 1 - float64(i)/float64(n)
		samples[i] = float32(v * fade)
	}
	return samples, rate
}
