package timers

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// writeWAV writes a minimal PCM16 WAV file for decoder tests.
func writeWAV(t *testing.T, path string, rate, channels int, samples []int16) {
	t.Helper()

	var pcm bytes.Buffer
	for _, s := range samples {
		binary.Write(&pcm, binary.LittleEndian, s)
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+pcm.Len()))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(rate))
	binary.Write(&buf, binary.LittleEndian, uint32(rate*channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(pcm.Len()))
	buf.Write(pcm.Bytes())

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
}

func TestLoadAlarm_Mono(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "alarm.wav")
	writeWAV(t, path, 8000, 1, []int16{0, 16384, -16384})

	samples, rate, err := LoadAlarm(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate != 8000 {
		t.Errorf("got rate %d, want 8000", rate)
	}
	if len(samples) != 3 {
		t.Fatalf("got %d samples, want 3", len(samples))
	}
	want := []float32{0, 0.5, -0.5}
	for i, w := range want {
		if math.Abs(float64(samples[i]-w)) > 1e-3 {
			t.Errorf("sample %d = %f, want %f", i, samples[i], w)
		}
	}
}

func TestLoadAlarm_StereoDownmix(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "alarm.wav")
	// Two frames: L/R cancel out, then L/R average to a quarter scale.
	writeWAV(t, path, 22050, 2, []int16{16384, -16384, 8192, 8192})

	samples, rate, err := LoadAlarm(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate != 22050 {
		t.Errorf("got rate %d, want 22050", rate)
	}
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}
	if math.Abs(float64(samples[0])) > 1e-3 {
		t.Errorf("sample 0 = %f, want cancellation to 0", samples[0])
	}
	if math.Abs(float64(samples[1]-0.25)) > 1e-3 {
		t.Errorf("sample 1 = %f, want 0.25", samples[1])
	}
}

func TestLoadAlarm_InvalidFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "alarm.wav")
	if err := os.WriteFile(path, []byte("not a wav"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if _, _, err := LoadAlarm(path); err == nil {
		t.Error("expected an error for a non-WAV file")
	}
}

func TestLoadAlarm_MissingFile(t *testing.T) {
	t.Parallel()

	if _, _, err := LoadAlarm(filepath.Join(t.TempDir(), "nope.wav")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestFallbackTone(t *testing.T) {
	t.Parallel()

	samples, rate := FallbackTone()
	if rate != 16000 {
		t.Errorf("got rate %d, want 16000", rate)
	}
	if len(samples) != 8000 {
		t.Errorf("got %d samples, want half a second at 16 kHz", len(samples))
	}

	var peak float64
	for _, s := range samples {
		if v := math.Abs(float64(s)); v > peak {
			peak = v
		}
	}
	if peak == 0 {
		t.Error("tone is silent")
	}
	if peak > 0.4 {
		t.Errorf("peak %f exceeds the 0.4 amplitude cap", peak)
	}
}
