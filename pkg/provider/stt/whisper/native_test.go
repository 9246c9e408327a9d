package whisper_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/MrWong99/auricle/pkg/provider/stt"
	"github.com/MrWong99/auricle/pkg/provider/stt/whisper"
)

// nativeModel loads the whisper.cpp model named by WHISPER_MODEL_PATH and
// registers its cleanup. Tests that need real inference are skipped when the
// variable is unset.
func nativeModel(t *testing.T, opts ...whisper.NativeOption) *whisper.NativeProvider {
	t.Helper()
	path := os.Getenv("WHISPER_MODEL_PATH")
	if path == "" {
		t.Skip("set WHISPER_MODEL_PATH to run whisper.cpp integration tests")
	}
	p, err := whisper.NewNative(path, opts...)
	if err != nil {
		t.Fatalf("NewNative(%q) error = %v", path, err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func TestNewNativeRejectsBadModelPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
	}{
		{name: "empty path", path: ""},
		{name: "nonexistent file", path: "/nonexistent/path/to/model.bin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := whisper.NewNative(tt.path); err == nil {
				t.Fatalf("NewNative(%q) error = nil, want non-nil", tt.path)
			}
		})
	}
}

func TestNativeTranscribeCancelledContext(t *testing.T) {
	t.Parallel()

	p := nativeModel(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Transcribe(ctx, make(chan audio.Utterance)); err == nil {
		t.Fatal("Transcribe() error = nil, want error for cancelled context")
	}
}

func TestNativeTranscribe(t *testing.T) {
	t.Parallel()

	p := nativeModel(t,
		whisper.WithNativeLanguage("en"),
		whisper.WithNativeKeywords([]stt.KeywordBoost{{Keyword: "barry"}}),
	)

	in := make(chan audio.Utterance, 1)
	in <- speechUtterance(32000, 16000)
	close(in)

	out, err := p.Transcribe(context.Background(), in)
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	// What the model hears in a synthetic sine wave is anyone's guess; assert
	// the shape of the stream, not the words.
	select {
	case tr, ok := <-out:
		if !ok {
			t.Fatal("output channel closed before emitting a transcript")
		}
		t.Logf("transcribed text: %q", tr.Text)
		if tr.AudioDuration != 2*time.Second {
			t.Errorf("AudioDuration = %v, want %v", tr.AudioDuration, 2*time.Second)
		}
	case <-time.After(60 * time.Second):
		t.Fatal("timed out waiting for transcript")
	}

	select {
	case _, ok := <-out:
		if ok {
			t.Error("output channel still open after input was exhausted")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for output channel to close")
	}
}
