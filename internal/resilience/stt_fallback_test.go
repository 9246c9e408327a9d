package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/MrWong99/auricle/pkg/provider/stt"
	sttmock "github.com/MrWong99/auricle/pkg/provider/stt/mock"
)

func TestSTTFallback_Transcribe_PrimarySuccess(t *testing.T) {
	primary := &sttmock.Provider{
		Results: []stt.Transcript{{Text: "hello world"}},
	}
	secondary := &sttmock.Provider{}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		Breaker: BreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	in := make(chan audio.Utterance, 1)
	out, err := fb.Transcribe(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	in <- audio.Utterance{Samples: make([]float32, 16000), SampleRate: 16000}
	close(in)

	select {
	case tr := <-out:
		if tr.Text != "hello world" {
			t.Fatalf("transcript = %q, want 'hello world'", tr.Text)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for transcript")
	}

	if primary.TranscribeCallCount != 1 {
		t.Fatalf("primary called %d times, want 1", primary.TranscribeCallCount)
	}
	if secondary.TranscribeCallCount != 0 {
		t.Fatalf("secondary called %d times, want 0", secondary.TranscribeCallCount)
	}
}

func TestSTTFallback_Transcribe_Failover(t *testing.T) {
	primary := &sttmock.Provider{TranscribeErr: errors.New("primary down")}
	secondary := &sttmock.Provider{
		Results: []stt.Transcript{{Text: "from secondary"}},
	}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		Breaker: BreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	in := make(chan audio.Utterance, 1)
	out, err := fb.Transcribe(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	in <- audio.Utterance{Samples: make([]float32, 8000), SampleRate: 16000}
	close(in)

	select {
	case tr := <-out:
		if tr.Text != "from secondary" {
			t.Fatalf("transcript = %q, want 'from secondary'", tr.Text)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for transcript")
	}

	if secondary.TranscribeCallCount != 1 {
		t.Fatalf("secondary called %d times, want 1", secondary.TranscribeCallCount)
	}
}

func TestSTTFallback_Transcribe_AllFail(t *testing.T) {
	primary := &sttmock.Provider{TranscribeErr: errors.New("primary down")}
	secondary := &sttmock.Provider{TranscribeErr: errors.New("secondary down")}

	fb := NewSTTFallback(primary, "primary", FallbackConfig{
		Breaker: BreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	in := make(chan audio.Utterance)
	_, err := fb.Transcribe(context.Background(), in)
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
