package cori

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/MrWong99/auricle/pkg/provider/tts"
)

// ---- test helpers ----

// buildStreamWAV constructs a RIFF/WAVE byte stream the way a streaming
// server would: a 44-byte header with a placeholder data length followed by
// the raw PCM payload.
func buildStreamWAV(sampleRate int, pcm []byte) []byte {
	var buf bytes.Buffer
	le := binary.LittleEndian

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, le, uint32(0xFFFFFFFF)) // unknown total size
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, le, uint32(16))
	_ = binary.Write(&buf, le, uint16(1)) // PCM
	_ = binary.Write(&buf, le, uint16(1)) // mono
	_ = binary.Write(&buf, le, uint32(sampleRate))
	_ = binary.Write(&buf, le, uint32(sampleRate*2)) // byte rate
	_ = binary.Write(&buf, le, uint16(2))            // block align
	_ = binary.Write(&buf, le, uint16(16))           // bits per sample

	buf.WriteString("data")
	_ = binary.Write(&buf, le, uint32(0xFFFFFFFF)) // unknown data size

	buf.Write(pcm)
	return buf.Bytes()
}

// sinePCM returns n samples of a 440 Hz sine encoded as 16-bit PCM.
func sinePCM(n, sampleRate int) []byte {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.3 * float32(math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}
	return audio.PCM16Bytes(samples)
}

// collectChunks drains the chunk channel until it closes or the timeout fires.
func collectChunks(t *testing.T, ch <-chan tts.Chunk) []tts.Chunk {
	t.Helper()
	var got []tts.Chunk
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, c)
		case <-timeout:
			t.Fatal("timed out waiting for chunk channel to close")
		}
	}
}

func totalSamples(chunks []tts.Chunk) int {
	n := 0
	for _, c := range chunks {
		n += len(c.Samples)
	}
	return n
}

// ---- construction ----

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("http://localhost:8880/")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.serverURL != "http://localhost:8880" {
		t.Errorf("serverURL = %q, want trailing slash trimmed", p.serverURL)
	}
	if p.voice != "cori" {
		t.Errorf("voice = %q, want %q", p.voice, "cori")
	}
	if p.language != "english" {
		t.Errorf("language = %q, want %q", p.language, "english")
	}
	if p.speed != 1.0 {
		t.Errorf("speed = %v, want 1.0", p.speed)
	}
}

func TestNew_Options(t *testing.T) {
	p, err := New("http://localhost:8880",
		WithVoice("sage"),
		WithLanguage("german"),
		WithSpeed(1.25),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.voice != "sage" || p.language != "german" || p.speed != 1.25 {
		t.Errorf("options not applied: voice=%q language=%q speed=%v", p.voice, p.language, p.speed)
	}
}

// ---- Synthesize ----

func TestSynthesize_EmptyText_ReturnsError(t *testing.T) {
	p, _ := New("http://localhost:8880")
	if _, err := p.Synthesize(context.Background(), "   "); err == nil {
		t.Fatal("expected error for blank text, got nil")
	}
}

func TestSynthesize_CancelledContext_ReturnsError(t *testing.T) {
	p, _ := New("http://localhost:8880")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Synthesize(ctx, "hello"); err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
}

func TestSynthesize_StreamsChunks(t *testing.T) {
	const rate = 24000
	pcm := sinePCM(5000, rate)

	var gotReq synthesisRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/stream" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "audio/wav")

		// Stream the response in slices like a live synthesis server.
		wav := buildStreamWAV(rate, pcm)
		flusher := w.(http.Flusher)
		for off := 0; off < len(wav); off += 1000 {
			end := min(off+1000, len(wav))
			_, _ = w.Write(wav[off:end])
			flusher.Flush()
		}
	}))
	defer srv.Close()

	p, _ := New(srv.URL, WithVoice("cori"), WithSpeed(1.5))
	ch, err := p.Synthesize(context.Background(), "The lights are on.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	chunks := collectChunks(t, ch)
	if len(chunks) == 0 {
		t.Fatal("no chunks received")
	}
	for i, c := range chunks {
		if c.SampleRate != rate {
			t.Errorf("chunk %d sample rate = %d, want %d", i, c.SampleRate, rate)
		}
	}
	if got := totalSamples(chunks); got != 5000 {
		t.Errorf("total samples = %d, want 5000", got)
	}
	// 5000 samples at 2048 per chunk: 2048 + 2048 + 904.
	if len(chunks) != 3 {
		t.Errorf("chunk count = %d, want 3", len(chunks))
	}
	if len(chunks[2].Samples) != 904 {
		t.Errorf("final chunk length = %d, want 904", len(chunks[2].Samples))
	}

	if gotReq.Text != "The lights are on." {
		t.Errorf("request text = %q", gotReq.Text)
	}
	if gotReq.Voice != "cori" {
		t.Errorf("request voice = %q, want %q", gotReq.Voice, "cori")
	}
	if gotReq.Speed != 1.5 {
		t.Errorf("request speed = %v, want 1.5", gotReq.Speed)
	}
}

func TestSynthesize_ServerError_ClosesWithoutChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	ch, err := p.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if chunks := collectChunks(t, ch); len(chunks) != 0 {
		t.Errorf("got %d chunks from failed synthesis, want 0", len(chunks))
	}
}

func TestSynthesize_Unreachable_ClosesWithoutChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // shut down immediately

	p, _ := New(srv.URL)
	ch, err := p.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if chunks := collectChunks(t, ch); len(chunks) != 0 {
		t.Errorf("got %d chunks from unreachable server, want 0", len(chunks))
	}
}

func TestSynthesize_NonWAVResponse_ClosesWithoutChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("this is not audio"))
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	ch, err := p.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if chunks := collectChunks(t, ch); len(chunks) != 0 {
		t.Errorf("got %d chunks from non-WAV response, want 0", len(chunks))
	}
}

func TestSynthesize_ShortStream_DeliversPartialChunk(t *testing.T) {
	const rate = 16000
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Less than one full chunk of PCM.
		wav := buildStreamWAV(rate, sinePCM(1000, rate))
		_, _ = w.Write(wav)
		w.(http.Flusher).Flush()
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	ch, err := p.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	chunks := collectChunks(t, ch)
	if got := totalSamples(chunks); got != 1000 {
		t.Errorf("total samples = %d, want the 1000 that arrived", got)
	}
}

func TestSynthesize_ContextCancellation(t *testing.T) {
	const rate = 16000
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wav := buildStreamWAV(rate, sinePCM(2048, rate))
		_, _ = w.Write(wav)
		w.(http.Flusher).Flush()
		<-release // hold the stream open
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	p, _ := New(srv.URL)
	ch, err := p.Synthesize(ctx, "hello")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	// Receive the first chunk, then cancel mid-stream.
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first chunk")
	}
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			// One buffered chunk may still be in flight; the next receive
			// must observe the close.
			if _, ok := <-ch; ok {
				t.Error("channel still open after cancellation")
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed after cancellation")
	}
}

// ---- WAV header parsing ----

func TestReadWAVHeader(t *testing.T) {
	t.Run("valid stream", func(t *testing.T) {
		r := bytes.NewReader(buildStreamWAV(22050, []byte{1, 2, 3, 4}))
		rate, err := readWAVHeader(r)
		if err != nil {
			t.Fatalf("readWAVHeader: %v", err)
		}
		if rate != 22050 {
			t.Errorf("rate = %d, want 22050", rate)
		}
		// The PCM payload must remain unread.
		rest := make([]byte, 4)
		if _, err := r.Read(rest); err != nil {
			t.Fatalf("read payload: %v", err)
		}
		if !bytes.Equal(rest, []byte{1, 2, 3, 4}) {
			t.Errorf("payload = %v, want untouched PCM", rest)
		}
	})

	t.Run("extra chunk before data", func(t *testing.T) {
		wav := buildStreamWAV(16000, []byte{9, 9})
		// Splice a LIST chunk between fmt and data.
		var list bytes.Buffer
		list.WriteString("LIST")
		_ = binary.Write(&list, binary.LittleEndian, uint32(4))
		list.WriteString("INFO")
		spliced := append(append(append([]byte{}, wav[:36]...), list.Bytes()...), wav[36:]...)

		rate, err := readWAVHeader(bytes.NewReader(spliced))
		if err != nil {
			t.Fatalf("readWAVHeader: %v", err)
		}
		if rate != 16000 {
			t.Errorf("rate = %d, want 16000", rate)
		}
	})

	t.Run("not RIFF", func(t *testing.T) {
		if _, err := readWAVHeader(strings.NewReader("OggS\x00\x00\x00\x00\x00\x00\x00\x00")); err == nil {
			t.Error("expected error for non-RIFF stream")
		}
	})

	t.Run("truncated header", func(t *testing.T) {
		if _, err := readWAVHeader(strings.NewReader("RIFF")); err == nil {
			t.Error("expected error for truncated header")
		}
	})

	t.Run("stereo rejected", func(t *testing.T) {
		wav := buildStreamWAV(16000, nil)
		binary.LittleEndian.PutUint16(wav[22:24], 2) // channels
		if _, err := readWAVHeader(bytes.NewReader(wav)); err == nil {
			t.Error("expected error for stereo stream")
		}
	})

	t.Run("non-PCM rejected", func(t *testing.T) {
		wav := buildStreamWAV(16000, nil)
		binary.LittleEndian.PutUint16(wav[20:22], 3) // IEEE float
		if _, err := readWAVHeader(bytes.NewReader(wav)); err == nil {
			t.Error("expected error for non-PCM format")
		}
	})
}

// ---- health ----

func TestPing(t *testing.T) {
	t.Run("reachable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()
		p, _ := New(srv.URL)
		if err := p.Ping(context.Background()); err != nil {
			t.Errorf("Ping: %v", err)
		}
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()
		p, _ := New(srv.URL)
		if err := p.Ping(context.Background()); err == nil {
			t.Error("expected error for HTTP 500")
		}
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()
		p, _ := New(srv.URL)
		if err := p.Ping(context.Background()); err == nil {
			t.Error("expected error for unreachable server")
		}
	})
}
