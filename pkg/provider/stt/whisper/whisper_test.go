package whisper_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/MrWong99/auricle/pkg/provider/stt"
	"github.com/MrWong99/auricle/pkg/provider/stt/whisper"
)

// ---- helpers ----------------------------------------------------------------

// newMockServer creates a test server that responds to POST /inference with a
// JSON body containing the provided responseText. It increments *callCount on
// every matched request.
func newMockServer(t *testing.T, responseText string, callCount *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if callCount != nil {
			callCount.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
}

// speechUtterance generates a sine-wave utterance at 440 Hz.
func speechUtterance(samples, sampleRate int) audio.Utterance {
	data := make([]float32, samples)
	for i := range data {
		data[i] = 0.3 * float32(math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}
	return audio.Utterance{Samples: data, SampleRate: sampleRate}
}

// transcribeOne pushes a single utterance through the provider and returns
// all transcripts emitted before the output channel closed.
func transcribeOne(t *testing.T, p *whisper.Provider, u audio.Utterance) []stt.Transcript {
	t.Helper()
	in := make(chan audio.Utterance, 1)
	in <- u
	close(in)

	out, err := p.Transcribe(context.Background(), in)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	var got []stt.Transcript
	timeout := time.After(5 * time.Second)
	for {
		select {
		case tr, ok := <-out:
			if !ok {
				return got
			}
			got = append(got, tr)
		case <-timeout:
			t.Fatal("timed out waiting for transcripts")
		}
	}
}

// ---- provider construction --------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	_, err := whisper.New("")
	if err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestNew_WithOptions_DoesNotError(t *testing.T) {
	p, err := whisper.New("http://localhost:8080",
		whisper.WithModel("small"),
		whisper.WithLanguage("de"),
		whisper.WithKeywords([]stt.KeywordBoost{{Keyword: "barry"}}),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil Provider")
	}
}

// ---- transcription ----------------------------------------------------------

func TestTranscribe_CancelledContext_ReturnsError(t *testing.T) {
	p, _ := whisper.New("http://localhost:8080")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Transcribe(ctx, make(chan audio.Utterance)); err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
}

func TestTranscribe_EmitsOneTranscriptPerUtterance(t *testing.T) {
	var calls atomic.Int32
	srv := newMockServer(t, "what time is it", &calls)
	defer srv.Close()

	p, _ := whisper.New(srv.URL)

	in := make(chan audio.Utterance, 2)
	in <- speechUtterance(24000, 16000)
	in <- speechUtterance(32000, 16000)
	close(in)

	out, err := p.Transcribe(context.Background(), in)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	var got []stt.Transcript
	for tr := range out {
		got = append(got, tr)
	}
	if len(got) != 2 {
		t.Fatalf("got %d transcripts, want 2", len(got))
	}
	for i, tr := range got {
		if tr.Text != "what time is it" {
			t.Errorf("transcript %d text = %q, want %q", i, tr.Text, "what time is it")
		}
	}
	if got[0].AudioDuration != 1500*time.Millisecond {
		t.Errorf("transcript 0 audio duration = %v, want 1.5s", got[0].AudioDuration)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("server called %d time(s), want 2", n)
	}
}

func TestTranscribe_TrimsWhitespace(t *testing.T) {
	srv := newMockServer(t, "  hey barry turn on the lights \n", nil)
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	got := transcribeOne(t, p, speechUtterance(24000, 16000))
	if len(got) != 1 {
		t.Fatalf("got %d transcripts, want 1", len(got))
	}
	if got[0].Text != "hey barry turn on the lights" {
		t.Errorf("text = %q, want trimmed text", got[0].Text)
	}
}

func TestTranscribe_EmptyText_StillEmitted(t *testing.T) {
	srv := newMockServer(t, "", nil)
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	got := transcribeOne(t, p, speechUtterance(24000, 16000))
	if len(got) != 1 {
		t.Fatalf("got %d transcripts, want 1 (empty text is a valid result)", len(got))
	}
	if got[0].Text != "" {
		t.Errorf("text = %q, want empty", got[0].Text)
	}
}

func TestTranscribe_ServerError_SkipsUtterance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	got := transcribeOne(t, p, speechUtterance(24000, 16000))
	if len(got) != 0 {
		t.Errorf("got %d transcripts on server error, want 0", len(got))
	}
}

func TestTranscribe_SendsHintFields(t *testing.T) {
	var gotLanguage, gotModel, gotPrompt string
	var gotFile []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(16 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotLanguage = r.FormValue("language")
		gotModel = r.FormValue("model")
		gotPrompt = r.FormValue("prompt")
		if f, _, err := r.FormFile("file"); err == nil {
			gotFile, _ = io.ReadAll(f)
			f.Close()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "ok"})
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL,
		whisper.WithLanguage("de"),
		whisper.WithModel("small"),
		whisper.WithKeywords([]stt.KeywordBoost{{Keyword: "barry"}, {Keyword: "hue"}}),
	)
	transcribeOne(t, p, speechUtterance(24000, 16000))

	if gotLanguage != "de" {
		t.Errorf("language field = %q, want %q", gotLanguage, "de")
	}
	if gotModel != "small" {
		t.Errorf("model field = %q, want %q", gotModel, "small")
	}
	if gotPrompt != "barry, hue" {
		t.Errorf("prompt field = %q, want %q", gotPrompt, "barry, hue")
	}
	if len(gotFile) == 0 {
		t.Fatal("no file field received")
	}
	if string(gotFile[0:4]) != "RIFF" || string(gotFile[8:12]) != "WAVE" {
		t.Error("file field is not a WAV container")
	}
}

func TestTranscribe_ResamplesToWhisperRate(t *testing.T) {
	var gotFile []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(16 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if f, _, err := r.FormFile("file"); err == nil {
			gotFile, _ = io.ReadAll(f)
			f.Close()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "ok"})
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	// 1 second at 8 kHz should be upsampled to 16 kHz.
	transcribeOne(t, p, speechUtterance(8000, 8000))

	if len(gotFile) < 44 {
		t.Fatal("no WAV received")
	}
	rate := binary.LittleEndian.Uint32(gotFile[24:28])
	if rate != 16000 {
		t.Errorf("WAV sample rate = %d, want 16000", rate)
	}
	dataSize := binary.LittleEndian.Uint32(gotFile[40:44])
	if dataSize != 16000*2 {
		t.Errorf("WAV data size = %d bytes, want %d", dataSize, 16000*2)
	}
}

// ---- health -----------------------------------------------------------------

func TestPing_Reachable(t *testing.T) {
	srv := newMockServer(t, "", nil)
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	// The mock server 404s on /health; reachability is still a pass.
	if err := p.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestPing_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	if err := p.Ping(context.Background()); err == nil {
		t.Error("expected error for HTTP 500")
	}
}

func TestPing_Unreachable(t *testing.T) {
	srv := newMockServer(t, "", nil)
	srv.Close() // shut down immediately

	p, _ := whisper.New(srv.URL)
	if err := p.Ping(context.Background()); err == nil {
		t.Error("expected error for unreachable server")
	}
}
