package deepgram

import (
	"context"
	"net/url"
	"slices"
	"testing"

	"github.com/MrWong99/auricle/pkg/audio"
	"github.com/MrWong99/auricle/pkg/provider/stt"
)

// queryFor builds the streaming URL for p and returns its parsed query.
func queryFor(t *testing.T, p *Provider, sampleRate int) url.Values {
	t.Helper()
	rawURL, err := p.buildURL(sampleRate)
	if err != nil {
		t.Fatalf("buildURL(%d) error = %v", sampleRate, err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("url.Parse(%q) error = %v", rawURL, err)
	}
	return u.Query()
}

func TestBuildURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		opts       []Option
		sampleRate int
		want       map[string]string
	}{
		{
			name:       "defaults",
			sampleRate: 16000,
			want: map[string]string{
				"model":       "nova-3",
				"language":    "en",
				"punctuate":   "true",
				"encoding":    "linear16",
				"sample_rate": "16000",
				"channels":    "1",
			},
		},
		{
			name:       "custom model and language",
			opts:       []Option{WithModel("base"), WithLanguage("de-DE")},
			sampleRate: 48000,
			want: map[string]string{
				"model":       "base",
				"language":    "de-DE",
				"sample_rate": "48000",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := New("key", tt.opts...)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			q := queryFor(t, p, tt.sampleRate)
			for param, want := range tt.want {
				if got := q.Get(param); got != want {
					t.Errorf("query param %s = %q, want %q", param, got, want)
				}
			}
		})
	}
}

func TestBuildURLKeywords(t *testing.T) {
	t.Parallel()

	t.Run("boosts are colon joined", func(t *testing.T) {
		t.Parallel()
		p, err := New("key", WithKeywords([]stt.KeywordBoost{
			{Keyword: "barry", Boost: 5},
			{Keyword: "hue", Boost: 3.5},
		}))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		got := queryFor(t, p, 16000)["keywords"]
		slices.Sort(got)
		want := []string{"barry:5", "hue:3.5"}
		if !slices.Equal(got, want) {
			t.Fatalf("keywords = %v, want %v", got, want)
		}
	})

	t.Run("absent when none configured", func(t *testing.T) {
		t.Parallel()
		p, err := New("key")
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if got, ok := queryFor(t, p, 16000)["keywords"]; ok {
			t.Fatalf("keywords = %v, want param absent", got)
		}
	})
}

func TestParseResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		wantOK    bool
		wantText  string
		wantFinal bool
	}{
		{
			name:      "final transcript",
			raw:       `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"Hello world","confidence":0.95}]}}`,
			wantOK:    true,
			wantText:  "Hello world",
			wantFinal: true,
		},
		{
			name:     "interim transcript",
			raw:      `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"Hello","confidence":0.7}]}}`,
			wantOK:   true,
			wantText: "Hello",
		},
		{
			name: "metadata event is skipped",
			raw:  `{"type":"Metadata","request_id":"abc"}`,
		},
		{
			name: "no alternatives",
			raw:  `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`,
		},
		{
			name: "malformed payload",
			raw:  `{invalid`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, ok := parseResult([]byte(tt.raw))
			if ok != tt.wantOK {
				t.Fatalf("parseResult() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if r.Text != tt.wantText {
				t.Errorf("parseResult() Text = %q, want %q", r.Text, tt.wantText)
			}
			if r.IsFinal != tt.wantFinal {
				t.Errorf("parseResult() IsFinal = %v, want %v", r.IsFinal, tt.wantFinal)
			}
		})
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("rejects empty api key", func(t *testing.T) {
		t.Parallel()
		if _, err := New(""); err == nil {
			t.Fatal("New(\"\") error = nil, want non-nil")
		}
	})

	t.Run("applies defaults", func(t *testing.T) {
		t.Parallel()
		p, err := New("key")
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if p.model != defaultModel {
			t.Errorf("model = %q, want %q", p.model, defaultModel)
		}
		if p.language != defaultLanguage {
			t.Errorf("language = %q, want %q", p.language, defaultLanguage)
		}
	})
}

func TestTranscribeCancelledContext(t *testing.T) {
	t.Parallel()

	p, err := New("key")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Transcribe(ctx, make(chan audio.Utterance)); err == nil {
		t.Fatal("Transcribe() error = nil, want error for cancelled context")
	}
}
