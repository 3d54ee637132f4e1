package speech

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zhouzirui/voice-pipeline/backend/internal/config"
)

func TestSplitTTSText(t *testing.T) {
	long := strings.Repeat("a", 25)
	cases := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{"empty", "   ", 10, nil},
		{"single chunk", "hello world", 20, []string{"hello world"}},
		{"word boundary", "one two three four", 9, []string{"one two", "three", "four"}},
		{"long word", long, 10, []string{long[:10], long[10:20], long[20:]}},
	}

	for _, tc := range cases {
		got := splitTTSText(tc.text, tc.limit)
		if strings.Join(got, "|") != strings.Join(tc.want, "|") {
			t.Errorf("%s: splitTTSText = %q, want %q", tc.name, got, tc.want)
		}
		for _, chunk := range got {
			if len([]rune(chunk)) > tc.limit {
				t.Errorf("%s: chunk %q exceeds limit %d", tc.name, chunk, tc.limit)
			}
		}
	}
}

func TestGTTSSynthesizerConcatenatesChunks(t *testing.T) {
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		queries = append(queries, q.Get("q"))
		if q.Get("client") != "tw-ob" || q.Get("tl") != "en" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte(q.Get("idx")))
	}))
	defer srv.Close()

	synth := NewGTTSSynthesizer(srv.URL, "en", srv.Client())
	text := strings.Repeat("word ", 30)

	data, format, err := synth.Synthesize(context.Background(), text)
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	if format != "mp3" {
		t.Fatalf("format = %s", format)
	}
	if len(queries) != 2 || string(data) != "01" {
		t.Fatalf("expected two chunks concatenated, got %d queries and %q", len(queries), data)
	}
}

func TestGTTSSynthesizerStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	synth := NewGTTSSynthesizer(srv.URL, "en", srv.Client())
	if _, _, err := synth.Synthesize(context.Background(), "hello"); err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestFactoriesHonorProviderNone(t *testing.T) {
	cfg := config.Default()
	cfg.ASR.Provider = config.ProviderNone
	cfg.TTS.Provider = config.ProviderNone

	recognizer, closer, err := NewRecognizer(context.Background(), cfg, nil)
	if err != nil || recognizer != nil {
		t.Fatalf("expected nil recognizer, got %v, %v", recognizer, err)
	}
	if closer() != nil {
		t.Fatalf("noop closer must not fail")
	}

	synth, err := NewSynthesizer(cfg, nil)
	if err != nil || synth != nil {
		t.Fatalf("expected nil synthesizer, got %v, %v", synth, err)
	}
}

func TestFactoriesWrapWhenSerialized(t *testing.T) {
	cfg := config.Default()
	cfg.TTS.Provider = config.ProviderGTTS
	cfg.TTS.Serialize = true

	synth, err := NewSynthesizer(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := synth.(*SerializedSynthesizer); !ok {
		t.Fatalf("expected serialized wrapper, got %T", synth)
	}

	cfg.ASR.Provider = config.ProviderOpenAI
	cfg.OpenAI.APIKey = ""
	if _, _, err := NewRecognizer(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error without openai key")
	}
}
