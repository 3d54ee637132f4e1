package pipeline

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/zhouzirui/voice-pipeline/backend/internal/config"
	"github.com/zhouzirui/voice-pipeline/backend/internal/metrics"
	"github.com/zhouzirui/voice-pipeline/backend/internal/service/ai"
)

func TestBootstrapWithoutProviders(t *testing.T) {
	cfg := config.Default()
	cfg.ASR.Provider = config.ProviderNone
	cfg.LLM.Provider = config.ProviderNone
	cfg.TTS.Provider = config.ProviderNone

	m := metrics.New(prometheus.NewRegistry())
	caps, closer := Bootstrap(context.Background(), cfg, m, nil)
	if err := closer(); err != nil {
		t.Fatalf("closer: %v", err)
	}

	if caps.ASRAvailable || caps.LLMAvailable || caps.TTSAvailable() {
		t.Fatalf("expected every capability unavailable: %+v", caps)
	}
	if caps.Device == "" {
		t.Fatalf("device must always be reported")
	}
	if caps.Responder.HasPrimary() {
		t.Fatalf("responder must not have a primary completer")
	}
	if reply := caps.Responder.Respond(context.Background(), "hello"); reply == "" || reply == ai.Apology {
		t.Fatalf("local fallback should answer a greeting, got %q", reply)
	}
	for _, name := range []string{"asr", "llm", "tts"} {
		if got := testutil.ToFloat64(m.Capability.WithLabelValues(name)); got != 0 {
			t.Fatalf("capability %s = %v", name, got)
		}
	}
}

func TestBootstrapMisconfiguredProviderDegrades(t *testing.T) {
	cfg := config.Default()
	cfg.ASR.Provider = config.ProviderOpenAI
	cfg.LLM.Provider = config.ProviderOpenAI
	cfg.TTS.Provider = config.ProviderNone
	cfg.OpenAI.APIKey = ""

	caps, _ := Bootstrap(context.Background(), cfg, nil, nil)
	if caps.ASRAvailable || caps.LLMAvailable {
		t.Fatalf("missing credentials must leave capabilities unavailable: %+v", caps)
	}
	if caps.Transcriber == nil || caps.Responder == nil || caps.Synthesis == nil {
		t.Fatalf("stages must always be constructed")
	}
}
