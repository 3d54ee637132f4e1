package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/voice-pipeline/backend/internal/analysis/intent"
	"github.com/zhouzirui/voice-pipeline/backend/internal/audio"
	"github.com/zhouzirui/voice-pipeline/backend/internal/config"
	"github.com/zhouzirui/voice-pipeline/backend/internal/metrics"
	"github.com/zhouzirui/voice-pipeline/backend/internal/service/ai"
	"github.com/zhouzirui/voice-pipeline/backend/internal/service/speech"
	"github.com/zhouzirui/voice-pipeline/backend/internal/system"
)

const probeTimeout = 30 * time.Second

// Bootstrap 在启动时构建并探测全部能力，之后能力上下文不再改变。
// 构建失败的能力按不可用处理，不会中止启动。返回的 closer 释放识别器持有的连接。
func Bootstrap(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (*Capabilities, func() error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	caps := &Capabilities{
		Normalizer: audio.NewNormalizer(cfg.Audio.TargetSampleRate, cfg.Audio.RawSampleRate, logger),
		Device:     system.DetectDevice(ctx),
	}
	logger.Info("compute device detected", zap.String("device", caps.Device))

	recognizer, closer, err := speech.NewRecognizer(ctx, cfg, logger)
	if err != nil {
		logger.Warn("speech recognition unavailable", zap.String("provider", cfg.ASR.Provider), zap.Error(err))
		recognizer = nil
	}
	caps.Transcriber = speech.NewTranscriber(recognizer, cfg.Audio.TargetSampleRate, logger)
	caps.ASRAvailable = recognizer != nil
	m.SetCapability("asr", caps.ASRAvailable)

	completer, err := ai.NewCompleter(ctx, cfg)
	if err != nil {
		logger.Warn("cloud completion unavailable", zap.String("provider", cfg.LLM.Provider), zap.Error(err))
		completer = nil
	}
	if completer != nil {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		caps.LLMAvailable = ai.Probe(probeCtx, completer, logger)
		cancel()
	}
	// 探测结果只用于上报，请求时仍会先尝试云端补全。
	caps.Responder = ai.NewResponder(completer, intent.NewResponder(), logger)
	m.SetCapability("llm", caps.LLMAvailable)

	synthesizer, err := speech.NewSynthesizer(cfg, logger)
	if err != nil {
		logger.Warn("speech synthesis unavailable", zap.String("provider", cfg.TTS.Provider), zap.Error(err))
		synthesizer = nil
	}
	ttsOK := false
	if synthesizer != nil {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		ttsOK = speech.ProbeSynthesizer(probeCtx, synthesizer, logger)
		cancel()
	}
	caps.Synthesis = speech.NewSynthesisStage(synthesizer, ttsOK, logger)
	m.SetCapability("tts", caps.TTSAvailable())

	logger.Info("capabilities ready",
		zap.Bool("asr", caps.ASRAvailable),
		zap.Bool("llm", caps.LLMAvailable),
		zap.Bool("tts", caps.TTSAvailable()),
	)
	return caps, closer
}
