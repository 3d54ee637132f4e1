package speech

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/voice-pipeline/backend/internal/config"
)

// probeText 启动时验证合成能力用的文本。
const probeText = "test"

// NewRecognizer 按配置构造识别能力。provider 为 none 时返回 nil。
// 返回的 closer 用于在进程退出时释放底层连接，永不为 nil。
func NewRecognizer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Recognizer, func() error, error) {
	noop := func() error { return nil }

	var (
		recognizer Recognizer
		closer     = noop
	)

	switch cfg.ASR.Provider {
	case config.ProviderNone:
		return nil, noop, nil
	case config.ProviderOpenAI:
		if !cfg.OpenAI.Enabled() {
			return nil, noop, fmt.Errorf("asr provider openai requires OPENAI_API_KEY")
		}
		recognizer = NewWhisperRecognizer(cfg.OpenAI.NewClient(), cfg.ASR.OpenAIModel, cfg.ASR.Language)
	case config.ProviderGoogle:
		google, err := NewGoogleRecognizer(ctx, cfg.ASR.GoogleCredentialsFile, cfg.ASR.Language)
		if err != nil {
			return nil, noop, err
		}
		recognizer, closer = google, google.Close
	case config.ProviderVolcengine:
		volc, err := NewVolcengineRecognizer(cfg.Volcengine, logger)
		if err != nil {
			return nil, noop, err
		}
		recognizer = volc
	default:
		return nil, noop, fmt.Errorf("unknown asr provider %q", cfg.ASR.Provider)
	}

	if cfg.ASR.Serialize {
		recognizer = NewSerializedRecognizer(recognizer)
	}
	return recognizer, closer, nil
}

// NewSynthesizer 按配置构造合成能力。provider 为 none 时返回 nil。
func NewSynthesizer(cfg *config.Config, logger *zap.Logger) (Synthesizer, error) {
	var synthesizer Synthesizer

	switch cfg.TTS.Provider {
	case config.ProviderNone:
		return nil, nil
	case config.ProviderGTTS:
		synthesizer = NewGTTSSynthesizer(cfg.TTS.GTTSBaseURL, cfg.TTS.Language, nil)
	case config.ProviderOpenAI:
		if !cfg.OpenAI.Enabled() {
			return nil, fmt.Errorf("tts provider openai requires OPENAI_API_KEY")
		}
		synthesizer = NewOpenAISynthesizer(cfg.OpenAI.NewClient(), cfg.TTS.OpenAIModel, cfg.TTS.OpenAIVoice)
	case config.ProviderVolcengine:
		volc, err := NewVolcengineSynthesizer(cfg.Volcengine, logger)
		if err != nil {
			return nil, err
		}
		synthesizer = volc
	default:
		return nil, fmt.Errorf("unknown tts provider %q", cfg.TTS.Provider)
	}

	if cfg.TTS.Serialize {
		synthesizer = NewSerializedSynthesizer(synthesizer)
	}
	return synthesizer, nil
}

// ProbeSynthesizer 用一段固定文本试合成，只有得到非空音频才视为可用。
func ProbeSynthesizer(ctx context.Context, synthesizer Synthesizer, logger *zap.Logger) (ok bool) {
	if synthesizer == nil {
		return false
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("tts probe panicked", zap.Any("panic", r))
			ok = false
		}
	}()

	data, format, err := synthesizer.Synthesize(ctx, probeText)
	if err != nil {
		logger.Warn("tts probe failed", zap.Error(err))
		return false
	}
	if len(data) == 0 {
		logger.Warn("tts probe returned no audio")
		return false
	}
	logger.Info("tts probe succeeded", zap.String("format", format), zap.Int("bytes", len(data)))
	return true
}
