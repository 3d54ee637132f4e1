package speech

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/voice-pipeline/backend/internal/audio"
	"github.com/zhouzirui/voice-pipeline/backend/internal/model/speech"
)

// silenceThreshold 低于该幅度的波形视为静音，不调用识别能力。
const silenceThreshold = 1e-4

// Recognizer 语音识别能力：单声道浮点波形 -> 文本。
type Recognizer interface {
	Recognize(ctx context.Context, samples []float32, sampleRate int) (string, error)
}

// Transcriber 识别阶段。任何内部失败都返回空文本，由编排层判定为无法识别。
type Transcriber struct {
	recognizer Recognizer
	targetRate int
	logger     *zap.Logger
}

// NewTranscriber 创建识别阶段，recognizer 为 nil 时所有请求都返回空文本。
func NewTranscriber(recognizer Recognizer, targetRate int, logger *zap.Logger) *Transcriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transcriber{
		recognizer: recognizer,
		targetRate: targetRate,
		logger:     logger.Named("asr"),
	}
}

// Transcribe 同步调用一次识别能力，不重试。
func (t *Transcriber) Transcribe(ctx context.Context, wave speech.Waveform) string {
	if t.recognizer == nil {
		t.logger.Warn("speech recognition unavailable")
		return ""
	}
	if len(wave.Samples) == 0 || audio.IsSilent(wave.Samples, silenceThreshold) {
		t.logger.Info("waveform is empty or silent, skip recognition", zap.Int("samples", len(wave.Samples)))
		return ""
	}

	samples := wave.Samples
	if wave.SampleRate != t.targetRate {
		// 归一化器已完成重采样，这里只处理绕过归一化器的调用方
		samples = audio.Resample(samples, wave.SampleRate, t.targetRate)
	}

	text, err := t.recognize(ctx, samples)
	if err != nil {
		t.logger.Warn("speech recognition failed", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(text)
}

func (t *Transcriber) recognize(ctx context.Context, samples []float32) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError("recognizer", r)
		}
	}()
	return t.recognizer.Recognize(ctx, samples, t.targetRate)
}
