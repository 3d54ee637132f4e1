package speech

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/voice-pipeline/backend/internal/audio"
	"github.com/zhouzirui/voice-pipeline/backend/internal/model/speech"
)

// Synthesizer 语音合成能力：文本 -> 某种容器的音频字节。
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, string, error)
}

// SynthesisStage 合成阶段。能力不可用或任何失败都降级为无音频。
type SynthesisStage struct {
	synthesizer Synthesizer
	available   bool
	tempDir     string
	logger      *zap.Logger
}

// NewSynthesisStage 创建合成阶段，available 为启动探测的结果。
func NewSynthesisStage(synthesizer Synthesizer, available bool, logger *zap.Logger) *SynthesisStage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SynthesisStage{
		synthesizer: synthesizer,
		available:   available && synthesizer != nil,
		logger:      logger.Named("tts"),
	}
}

// Available 返回启动时的探测结论。
func (s *SynthesisStage) Available() bool {
	return s.available
}

// Synthesize 生成原生容器音频并转码为 WAV，返回 nil 表示无音频。
func (s *SynthesisStage) Synthesize(ctx context.Context, text string) *speech.SynthesizedAudio {
	if !s.available {
		return nil
	}

	data, err := s.synthesize(ctx, text)
	if err != nil {
		s.logger.Warn("speech synthesis degraded to no audio", zap.Error(err))
		return nil
	}
	return &speech.SynthesizedAudio{Data: data, Format: audio.FormatWAV}
}

func (s *SynthesisStage) synthesize(ctx context.Context, text string) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError("synthesizer", r)
		}
	}()

	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	native, format, err := s.synthesizer.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(native) == 0 {
		return nil, ErrEmptyAudio
	}
	return s.transcode(native, format)
}

// transcode 借助临时文件完成 MP3 -> WAV，任何退出路径都会删除临时文件。
func (s *SynthesisStage) transcode(native []byte, format string) ([]byte, error) {
	switch audio.DetectFormat(native, format) {
	case audio.FormatWAV:
		return native, nil
	case audio.FormatMP3:
	default:
		return nil, fmt.Errorf("unsupported tts container %q", format)
	}

	src, err := os.CreateTemp(s.tempDir, "tts-*.mp3")
	if err != nil {
		return nil, fmt.Errorf("create temp mp3: %w", err)
	}
	defer os.Remove(src.Name())

	if _, err := src.Write(native); err != nil {
		src.Close()
		return nil, fmt.Errorf("write temp mp3: %w", err)
	}
	if err := src.Close(); err != nil {
		return nil, fmt.Errorf("close temp mp3: %w", err)
	}

	dst, err := os.CreateTemp(s.tempDir, "tts-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp wav: %w", err)
	}
	dstPath := dst.Name()
	dst.Close()
	defer os.Remove(dstPath)

	if err := audio.TranscodeMP3File(src.Name(), dstPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(dstPath)
	if err != nil {
		return nil, fmt.Errorf("read temp wav: %w", err)
	}
	return data, nil
}
