package audio

import (
	"errors"
	"fmt"

	goaudio "github.com/go-audio/audio"
	"go.uber.org/zap"

	"github.com/zhouzirui/voice-pipeline/backend/internal/model/speech"
)

// ErrAudioDecode 表示主备两条解码路径均失败，属于客户端输入错误。
var ErrAudioDecode = errors.New("audio decode failed")

// Normalizer 把任意支持的容器转换为目标采样率的单声道波形。
type Normalizer struct {
	targetRate int
	rawRate    int
	logger     *zap.Logger
}

// NewNormalizer 创建归一化器。rawRate 用于无头的原始 PCM。
func NewNormalizer(targetRate, rawRate int, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rawRate <= 0 {
		rawRate = targetRate
	}
	return &Normalizer{
		targetRate: targetRate,
		rawRate:    rawRate,
		logger:     logger.Named("normalizer"),
	}
}

// TargetRate 返回输出波形的采样率。
func (n *Normalizer) TargetRate() int {
	return n.targetRate
}

// Normalize 先走容器解码 -> 规范 WAV -> 波形的主路径，失败后直接解码原始字节，
// 最后统一下混为单声道并仅重采样一次。
func (n *Normalizer) Normalize(blob speech.AudioBlob) (speech.Waveform, error) {
	if blob.Empty() {
		return speech.Waveform{}, fmt.Errorf("%w: empty payload", ErrAudioDecode)
	}

	format := DetectFormat(blob.Data, blob.Format)

	samples, channels, rate, primaryErr := n.decodePrimary(blob.Data, format)
	if primaryErr != nil {
		n.logger.Warn("primary decode failed, trying direct decode",
			zap.String("format", format), zap.Error(primaryErr))

		var secondaryErr error
		samples, channels, rate, secondaryErr = n.decodeDirect(blob.Data, format)
		if secondaryErr != nil {
			n.logger.Warn("direct decode failed", zap.String("format", format), zap.Error(secondaryErr))
			return speech.Waveform{}, fmt.Errorf("%w: %v; fallback: %v", ErrAudioDecode, primaryErr, secondaryErr)
		}
	}

	mono := ToMono(samples, channels)
	if len(mono) == 0 {
		return speech.Waveform{}, fmt.Errorf("%w: no samples", ErrAudioDecode)
	}

	if rate != n.targetRate {
		mono = Resample(mono, rate, n.targetRate)
	}

	return speech.Waveform{Samples: mono, SampleRate: n.targetRate}, nil
}

func (n *Normalizer) decodePrimary(data []byte, format string) ([]float32, int, int, error) {
	var (
		buf *goaudio.IntBuffer
		err error
	)
	switch format {
	case FormatWAV:
		buf, err = decodeWAVBuffer(data)
	case FormatMP3:
		buf, err = decodeMP3Bytes(data)
	default:
		return nil, 0, 0, fmt.Errorf("unsupported container %q", format)
	}
	if err != nil {
		return nil, 0, 0, err
	}

	canonical, err := encodeIntBuffer(buf)
	if err != nil {
		return nil, 0, 0, err
	}
	return decodeCanonical(canonical)
}

func (n *Normalizer) decodeDirect(data []byte, format string) ([]float32, int, int, error) {
	if format == FormatPCM {
		samples, err := decodeRawPCM16(data)
		if err != nil {
			return nil, 0, 0, err
		}
		return samples, 1, n.rawRate, nil
	}
	return decodeRIFFDirect(data)
}
