package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const canonicalBitDepth = 16

// EncodeWAV 将单声道浮点波形编码为 16 位 PCM WAV。
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           ToPCM16(samples),
		SourceBitDepth: canonicalBitDepth,
	}
	return encodeIntBuffer(buf)
}

// WriteWAV 将 16 位 PCM 缓冲写入任意 WriteSeeker（通常是临时文件）。
func WriteWAV(w io.WriteSeeker, buf *goaudio.IntBuffer) error {
	enc := wav.NewEncoder(w, buf.Format.SampleRate, canonicalBitDepth, buf.Format.NumChannels, 1)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("wav encode failed: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("wav finalize failed: %w", err)
	}
	return nil
}

// canonicalize 把任意位深的缓冲转换成 16 位。
func canonicalize(buf *goaudio.IntBuffer) *goaudio.IntBuffer {
	depth := buf.SourceBitDepth
	if depth == canonicalBitDepth || depth == 0 {
		buf.SourceBitDepth = canonicalBitDepth
		return buf
	}

	data := make([]int, len(buf.Data))
	for i, v := range buf.Data {
		switch {
		case depth == 8:
			// 8 位 WAV 为无符号采样
			data[i] = (v - 128) << 8
		case depth > canonicalBitDepth:
			data[i] = v >> uint(depth-canonicalBitDepth)
		default:
			data[i] = v << uint(canonicalBitDepth-depth)
		}
	}
	return &goaudio.IntBuffer{
		Format:         buf.Format,
		Data:           data,
		SourceBitDepth: canonicalBitDepth,
	}
}

func encodeIntBuffer(buf *goaudio.IntBuffer) ([]byte, error) {
	sink := &seekBuffer{}
	if err := WriteWAV(sink, canonicalize(buf)); err != nil {
		return nil, err
	}
	return sink.Bytes(), nil
}

// decodeWAVBuffer 使用 go-audio 严格解析 WAV 容器。
func decodeWAVBuffer(data []byte) (*goaudio.IntBuffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav container")
	}
	if dec.WavAudioFormat != 1 {
		return nil, fmt.Errorf("unsupported wav encoding %d", dec.WavAudioFormat)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wav decode failed: %w", err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, errors.New("wav contains no samples")
	}
	buf.SourceBitDepth = int(dec.BitDepth)
	return buf, nil
}

// decodeCanonical 解析 16 位规范 WAV，返回交错浮点采样、声道数与采样率。
func decodeCanonical(data []byte) ([]float32, int, int, error) {
	buf, err := decodeWAVBuffer(data)
	if err != nil {
		return nil, 0, 0, err
	}
	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / 32768
	}
	return samples, buf.Format.NumChannels, buf.Format.SampleRate, nil
}

// seekBuffer 为 wav.Encoder 提供内存中的 io.WriteSeeker。
type seekBuffer struct {
	data []byte
	pos  int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	end := b.pos + len(p)
	if end > len(b.data) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:end], p)
	b.pos = end
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(b.pos) + offset
	case io.SeekEnd:
		next = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if next < 0 {
		return 0, errors.New("negative seek position")
	}
	b.pos = int(next)
	return next, nil
}

func (b *seekBuffer) Bytes() []byte {
	return b.data
}
