package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

type riffFormat struct {
	audioFormat   uint16
	channels      int
	sampleRate    int
	bitsPerSample int
}

// decodeRIFFDirect 宽松地遍历 RIFF 块并直接解出采样，
// 容忍截断的 data 块、奇数长度块以及浮点/扩展格式。
func decodeRIFFDirect(data []byte) ([]float32, int, int, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, 0, errors.New("not a RIFF/WAVE stream")
	}

	var (
		format  *riffFormat
		payload []byte
	)

	pos := 12
	for pos+8 <= len(data) {
		chunkID := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		pos += 8

		end := pos + size
		if size < 0 || end > len(data) {
			end = len(data)
		}

		switch chunkID {
		case "fmt ":
			f, err := parseFmtChunk(data[pos:end])
			if err != nil {
				return nil, 0, 0, err
			}
			format = f
		case "data":
			payload = data[pos:end]
		}

		pos = end
		if size%2 == 1 {
			pos++
		}
	}

	if format == nil {
		return nil, 0, 0, errors.New("missing fmt chunk")
	}
	if len(payload) == 0 {
		return nil, 0, 0, errors.New("missing or empty data chunk")
	}

	samples, err := decodeSamples(payload, format)
	if err != nil {
		return nil, 0, 0, err
	}
	return samples, format.channels, format.sampleRate, nil
}

func parseFmtChunk(chunk []byte) (*riffFormat, error) {
	if len(chunk) < 16 {
		return nil, errors.New("fmt chunk too small")
	}
	f := &riffFormat{
		audioFormat:   binary.LittleEndian.Uint16(chunk[0:2]),
		channels:      int(binary.LittleEndian.Uint16(chunk[2:4])),
		sampleRate:    int(binary.LittleEndian.Uint32(chunk[4:8])),
		bitsPerSample: int(binary.LittleEndian.Uint16(chunk[14:16])),
	}
	if f.audioFormat == wavFormatExtensible && len(chunk) >= 26 {
		// 子格式 GUID 的前两个字节即真实编码
		f.audioFormat = binary.LittleEndian.Uint16(chunk[24:26])
	}
	if f.channels <= 0 || f.sampleRate <= 0 {
		return nil, fmt.Errorf("invalid fmt chunk: channels=%d rate=%d", f.channels, f.sampleRate)
	}
	return f, nil
}

func decodeSamples(payload []byte, f *riffFormat) ([]float32, error) {
	bytesPer := f.bitsPerSample / 8
	if bytesPer <= 0 {
		return nil, fmt.Errorf("invalid bits per sample %d", f.bitsPerSample)
	}
	count := len(payload) / bytesPer
	out := make([]float32, count)

	switch {
	case f.audioFormat == wavFormatFloat && f.bitsPerSample == 32:
		for i := 0; i < count; i++ {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
		}
	case f.audioFormat == wavFormatFloat && f.bitsPerSample == 64:
		for i := 0; i < count; i++ {
			out[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(payload[i*8:])))
		}
	case f.audioFormat == wavFormatPCM:
		for i := 0; i < count; i++ {
			out[i] = pcmSample(payload[i*bytesPer:i*bytesPer+bytesPer], f.bitsPerSample)
		}
	default:
		return nil, fmt.Errorf("unsupported wav encoding %d/%d-bit", f.audioFormat, f.bitsPerSample)
	}
	return out, nil
}

func pcmSample(b []byte, bits int) float32 {
	switch bits {
	case 8:
		return (float32(b[0]) - 128) / 128
	case 16:
		return float32(int16(binary.LittleEndian.Uint16(b))) / 32768
	case 24:
		v := int32(b[0]) | int32(b[1])<<8 | int32(int8(b[2]))<<16
		return float32(v) / 8388608
	case 32:
		return float32(int32(binary.LittleEndian.Uint32(b))) / 2147483648
	default:
		return 0
	}
}

// decodeRawPCM16 将原始 s16le 单声道字节解码为浮点采样。
func decodeRawPCM16(data []byte) ([]float32, error) {
	if len(data) < 2 {
		return nil, errors.New("raw pcm too short")
	}
	count := len(data) / 2
	out := make([]float32, count)
	for i := 0; i < count; i++ {
		out[i] = float32(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768
	}
	return out, nil
}
