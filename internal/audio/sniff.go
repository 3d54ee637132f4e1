package audio

import (
	"bytes"
	"strings"
)

// 识别出的容器格式。
const (
	FormatWAV     = "wav"
	FormatMP3     = "mp3"
	FormatPCM     = "pcm"
	FormatUnknown = ""
)

// DetectFormat 优先依据魔数判断容器格式，无法判断时退回到声明的格式。
// 声明为原始 PCM 时直接采信：无头数据没有魔数，首个采样可能恰好像 MPEG 同步字。
func DetectFormat(data []byte, declared string) string {
	if isRawPCM(declared) {
		return FormatPCM
	}

	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV
	case len(data) >= 3 && bytes.Equal(data[0:3], []byte("ID3")):
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		// MPEG 帧同步字
		return FormatMP3
	}

	switch strings.ToLower(strings.TrimSpace(declared)) {
	case "wav", "wave":
		return FormatWAV
	case "mp3", "mpeg":
		return FormatMP3
	default:
		return FormatUnknown
	}
}

func isRawPCM(declared string) bool {
	switch strings.ToLower(strings.TrimSpace(declared)) {
	case "pcm", "raw", "s16le":
		return true
	}
	return false
}
