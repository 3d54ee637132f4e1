package speech

import "time"

// Waveform 单声道浮点波形，采样值范围 [-1, 1]。
type Waveform struct {
	Samples    []float32
	SampleRate int
}

// Duration 返回波形时长。
func (w Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(w.Samples)) * time.Second / time.Duration(w.SampleRate)
}

// SynthesizedAudio 合成结果，nil 表示无音频。
type SynthesizedAudio struct {
	Data   []byte
	Format string
}

// PipelineResult 一次语音到语音请求的最终结果，构建后不再修改。
type PipelineResult struct {
	Transcription  string `json:"transcription"`
	ResponseText   string `json:"response_text"`
	AudioAvailable bool   `json:"audio_available"`
	AudioData      string `json:"audio_data,omitempty"` // base64
	AudioFormat    string `json:"audio_format,omitempty"`
}
