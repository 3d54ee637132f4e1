package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/zhouzirui/voice-pipeline/backend/internal/audio"
)

// WhisperRecognizer 通过 OpenAI Whisper 接口识别整段波形。
type WhisperRecognizer struct {
	client   *openai.Client
	model    string
	language string
}

// NewWhisperRecognizer 创建 Whisper 识别器，model 为空时使用 whisper-1。
func NewWhisperRecognizer(client *openai.Client, model, language string) *WhisperRecognizer {
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperRecognizer{client: client, model: model, language: language}
}

func (r *WhisperRecognizer) Recognize(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	wavData, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		return "", fmt.Errorf("encode whisper input: %w", err)
	}

	resp, err := r.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    r.model,
		FilePath: "speech.wav",
		Reader:   bytes.NewReader(wavData),
		Language: r.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription failed: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// OpenAISynthesizer 通过 OpenAI speech 接口合成 MP3。
type OpenAISynthesizer struct {
	client *openai.Client
	model  string
	voice  string
}

// NewOpenAISynthesizer 创建 OpenAI 合成器。
func NewOpenAISynthesizer(client *openai.Client, model, voice string) *OpenAISynthesizer {
	if model == "" {
		model = string(openai.TTSModel1)
	}
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	return &OpenAISynthesizer{client: client, model: model, voice: voice}
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, "", ErrEmptyText
	}

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.model),
		Input:          text,
		Voice:          openai.SpeechVoice(s.voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, "", fmt.Errorf("openai speech failed: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, "", fmt.Errorf("read openai speech: %w", err)
	}
	return data, audio.FormatMP3, nil
}
