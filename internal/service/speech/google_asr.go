package speech

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	gspeech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"

	"github.com/zhouzirui/voice-pipeline/backend/internal/audio"
)

// GoogleRecognizer 使用 Google Cloud Speech 同步识别 LINEAR16 音频。
type GoogleRecognizer struct {
	client   *gspeech.Client
	language string
}

// NewGoogleRecognizer 创建客户端。credentialsFile 为空时使用 ADC。
func NewGoogleRecognizer(ctx context.Context, credentialsFile, language string) (*GoogleRecognizer, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := gspeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return &GoogleRecognizer{client: client, language: googleLanguageCode(language)}, nil
}

// Close 释放底层 gRPC 连接。
func (r *GoogleRecognizer) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

func (r *GoogleRecognizer) Recognize(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	resp, err := r.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            int32(sampleRate),
			AudioChannelCount:          1,
			LanguageCode:               r.language,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: pcm16Bytes(samples)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("google recognize failed: %w", err)
	}

	var parts []string
	for _, result := range resp.GetResults() {
		if alts := result.GetAlternatives(); len(alts) > 0 {
			parts = append(parts, strings.TrimSpace(alts[0].GetTranscript()))
		}
	}
	return strings.Join(parts, " "), nil
}

// pcm16Bytes 将浮点波形转为 16 位小端 PCM 字节。
func pcm16Bytes(samples []float32) []byte {
	ints := audio.ToPCM16(samples)
	out := make([]byte, len(ints)*2)
	for i, v := range ints {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

func googleLanguageCode(language string) string {
	language = strings.TrimSpace(language)
	switch strings.ToLower(language) {
	case "", "en":
		return "en-US"
	case "zh":
		return "zh-CN"
	default:
		return language
	}
}
