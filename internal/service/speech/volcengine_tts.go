package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/voice-pipeline/backend/internal/audio"
	"github.com/zhouzirui/voice-pipeline/backend/internal/config"
)

const (
	volcTTSEndpoint = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"

	volcTTSResourceDefault = "volc.service_type.10029"
	volcTTSResourceMega    = "volc.megatts.default"
	volcTTSResourceSeed    = "seed-tts-2.0"

	volcTTSDefaultSpeaker = "en_female_amy_jupiter_bigtts"
)

var errResourceMismatch = errors.New("resource ID is mismatched with speaker related resource")

// VolcengineSynthesizer 通过火山引擎单向流式 TTS 合成 MP3。
type VolcengineSynthesizer struct {
	cfg      config.VolcengineConfig
	endpoint string
	dialer   *websocket.Dialer
	logger   *zap.Logger
}

type volcTTSRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string `json:"speaker"`
		Text        string `json:"text"`
		AudioParams struct {
			Format      string  `json:"format"`
			SampleRate  int     `json:"sample_rate"`
			SpeedRatio  float32 `json:"speed_ratio,omitempty"`
			VolumeRatio float32 `json:"volume_ratio,omitempty"`
		} `json:"audio_params"`
		Language string `json:"language,omitempty"`
	} `json:"req_params"`
}

type volcTTSReply struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
}

// NewVolcengineSynthesizer 创建合成器，凭证缺失时报错。
func NewVolcengineSynthesizer(cfg config.VolcengineConfig, logger *zap.Logger) (*VolcengineSynthesizer, error) {
	if _, err := volcHeaders(cfg, "", ""); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VolcengineSynthesizer{
		cfg:      cfg,
		endpoint: volcTTSEndpoint,
		dialer:   &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		logger:   logger.Named("volc-tts"),
	}, nil
}

// Synthesize 依次尝试发音人候选资源 ID，只有资源不匹配时才切换。
func (s *VolcengineSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, "", ErrEmptyText
	}

	speaker := strings.TrimSpace(s.cfg.TTSVoice)
	if speaker == "" {
		speaker = volcTTSDefaultSpeaker
	}

	var lastErr error
	for idx, resourceID := range ttsResourceCandidates(speaker) {
		data, err := s.synthesizeWith(ctx, speaker, resourceID, text)
		if err == nil {
			if idx > 0 {
				s.logger.Info("fallback resource succeeded", zap.String("speaker", speaker), zap.String("resource", resourceID))
			}
			return data, audio.FormatMP3, nil
		}
		if !errors.Is(err, errResourceMismatch) {
			return nil, "", err
		}
		s.logger.Warn("resource mismatch", zap.String("speaker", speaker), zap.String("resource", resourceID))
		lastErr = err
	}
	return nil, "", lastErr
}

func (s *VolcengineSynthesizer) synthesizeWith(ctx context.Context, speaker, resourceID, text string) ([]byte, error) {
	connectID := uuid.NewString()
	header, err := volcHeaders(s.cfg, resourceID, connectID)
	if err != nil {
		return nil, err
	}

	conn, _, err := s.dialer.DialContext(ctx, s.endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TTS WebSocket: %w", err)
	}
	defer conn.Close()

	// 阻塞读不感知 ctx，取消时关闭连接
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	payload, err := json.Marshal(s.buildRequest(connectID, speaker, text))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, newFullClientRequest(payload, compressNone).marshal()); err != nil {
		return nil, fmt.Errorf("failed to send TTS request: %w", err)
	}

	var buf bytes.Buffer
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to read TTS response: %w", err)
		}
		msg, err := unmarshalFrame(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode TTS message: %w", err)
		}

		payload, err := decompressPayload(msg.Payload, msg.Compression)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress TTS payload: %w", err)
		}

		switch msg.Type {
		case frameError:
			return nil, classifyTTSError(fmt.Sprintf("TTS error %d: %s", msg.ErrorCode, payload))

		case frameAudioOnlyReply:
			buf.Write(payload)

		case frameFullServerReply:
			var reply volcTTSReply
			if len(payload) > 0 {
				if err := json.Unmarshal(payload, &reply); err != nil {
					s.logger.Warn("failed to unmarshal TTS reply", zap.Error(err))
				} else {
					if reply.Code != 0 && reply.Code != 3000 {
						return nil, classifyTTSError(fmt.Sprintf("TTS API error %d: %s", reply.Code, reply.Message))
					}
					if reply.Data != "" {
						chunk, err := base64.StdEncoding.DecodeString(reply.Data)
						if err != nil {
							return nil, fmt.Errorf("failed to decode base64 audio chunk: %w", err)
						}
						buf.Write(chunk)
					}
				}
			}

			finished := msg.hasEvent() && msg.Event == eventSessionFinished
			if finished || msg.isLast() || reply.Sequence < 0 {
				if buf.Len() == 0 {
					return nil, ErrEmptyAudio
				}
				return buf.Bytes(), nil
			}
		}
	}
}

func (s *VolcengineSynthesizer) buildRequest(uid, speaker, text string) *volcTTSRequest {
	req := &volcTTSRequest{}
	req.User.UID = uid
	req.ReqParams.Speaker = speaker
	req.ReqParams.Text = text
	req.ReqParams.AudioParams.Format = "mp3"
	req.ReqParams.AudioParams.SampleRate = 24000
	if v := s.cfg.TTSSpeed; v > 0 && v != 1.0 {
		req.ReqParams.AudioParams.SpeedRatio = v
	}
	if v := s.cfg.TTSVolume; v > 0 && v != 1.0 {
		req.ReqParams.AudioParams.VolumeRatio = v
	}
	req.ReqParams.Language = strings.TrimSpace(s.cfg.TTSLanguage)
	return req
}

func classifyTTSError(msg string) error {
	if strings.Contains(msg, errResourceMismatch.Error()) {
		return fmt.Errorf("%w: %s", errResourceMismatch, msg)
	}
	return errors.New(msg)
}

// ttsResourceCandidates 根据发音人命名推断资源 ID 的尝试顺序。
func ttsResourceCandidates(speaker string) []string {
	if strings.HasPrefix(speaker, "S_") {
		return []string{volcTTSResourceMega}
	}

	normalized := strings.ToLower(speaker)
	for _, hint := range []string{"bigtts", "seed", "megatts", "uranus", "venus", "jupiter", "saturn", "mars"} {
		if strings.Contains(normalized, hint) {
			return []string{volcTTSResourceSeed, volcTTSResourceDefault}
		}
	}
	return []string{volcTTSResourceDefault, volcTTSResourceSeed}
}
