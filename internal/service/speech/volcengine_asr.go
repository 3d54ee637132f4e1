package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/voice-pipeline/backend/internal/config"
)

const (
	volcASREndpoint = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_nostream"

	volcASRResourceDuration   = "volc.bigasr.sauc.duration"
	volcASRResourceConcurrent = "volc.bigasr.sauc.concurrent"

	// 16kHz 16bit 单声道 200ms
	volcASRChunkBytes = 6400
)

// VolcengineRecognizer 通过火山引擎大模型 ASR（流式输入模式）识别整段波形。
type VolcengineRecognizer struct {
	cfg      config.VolcengineConfig
	endpoint string
	interval time.Duration
	dialer   *websocket.Dialer
	logger   *zap.Logger
}

type volcASRRequest struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

type volcASRReply struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Result   struct {
		Text       string `json:"text"`
		Utterances []struct {
			Text string `json:"text"`
		} `json:"utterances,omitempty"`
	} `json:"result,omitempty"`
}

// NewVolcengineRecognizer 创建识别器，凭证缺失时报错。
func NewVolcengineRecognizer(cfg config.VolcengineConfig, logger *zap.Logger) (*VolcengineRecognizer, error) {
	if _, err := volcHeaders(cfg, "", ""); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VolcengineRecognizer{
		cfg:      cfg,
		endpoint: volcASREndpoint,
		interval: 200 * time.Millisecond,
		dialer:   &websocket.Dialer{HandshakeTimeout: 30 * time.Second},
		logger:   logger.Named("volc-asr"),
	}, nil
}

func (r *VolcengineRecognizer) resourceID() string {
	if r.cfg.ConcurrentMode {
		return volcASRResourceConcurrent
	}
	return volcASRResourceDuration
}

func (r *VolcengineRecognizer) Recognize(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	pcm := pcm16Bytes(samples)
	if len(pcm) == 0 {
		return "", fmt.Errorf("no audio data to send")
	}

	connectID := uuid.NewString()
	header, err := volcHeaders(r.cfg, r.resourceID(), connectID)
	if err != nil {
		return "", err
	}

	conn, resp, err := r.dialer.DialContext(ctx, r.endpoint, header)
	if err != nil {
		return "", fmt.Errorf("failed to connect to ASR WebSocket: %w", err)
	}
	defer conn.Close()
	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			r.logger.Debug("connected", zap.String("logid", logid))
		}
	}

	payload, err := json.Marshal(r.buildRequest(connectID, sampleRate))
	if err != nil {
		return "", fmt.Errorf("failed to marshal ASR request: %w", err)
	}
	payload, err = compressPayload(payload, compressGzip)
	if err != nil {
		return "", err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, newFullClientRequest(payload, compressGzip).marshal()); err != nil {
		return "", fmt.Errorf("failed to send ASR request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	recvCh := make(chan result, 1)
	go func() {
		text, err := r.receive(conn)
		recvCh <- result{text, err}
	}()

	sendCh := make(chan error, 1)
	go func() {
		sendCh <- r.sendAudio(ctx, conn, pcm)
	}()

	for {
		select {
		case err := <-sendCh:
			if err != nil {
				return "", fmt.Errorf("failed to send audio data: %w", err)
			}
			sendCh = nil
		case res := <-recvCh:
			return res.text, res.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (r *VolcengineRecognizer) buildRequest(uid string, sampleRate int) *volcASRRequest {
	req := &volcASRRequest{}
	req.User.UID = uid
	req.Audio.Format = "pcm"
	req.Audio.Codec = "raw"
	req.Audio.Rate = sampleRate
	req.Audio.Bits = 16
	req.Audio.Channel = 1
	req.Audio.Language = strings.TrimSpace(r.cfg.ASRLanguage)
	if req.Audio.Language == "" {
		req.Audio.Language = "en-US"
	}
	req.Request.ModelName = "bigmodel"
	req.Request.EnableITN = true
	req.Request.EnablePunc = true
	req.Request.ShowUtterances = true
	req.Request.ResultType = "full"
	req.Request.EndWindowSize = 800
	return req
}

// sendAudio 按 200ms 分包发送，FullClientRequest 占用序号 1，音频从 2 开始。
func (r *VolcengineRecognizer) sendAudio(ctx context.Context, conn *websocket.Conn, pcm []byte) error {
	sequence := int32(2)
	for start := 0; start < len(pcm); start += volcASRChunkBytes {
		end := min(start+volcASRChunkBytes, len(pcm))
		last := end >= len(pcm)

		chunk, err := compressPayload(pcm[start:end], compressGzip)
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, newAudioRequest(chunk, sequence, last, compressGzip).marshal()); err != nil {
			return err
		}
		sequence++
		if last {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.interval):
		}
	}
	return nil
}

func (r *VolcengineRecognizer) receive(conn *websocket.Conn) (string, error) {
	var text string
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("failed to read ASR response: %w", err)
		}
		msg, err := unmarshalFrame(data)
		if err != nil {
			return "", fmt.Errorf("failed to decode ASR message: %w", err)
		}

		switch msg.Type {
		case frameError:
			payload, _ := decompressPayload(msg.Payload, msg.Compression)
			return "", fmt.Errorf("ASR error %d: %s", msg.ErrorCode, string(payload))

		case frameFullServerReply:
			payload, err := decompressPayload(msg.Payload, msg.Compression)
			if err != nil {
				return "", fmt.Errorf("failed to decompress ASR payload: %w", err)
			}
			var reply volcASRReply
			if err := json.Unmarshal(payload, &reply); err != nil {
				r.logger.Warn("failed to unmarshal ASR reply", zap.Error(err))
				continue
			}
			if reply.Code != 0 && reply.Code != 20000000 {
				return "", fmt.Errorf("ASR API error %d: %s", reply.Code, reply.Message)
			}
			if candidate := replyText(reply); candidate != "" {
				text = candidate
			}
			if msg.isLast() || reply.Sequence < 0 {
				return text, nil
			}
		}
	}
}

func replyText(reply volcASRReply) string {
	if reply.Result.Text != "" {
		return reply.Result.Text
	}
	parts := make([]string, 0, len(reply.Result.Utterances))
	for _, u := range reply.Result.Utterances {
		parts = append(parts, u.Text)
	}
	return strings.Join(parts, " ")
}
