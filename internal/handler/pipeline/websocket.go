package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/voice-pipeline/backend/internal/model/speech"
	pipelinesvc "github.com/zhouzirui/voice-pipeline/backend/internal/service/pipeline"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 54 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsMaxMessage   = 48 << 20
)

type wsUpgrader = websocket.Upgrader

func newUpgrader() wsUpgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// AudioMessage 音频消息，audioData 为 base64 编码
type AudioMessage struct {
	AudioData []byte `json:"audioData"`
	Format    string `json:"format"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// wsSession 串行化同一连接上的写操作。
type wsSession struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	logger *zap.Logger
}

func (s *wsSession) write(msg outgoingMessage) {
	msg.Timestamp = time.Now().Unix()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := s.conn.WriteJSON(msg); err != nil {
		s.logger.Warn("websocket write failed", zap.String("type", msg.Type), zap.Error(err))
	}
}

func (s *wsSession) sendStatus(message string) {
	s.write(outgoingMessage{Type: "status", Data: map[string]string{"message": message}})
}

func (s *wsSession) sendError(requestID, message string) {
	s.write(outgoingMessage{Type: "error", RequestID: requestID, Data: map[string]string{"message": message}})
}

func (s *wsSession) sendResult(requestID string, result *speech.PipelineResult) {
	s.write(outgoingMessage{Type: "result", RequestID: requestID, Data: result})
}

// handleWebSocket 处理 WebSocket 连接，每条 audio 消息独立跑一次流水线。
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session := &wsSession{conn: conn, logger: h.logger.Named("ws")}

	conn.SetReadLimit(wsMaxMessage)
	conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))
		return nil
	})

	go h.pingLoop(ctx, conn)

	session.sendStatus("Connected to AI pipeline server")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				session.logger.Info("websocket closed", zap.Error(err))
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			session.sendError("", "invalid message")
		} else {
			h.handleMessage(ctx, session, &msg)
		}
		// 流水线运行期间不读取连接，pong 不会续期，处理完后重新计时
		conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	}
}

func (h *Handler) handleMessage(ctx context.Context, session *wsSession, msg *inboundMessage) {
	switch msg.Type {
	case "audio":
		h.handleAudioMessage(ctx, session, msg.Data)
	case "ping":
		session.write(outgoingMessage{Type: "pong"})
	default:
		session.sendError("", "unsupported message type: "+msg.Type)
	}
}

func (h *Handler) handleAudioMessage(ctx context.Context, session *wsSession, raw json.RawMessage) {
	var payload AudioMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		session.sendError("", "invalid audio payload")
		return
	}

	requestID := uuid.NewString()
	if len(payload.AudioData) == 0 {
		session.sendError(requestID, "No audio file provided")
		return
	}

	blob := speech.AudioBlob{Data: payload.AudioData, Format: payload.Format}
	result, err := h.runner.Run(pipelinesvc.WithRequestID(ctx, requestID), blob)
	if err != nil {
		var ce *pipelinesvc.ClientError
		if errors.As(err, &ce) {
			session.sendError(requestID, ce.Message)
			return
		}
		h.logger.Error("pipeline failed", zap.String("request_id", requestID), zap.Error(err))
		session.sendError(requestID, pipelinesvc.MsgInternal)
		return
	}
	session.sendResult(requestID, result)
}

func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}
