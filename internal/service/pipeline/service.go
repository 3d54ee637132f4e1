package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/voice-pipeline/backend/internal/audio"
	"github.com/zhouzirui/voice-pipeline/backend/internal/metrics"
	model "github.com/zhouzirui/voice-pipeline/backend/internal/model/speech"
	"github.com/zhouzirui/voice-pipeline/backend/internal/service/ai"
	"github.com/zhouzirui/voice-pipeline/backend/internal/service/speech"
)

const (
	outcomeOK          = "ok"
	outcomeClientError = "client_error"
	outcomeServerFault = "server_fault"
)

// Capabilities 启动时构建一次，之后只读，被所有请求共享。
type Capabilities struct {
	Normalizer  *audio.Normalizer
	Transcriber *speech.Transcriber
	Responder   *ai.Responder
	Synthesis   *speech.SynthesisStage

	ASRAvailable bool
	LLMAvailable bool
	Device       string
}

// TTSAvailable 返回合成能力的启动探测结果。
func (c *Capabilities) TTSAvailable() bool {
	return c.Synthesis != nil && c.Synthesis.Available()
}

// Service 编排 归一化 -> 识别 -> 回复 -> 合成 四个阶段。
type Service struct {
	caps    *Capabilities
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New 创建编排服务，m 可以为 nil。
func New(caps *Capabilities, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{caps: caps, metrics: m, logger: logger.Named("pipeline")}
}

// Capabilities 返回共享的能力上下文。
func (s *Service) Capabilities() *Capabilities {
	return s.caps
}

type requestIDKey struct{}

// WithRequestID 将请求 ID 放入 ctx，供日志关联。
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// Run 对单个音频执行完整流水线。返回的错误只可能是 *ClientError 或 *ServerFault。
func (s *Service) Run(ctx context.Context, blob model.AudioBlob) (result *model.PipelineResult, err error) {
	requestID := requestIDFrom(ctx)
	logger := s.logger.With(zap.String("request_id", requestID))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("pipeline panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			result, err = nil, &ServerFault{Err: fmt.Errorf("panic: %v", r)}
		}

		switch {
		case err == nil:
			s.metrics.ObserveRequest(outcomeOK)
		case IsClientError(err):
			s.metrics.ObserveRequest(outcomeClientError)
		default:
			s.metrics.ObserveRequest(outcomeServerFault)
		}
		s.metrics.ObserveStage("total", start)
	}()

	stageStart := time.Now()
	wave, err := s.caps.Normalizer.Normalize(blob)
	s.metrics.ObserveStage("normalize", stageStart)
	if err != nil {
		logger.Info("audio normalization failed", zap.Int("bytes", len(blob.Data)), zap.Error(err))
		return nil, &ClientError{Message: MsgBadAudio, Err: err}
	}

	stageStart = time.Now()
	transcript := s.caps.Transcriber.Transcribe(ctx, wave)
	s.metrics.ObserveStage("transcribe", stageStart)
	if transcript == "" {
		logger.Info("empty transcription", zap.Duration("audio", wave.Duration()))
		return nil, &ClientError{Message: MsgNoTranscription}
	}

	stageStart = time.Now()
	reply, path := s.caps.Responder.RespondWithPath(ctx, transcript)
	s.metrics.ObserveStage("respond", stageStart)
	s.metrics.ObserveResponsePath(string(path))

	stageStart = time.Now()
	synthesized := s.caps.Synthesis.Synthesize(ctx, reply)
	s.metrics.ObserveStage("synthesize", stageStart)
	if synthesized == nil && s.caps.TTSAvailable() {
		s.metrics.ObserveTTSDegraded()
	}

	result = &model.PipelineResult{
		Transcription: transcript,
		ResponseText:  reply,
	}
	if synthesized != nil {
		result.AudioAvailable = true
		result.AudioData = base64.StdEncoding.EncodeToString(synthesized.Data)
		result.AudioFormat = synthesized.Format
	}

	logger.Info("pipeline completed",
		zap.String("response_path", string(path)),
		zap.Bool("audio_available", result.AudioAvailable),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}
