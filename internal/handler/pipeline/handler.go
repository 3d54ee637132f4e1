package pipeline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/voice-pipeline/backend/internal/audio"
	"github.com/zhouzirui/voice-pipeline/backend/internal/model/speech"
	pipelinesvc "github.com/zhouzirui/voice-pipeline/backend/internal/service/pipeline"
	"github.com/zhouzirui/voice-pipeline/backend/internal/system"
	"github.com/zhouzirui/voice-pipeline/backend/pkg/utils"
)

// Runner 抽象流水线执行，便于测试替换。
type Runner interface {
	Run(ctx context.Context, blob speech.AudioBlob) (*speech.PipelineResult, error)
}

// Status 是 /health 报告的启动期能力结论。
type Status struct {
	Device       string
	LLMAvailable bool
	TTSAvailable bool
}

// StatusFrom 从能力上下文提取健康状态。
func StatusFrom(caps *pipelinesvc.Capabilities) Status {
	return Status{
		Device:       caps.Device,
		LLMAvailable: caps.LLMAvailable,
		TTSAvailable: caps.TTSAvailable(),
	}
}

type healthResponse struct {
	Status        string  `json:"status"`
	Device        string  `json:"device"`
	LLMAvailable  bool    `json:"llm_available"`
	TTSAvailable  bool    `json:"tts_available"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

// Handler 语音流水线的 HTTP 处理器
type Handler struct {
	runner   Runner
	status   Status
	logger   *zap.Logger
	upgrader wsUpgrader

	readTimeout time.Duration

	cpuUsage    func(context.Context) (float64, error)
	memoryUsage func(context.Context) (float64, error)
}

// New 创建处理器
func New(runner Runner, status Status, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		runner:      runner,
		status:      status,
		logger:      logger.Named("http"),
		upgrader:    newUpgrader(),
		readTimeout: wsReadTimeout,
		cpuUsage:    system.CPUUsage,
		memoryUsage: system.MemoryUsage,
	}
}

// RegisterRoutes 注册流水线相关路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/process_audio", h.handleProcessAudio)
	r.Get("/health", h.handleHealth)
	r.Get("/ws", h.handleWebSocket)
}

func (h *Handler) handleProcessAudio(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "No audio file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read audio file")
		return
	}

	blob := speech.AudioBlob{Data: data, Format: inferAudioFormat(header.Filename)}
	ctx := pipelinesvc.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))

	result, err := h.runner.Run(ctx, blob)
	if err != nil {
		h.respondRunError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) respondRunError(w http.ResponseWriter, err error) {
	var ce *pipelinesvc.ClientError
	if errors.As(err, &ce) {
		utils.RespondError(w, http.StatusBadRequest, ce.Message)
		return
	}
	h.logger.Error("pipeline failed", zap.Error(err))
	utils.RespondError(w, http.StatusInternalServerError, pipelinesvc.MsgInternal)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:       "healthy",
		Device:       h.status.Device,
		LLMAvailable: h.status.LLMAvailable,
		TTSAvailable: h.status.TTSAvailable,
	}
	if v, err := h.cpuUsage(r.Context()); err == nil {
		resp.CPUPercent = v
	} else {
		h.logger.Debug("cpu usage unavailable", zap.Error(err))
	}
	if v, err := h.memoryUsage(r.Context()); err == nil {
		resp.MemoryPercent = v
	} else {
		h.logger.Debug("memory usage unavailable", zap.Error(err))
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

// inferAudioFormat 根据扩展名推断格式，未知扩展名交给魔数嗅探。
func inferAudioFormat(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp3":
		return audio.FormatMP3
	case ".wav", ".wave":
		return audio.FormatWAV
	case ".pcm", ".raw":
		return audio.FormatPCM
	default:
		return audio.FormatUnknown
	}
}
