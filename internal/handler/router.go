package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhouzirui/voice-pipeline/backend/internal/config"
	"github.com/zhouzirui/voice-pipeline/backend/internal/handler/pipeline"
)

// NewRouter wires HTTP routes to the pipeline handler.
// gatherer 为 nil 或 metrics 被禁用时不暴露指标端点。
func NewRouter(h *pipeline.Handler, metricsCfg config.MetricsConfig, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	h.RegisterRoutes(r)

	if metricsCfg.Enabled && gatherer != nil {
		r.Handle(metricsCfg.Path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return r
}
