package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/zhouzirui/voice-pipeline/backend/internal/config"
	"github.com/zhouzirui/voice-pipeline/backend/internal/handler"
	pipelinehandler "github.com/zhouzirui/voice-pipeline/backend/internal/handler/pipeline"
	"github.com/zhouzirui/voice-pipeline/backend/internal/logging"
	"github.com/zhouzirui/voice-pipeline/backend/internal/metrics"
	"github.com/zhouzirui/voice-pipeline/backend/internal/service/pipeline"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	m := metrics.New(prometheus.DefaultRegisterer)

	caps, closeCaps := pipeline.Bootstrap(ctx, cfg, m, logger)
	defer func() {
		if err := closeCaps(); err != nil {
			logger.Warn("failed to release recognizer", zap.Error(err))
		}
	}()

	svc := pipeline.New(caps, m, logger)
	h := pipelinehandler.New(svc, pipelinehandler.StatusFrom(caps), logger)
	router := handler.NewRouter(h, cfg.Metrics, prometheus.DefaultGatherer)

	startServer(ctx, cfg.Server, router, logger)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("voice pipeline listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
