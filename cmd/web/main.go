package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quizengine/internal/app"
	"quizengine/internal/app/observability"
	"quizengine/internal/auth"
	"quizengine/internal/exam"
	"quizengine/internal/logging"
	"quizengine/internal/regrade"
	"quizengine/internal/report"

	"go.uber.org/zap"
)

func main() {
	cfg := app.LoadConfig()
	log := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer func() { _ = log.Sync() }()

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(cfg.ServiceName, cfg.TracingEndpoint)
	if err != nil {
		log.Fatal("tracing", zap.Error(err))
	}

	deps, err := app.OpenDeps(ctx, cfg, log)
	if err != nil {
		log.Error("startup", zap.Error(err))
		os.Exit(1)
	}
	defer deps.Close()

	metrics := observability.NewCollector(log.Named("http"))
	exam.RegisterMetrics(metrics.Registry())

	r := app.NewRouter(cfg, app.Handlers{
		Auth:    auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer),
		Exam:    exam.NewHandler(deps.Exam, log),
		Regrade: regrade.NewHandler(regrade.NewDispatcher(deps.Jobs), deps.Aggregator, log),
		Report:  report.NewHandler(deps.Reports, log),
		Metrics: metrics,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("quizengine web listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("server forced to shutdown", zap.Error(err))
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Warn("tracer shutdown", zap.Error(err))
	}
}
