package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"quizengine/internal/app"
	"quizengine/internal/app/observability"
	"quizengine/internal/logging"
	"quizengine/internal/regrade"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// The worker resolves code answers left pending by a sandbox outage and runs
// queued regrade jobs.
func main() {
	cfg := app.LoadConfig()
	log := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile}).Named("worker")
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(cfg.ServiceName+"-worker", cfg.TracingEndpoint)
	if err != nil {
		log.Fatal("tracing", zap.Error(err))
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	deps, err := app.OpenDeps(ctx, cfg, log)
	if err != nil {
		log.Error("startup", zap.Error(err))
		os.Exit(1)
	}
	defer deps.Close()

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err = c.AddFunc(cfg.SweepSchedule, func() {
		n, err := deps.Exam.SweepPending(ctx, cfg.SweepAge, cfg.SweepBatch)
		if err != nil {
			log.Warn("pending sweep", zap.Error(err))
			return
		}
		if n > 0 {
			log.Info("pending sweep", zap.Int("resolved", n))
		}
	})
	if err != nil {
		log.Fatal("schedule sweep", zap.String("schedule", cfg.SweepSchedule), zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.Start()
		<-gctx.Done()
		<-c.Stop().Done()
		return nil
	})
	g.Go(func() error {
		return regrade.NewWorker(deps.Jobs, deps.Aggregator, log).Run(gctx)
	})

	log.Info("quizengine worker started", zap.String("sweep_schedule", cfg.SweepSchedule))
	if err := g.Wait(); err != nil {
		log.Error("worker stopped", zap.Error(err))
	}
}
