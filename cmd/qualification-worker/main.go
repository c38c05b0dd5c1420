package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wolfman30/agentdesk/cmd/mainconfig"
	"github.com/wolfman30/agentdesk/internal/app/bootstrap"
	appconfig "github.com/wolfman30/agentdesk/internal/config"
	"github.com/wolfman30/agentdesk/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat)

	if cfg.UseMemoryQueue || cfg.QualificationQueueURL == "" {
		logger.Error("qualification worker needs QUALIFICATION_QUEUE_URL and USE_MEMORY_QUEUE=false")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	app, err := bootstrap.Build(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	worker := app.NewWorker()
	worker.Start(ctx)
	logger.Info("qualification worker started", "workers", cfg.WorkerCount)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down qualification worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("qualification worker stopped")
	case <-doneCtx.Done():
		logger.Error("qualification worker shutdown timed out", "error", doneCtx.Err())
	}
}
