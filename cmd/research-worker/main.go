package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/app"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/logging"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/workflows"
)

var (
	loadConfig = func() (config.Config, error) {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return config.Config{}, err
		}
		return config.Load(), nil
	}
	newLogger       = logging.New
	dialTemporal    = client.Dial
	newPipeline     = app.NewPipeline
	newWorker       = worker.New
	workerInterrupt = worker.InterruptCh
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	temporalClient, err := dialTemporal(client.Options{
		HostPort: cfg.TemporalAddress,
	})
	if err != nil {
		return err
	}
	if temporalClient != nil {
		defer temporalClient.Close()
	}

	pipeline, err := newPipeline(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = pipeline.Close() }()

	activities := workflows.NewStageActivities(pipeline.Stages(), cfg.ControlPlaneURL,
		workflows.WithActivityLogger(logger.Named("activities")))

	w := newWorker(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.ResearchWorkflow)
	w.RegisterActivity(activities)

	logger.Info("deep research worker started",
		zap.String("task_queue", cfg.TemporalTaskQueue),
		zap.String("control_plane_url", cfg.ControlPlaneURL),
	)
	return w.Run(workerInterrupt())
}
