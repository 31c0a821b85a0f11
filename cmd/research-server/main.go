package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/api"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/app"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/events"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/logging"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/research"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/store"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/stream"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/workflows"
)

type server interface {
	Start(ctx context.Context, addr string) error
}

var (
	loadConfig = func() (config.Config, error) {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			return config.Config{}, err
		}
		return config.Load(), nil
	}
	newLogger    = logging.New
	newBroker    = events.NewBroker
	openStore    = app.OpenStore
	newPipeline  = app.NewPipeline
	dialTemporal = client.Dial
	newServer    = func(st store.Store, broker *events.Broker, source research.Source, emitter *stream.Emitter, cfg config.Config, opts ...api.ServerOption) server {
		return api.NewServer(st, broker, source, emitter, cfg, opts...)
	}
	notifyContext = signal.NotifyContext
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

	ctx, cancel := notifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	broker := newBroker()
	var opts []api.ServerOption
	opts = append(opts, api.WithLogger(logger.Named("api")))

	var source research.Source
	switch cfg.ExecutionMode {
	case config.ExecutionTemporal:
		temporalClient, err := dialTemporal(client.Options{HostPort: cfg.TemporalAddress})
		if err != nil {
			return err
		}
		if temporalClient != nil {
			defer temporalClient.Close()
		}
		source = workflows.NewService(temporalClient, cfg.TemporalTaskQueue, broker, logger.Named("workflows"))
	case "", config.ExecutionInline:
		pipeline, err := newPipeline(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = pipeline.Close() }()
		source = research.NewSequencer(pipeline.Planner, pipeline.Researcher, pipeline.Writer, logger.Named("sequencer"))
		if pipeline.Redis != nil {
			opts = append(opts, api.WithProbe("search_cache", pipeline.PingRedis))
		}
	default:
		return fmt.Errorf("unsupported execution mode %q", cfg.ExecutionMode)
	}

	emitter := stream.NewEmitter(
		stream.WithChunkSize(cfg.StreamChunkSize),
		stream.WithChunkDelay(cfg.StreamChunkDelay),
		stream.WithKeepAlive(cfg.StreamKeepAlive),
		stream.WithLogger(logger.Named("stream")),
	)
	srv := newServer(st, broker, source, emitter, cfg, opts...)

	addr := fmt.Sprintf(":%s", cfg.Port)
	logger.Info("deep research server listening",
		zap.String("addr", addr),
		zap.String("execution_mode", cfg.ExecutionMode),
		zap.String("thread_store", cfg.ThreadStore),
	)
	return srv.Start(ctx, addr)
}
