package main

import (
	"context"
	"errors"
	"os"
	"testing"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/api"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/app"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/events"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/research"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/store"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/stream"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/workflows"
)

type stubServer struct {
	err  error
	addr *string
}

func (s stubServer) Start(ctx context.Context, addr string) error {
	if s.addr != nil {
		*s.addr = addr
	}
	return s.err
}

func captureServerDeps() func() {
	origLoadConfig := loadConfig
	origNewLogger := newLogger
	origNewBroker := newBroker
	origOpenStore := openStore
	origNewPipeline := newPipeline
	origDialTemporal := dialTemporal
	origNewServer := newServer
	origNotifyContext := notifyContext

	return func() {
		loadConfig = origLoadConfig
		newLogger = origNewLogger
		newBroker = origNewBroker
		openStore = origOpenStore
		newPipeline = origNewPipeline
		dialTemporal = origDialTemporal
		newServer = origNewServer
		notifyContext = origNotifyContext
	}
}

func stubCommon(cfg config.Config) {
	loadConfig = func() (config.Config, error) {
		return cfg, nil
	}
	newLogger = func(string, string) (*zap.Logger, error) {
		return zap.NewNop(), nil
	}
	notifyContext = func(ctx context.Context, _ ...os.Signal) (context.Context, context.CancelFunc) {
		return context.WithCancel(ctx)
	}
}

func TestRunInlineSuccess(t *testing.T) {
	restore := captureServerDeps()
	t.Cleanup(restore)

	stubCommon(config.Config{Port: "0", ExecutionMode: config.ExecutionInline, LLMMode: "local", SearchProvider: "stub"})
	dialTemporal = func(_ client.Options) (client.Client, error) {
		t.Fatal("inline mode must not dial temporal")
		return nil, nil
	}
	var gotSource research.Source
	var addr string
	newServer = func(_ store.Store, _ *events.Broker, source research.Source, _ *stream.Emitter, _ config.Config, _ ...api.ServerOption) server {
		gotSource = source
		return stubServer{addr: &addr}
	}

	if err := run(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if _, ok := gotSource.(*research.Sequencer); !ok {
		t.Fatalf("expected sequencer source, got %T", gotSource)
	}
	if addr != ":0" {
		t.Fatalf("addr = %q", addr)
	}
}

func TestRunTemporalSuccess(t *testing.T) {
	restore := captureServerDeps()
	t.Cleanup(restore)

	stubCommon(config.Config{Port: "0", ExecutionMode: config.ExecutionTemporal, TemporalAddress: "localhost:7233"})
	dialTemporal = func(_ client.Options) (client.Client, error) {
		return nil, nil
	}
	newPipeline = func(context.Context, config.Config, *zap.Logger) (*app.Pipeline, error) {
		t.Fatal("temporal mode runs stages in the worker")
		return nil, nil
	}
	var gotSource research.Source
	newServer = func(_ store.Store, _ *events.Broker, source research.Source, _ *stream.Emitter, _ config.Config, _ ...api.ServerOption) server {
		gotSource = source
		return stubServer{}
	}

	if err := run(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if _, ok := gotSource.(*workflows.Service); !ok {
		t.Fatalf("expected workflow service source, got %T", gotSource)
	}
}

func TestRunConfigLoadFailure(t *testing.T) {
	restore := captureServerDeps()
	t.Cleanup(restore)

	loadConfig = func() (config.Config, error) {
		return config.Config{}, errors.New("config load failed")
	}

	if err := run(); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestRunStoreFailure(t *testing.T) {
	restore := captureServerDeps()
	t.Cleanup(restore)

	stubCommon(config.Config{ThreadStore: config.ThreadStorePostgres})
	openStore = func(config.Config) (store.Store, func() error, error) {
		return nil, nil, errors.New("store failed")
	}

	if err := run(); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestRunTemporalClientFailure(t *testing.T) {
	restore := captureServerDeps()
	t.Cleanup(restore)

	stubCommon(config.Config{ExecutionMode: config.ExecutionTemporal})
	dialTemporal = func(_ client.Options) (client.Client, error) {
		return nil, errors.New("temporal dial failed")
	}

	if err := run(); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestRunUnsupportedExecutionMode(t *testing.T) {
	restore := captureServerDeps()
	t.Cleanup(restore)

	stubCommon(config.Config{ExecutionMode: "batch"})

	if err := run(); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestRunServerError(t *testing.T) {
	restore := captureServerDeps()
	t.Cleanup(restore)

	stubCommon(config.Config{Port: "0", LLMMode: "local", SearchProvider: "stub"})
	newServer = func(_ store.Store, _ *events.Broker, _ research.Source, _ *stream.Emitter, _ config.Config, _ ...api.ServerOption) server {
		return stubServer{err: errors.New("listen failed")}
	}

	if err := run(); err == nil {
		t.Fatal("expected error, got nil")
	}
}
