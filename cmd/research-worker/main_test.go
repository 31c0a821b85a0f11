package main

import (
	"context"
	"errors"
	"testing"

	"github.com/nexus-rpc/sdk-go/nexus"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/app"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/workflows"
)

type stubWorker struct {
	runErr     error
	startErr   error
	workflows  []interface{}
	activities []interface{}
}

func (s *stubWorker) RegisterWorkflow(w interface{}) {
	s.workflows = append(s.workflows, w)
}

func (s *stubWorker) RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions) {}

func (s *stubWorker) RegisterDynamicWorkflow(w interface{}, options workflow.DynamicRegisterOptions) {
}

func (s *stubWorker) RegisterActivity(a interface{}) {
	s.activities = append(s.activities, a)
}

func (s *stubWorker) RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions) {}

func (s *stubWorker) RegisterDynamicActivity(a interface{}, options activity.DynamicRegisterOptions) {
}

func (s *stubWorker) RegisterNexusService(_ *nexus.Service) {}

func (s *stubWorker) Start() error {
	return s.startErr
}

func (s *stubWorker) Run(_ <-chan interface{}) error {
	return s.runErr
}

func (s *stubWorker) Stop() {}

func captureWorkerDeps() func() {
	origLoadConfig := loadConfig
	origNewLogger := newLogger
	origDialTemporal := dialTemporal
	origNewPipeline := newPipeline
	origNewWorker := newWorker
	origWorkerInterrupt := workerInterrupt

	return func() {
		loadConfig = origLoadConfig
		newLogger = origNewLogger
		dialTemporal = origDialTemporal
		newPipeline = origNewPipeline
		newWorker = origNewWorker
		workerInterrupt = origWorkerInterrupt
	}
}

func workerConfig() config.Config {
	return config.Config{
		TemporalAddress:   "localhost:7233",
		TemporalTaskQueue: "deep-research-test",
		ControlPlaneURL:   "http://localhost:8000",
		LLMMode:           "local",
		SearchProvider:    "stub",
		LogLevel:          "info",
		LogFormat:         "json",
	}
}

func TestRunSuccess(t *testing.T) {
	restore := captureWorkerDeps()
	t.Cleanup(restore)

	loadConfig = func() (config.Config, error) {
		return workerConfig(), nil
	}
	newLogger = func(string, string) (*zap.Logger, error) {
		return zap.NewNop(), nil
	}
	dialTemporal = func(_ client.Options) (client.Client, error) {
		return nil, nil
	}
	stub := &stubWorker{}
	var gotQueue string
	newWorker = func(_ client.Client, taskQueue string, _ worker.Options) worker.Worker {
		gotQueue = taskQueue
		return stub
	}
	workerInterrupt = func() <-chan interface{} {
		return make(chan interface{})
	}

	if err := run(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if gotQueue != "deep-research-test" {
		t.Fatalf("task queue = %q", gotQueue)
	}
	if len(stub.workflows) != 1 || len(stub.activities) != 1 {
		t.Fatalf("registered %d workflows and %d activities", len(stub.workflows), len(stub.activities))
	}
	if _, ok := stub.activities[0].(*workflows.StageActivities); !ok {
		t.Fatalf("unexpected activity type %T", stub.activities[0])
	}
}

func TestRunConfigLoadFailure(t *testing.T) {
	restore := captureWorkerDeps()
	t.Cleanup(restore)

	loadConfig = func() (config.Config, error) {
		return config.Config{}, errors.New("config load failed")
	}

	if err := run(); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestRunInvalidLogLevel(t *testing.T) {
	restore := captureWorkerDeps()
	t.Cleanup(restore)

	loadConfig = func() (config.Config, error) {
		cfg := workerConfig()
		cfg.LogLevel = "loud"
		return cfg, nil
	}

	if err := run(); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestRunTemporalClientFailure(t *testing.T) {
	restore := captureWorkerDeps()
	t.Cleanup(restore)

	loadConfig = func() (config.Config, error) {
		return workerConfig(), nil
	}
	dialTemporal = func(_ client.Options) (client.Client, error) {
		return nil, errors.New("temporal dial failed")
	}

	if err := run(); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestRunPipelineFailure(t *testing.T) {
	restore := captureWorkerDeps()
	t.Cleanup(restore)

	loadConfig = func() (config.Config, error) {
		return workerConfig(), nil
	}
	dialTemporal = func(_ client.Options) (client.Client, error) {
		return nil, nil
	}
	newPipeline = func(_ context.Context, _ config.Config, _ *zap.Logger) (*app.Pipeline, error) {
		return nil, errors.New("search: unsupported")
	}

	if err := run(); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestRunWorkerFailure(t *testing.T) {
	restore := captureWorkerDeps()
	t.Cleanup(restore)

	loadConfig = func() (config.Config, error) {
		return workerConfig(), nil
	}
	dialTemporal = func(_ client.Options) (client.Client, error) {
		return nil, nil
	}
	newWorker = func(_ client.Client, _ string, _ worker.Options) worker.Worker {
		return &stubWorker{runErr: errors.New("worker stopped")}
	}
	workerInterrupt = func() <-chan interface{} {
		return make(chan interface{})
	}

	if err := run(); err == nil {
		t.Fatal("expected error, got nil")
	}
}
