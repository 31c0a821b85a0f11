package workflows

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/events"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/research"
)

const eventSource = "worker"

type StageInput struct {
	RunID string
	State research.RunState
}

type StageEvent struct {
	RunID  string
	Seq    int64
	Stage  research.StageName
	Update research.Update
}

// StageActivities runs the pipeline stages inside a Temporal worker and
// reports each completed stage back to the server that owns the stream.
type StageActivities struct {
	stages         map[research.StageName]research.Stage
	controlPlane   string
	httpClient     *http.Client
	requestTimeout time.Duration
	logger         *zap.Logger
}

type StageActivitiesOption func(*StageActivities)

func WithHTTPClient(client *http.Client) StageActivitiesOption {
	return func(a *StageActivities) {
		if client != nil {
			a.httpClient = client
		}
	}
}

func WithRequestTimeout(timeout time.Duration) StageActivitiesOption {
	return func(a *StageActivities) {
		if timeout > 0 {
			a.requestTimeout = timeout
		}
	}
}

func WithActivityLogger(logger *zap.Logger) StageActivitiesOption {
	return func(a *StageActivities) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func NewStageActivities(stages []research.Stage, controlPlaneURL string, opts ...StageActivitiesOption) *StageActivities {
	activities := &StageActivities{
		stages:         map[research.StageName]research.Stage{},
		controlPlane:   strings.TrimRight(controlPlaneURL, "/"),
		httpClient:     &http.Client{Timeout: 60 * time.Second},
		requestTimeout: 10 * time.Second,
		logger:         zap.NewNop(),
	}
	for _, stage := range stages {
		activities.stages[stage.Name] = stage
	}
	for _, opt := range opts {
		opt(activities)
	}
	return activities
}

func (a *StageActivities) PlanStage(ctx context.Context, input StageInput) (research.Update, error) {
	return a.runStage(ctx, research.StagePlan, input)
}

func (a *StageActivities) ResearchStage(ctx context.Context, input StageInput) (research.Update, error) {
	return a.runStage(ctx, research.StageResearch, input)
}

func (a *StageActivities) WriteStage(ctx context.Context, input StageInput) (research.Update, error) {
	return a.runStage(ctx, research.StageWrite, input)
}

func (a *StageActivities) runStage(ctx context.Context, name research.StageName, input StageInput) (research.Update, error) {
	stage, ok := a.stages[name]
	if !ok {
		return research.Update{}, fmt.Errorf("stage %s is not registered", name)
	}
	return research.RunStage(ctx, stage, input.State, a.logger), nil
}

// PublishStage posts a stage.completed event to the server's ingest endpoint.
func (a *StageActivities) PublishStage(ctx context.Context, input StageEvent) error {
	event, err := events.NewStageEvent(input.RunID, input.Seq, eventSource, string(input.Stage), input.Update)
	if err != nil {
		return err
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/runs/%s/events", a.controlPlane, input.RunID)
	requestCtx, cancel := context.WithTimeout(ctx, a.requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("control plane event failed: %s", resp.Status)
	}
	return nil
}
