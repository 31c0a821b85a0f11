package workflows

import (
	"context"
	"errors"
	"fmt"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/events"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/research"
)

const DefaultTaskQueue = "deep-research"

var errSubscriptionClosed = errors.New("stage subscription closed before the run finished")

// ErrRunInProgress is returned by Start when the thread already has a
// research workflow running.
var ErrRunInProgress = errors.New("a research run is already in progress for this thread")

type Subscriber interface {
	Subscribe(ctx context.Context, runID string) <-chan events.RunEvent
}

// Service starts research runs on Temporal and turns the stage events the
// worker publishes back into research.Progress for the stream emitter.
type Service struct {
	client    client.Client
	taskQueue string
	broker    Subscriber
	logger    *zap.Logger
}

func NewService(client client.Client, taskQueue string, broker Subscriber, logger *zap.Logger) *Service {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: client, taskQueue: taskQueue, broker: broker, logger: logger}
}

type workflowResult struct {
	state research.RunState
	err   error
}

func (s *Service) Start(ctx context.Context, runID string, query string) (<-chan research.Progress, error) {
	runCtx, cancel := context.WithCancel(ctx)
	// Subscribe before starting so the first stage event cannot be missed.
	stageEvents := s.broker.Subscribe(runCtx, runID)

	options := client.StartWorkflowOptions{
		ID:                                       workflowID(runID),
		TaskQueue:                                s.taskQueue,
		WorkflowIDConflictPolicy:                 enumspb.WORKFLOW_ID_CONFLICT_POLICY_FAIL,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}
	run, err := s.client.ExecuteWorkflow(ctx, options, ResearchWorkflow, ResearchInput{RunID: runID, Query: query})
	if err != nil {
		cancel()
		var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &alreadyStarted) {
			return nil, ErrRunInProgress
		}
		return nil, err
	}

	results := make(chan workflowResult, 1)
	go func() {
		var final research.RunState
		err := run.Get(runCtx, &final)
		results <- workflowResult{state: final, err: err}
	}()

	out := make(chan research.Progress, len(workflowStages)+1)
	go func() {
		defer close(out)
		defer cancel()
		s.follow(ctx, runID, query, stageEvents, results, out)
	}()
	return out, nil
}

func (s *Service) follow(ctx context.Context, runID string, query string, stageEvents <-chan events.RunEvent, results <-chan workflowResult, out chan<- research.Progress) {
	state := research.NewRunState(runID, query)
	next := 0

	apply := func(event events.RunEvent) {
		var update research.Update
		stage, err := event.DecodeStage(&update)
		if err != nil {
			s.logger.Warn("ignoring run event", zap.String("run_id", runID), zap.Error(err))
			return
		}
		if next >= len(workflowStages) || stage != string(workflowStages[next].name) {
			s.logger.Warn("ignoring out of order stage event",
				zap.String("run_id", runID),
				zap.String("stage", stage),
				zap.Int64("seq", event.Seq),
			)
			return
		}
		state.Merge(update)
		out <- research.Progress{Stage: workflowStages[next].name, State: state.Clone()}
		next++
	}

	for next < len(workflowStages) {
		select {
		case <-ctx.Done():
			s.cancelWorkflow(runID)
			out <- research.Progress{Err: ctx.Err()}
			return
		case event, ok := <-stageEvents:
			if !ok {
				if err := ctx.Err(); err != nil {
					s.cancelWorkflow(runID)
					out <- research.Progress{Err: err}
					return
				}
				out <- research.Progress{Err: errSubscriptionClosed}
				return
			}
			apply(event)
		case result := <-results:
			if err := ctx.Err(); err != nil {
				s.cancelWorkflow(runID)
				out <- research.Progress{Err: err}
				return
			}
			if result.err != nil {
				out <- research.Progress{Err: fmt.Errorf("research workflow failed: %w", result.err)}
				return
			}
			s.finishFromResult(runID, stageEvents, apply, &next, result.state, out)
			return
		}
	}
}

// finishFromResult drains stage events that are already buffered, then
// reports any stage still unseen with the workflow's final state.
func (s *Service) finishFromResult(runID string, stageEvents <-chan events.RunEvent, apply func(events.RunEvent), next *int, final research.RunState, out chan<- research.Progress) {
	for *next < len(workflowStages) {
		select {
		case event, ok := <-stageEvents:
			if !ok {
				stageEvents = nil
				continue
			}
			apply(event)
			continue
		default:
		}
		s.logger.Warn("stage event missing, using workflow result",
			zap.String("run_id", runID),
			zap.String("stage", string(workflowStages[*next].name)),
		)
		out <- research.Progress{Stage: workflowStages[*next].name, State: final.Clone()}
		*next++
	}
}

func (s *Service) cancelWorkflow(runID string) {
	if err := s.client.CancelWorkflow(context.Background(), workflowID(runID), ""); err != nil {
		s.logger.Warn("failed to cancel research workflow", zap.String("run_id", runID), zap.Error(err))
	}
}

func workflowID(runID string) string {
	return fmt.Sprintf("research:%s", runID)
}
