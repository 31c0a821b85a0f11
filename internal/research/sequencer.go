package research

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/metrics"
)

type StageName string

const (
	StagePlan     StageName = "plan"
	StageResearch StageName = "research"
	StageWrite    StageName = "write"
)

type StageFunc func(ctx context.Context, state RunState) (Update, error)

type Stage struct {
	Name StageName
	Run  StageFunc
}

// Progress is pushed once per completed stage. State is a snapshot taken
// after the stage's update was merged. A non-nil Err is terminal.
type Progress struct {
	Stage StageName
	State RunState
	Err   error
}

// Source starts a run and yields its progress. The channel is closed after
// the last stage or after a Progress carrying Err.
type Source interface {
	Start(ctx context.Context, runID string, query string) (<-chan Progress, error)
}

type Sequencer struct {
	stages []Stage
	logger *zap.Logger
}

func NewSequencer(planner *Planner, researcher *Researcher, writer *Writer, logger *zap.Logger) *Sequencer {
	return NewSequencerWithStages([]Stage{
		{Name: StagePlan, Run: planner.Run},
		{Name: StageResearch, Run: researcher.Run},
		{Name: StageWrite, Run: writer.Run},
	}, logger)
}

func NewSequencerWithStages(stages []Stage, logger *zap.Logger) *Sequencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sequencer{stages: stages, logger: logger}
}

func (s *Sequencer) Stages() []Stage {
	return append([]Stage{}, s.stages...)
}

// Execute runs every stage and returns the terminal state.
func (s *Sequencer) Execute(ctx context.Context, runID string, query string) RunState {
	state, err := s.run(ctx, runID, query, nil)
	if err != nil {
		state.Errors = append(state.Errors, fmt.Sprintf("run aborted: %v", err))
	}
	return state
}

func (s *Sequencer) Start(ctx context.Context, runID string, query string) (<-chan Progress, error) {
	// Buffered for every stage plus a terminal error so the run never blocks
	// on a subscriber that stopped reading.
	out := make(chan Progress, len(s.stages)+1)
	go func() {
		defer close(out)
		defer func() {
			if recovered := recover(); recovered != nil {
				s.logger.Error("sequencer panicked", zap.String("run_id", runID), zap.Any("panic", recovered))
				out <- Progress{Err: fmt.Errorf("sequencer panic: %v", recovered)}
			}
		}()
		_, err := s.run(ctx, runID, query, func(p Progress) {
			out <- p
		})
		if err != nil {
			out <- Progress{Err: err}
		}
	}()
	return out, nil
}

func (s *Sequencer) run(ctx context.Context, runID string, query string, notify func(Progress)) (RunState, error) {
	state := NewRunState(runID, query)
	for _, stage := range s.stages {
		if err := ctx.Err(); err != nil {
			return state, err
		}
		update := RunStage(ctx, stage, state, s.logger)
		state.Merge(update)
		if notify != nil {
			notify(Progress{Stage: stage.Name, State: state.Clone()})
		}
	}
	return state, nil
}

// RunStage executes one stage against a snapshot of state. A returned error
// or panic is a hard fault: it is folded into the update's errors so the
// caller can continue with the next stage.
func RunStage(ctx context.Context, stage Stage, state RunState, logger *zap.Logger) (update Update) {
	if logger == nil {
		logger = zap.NewNop()
	}
	started := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(string(stage.Name)).Observe(time.Since(started).Seconds())
	}()
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("stage panicked",
				zap.String("run_id", state.RunID),
				zap.String("stage", string(stage.Name)),
				zap.Any("panic", recovered),
			)
			update = StageFault(stage.Name, state, Update{}, recovered)
		}
	}()

	update, err := stage.Run(ctx, state.Clone())
	if err != nil {
		logger.Error("stage failed",
			zap.String("run_id", state.RunID),
			zap.String("stage", string(stage.Name)),
			zap.Error(err),
		)
		update = StageFault(stage.Name, state, update, err)
	}
	return update
}

// StageFault records cause as a hard fault of stage on top of partial. A
// faulted write stage that produced no report gets the assembled fallback
// report, so a completed run always has something to stream.
func StageFault(stage StageName, state RunState, partial Update, cause any) Update {
	partial.Errors = append(partial.Errors, fmt.Sprintf("%s stage failed: %v", stage, cause))
	if stage != StageWrite || (partial.Report != nil && *partial.Report != "") {
		return partial
	}
	metrics.StageDegraded.WithLabelValues(string(StageWrite)).Inc()
	if len(state.Evidence) == 0 {
		partial.Report = stringPtr(EmptyReport)
		partial.ExecutiveSummary = stringPtr(emptySummary)
		partial.KeyTakeaways = []string{emptyTakeaway}
		partial.Limitations = stringPtr(emptyLimitations)
		return partial
	}
	partial.Report = stringPtr(FallbackReport(state.Query, state.Evidence))
	partial.ExecutiveSummary = stringPtr(degradedSummary)
	partial.KeyTakeaways = []string{degradedTakeaway}
	partial.Limitations = stringPtr(degradedLimitations)
	return partial
}
