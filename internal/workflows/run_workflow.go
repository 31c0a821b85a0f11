package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/research"
)

const (
	PlanStageActivity     = "PlanStage"
	ResearchStageActivity = "ResearchStage"
	WriteStageActivity    = "WriteStage"
	PublishStageActivity  = "PublishStage"
)

type ResearchInput struct {
	RunID string
	Query string
}

var workflowStages = []struct {
	name     research.StageName
	activity string
}{
	{research.StagePlan, PlanStageActivity},
	{research.StageResearch, ResearchStageActivity},
	{research.StageWrite, WriteStageActivity},
}

// ResearchWorkflow runs plan, research and write as activities, merging each
// update into the run state and publishing it before the next stage starts.
// A failed stage activity is recorded in the state's errors and the run
// continues; a stage that cannot be published fails the workflow.
func ResearchWorkflow(ctx workflow.Context, input ResearchInput) (research.RunState, error) {
	stageCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 20 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})
	publishCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: time.Second,
			MaximumAttempts: 3,
		},
	})

	logger := workflow.GetLogger(ctx)
	state := research.NewRunState(input.RunID, input.Query)

	for i, stage := range workflowStages {
		var update research.Update
		if err := workflow.ExecuteActivity(stageCtx, stage.activity, StageInput{
			RunID: input.RunID,
			State: state,
		}).Get(ctx, &update); err != nil {
			logger.Error("stage activity failed", "stage", string(stage.name), "error", err)
			update = research.StageFault(stage.name, state, research.Update{}, err)
		}
		state.Merge(update)

		if err := workflow.ExecuteActivity(publishCtx, PublishStageActivity, StageEvent{
			RunID:  input.RunID,
			Seq:    int64(i + 1),
			Stage:  stage.name,
			Update: update,
		}).Get(ctx, nil); err != nil {
			logger.Error("failed to publish stage", "stage", string(stage.name), "error", err)
			return state, fmt.Errorf("publish %s stage: %w", stage.name, err)
		}
	}

	return state, nil
}
