package research

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/llm"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/metrics"
)

// Planner decomposes a query into work items.
type Planner struct {
	executor
	llm llm.Provider
}

func NewPlanner(provider llm.Provider, opts ...Option) *Planner {
	return &Planner{executor: newExecutor(opts), llm: provider}
}

// Run never fails: on any model or parse error it returns a single-item
// fallback plan built from the query itself.
func (p *Planner) Run(ctx context.Context, state RunState) (Update, error) {
	plan, err := p.plan(ctx, state.Query)
	if err != nil {
		metrics.StageDegraded.WithLabelValues(string(StagePlan)).Inc()
		p.logger.Warn("planner fell back to single work item",
			zap.String("run_id", state.RunID),
			zap.Error(err),
		)
		fallback := FallbackPlan(state.Query)
		return Update{
			Plan:   &fallback,
			Errors: []string{fmt.Sprintf("Planner agent failed: %v", err)},
		}, nil
	}
	p.logger.Info("research plan created",
		zap.String("run_id", state.RunID),
		zap.Int("work_items", len(plan.WorkItems)),
	)
	return Update{Plan: &plan, SourcesAnalyzed: 0}, nil
}

func FallbackPlan(query string) Plan {
	return Plan{WorkItems: []WorkItem{{
		ID:            "sq1",
		Question:      query,
		SearchQueries: []string{query},
		Priority:      1,
	}}}
}

func (p *Planner) plan(ctx context.Context, query string) (Plan, error) {
	messages, err := p.prompts.Planner.Messages(struct{ Query string }{Query: query})
	if err != nil {
		return Plan{}, err
	}
	text, err := p.generateJSON(ctx, p.llm, messages)
	if err != nil {
		return Plan{}, err
	}
	items, err := parsePlanItems(text)
	if err != nil {
		return Plan{}, err
	}
	if err := validateWorkItems(items); err != nil {
		return Plan{}, err
	}
	return Plan{WorkItems: items}, nil
}

func parsePlanItems(text string) ([]WorkItem, error) {
	normalized := normalizeJSONText(text)
	if normalized == "" {
		return nil, errNoJSON
	}
	if strings.HasPrefix(normalized, "[") {
		var items []WorkItem
		if err := decodeModelJSON(normalized, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	var envelope struct {
		SubQuestions []WorkItem `json:"sub_questions"`
		WorkItems    []WorkItem `json:"work_items"`
	}
	if err := decodeModelJSON(normalized, &envelope); err != nil {
		return nil, err
	}
	if len(envelope.SubQuestions) > 0 {
		return envelope.SubQuestions, nil
	}
	return envelope.WorkItems, nil
}

func validateWorkItems(items []WorkItem) error {
	if len(items) == 0 {
		return errors.New("plan contained no sub-questions")
	}
	seen := map[string]struct{}{}
	for i := range items {
		item := &items[i]
		item.ID = strings.TrimSpace(item.ID)
		item.Question = strings.TrimSpace(item.Question)
		item.SearchQueries = nonEmpty(item.SearchQueries)
		if item.ID == "" {
			return fmt.Errorf("sub-question %d is missing an id", i+1)
		}
		if item.Question == "" {
			return fmt.Errorf("sub-question %s is missing its question", item.ID)
		}
		if len(item.SearchQueries) == 0 {
			return fmt.Errorf("sub-question %s has no search queries", item.ID)
		}
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("duplicate sub-question id %s", item.ID)
		}
		seen[item.ID] = struct{}{}
		if item.Priority < 1 {
			item.Priority = i + 1
		}
	}
	return nil
}
