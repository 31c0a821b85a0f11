package research

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/llm"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/search"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	args := m.Called(ctx, messages)
	return args.String(0), args.Error(1)
}

// scriptedLLM answers by stage, recognised from the system prompt.
type scriptedLLM struct {
	mu         sync.Mutex
	plan       func() (string, error)
	synthesize func(user string) (string, error)
	write      func(user string) (string, error)
	calls      map[StageName]int
}

func (s *scriptedLLM) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	stage := stageForMessages(messages)
	s.mu.Lock()
	if s.calls == nil {
		s.calls = map[StageName]int{}
	}
	s.calls[stage]++
	s.mu.Unlock()

	user := messages[len(messages)-1].Content
	switch stage {
	case StagePlan:
		if s.plan != nil {
			return s.plan()
		}
	case StageResearch:
		if s.synthesize != nil {
			return s.synthesize(user)
		}
	case StageWrite:
		if s.write != nil {
			return s.write(user)
		}
	}
	return "", errors.New("no script for stage")
}

func (s *scriptedLLM) callCount(stage StageName) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[stage]
}

func stageForMessages(messages []llm.Message) StageName {
	if len(messages) == 0 {
		return ""
	}
	system := messages[0].Content
	prompts := DefaultPrompts()
	switch system {
	case strings.TrimSpace(prompts.Planner.System):
		return StagePlan
	case strings.TrimSpace(prompts.Researcher.System):
		return StageResearch
	case strings.TrimSpace(prompts.Writer.System):
		return StageWrite
	}
	return ""
}

type failingLLM struct{}

func (failingLLM) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	return "", errors.New("model unavailable")
}

// searchByQuery returns canned results keyed by query text.
type searchByQuery struct {
	mu      sync.Mutex
	results map[string][]search.Result
	errs    map[string]error
	queries []string
}

func (s *searchByQuery) Search(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()
	if err := s.errs[query]; err != nil {
		return nil, err
	}
	results := s.results[query]
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

func (s *searchByQuery) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.queries...)
}

type failingSearch struct{}

func (failingSearch) Search(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
	return nil, errors.New("search backend down")
}

func planState(items ...WorkItem) RunState {
	state := NewRunState("run-1", "causes of inflation")
	state.Plan = &Plan{WorkItems: items}
	return state
}
