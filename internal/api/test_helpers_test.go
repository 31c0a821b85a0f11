package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/events"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/research"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/store"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/stream"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) EnsureThread(ctx context.Context, threadID string) (store.Thread, error) {
	args := m.Called(ctx, threadID)
	return args.Get(0).(store.Thread), args.Error(1)
}

func (m *MockStore) GetThread(ctx context.Context, threadID string) (*store.Thread, error) {
	args := m.Called(ctx, threadID)
	if value := args.Get(0); value != nil {
		return value.(*store.Thread), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) AppendMessage(ctx context.Context, msg store.Message) (store.Message, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(store.Message), args.Error(1)
}

func (m *MockStore) ListMessages(ctx context.Context, threadID string) ([]store.Message, error) {
	args := m.Called(ctx, threadID)
	var result []store.Message
	if value := args.Get(0); value != nil {
		result = value.([]store.Message)
	}
	return result, args.Error(1)
}

func (m *MockStore) CountThreads(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type MockBroker struct {
	mock.Mock
}

func (m *MockBroker) Publish(event events.RunEvent) {
	m.Called(event)
}

func (m *MockBroker) ActiveRuns() int {
	args := m.Called()
	return args.Int(0)
}

// fixedStages returns a sequencer whose stages produce a one-item plan, one
// piece of evidence and the given report.
func fixedStages(report string) *research.Sequencer {
	return research.NewSequencerWithStages([]research.Stage{
		{Name: research.StagePlan, Run: func(ctx context.Context, state research.RunState) (research.Update, error) {
			return research.Update{Plan: &research.Plan{WorkItems: []research.WorkItem{{ID: "1", Question: "What is " + state.Query + "?"}}}}, nil
		}},
		{Name: research.StageResearch, Run: func(ctx context.Context, state research.RunState) (research.Update, error) {
			return research.Update{
				Evidence:        []research.Evidence{{WorkItemID: "1", Findings: []string{"finding"}}},
				Citations:       []research.Citation{{Title: "Source", URL: "https://example.com/a"}},
				SourcesAnalyzed: 1,
			}, nil
		}},
		{Name: research.StageWrite, Run: func(ctx context.Context, state research.RunState) (research.Update, error) {
			return research.Update{Report: &report}, nil
		}},
	}, nil)
}

func newTestServer(t *testing.T, st store.Store, broker Broker, source research.Source, cfg config.Config, opts ...ServerOption) *httptest.Server {
	t.Helper()
	server := NewServer(st, broker, source, stream.NewEmitter(stream.WithKeepAlive(0)), cfg, opts...)
	return httptest.NewServer(server.Router())
}

type sseFrame struct {
	Event string
	Data  map[string]any
}

// readSSE parses every event frame in body, skipping comments.
func readSSE(t *testing.T, body io.Reader) []sseFrame {
	t.Helper()
	var frames []sseFrame
	var current sseFrame
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.Event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &current.Data))
		case line == "" && current.Event != "":
			frames = append(frames, current)
			current = sseFrame{}
		}
	}
	require.NoError(t, scanner.Err())
	return frames
}

func frameNames(frames []sseFrame) []string {
	names := make([]string, 0, len(frames))
	for _, frame := range frames {
		names = append(names, frame.Event)
	}
	return names
}
