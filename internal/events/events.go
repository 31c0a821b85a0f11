package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	TypeStageCompleted = "stage.completed"

	subscriberBuffer = 16
)

// RunEvent is a progress notification for one research run. Payload is the
// JSON encoding of a type-specific body, for stage.completed a StagePayload.
type RunEvent struct {
	RunID   string          `json:"run_id"`
	Seq     int64           `json:"seq"`
	Type    string          `json:"type"`
	Ts      string          `json:"ts"`
	Source  string          `json:"source"`
	Payload json.RawMessage `json:"payload"`
}

// StagePayload carries the stage name and the partial state update it
// produced, kept as raw JSON so this package stays independent of the
// research types.
type StagePayload struct {
	Stage  string          `json:"stage"`
	Update json.RawMessage `json:"update"`
}

func NormalizeType(eventType string) string {
	return strings.TrimSpace(strings.ToLower(eventType))
}

func NewStageEvent(runID string, seq int64, source string, stage string, update any) (RunEvent, error) {
	encodedUpdate, err := json.Marshal(update)
	if err != nil {
		return RunEvent{}, fmt.Errorf("encode %s update: %w", stage, err)
	}
	payload, err := json.Marshal(StagePayload{Stage: stage, Update: encodedUpdate})
	if err != nil {
		return RunEvent{}, err
	}
	return RunEvent{
		RunID:   runID,
		Seq:     seq,
		Type:    TypeStageCompleted,
		Ts:      time.Now().UTC().Format(time.RFC3339Nano),
		Source:  source,
		Payload: payload,
	}, nil
}

// DecodeStage unpacks a stage.completed payload, decoding the update into
// update.
func (e RunEvent) DecodeStage(update any) (string, error) {
	if NormalizeType(e.Type) != TypeStageCompleted {
		return "", fmt.Errorf("event %q is not %s", e.Type, TypeStageCompleted)
	}
	var payload StagePayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return "", fmt.Errorf("decode stage payload: %w", err)
	}
	if strings.TrimSpace(payload.Stage) == "" {
		return "", fmt.Errorf("stage payload has no stage")
	}
	if len(payload.Update) > 0 && update != nil {
		if err := json.Unmarshal(payload.Update, update); err != nil {
			return "", fmt.Errorf("decode %s update: %w", payload.Stage, err)
		}
	}
	return payload.Stage, nil
}

type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan RunEvent]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: map[string]map[chan RunEvent]struct{}{},
	}
}

// Subscribe registers for events of runID until ctx is done, at which point
// the channel is closed.
func (b *Broker) Subscribe(ctx context.Context, runID string) <-chan RunEvent {
	ch := make(chan RunEvent, subscriberBuffer)

	b.mu.Lock()
	if b.subscribers[runID] == nil {
		b.subscribers[runID] = map[chan RunEvent]struct{}{}
	}
	b.subscribers[runID][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if b.subscribers[runID] != nil {
			delete(b.subscribers[runID], ch)
			if len(b.subscribers[runID]) == 0 {
				delete(b.subscribers, runID)
			}
		}
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// Publish delivers event to every current subscriber of its run. A
// subscriber whose buffer is full misses the event.
func (b *Broker) Publish(event RunEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers[event.RunID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// ActiveRuns reports how many runs currently have a subscriber.
func (b *Broker) ActiveRuns() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
