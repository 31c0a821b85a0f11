package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/store"
)

type MemoryStore struct {
	mu       sync.RWMutex
	threads  map[string]store.Thread
	messages map[string][]store.Message
	now      func() time.Time
}

func New() *MemoryStore {
	return &MemoryStore{
		threads:  map[string]store.Thread{},
		messages: map[string][]store.Message{},
		now:      time.Now,
	}
}

func (m *MemoryStore) EnsureThread(ctx context.Context, threadID string) (store.Thread, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		threadID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if thread, ok := m.threads[threadID]; ok {
		thread.MessageCount = int64(len(m.messages[threadID]))
		return thread, nil
	}
	stamp := m.timestamp()
	thread := store.Thread{ID: threadID, CreatedAt: stamp, UpdatedAt: stamp}
	m.threads[threadID] = thread
	return thread, nil
}

func (m *MemoryStore) GetThread(ctx context.Context, threadID string) (*store.Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	thread, ok := m.threads[threadID]
	if !ok {
		return nil, nil
	}
	thread.MessageCount = int64(len(m.messages[threadID]))
	return &thread, nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, msg store.Message) (store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	thread, ok := m.threads[msg.ThreadID]
	if !ok {
		return store.Message{}, store.ErrThreadNotFound
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt == "" {
		msg.CreatedAt = m.timestamp()
	}
	msg.Metadata = cloneMetadata(msg.Metadata)
	msg.Sequence = int64(len(m.messages[msg.ThreadID])) + 1
	m.messages[msg.ThreadID] = append(m.messages[msg.ThreadID], msg)
	thread.UpdatedAt = msg.CreatedAt
	m.threads[msg.ThreadID] = thread
	return msg, nil
}

func (m *MemoryStore) ListMessages(ctx context.Context, threadID string) ([]store.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	messages := m.messages[threadID]
	results := make([]store.Message, 0, len(messages))
	for _, msg := range messages {
		msg.Metadata = cloneMetadata(msg.Metadata)
		results = append(results, msg)
	}
	return results, nil
}

func (m *MemoryStore) CountThreads(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.threads)), nil
}

func (m *MemoryStore) timestamp() string {
	return m.now().UTC().Format(time.RFC3339Nano)
}

func cloneMetadata(metadata map[string]any) map[string]any {
	cloned := make(map[string]any, len(metadata))
	for key, value := range metadata {
		cloned[key] = value
	}
	return cloned
}
