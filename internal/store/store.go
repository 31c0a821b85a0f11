package store

import (
	"context"
	"errors"
)

// ErrThreadNotFound is returned when a message targets a thread that was
// never created.
var ErrThreadNotFound = errors.New("thread not found")

type Thread struct {
	ID           string
	CreatedAt    string
	UpdatedAt    string
	MessageCount int64
}

type Message struct {
	ID        string
	ThreadID  string
	Role      string
	Content   string
	Sequence  int64
	CreatedAt string
	Metadata  map[string]any
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Store keeps conversation threads. A thread id doubles as the run id of
// every research run started in it.
type Store interface {
	// EnsureThread returns the thread with id, creating it first when it does
	// not exist. A blank id creates a thread with a fresh id.
	EnsureThread(ctx context.Context, threadID string) (Thread, error)
	// GetThread returns nil without error when the thread does not exist.
	GetThread(ctx context.Context, threadID string) (*Thread, error)
	// AppendMessage assigns the next sequence number in the thread and
	// returns the stored message.
	AppendMessage(ctx context.Context, msg Message) (Message, error)
	ListMessages(ctx context.Context, threadID string) ([]Message, error)
	CountThreads(ctx context.Context) (int64, error)
}
