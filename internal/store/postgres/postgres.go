package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/store"
)

type PostgresStore struct {
	db *sql.DB
}

var openDB = sql.Open

func New(conn string) (*PostgresStore, error) {
	db, err := openDB("pgx", conn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := verifySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}

func verifySchema(ctx context.Context, db *sql.DB) error {
	for _, table := range []string{"threads", "messages"} {
		var regclass sql.NullString
		if err := db.QueryRowContext(ctx, "SELECT to_regclass($1)", fmt.Sprintf("public.%s", table)).Scan(&regclass); err != nil {
			return err
		}
		if !regclass.Valid {
			return fmt.Errorf("database schema missing: %s table not found (run migrations/001_init.sql)", table)
		}
	}
	return nil
}

func (p *PostgresStore) EnsureThread(ctx context.Context, threadID string) (store.Thread, error) {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		threadID = uuid.NewString()
	}
	const insert = `
		INSERT INTO threads (id, created_at, updated_at)
		VALUES ($1, $2, $2)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := p.db.ExecContext(ctx, insert, threadID, time.Now().UTC()); err != nil {
		return store.Thread{}, err
	}
	thread, err := p.GetThread(ctx, threadID)
	if err != nil {
		return store.Thread{}, err
	}
	if thread == nil {
		return store.Thread{}, fmt.Errorf("thread %s vanished after insert", threadID)
	}
	return *thread, nil
}

func (p *PostgresStore) GetThread(ctx context.Context, threadID string) (*store.Thread, error) {
	const query = `
		SELECT t.id, t.created_at, t.updated_at, COUNT(m.id)
		FROM threads t
		LEFT JOIN messages m ON m.thread_id = t.id
		WHERE t.id = $1
		GROUP BY t.id, t.created_at, t.updated_at
	`
	var thread store.Thread
	var createdAt, updatedAt time.Time
	err := p.db.QueryRowContext(ctx, query, threadID).Scan(&thread.ID, &createdAt, &updatedAt, &thread.MessageCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	thread.CreatedAt = formatTime(createdAt)
	thread.UpdatedAt = formatTime(updatedAt)
	return &thread, nil
}

func (p *PostgresStore) AppendMessage(ctx context.Context, msg store.Message) (store.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	createdAt := parseTime(msg.CreatedAt)
	metadata := msg.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return store.Message{}, err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Message{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// Locks the thread row so concurrent appends get distinct sequences.
	var locked string
	err = tx.QueryRowContext(ctx, "UPDATE threads SET updated_at = $2 WHERE id = $1 RETURNING id", msg.ThreadID, createdAt).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Message{}, store.ErrThreadNotFound
	}
	if err != nil {
		return store.Message{}, err
	}

	const insert = `
		INSERT INTO messages (id, thread_id, role, content, sequence, created_at, metadata)
		VALUES ($1, $2, $3, $4, (SELECT COALESCE(MAX(sequence), 0) + 1 FROM messages WHERE thread_id = $2), $5, $6)
		RETURNING sequence
	`
	if err := tx.QueryRowContext(ctx, insert, msg.ID, msg.ThreadID, msg.Role, msg.Content, createdAt, encoded).Scan(&msg.Sequence); err != nil {
		return store.Message{}, err
	}
	if err := tx.Commit(); err != nil {
		return store.Message{}, err
	}
	msg.CreatedAt = formatTime(createdAt)
	msg.Metadata = metadata
	return msg, nil
}

func (p *PostgresStore) ListMessages(ctx context.Context, threadID string) ([]store.Message, error) {
	const query = `
		SELECT id, thread_id, role, content, sequence, created_at, metadata
		FROM messages
		WHERE thread_id = $1
		ORDER BY sequence ASC
	`
	rows, err := p.db.QueryContext(ctx, query, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.Message{}
	for rows.Next() {
		var createdAt time.Time
		var metadataBytes []byte
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.ThreadID, &msg.Role, &msg.Content, &msg.Sequence, &createdAt, &metadataBytes); err != nil {
			return nil, err
		}
		msg.CreatedAt = formatTime(createdAt)
		msg.Metadata = map[string]any{}
		if len(metadataBytes) > 0 {
			if err := json.Unmarshal(metadataBytes, &msg.Metadata); err != nil {
				return nil, err
			}
		}
		results = append(results, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *PostgresStore) CountThreads(ctx context.Context) (int64, error) {
	var count int64
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM threads").Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return parsed.UTC()
	}
	return time.Now().UTC()
}
