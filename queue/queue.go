package queue

import (
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/emm218/scritches/models"
)

// Store is the durable, ordered queue of pending outbound actions. Every
// enqueue and commit is flushed to sqlite before returning, so a crash at any
// point leaves each action either pending or removed, never half-written.
// Sequence numbers come from an AUTOINCREMENT column and are therefore
// strictly increasing and never reused across restarts.
type Store struct {
	DB   *sqlx.DB
	wake chan struct{}
}

func NewStore(dsn string) (*Store, error) {
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return &Store{
		DB:   db,
		wake: make(chan struct{}, 1),
	}, nil
}

func (s *Store) ApplyMigrations(migrations embed.FS) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect(string(goose.DialectSQLite3)); err != nil {
		return err
	}

	if err := goose.Up(s.DB.DB, "."); err != nil {
		return err
	}

	return nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// Wake signals whenever something new has been enqueued. The channel is
// buffered and coalescing; a receiver that drains it and then peeks the queue
// cannot miss work.
func (s *Store) Wake() <-chan struct{} {
	return s.wake
}

// Enqueue appends the action and returns its sequence number. The action is
// recoverable across a crash once Enqueue returns.
func (s *Store) Enqueue(action models.QueuedAction) (int64, error) {
	if action.EnqueuedAt.IsZero() {
		action.EnqueuedAt = time.Now()
	}
	payload, err := json.Marshal(action)
	if err != nil {
		return 0, fmt.Errorf("failed to encode action: %w", err)
	}
	res, err := s.DB.Exec(
		"INSERT INTO queued_actions (kind, payload, enqueued_at) VALUES (?, ?, ?)",
		action.Kind,
		string(payload),
		action.EnqueuedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert action: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	select {
	case s.wake <- struct{}{}:
	default:
	}

	return seq, nil
}

type pendingRow struct {
	Seq     int64  `db:"seq"`
	Payload string `db:"payload"`
}

// PeekBatch returns the oldest up-to-n pending actions in sequence order
// without removing them.
func (s *Store) PeekBatch(n int) ([]models.QueuedAction, error) {
	if n <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", n)
	}

	var rows []pendingRow
	err := s.DB.Select(&rows,
		"SELECT seq, payload FROM queued_actions ORDER BY seq ASC LIMIT ?", n)
	if err != nil {
		return nil, err
	}

	actions := make([]models.QueuedAction, 0, len(rows))
	for _, row := range rows {
		var action models.QueuedAction
		if err := json.Unmarshal([]byte(row.Payload), &action); err != nil {
			return nil, fmt.Errorf("corrupt queue record %d: %w", row.Seq, err)
		}
		action.Seq = row.Seq
		actions = append(actions, action)
	}
	return actions, nil
}

// Commit durably removes the given actions. Committing a sequence number
// that is already gone is a no-op.
func (s *Store) Commit(seqs ...int64) error {
	if len(seqs) == 0 {
		return nil
	}
	query, args, err := sqlx.In("DELETE FROM queued_actions WHERE seq IN (?)", seqs)
	if err != nil {
		return err
	}
	if _, err := s.DB.Exec(s.DB.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to commit actions: %w", err)
	}
	return nil
}

func (s *Store) Len() (int, error) {
	var count int
	err := s.DB.Get(&count, "SELECT COUNT(*) FROM queued_actions")
	return count, err
}
