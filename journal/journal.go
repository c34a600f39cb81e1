package journal

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Actions recorded by the bridge.
const (
	ActionDispatched       = "DISPATCHED"
	ActionScheduleRejected = "SCHEDULE_REJECTED"
	ActionQueueCancelled   = "QUEUE_CANCELLED"
	ActionRunTerminated    = "RUN_TERMINATED"
	ActionBuildCancelled   = "BUILD_CANCELLED"
)

// Entry is one dispatch or cancellation decision.
type Entry struct {
	ID             int64     `json:"id"`
	BuildUID       string    `json:"build_uid"`
	BuildConfigUID string    `json:"build_config_uid"`
	Namespace      string    `json:"namespace"`
	Name           string    `json:"name"`
	Action         string    `json:"action"`
	Detail         string    `json:"detail,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store is an append-only Postgres journal of bridge decisions.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record appends one entry.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if entry.Action == "" {
		return errors.New("journal: action required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO dispatch_events (build_uid, build_config_uid, namespace, name, action, detail)
VALUES ($1, $2, $3, $4, $5, $6)
`, entry.BuildUID, entry.BuildConfigUID, entry.Namespace, entry.Name, entry.Action, entry.Detail)
	return err
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, build_uid, build_config_uid, namespace, name, action, detail, created_at
FROM dispatch_events
ORDER BY id DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.BuildUID, &e.BuildConfigUID, &e.Namespace, &e.Name, &e.Action, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
