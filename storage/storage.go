package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"
)

// Storage wraps the audit-trail persistence layer. Every committed ledger
// event is appended here so operators can reconstruct the history of an
// escrow without replaying state.
type Storage struct {
	db *sql.DB
}

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("audit storage path must be configured")

// AuditEvent is a persisted ledger event.
type AuditEvent struct {
	ID         int64             `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	RecordedAt time.Time         `json:"recordedAt"`
}

// Open initialises the backing store using a sqlite-compatible DSN.
func Open(dsn string) (*Storage, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases database resources.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordEvent appends a ledger event to the audit trail.
func (s *Storage) RecordEvent(ctx context.Context, eventType string, attributes map[string]string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage not configured")
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return fmt.Errorf("event type required")
	}
	encoded, err := json.Marshal(attributes)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO audit_events(event_type, attributes, recorded_at)
        VALUES(?, ?, ?)
    `, eventType, string(encoded), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListEvents returns the most recent audit events, newest first. When
// eventType is non-empty only events of that type are returned.
func (s *Storage) ListEvents(ctx context.Context, eventType string, limit int) ([]AuditEvent, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT id, event_type, attributes, recorded_at FROM audit_events`
	args := []any{}
	if trimmed := strings.TrimSpace(eventType); trimmed != "" {
		query += ` WHERE event_type = ?`
		args = append(args, trimmed)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]AuditEvent, 0, limit)
	for rows.Next() {
		var (
			evt     AuditEvent
			encoded string
		)
		if err := rows.Scan(&evt.ID, &evt.Type, &encoded, &evt.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if encoded != "" {
			if err := json.Unmarshal([]byte(encoded), &evt.Attributes); err != nil {
				return nil, fmt.Errorf("decode attributes: %w", err)
			}
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    event_type TEXT NOT NULL,
    attributes TEXT NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(event_type, id);
`
