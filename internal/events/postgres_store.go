package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore persists security events to the security_events table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Record(ctx context.Context, ev *Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO security_events (id, event_type, request_id, data, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, string(ev.Type), ev.RequestID, data, ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert security event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, request_id, data, created_at
		FROM security_events
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query security events: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		var (
			ev   Event
			typ  string
			data []byte
		)
		if err := rows.Scan(&ev.ID, &typ, &ev.RequestID, &data, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan security event: %w", err)
		}
		ev.Type = Type(typ)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &ev.Data); err != nil {
				return nil, fmt.Errorf("unmarshal event data: %w", err)
			}
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}
