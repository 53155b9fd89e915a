package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PostgresStore reads order snapshots from the order service's table.
// It is strictly read-only: the engine never writes here.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed order repository.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*Snapshot, error) {
	var snapshot Snapshot
	var lineItemsJSON []byte

	err := s.db.QueryRowContext(ctx, `
		SELECT id, status, created_at, email, line_items
		FROM orders
		WHERE id = $1
	`, id).Scan(&snapshot.ID, &snapshot.Status, &snapshot.CreatedAt, &snapshot.Email, &lineItemsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", id, err)
	}

	if err := json.Unmarshal(lineItemsJSON, &snapshot.LineItems); err != nil {
		return nil, fmt.Errorf("failed to decode line items for order %s: %w", id, err)
	}
	return &snapshot, nil
}
