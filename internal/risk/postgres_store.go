package risk

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresStore persists risk assessments in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed assessment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Record(ctx context.Context, assessment *Assessment) error {
	flagsJSON, err := json.Marshal(assessment.Flags)
	if err != nil {
		return fmt.Errorf("failed to marshal flags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO risk_assessments (id, fingerprint, score, tier, recommendation, flags, explanation, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		assessment.ID,
		assessment.Fingerprint,
		assessment.Score,
		string(assessment.Tier),
		string(assessment.Recommendation),
		flagsJSON,
		assessment.Explanation,
		assessment.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record risk assessment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByFingerprint(ctx context.Context, fingerprint string, limit int) ([]*Assessment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fingerprint, score, tier, recommendation, flags, explanation, evaluated_at
		FROM risk_assessments
		WHERE fingerprint = $1
		ORDER BY evaluated_at DESC
		LIMIT $2
	`, fingerprint, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list risk assessments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Assessment
	for rows.Next() {
		var a Assessment
		var flagsJSON []byte
		var evaluatedAt time.Time

		if err := rows.Scan(&a.ID, &a.Fingerprint, &a.Score, &a.Tier, &a.Recommendation, &flagsJSON, &a.Explanation, &evaluatedAt); err != nil {
			continue
		}
		a.EvaluatedAt = evaluatedAt
		_ = json.Unmarshal(flagsJSON, &a.Flags)
		result = append(result, &a)
	}
	return result, nil
}
