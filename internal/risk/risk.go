// Package risk implements multi-factor fraud scoring for checkout attempts.
//
// Every transaction context is evaluated against six independent rule
// families: velocity, amount, email, device, behavioral, and location. Each
// family contributes zero or more flags with fixed score weights. Scores are
// clamped to [0,100] and mapped to a tier and an actionable recommendation
// through a fixed decision table. Scoring is deterministic and rule-based,
// with no model inference, so every decision is explainable and testable.
package risk

import (
	"context"
	"time"
)

// Tier buckets a score into an operator-facing risk level.
type Tier string

const (
	TierLow      Tier = "LOW"
	TierMedium   Tier = "MEDIUM"
	TierHigh     Tier = "HIGH"
	TierCritical Tier = "CRITICAL"
)

// Recommendation is the engine's actionable verdict.
type Recommendation string

const (
	RecommendApprove Recommendation = "APPROVE"
	RecommendReview  Recommendation = "REVIEW"
	RecommendDecline Recommendation = "DECLINE"
	RecommendBlock   Recommendation = "BLOCK"
)

// Severity grades an individual flag.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Flag is a single matched fraud signal.
type Flag struct {
	Category string   `json:"category"` // rule family that raised it
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Score    int      `json:"scoreContribution"`
}

// TransactionContext carries the request-scoped data needed to score a
// checkout attempt. It is consumed once and never persisted by this engine.
type TransactionContext struct {
	Identity        string  // customer email
	Amount          float64 // in Currency units
	Currency        string  // ISO code, any case
	IPAddress       string  // optional
	UserAgent       string  // optional
	Fingerprint     string  // optional, client-supplied device fingerprint
	CountryCode     string  // optional, ISO 3166-1 alpha-2
	SessionDuration int     // optional, seconds spent on site before checkout
	Referrer        string  // optional
	Timestamp       time.Time
}

// Assessment is the result of scoring one transaction context.
type Assessment struct {
	ID             string         `json:"id"`
	Score          int            `json:"score"` // clamped to [0,100]
	Tier           Tier           `json:"tier"`
	Flags          []Flag         `json:"flags"`
	Recommendation Recommendation `json:"recommendation"`
	Explanation    string         `json:"explanation"`
	Fingerprint    string         `json:"fingerprint"`
	EvaluatedAt    time.Time      `json:"evaluatedAt"`
}

// HighFlagCount returns how many flags carry HIGH severity.
func (a *Assessment) HighFlagCount() int {
	n := 0
	for _, f := range a.Flags {
		if f.Severity == SeverityHigh {
			n++
		}
	}
	return n
}

// Store persists assessments for audit trail. Lookups correlate by
// fingerprint, never by raw identity, so the audit log stays PII-free.
type Store interface {
	Record(ctx context.Context, assessment *Assessment) error
	ListByFingerprint(ctx context.Context, fingerprint string, limit int) ([]*Assessment, error)
}
