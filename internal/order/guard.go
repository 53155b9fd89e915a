package order

import "time"

// Verdict is the guard's decision about a checkout attempt.
type Verdict string

const (
	// Payable means the order may proceed to payment-session creation.
	Payable Verdict = "payable"
	// AlreadyProcessed covers every non-pending status. Callers surface a
	// generic "already processed" outcome and never leak the actual status.
	AlreadyProcessed Verdict = "already_processed"
	// Expired means the order outlived the payment window, whatever its status.
	Expired Verdict = "expired"
)

// Guard decides whether an order snapshot is still payable.
type Guard struct {
	MaxAge time.Duration
}

// NewGuard creates a guard with the given order payment window.
func NewGuard(maxAge time.Duration) *Guard {
	return &Guard{MaxAge: maxAge}
}

// Evaluate returns exactly one verdict for any (snapshot, now) pair.
// The expiry check is independent of status: a stale PENDING order is Expired,
// and so is a stale PAID one.
func (g *Guard) Evaluate(s *Snapshot, now time.Time) Verdict {
	if now.Sub(s.CreatedAt) > g.MaxAge {
		return Expired
	}
	if s.Status != StatusPending {
		return AlreadyProcessed
	}
	return Payable
}
