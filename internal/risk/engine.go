package risk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/purrify/checkout-engine/internal/idgen"
	"github.com/purrify/checkout-engine/internal/velocity"
)

var familyFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "checkout",
	Subsystem: "risk",
	Name:      "family_failures_total",
	Help:      "Rule family evaluations that failed and contributed no flags.",
}, []string{"family"})

func init() {
	prometheus.MustRegister(familyFailures)
}

// Engine scores transaction contexts. Safe for concurrent use: all mutable
// state lives in the velocity counter and the audit store.
type Engine struct {
	cfg     Config
	counter velocity.Counter
	store   Store
}

// NewEngine creates a risk engine reading velocity signals from counter and
// auditing assessments to store. Both may be nil (zero counts, no audit).
func NewEngine(cfg Config, counter velocity.Counter, store Store) *Engine {
	return &Engine{cfg: cfg, counter: counter, store: store}
}

// Assess evaluates all six rule families against tc and returns the scored
// assessment. Families run unconditionally and independently: a failure in
// one family contributes zero flags and never aborts the others.
func (e *Engine) Assess(ctx context.Context, tc *TransactionContext) *Assessment {
	var flags []Flag

	families := []struct {
		name string
		fn   func(context.Context, *TransactionContext) []Flag
	}{
		{"velocity", e.velocityFlags},
		{"amount", e.amountFlags},
		{"email", e.emailFlags},
		{"device", e.deviceFlags},
		{"behavioral", e.behavioralFlags},
		{"location", e.locationFlags},
	}
	for _, family := range families {
		flags = append(flags, e.runFamily(ctx, family.name, family.fn, tc)...)
	}

	score := 0
	for _, f := range flags {
		score += f.Score
	}
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	a := &Assessment{
		ID:          idgen.WithPrefix("risk_"),
		Score:       score,
		Flags:       flags,
		Fingerprint: Fingerprint(tc),
		EvaluatedAt: time.Now(),
	}
	a.Tier, a.Recommendation = decide(score, a.HighFlagCount())
	a.Explanation = explain(a)

	// Persist asynchronously (best-effort audit trail)
	if e.store != nil {
		go func() {
			_ = e.store.Record(context.Background(), a)
		}()
	}

	return a
}

// runFamily isolates one rule family: a panic inside it is swallowed,
// counted, and yields no flags.
func (e *Engine) runFamily(ctx context.Context, name string, fn func(context.Context, *TransactionContext) []Flag, tc *TransactionContext) (flags []Flag) {
	defer func() {
		if r := recover(); r != nil {
			familyFailures.WithLabelValues(name).Inc()
			flags = nil
		}
	}()
	return fn(ctx, tc)
}

// decide maps a score and HIGH-flag count to a tier and recommendation.
// Evaluated top-down, first match wins.
func decide(score, highFlags int) (Tier, Recommendation) {
	switch {
	case score >= 70 || highFlags >= 3:
		return TierCritical, RecommendBlock
	case score >= 50 || highFlags >= 2:
		return TierHigh, RecommendDecline
	case score >= 25 || highFlags >= 1:
		return TierMedium, RecommendReview
	default:
		return TierLow, RecommendApprove
	}
}

func explain(a *Assessment) string {
	if len(a.Flags) == 0 {
		return fmt.Sprintf("No fraud signals detected (score %d, %s).", a.Score, a.Tier)
	}
	messages := make([]string, 0, len(a.Flags))
	for _, f := range a.Flags {
		messages = append(messages, f.Message)
	}
	return fmt.Sprintf("Score %d (%s, %s): %s.", a.Score, a.Tier, a.Recommendation, strings.Join(messages, "; "))
}

// failSafe is the distinguished assessment returned when scoring itself
// fails. Constructed in one place so the "what does a scoring failure look
// like" contract lives here and nowhere else.
var failSafe = Assessment{
	Score: 100,
	Tier:  TierCritical,
	Flags: []Flag{{
		Category: "system",
		Severity: SeverityHigh,
		Message:  "risk assessment unavailable",
		Score:    100,
	}},
	Recommendation: RecommendDecline,
	Explanation:    "Risk assessment could not be completed; declining by policy.",
}

// FailSafeAssessment returns a fresh copy of the synthetic CRITICAL/DECLINE
// assessment used when the engine itself errors. Fail safe, not fail open:
// an internal scoring failure must never turn into an approval.
func FailSafeAssessment(tc *TransactionContext) *Assessment {
	a := failSafe
	a.ID = idgen.WithPrefix("risk_")
	a.EvaluatedAt = time.Now()
	a.Flags = append([]Flag(nil), failSafe.Flags...)
	if tc != nil {
		a.Fingerprint = Fingerprint(tc)
	}
	return &a
}

// --- Rule families ---

// RecordAttempt adds the transaction to the velocity history so later
// assessments see it. Counter errors are ignored for the same reason
// velocity reads fail open.
func (e *Engine) RecordAttempt(ctx context.Context, tc *TransactionContext) {
	if e.counter == nil {
		return
	}
	_ = e.counter.Record(ctx, emailKey(tc.Identity))
	if tc.IPAddress != "" {
		_ = e.counter.Record(ctx, ipKey(tc.IPAddress))
	}
}

func emailKey(identity string) string { return "email:" + strings.ToLower(identity) }
func ipKey(addr string) string        { return "ip:" + addr }

// velocityFlags is the only family with an external I/O dependency. Counter
// failures are treated as zero counts (fail open): velocity is one signal
// among six and must not block legitimate traffic on its own infrastructure.
func (e *Engine) velocityFlags(ctx context.Context, tc *TransactionContext) []Flag {
	if e.counter == nil {
		return nil
	}

	var flags []Flag

	ek := emailKey(tc.Identity)
	if n := e.countSafe(ctx, ek, velocity.WindowHour); n > e.cfg.EmailHourlyMax {
		flags = append(flags, Flag{
			Category: "velocity",
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("%d transactions for this email in the last hour (limit %d)", n, e.cfg.EmailHourlyMax),
			Score:    scoreEmailVelocityHourly,
		})
	}
	if n := e.countSafe(ctx, ek, velocity.WindowDay); n > e.cfg.EmailDailyMax {
		flags = append(flags, Flag{
			Category: "velocity",
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("%d transactions for this email in the last 24h (limit %d)", n, e.cfg.EmailDailyMax),
			Score:    scoreEmailVelocityDaily,
		})
	}

	if tc.IPAddress != "" {
		ik := ipKey(tc.IPAddress)
		if n := e.countSafe(ctx, ik, velocity.WindowHour); n > e.cfg.IPHourlyMax {
			flags = append(flags, Flag{
				Category: "velocity",
				Severity: SeverityMedium,
				Message:  fmt.Sprintf("%d transactions from this IP in the last hour (limit %d)", n, e.cfg.IPHourlyMax),
				Score:    scoreIPVelocityHourly,
			})
		}
		if n := e.countSafe(ctx, ik, velocity.WindowDay); n > e.cfg.IPDailyMax {
			flags = append(flags, Flag{
				Category: "velocity",
				Severity: SeverityMedium,
				Message:  fmt.Sprintf("%d transactions from this IP in the last 24h (limit %d)", n, e.cfg.IPDailyMax),
				Score:    scoreIPVelocityDaily,
			})
		}
	}

	return flags
}

func (e *Engine) countSafe(ctx context.Context, key string, window time.Duration) int {
	n, err := e.counter.CountSince(ctx, key, window)
	if err != nil {
		return 0
	}
	return n
}

func (e *Engine) amountFlags(_ context.Context, tc *TransactionContext) []Flag {
	rate, ok := e.cfg.CurrencyRates[strings.ToLower(tc.Currency)]
	if !ok {
		rate = 1.0
	}
	normalized := tc.Amount * rate

	switch {
	case normalized >= e.cfg.AmountCritical:
		return []Flag{{
			Category: "amount",
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("amount %.2f exceeds critical threshold %.0f", normalized, e.cfg.AmountCritical),
			Score:    scoreAmountCritical,
		}}
	case normalized >= e.cfg.AmountHigh:
		return []Flag{{
			Category: "amount",
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("amount %.2f exceeds high threshold %.0f", normalized, e.cfg.AmountHigh),
			Score:    scoreAmountHigh,
		}}
	case normalized >= e.cfg.AmountElevated:
		return []Flag{{
			Category: "amount",
			Severity: SeverityLow,
			Message:  fmt.Sprintf("amount %.2f exceeds elevated threshold %.0f", normalized, e.cfg.AmountElevated),
			Score:    scoreAmountElevated,
		}}
	}
	return nil
}

func (e *Engine) emailFlags(_ context.Context, tc *TransactionContext) []Flag {
	email := strings.ToLower(strings.TrimSpace(tc.Identity))
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return nil // structurally invalid emails are rejected by validation upstream
	}
	local, domain := email[:at], email[at+1:]

	var flags []Flag

	for _, d := range e.cfg.DisposableDomains {
		if domain == d {
			flags = append(flags, Flag{
				Category: "email",
				Severity: SeverityHigh,
				Message:  "disposable email domain " + domain,
				Score:    scoreDisposableEmail,
			})
			break
		}
	}

	for _, pattern := range e.cfg.SuspiciousLocal {
		if strings.Contains(local, pattern) {
			flags = append(flags, Flag{
				Category: "email",
				Severity: SeverityMedium,
				Message:  "email local part matches throwaway pattern " + pattern,
				Score:    scoreSuspiciousLocal,
			})
			break
		}
	}

	if len(domain) < e.cfg.MinDomainLength {
		flags = append(flags, Flag{
			Category: "email",
			Severity: SeverityLow,
			Message:  "unusually short email domain",
			Score:    scoreShortDomain,
		})
	}

	if len(local) > e.cfg.MaxLocalLength {
		flags = append(flags, Flag{
			Category: "email",
			Severity: SeverityLow,
			Message:  "unusually long email local part",
			Score:    scoreLongLocal,
		})
	}

	return flags
}

func (e *Engine) deviceFlags(_ context.Context, tc *TransactionContext) []Flag {
	if tc.UserAgent == "" {
		return nil
	}
	ua := strings.ToLower(tc.UserAgent)

	var flags []Flag

	for _, sig := range e.cfg.BotSignatures {
		if strings.Contains(ua, sig) {
			flags = append(flags, Flag{
				Category: "device",
				Severity: SeverityHigh,
				Message:  "user agent matches automation signature " + sig,
				Score:    scoreBotSignature,
			})
			break
		}
	}

	if len(tc.UserAgent) < e.cfg.MinUALength || len(tc.UserAgent) > e.cfg.MaxUALength {
		flags = append(flags, Flag{
			Category: "device",
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("anomalous user agent length %d", len(tc.UserAgent)),
			Score:    scoreAnomalousUA,
		})
	}

	return flags
}

func (e *Engine) behavioralFlags(_ context.Context, tc *TransactionContext) []Flag {
	var flags []Flag

	if tc.SessionDuration > 0 && tc.SessionDuration < e.cfg.MinSessionSeconds {
		flags = append(flags, Flag{
			Category: "behavioral",
			Severity: SeverityMedium,
			Message:  fmt.Sprintf("checkout after only %ds on site", tc.SessionDuration),
			Score:    scoreFastSession,
		})
	}
	if tc.SessionDuration > e.cfg.MaxSessionSeconds {
		flags = append(flags, Flag{
			Category: "behavioral",
			Severity: SeverityLow,
			Message:  fmt.Sprintf("anomalously long session of %ds", tc.SessionDuration),
			Score:    scoreLongSession,
		})
	}

	if tc.Referrer != "" {
		ref := strings.ToLower(tc.Referrer)
		for _, bad := range e.cfg.ReferrerDenylist {
			if strings.Contains(ref, bad) {
				flags = append(flags, Flag{
					Category: "behavioral",
					Severity: SeverityMedium,
					Message:  "referrer from low-trust source " + bad,
					Score:    scoreBadReferrer,
				})
				break
			}
		}
	}

	return flags
}

func (e *Engine) locationFlags(_ context.Context, tc *TransactionContext) []Flag {
	if tc.CountryCode == "" {
		return nil
	}
	cc := strings.ToUpper(tc.CountryCode)

	for _, c := range e.cfg.HighRiskCountries {
		if cc == c {
			return []Flag{{
				Category: "location",
				Severity: SeverityHigh,
				Message:  "transaction from high-risk country " + cc,
				Score:    scoreHighRiskCountry,
			}}
		}
	}
	for _, c := range e.cfg.MediumRiskCountries {
		if cc == c {
			return []Flag{{
				Category: "location",
				Severity: SeverityMedium,
				Message:  "transaction from medium-risk country " + cc,
				Score:    scoreMediumRiskCountry,
			}}
		}
	}
	return nil
}
