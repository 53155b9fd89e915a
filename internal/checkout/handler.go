package checkout

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/purrify/checkout-engine/internal/events"
	"github.com/purrify/checkout-engine/internal/logging"
	"github.com/purrify/checkout-engine/internal/metrics"
	"github.com/purrify/checkout-engine/internal/order"
	"github.com/purrify/checkout-engine/internal/risk"
	"github.com/purrify/checkout-engine/internal/token"
	"github.com/purrify/checkout-engine/internal/traces"
	"github.com/purrify/checkout-engine/internal/validation"
)

// Handler exposes the checkout and risk-assessment endpoints.
type Handler struct {
	svc    *Service
	engine *risk.Engine
	events *events.Logger
}

func NewHandler(svc *Service, engine *risk.Engine, ev *events.Logger) *Handler {
	return &Handler{svc: svc, engine: engine, events: ev}
}

// RegisterRoutes attaches the endpoints to a router group. Rate limiting is
// applied per-route by the caller so both endpoints share the sensitive class.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/checkout", h.CreateSession)
	rg.POST("/risk/assess", h.AssessRisk)
}

type checkoutRequest struct {
	OrderID       string `json:"orderId"`
	CheckoutToken string `json:"checkoutToken"`
	Currency      string `json:"currency"`
	Customer      struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"customer"`
}

// CreateSession handles POST /v1/checkout.
func (h *Handler) CreateSession(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		metrics.CheckoutsTotal.WithLabelValues("validation_failed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Validation failed",
			"details": []validation.ValidationError{{Field: "body", Message: "invalid JSON"}},
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("orderId", req.OrderID),
		validation.ValidUUID("orderId", req.OrderID),
		validation.Required("checkoutToken", req.CheckoutToken),
		validation.MaxLength("checkoutToken", req.CheckoutToken, 512),
		validation.Required("currency", req.Currency),
		validation.ValidCurrency("currency", req.Currency),
		validation.Required("customer.email", req.Customer.Email),
		validation.ValidEmail("customer.email", req.Customer.Email),
	); len(errs) > 0 {
		metrics.CheckoutsTotal.WithLabelValues("validation_failed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": errs})
		return
	}

	result, err := h.svc.CreateSession(c.Request.Context(), &Request{
		OrderID:  req.OrderID,
		Token:    req.CheckoutToken,
		Currency: req.Currency,
		Email:    req.Customer.Email,
		Name:     validation.SanitizeString(req.Customer.Name, 200),
	})
	if err != nil {
		h.renderCheckoutError(c, err)
		return
	}

	metrics.CheckoutsTotal.WithLabelValues("created").Inc()
	c.JSON(http.StatusOK, result)
}

func (h *Handler) renderCheckoutError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, token.ErrInvalidToken):
		metrics.CheckoutsTotal.WithLabelValues("invalid_token").Inc()
		c.JSON(http.StatusForbidden, gin.H{"error": "Invalid checkout token"})
	case errors.Is(err, order.ErrNotFound):
		metrics.CheckoutsTotal.WithLabelValues("not_found").Inc()
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
	case errors.Is(err, ErrAlreadyProcessed):
		metrics.CheckoutsTotal.WithLabelValues("conflict").Inc()
		c.JSON(http.StatusConflict, gin.H{"error": "Order already processed"})
	case errors.Is(err, ErrOrderExpired):
		metrics.CheckoutsTotal.WithLabelValues("expired").Inc()
		c.JSON(http.StatusGone, gin.H{"error": "Order expired"})
	default:
		// Processor and repository failures stay server-side.
		metrics.CheckoutsTotal.WithLabelValues("payment_error").Inc()
		logging.L(c.Request.Context()).Error("checkout failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Unable to create payment session"})
	}
}

type riskRequest struct {
	Email                  string  `json:"email"`
	Amount                 float64 `json:"amount"`
	Currency               string  `json:"currency"`
	Fingerprint            string  `json:"fingerprint"`
	CountryCode            string  `json:"countryCode"`
	SessionDurationSeconds int     `json:"sessionDurationSeconds"`
	Referrer               string  `json:"referrer"`
}

type riskResponse struct {
	RiskScore      int                 `json:"riskScore"`
	RiskLevel      risk.Tier           `json:"riskLevel"`
	Recommendation risk.Recommendation `json:"recommendation"`
	Explanation    string              `json:"explanation"`
	Flags          []risk.Flag         `json:"flags"`
	Fingerprint    string              `json:"fingerprint"`
	Timestamp      time.Time           `json:"timestamp"`
}

// AssessRisk handles POST /v1/risk/assess. A panic anywhere in scoring yields
// the synthetic fail-safe assessment rather than an approval.
func (h *Handler) AssessRisk(c *gin.Context) {
	var req riskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Validation failed",
			"details": []validation.ValidationError{{Field: "body", Message: "invalid JSON"}},
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("email", req.Email),
		validation.ValidEmail("email", req.Email),
		validation.PositiveAmount("amount", req.Amount),
		validation.Required("currency", req.Currency),
		validation.ValidCurrency("currency", req.Currency),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed", "details": errs})
		return
	}

	tc := &risk.TransactionContext{
		Identity:        req.Email,
		Amount:          req.Amount,
		Currency:        req.Currency,
		IPAddress:       c.ClientIP(),
		UserAgent:       c.Request.UserAgent(),
		Fingerprint:     req.Fingerprint,
		CountryCode:     req.CountryCode,
		SessionDuration: req.SessionDurationSeconds,
		Referrer:        req.Referrer,
		Timestamp:       time.Now(),
	}

	_, span := traces.StartSpan(c.Request.Context(), "risk.Assess")
	assessment := h.assess(c, tc)
	span.SetAttributes(
		traces.RiskTier(string(assessment.Tier)),
		traces.RiskScore(assessment.Score),
		traces.FingerprintAttr(assessment.Fingerprint),
	)
	span.End()

	h.engine.RecordAttempt(c.Request.Context(), tc)

	metrics.RiskAssessmentsTotal.WithLabelValues(string(assessment.Tier)).Inc()
	for _, f := range assessment.Flags {
		metrics.RiskFlagsTotal.WithLabelValues(f.Category, string(f.Severity)).Inc()
	}
	h.events.Emit(events.TypeRiskAssessed, logging.RequestID(c.Request.Context()), map[string]interface{}{
		"fingerprint":    assessment.Fingerprint,
		"score":          assessment.Score,
		"tier":           string(assessment.Tier),
		"recommendation": string(assessment.Recommendation),
	})

	status := http.StatusOK
	if assessment.Recommendation == risk.RecommendBlock {
		status = http.StatusForbidden
		h.events.Emit(events.TypeCheckoutBlocked, logging.RequestID(c.Request.Context()), map[string]interface{}{
			"fingerprint": assessment.Fingerprint,
			"score":       assessment.Score,
		})
		metrics.CheckoutsTotal.WithLabelValues("blocked").Inc()
	}

	flags := assessment.Flags
	if flags == nil {
		flags = []risk.Flag{}
	}
	c.JSON(status, riskResponse{
		RiskScore:      assessment.Score,
		RiskLevel:      assessment.Tier,
		Recommendation: assessment.Recommendation,
		Explanation:    assessment.Explanation,
		Flags:          flags,
		Fingerprint:    assessment.Fingerprint,
		Timestamp:      assessment.EvaluatedAt,
	})
}

// assess isolates the scoring call. A scoring failure must never fall
// through to an approval, so a panic returns the fail-safe assessment and
// logs a suspicious-activity event.
func (h *Handler) assess(c *gin.Context, tc *risk.TransactionContext) (a *risk.Assessment) {
	defer func() {
		if r := recover(); r != nil {
			logging.L(c.Request.Context()).Error("risk assessment panicked", "panic", r)
			h.events.Emit(events.TypeSuspiciousActivity, logging.RequestID(c.Request.Context()), map[string]interface{}{
				"reason": "assessment failure",
			})
			a = risk.FailSafeAssessment(tc)
		}
	}()
	return h.engine.Assess(c.Request.Context(), tc)
}
