package checkout

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/purrify/checkout-engine/internal/events"
	"github.com/purrify/checkout-engine/internal/order"
	"github.com/purrify/checkout-engine/internal/risk"
	"github.com/purrify/checkout-engine/internal/velocity"
)

const testOrderID = "4f5e6d7c-1a2b-4c3d-8e9f-0a1b2c3d4e5f"

type handlerFixture struct {
	*fixture
	router *gin.Engine
	events *events.Logger
	store  *events.MemoryStore
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := newFixture(t)
	store := events.NewMemoryStore()
	ev := events.NewLogger(store, nil, slog.Default())
	t.Cleanup(ev.Close)
	f.svc.events = ev

	engine := risk.NewEngine(risk.DefaultConfig(), velocity.NewMemoryCounter(), nil)
	h := NewHandler(f.svc, engine, ev)

	router := gin.New()
	v1 := router.Group("/v1")
	h.RegisterRoutes(v1)

	return &handlerFixture{fixture: f, router: router, events: ev, store: store}
}

func (hf *handlerFixture) post(t *testing.T, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	w := httptest.NewRecorder()
	hf.router.ServeHTTP(w, req)
	return w
}

func checkoutBody(orderID, tok string) map[string]interface{} {
	return map[string]interface{}{
		"orderId":       orderID,
		"checkoutToken": tok,
		"currency":      "usd",
		"customer":      map[string]string{"email": "buyer@example.com"},
	}
}

func TestCheckoutEndpointSuccess(t *testing.T) {
	hf := newHandlerFixture(t)
	hf.addOrder(t, testOrderID, order.StatusPending, 10*time.Minute)
	tok := hf.codec.Sign(testOrderID, fixedNow())

	w := hf.post(t, "/v1/checkout", checkoutBody(testOrderID, tok))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.NotEmpty(t, res.SessionID)
	assert.NotEmpty(t, res.URL)
}

func TestCheckoutEndpointStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(hf *handlerFixture) map[string]interface{}
		wantStatus int
		wantError  string
	}{
		{
			name: "already processed",
			setup: func(hf *handlerFixture) map[string]interface{} {
				hf.addOrder(t, testOrderID, order.StatusPaid, 10*time.Minute)
				return checkoutBody(testOrderID, hf.codec.Sign(testOrderID, fixedNow()))
			},
			wantStatus: http.StatusConflict,
			wantError:  "Order already processed",
		},
		{
			name: "expired order",
			setup: func(hf *handlerFixture) map[string]interface{} {
				hf.addOrder(t, testOrderID, order.StatusPending, 2*time.Hour)
				return checkoutBody(testOrderID, hf.codec.Sign(testOrderID, fixedNow()))
			},
			wantStatus: http.StatusGone,
			wantError:  "Order expired",
		},
		{
			name: "token for a different order",
			setup: func(hf *handlerFixture) map[string]interface{} {
				hf.addOrder(t, testOrderID, order.StatusPending, 10*time.Minute)
				other := hf.codec.Sign("11111111-2222-4333-8444-555555555555", fixedNow())
				return checkoutBody(testOrderID, other)
			},
			wantStatus: http.StatusForbidden,
			wantError:  "Invalid checkout token",
		},
		{
			name: "order not found",
			setup: func(hf *handlerFixture) map[string]interface{} {
				return checkoutBody(testOrderID, hf.codec.Sign(testOrderID, fixedNow()))
			},
			wantStatus: http.StatusNotFound,
			wantError:  "Order not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hf := newHandlerFixture(t)
			body := tt.setup(hf)
			w := hf.post(t, "/v1/checkout", body)

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			var res map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
			assert.Equal(t, tt.wantError, res["error"])
			assert.Zero(t, hf.processor.Calls(), "processor must not run on rejection")
		})
	}
}

func TestCheckoutEndpointValidation(t *testing.T) {
	hf := newHandlerFixture(t)

	w := hf.post(t, "/v1/checkout", map[string]interface{}{
		"orderId":       "not-a-uuid",
		"checkoutToken": "",
		"currency":      "jpy",
		"customer":      map[string]string{"email": "nope"},
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	var res struct {
		Error   string `json:"error"`
		Details []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "Validation failed", res.Error)
	require.NotEmpty(t, res.Details)

	fields := make(map[string]bool)
	for _, d := range res.Details {
		fields[d.Field] = true
	}
	for _, want := range []string{"orderId", "checkoutToken", "currency", "customer.email"} {
		assert.True(t, fields[want], "missing detail for %s", want)
	}
}

func TestCheckoutEndpointProcessorFailure(t *testing.T) {
	hf := newHandlerFixture(t)
	hf.addOrder(t, testOrderID, order.StatusPending, 10*time.Minute)
	hf.processor.Err = fmt.Errorf("stripe: connection refused")
	tok := hf.codec.Sign(testOrderID, fixedNow())

	w := hf.post(t, "/v1/checkout", checkoutBody(testOrderID, tok))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	// Upstream detail must not leak to the caller.
	assert.NotContains(t, w.Body.String(), "stripe")
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestRiskEndpointCleanContext(t *testing.T) {
	hf := newHandlerFixture(t)

	w := hf.post(t, "/v1/risk/assess", map[string]interface{}{
		"email":                  "normal.customer@gmail.com",
		"amount":                 29.99,
		"currency":               "usd",
		"countryCode":            "CA",
		"sessionDurationSeconds": 240,
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res riskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, risk.TierLow, res.RiskLevel)
	assert.Equal(t, risk.RecommendApprove, res.Recommendation)
	assert.Len(t, res.Fingerprint, 64)
}

func TestRiskEndpointBlocksDisposableHighValue(t *testing.T) {
	hf := newHandlerFixture(t)

	w := hf.post(t, "/v1/risk/assess", map[string]interface{}{
		"email":                  "throwaway@mailinator.com",
		"amount":                 1500.00,
		"currency":               "usd",
		"countryCode":            "CA",
		"sessionDurationSeconds": 240,
	})

	require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
	var res riskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, risk.RecommendBlock, res.Recommendation)
	assert.Equal(t, risk.TierCritical, res.RiskLevel)
	assert.GreaterOrEqual(t, res.RiskScore, 70)
}

func TestRiskEndpointValidation(t *testing.T) {
	hf := newHandlerFixture(t)

	w := hf.post(t, "/v1/risk/assess", map[string]interface{}{
		"email":    "",
		"amount":   -3,
		"currency": "",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRiskEndpointRecordsVelocity(t *testing.T) {
	hf := newHandlerFixture(t)

	body := map[string]interface{}{
		"email":    "repeat@gmail.com",
		"amount":   20.00,
		"currency": "usd",
	}
	// Default config allows 5 per hour per email before flagging; the 7th
	// attempt has 6 in history and must carry a velocity flag.
	var last riskResponse
	for i := 0; i < 7; i++ {
		w := hf.post(t, "/v1/risk/assess", body)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &last))
	}

	found := false
	for _, f := range last.Flags {
		if f.Category == "velocity" {
			found = true
		}
	}
	assert.True(t, found, "expected a velocity flag after repeated attempts: %+v", last.Flags)
}
