// Package validation provides input validation helpers for the checkout API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxRequestSize is the maximum request body size (64KB). Checkout payloads
// are small; anything larger is abuse.
const MaxRequestSize = 64 << 10

// MaxEmailLength per RFC 5321 path limits.
const MaxEmailLength = 254

// emailRegex is deliberately loose: local@domain.tld with no spaces. Deeper
// email risk analysis lives in the risk engine, not here.
var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// supportedCurrencies are the ISO codes checkout accepts.
var supportedCurrencies = map[string]bool{
	"usd": true,
	"cad": true,
	"eur": true,
	"gbp": true,
}

// RequestSizeMiddleware limits request body size.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidEmail checks basic email shape.
func IsValidEmail(s string) bool {
	return len(s) <= MaxEmailLength && emailRegex.MatchString(s)
}

// IsSupportedCurrency checks a currency code, ignoring case.
func IsSupportedCurrency(code string) bool {
	return supportedCurrencies[strings.ToLower(code)]
}

// IsValidUUID checks canonical UUID form.
func IsValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// SanitizeString trims whitespace, strips null bytes, and caps length.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// ValidationError represents a single field error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs validators and collects every failure.
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required checks that a field is non-empty.
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// MaxLength checks that a field does not exceed max bytes.
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// ValidEmail checks email shape. Empty values pass; combine with Required.
func ValidEmail(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !IsValidEmail(value) {
			return &ValidationError{Field: field, Message: "must be a valid email address"}
		}
		return nil
	}
}

// ValidCurrency checks the currency against the supported set.
func ValidCurrency(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !IsSupportedCurrency(value) {
			return &ValidationError{Field: field, Message: "unsupported currency"}
		}
		return nil
	}
}

// ValidUUID checks canonical UUID form. Empty values pass.
func ValidUUID(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !IsValidUUID(value) {
			return &ValidationError{Field: field, Message: "must be a valid UUID"}
		}
		return nil
	}
}

// PositiveAmount checks that a numeric value is a positive decimal.
func PositiveAmount(field string, value float64) func() *ValidationError {
	return func() *ValidationError {
		d := decimal.NewFromFloat(value)
		if d.IsNegative() || d.IsZero() {
			return &ValidationError{Field: field, Message: "must be greater than zero"}
		}
		return nil
	}
}
