// Package token implements the signed ownership token that authorizes a
// checkout attempt for a specific order.
//
// A token binds an order id and an issue time to a process-wide HMAC secret.
// Verification recomputes the signature over the order id the caller presents,
// so a token signed for order A can never verify against order B.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidToken is returned for every verification failure: malformed
// encoding, signature mismatch, wrong order id, or expiry. Callers must not
// be able to tell these apart.
var ErrInvalidToken = errors.New("invalid checkout token")

// Codec signs and verifies ownership tokens.
type Codec struct {
	secret []byte
	maxAge time.Duration
}

// NewCodec creates a codec with the given secret and token validity window.
func NewCodec(secret string, maxAge time.Duration) *Codec {
	return &Codec{secret: []byte(secret), maxAge: maxAge}
}

// Sign produces a token for orderID issued at now.
// Wire format: base64url(orderID|issuedAtUnix|hex(hmac)).
func (c *Codec) Sign(orderID string, now time.Time) string {
	issuedAt := strconv.FormatInt(now.Unix(), 10)
	sig := c.sign(orderID, issuedAt)
	payload := orderID + "|" + issuedAt + "|" + sig
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

// Verify checks that tok was signed for orderID and has not outlived the
// validity window. Any failure returns ErrInvalidToken.
func (c *Codec) Verify(orderID, tok string, now time.Time) error {
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil {
		return ErrInvalidToken
	}

	// Order ids never contain '|', so a well-formed payload has exactly
	// three fields. Anything else is rejected outright.
	parts := strings.Split(string(raw), "|")
	if len(parts) != 3 {
		return ErrInvalidToken
	}
	tokenOrderID, issuedAtStr, sig := parts[0], parts[1], parts[2]

	// The signature is recomputed over the *supplied* order id. A token for a
	// different order carries a signature that cannot match it.
	if tokenOrderID != orderID {
		return ErrInvalidToken
	}

	expected := c.sign(orderID, issuedAtStr)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrInvalidToken
	}

	issuedAtUnix, err := strconv.ParseInt(issuedAtStr, 10, 64)
	if err != nil {
		return ErrInvalidToken
	}
	issuedAt := time.Unix(issuedAtUnix, 0)

	if issuedAt.After(now) {
		return ErrInvalidToken
	}
	if now.Sub(issuedAt) > c.maxAge {
		return ErrInvalidToken
	}

	return nil
}

func (c *Codec) sign(orderID, issuedAt string) string {
	mac := hmac.New(sha256.New, c.secret)
	fmt.Fprintf(mac, "%s|%s", orderID, issuedAt)
	return hex.EncodeToString(mac.Sum(nil))
}
