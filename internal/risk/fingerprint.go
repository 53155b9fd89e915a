package risk

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives a deterministic correlation key from contextual
// attributes. Same inputs always hash to the same string, so repeated
// attempts can be linked in logs without storing raw PII. This is a lookup
// key, not a security secret.
func Fingerprint(tc *TransactionContext) string {
	parts := []string{
		tc.IPAddress,
		tc.UserAgent,
		strings.ToLower(tc.Identity),
		strings.ToUpper(tc.CountryCode),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
