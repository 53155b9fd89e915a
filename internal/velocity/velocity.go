// Package velocity tracks transaction counts per identity over rolling time
// windows. The risk engine reads these counts as one fraud signal among six.
//
// Counter lookups may fail (the backend is external); the risk engine treats
// failures as a zero count rather than blocking traffic on infrastructure.
package velocity

import (
	"context"
	"time"
)

// Standard windows used by the risk engine.
const (
	WindowHour = time.Hour
	WindowDay  = 24 * time.Hour
)

// Counter records transaction attempts and reports counts per identity key
// (an email or an IP address) over a rolling window.
type Counter interface {
	// Record registers one transaction attempt for key at the current time.
	Record(ctx context.Context, key string) error
	// CountSince returns how many attempts key made within the window.
	CountSince(ctx context.Context, key string, window time.Duration) (int, error)
}
