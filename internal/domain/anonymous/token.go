// Package anonymous describes session tokens granted to unauthenticated callers.
package anonymous

import "time"

// Token is an anonymous session allowance.
type Token struct {
	ID             string
	QuotaRemaining int64
	IssuedAt       time.Time
	ExpiresAt      time.Time
}
