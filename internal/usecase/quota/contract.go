package quota

import (
	"context"

	domquota "github.com/kailas-cloud/tokenguard/internal/domain/quota"
)

// AccountStore persists quota accounts by principal.
type AccountStore interface {
	// Get returns the account and whether it exists.
	Get(ctx context.Context, principal string) (domquota.Account, bool, error)
	// Update runs fn as one atomic read-modify-write and stores the result.
	// exists is false for a principal seen for the first time.
	Update(ctx context.Context, principal string, fn func(acc *domquota.Account, exists bool) error) (domquota.Account, error)
}
