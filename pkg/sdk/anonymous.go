package tokenguard

import (
	"context"
	"time"

	domanon "github.com/kailas-cloud/tokenguard/internal/domain/anonymous"
)

// IssueAnonymous creates a new anonymous session token with a fresh allowance.
func (g *Guard) IssueAnonymous(ctx context.Context) (tok AnonymousToken, err error) {
	start := time.Now()
	defer func() { g.obs.observe("issue_anonymous", start, err) }()

	t, err := g.completion.IssueAnonymous(ctx)
	if err != nil {
		return AnonymousToken{}, err
	}
	return tokenFromDomain(t), nil
}

// AnonymousToken looks up an issued token. Unknown or expired tokens return ErrNoSuchToken.
func (g *Guard) AnonymousToken(ctx context.Context, id string) (tok AnonymousToken, err error) {
	start := time.Now()
	defer func() { g.obs.observe("lookup_anonymous", start, err) }()

	t, err := g.completion.LookupAnonymous(ctx, id)
	if err != nil {
		return AnonymousToken{}, err
	}
	return tokenFromDomain(t), nil
}

func tokenFromDomain(t domanon.Token) AnonymousToken {
	return AnonymousToken{
		ID:             t.ID,
		QuotaRemaining: t.QuotaRemaining,
		IssuedAt:       t.IssuedAt,
		ExpiresAt:      t.ExpiresAt,
	}
}
