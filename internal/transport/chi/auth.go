package chi

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/kailas-cloud/tokenguard/internal/domain"
	"github.com/kailas-cloud/tokenguard/internal/domain/tier"
	"github.com/kailas-cloud/tokenguard/internal/usecase/completion"
)

// Identity headers set by the authenticating proxy in front of the service.
const (
	HeaderPrincipalID    = "X-Principal-ID"
	HeaderPrincipalTier  = "X-Principal-Tier"
	HeaderAnonymousToken = "X-Anonymous-Token"
)

// BearerAuthMiddleware returns a middleware that validates Bearer tokens.
// If apiKeys is empty, authentication is disabled (pass-through).
func BearerAuthMiddleware(apiKeys []string) func(http.Handler) http.Handler {
	validKeys := make([][]byte, 0, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			validKeys = append(validKeys, []byte(k))
		}
	}

	return func(next http.Handler) http.Handler {
		// Auth disabled: pass everything through
		if len(validKeys) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(auth, bearerPrefix) {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "authorization header must use Bearer scheme")
				return
			}

			token := []byte(auth[len(bearerPrefix):])
			for _, k := range validKeys {
				if subtle.ConstantTimeCompare(token, k) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid api key")
		})
	}
}

// principalFromRequest reads the authenticated principal. A missing tier header means free.
func principalFromRequest(r *http.Request) (completion.Caller, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderPrincipalID))
	if id == "" {
		return completion.Caller{}, errMissingPrincipal
	}
	t, err := tier.Parse(r.Header.Get(HeaderPrincipalTier))
	if err != nil {
		return completion.Caller{}, err
	}
	return completion.Caller{Principal: id, Tier: t}, nil
}

// anonymousFromRequest reads the anonymous session token.
func anonymousFromRequest(r *http.Request) (completion.Caller, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderAnonymousToken))
	if id == "" {
		return completion.Caller{}, domain.ErrNoSuchToken
	}
	return completion.Caller{Principal: id, Anonymous: true}, nil
}

// clientIP returns the host part of RemoteAddr. RealIP middleware, when
// enabled, has already replaced it with the forwarded address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
