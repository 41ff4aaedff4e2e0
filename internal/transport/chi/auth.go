package chi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"

	logpkg "github.com/kailas-cloud/retriever/internal/logger"
)

// exemptPaths are served without a token so probes and scrapers keep working.
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// BearerAuthMiddleware rejects requests whose Authorization header does not
// carry one of apiKeys as a Bearer token. With no non-empty key, auth is off.
func BearerAuthMiddleware(apiKeys []string) func(http.Handler) http.Handler {
	keys := make([][]byte, 0, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}

	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			token, reason := bearerToken(r.Header.Get("Authorization"))
			if reason == "" && !validToken(keys, token) {
				reason = "invalid api key"
			}
			if reason != "" {
				logpkg.FromContext(r.Context()).Debug("Request rejected", zap.String("reason", reason))
				w.Header().Set("WWW-Authenticate", `Bearer realm="retriever"`)
				writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, reason)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken extracts the token of a Bearer header; the scheme is case-insensitive.
func bearerToken(header string) (token, reason string) {
	if header == "" {
		return "", "missing authorization header"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "authorization header must use Bearer scheme"
	}
	return strings.TrimSpace(token), ""
}

// validToken compares token against every key in constant time.
func validToken(keys [][]byte, token string) bool {
	ok := 0
	for _, k := range keys {
		ok |= subtle.ConstantTimeCompare(k, []byte(token))
	}
	return ok == 1
}
