// Package api implements the vcq HTTP query API using chi.
package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// tokenParam carries the token for clients that cannot set headers, such
// as browser EventSource connections to /events.
const tokenParam = "access_token"

// AuthMiddleware returns middleware that checks the request token when
// enabled. The token comes from "Authorization: Bearer <token>" or, failing
// that, the access_token query parameter.
func AuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if enabled && subtle.ConstantTimeCompare([]byte(requestToken(r)), want) != 1 {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requestToken(r *http.Request) string {
	if got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return got
	}
	return r.URL.Query().Get(tokenParam)
}
