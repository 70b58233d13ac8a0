package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
)

// AdminKeyHeader carries the operator key on administrative routes
const AdminKeyHeader = "X-Admin-Key"

// AdminKeyMiddleware guards the administrative API with a single shared key.
// An empty configured key disables the routes entirely.
func AdminKeyMiddleware(adminKey string) func(next http.Handler) http.Handler {
	expected := sha256.Sum256([]byte(adminKey))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if adminKey == "" {
				pkghttp.WriteForbidden(w, "administrative API is disabled")
				return
			}

			presented := r.Header.Get(AdminKeyHeader)
			if presented == "" {
				pkghttp.WriteUnauthorized(w, "missing admin key")
				return
			}

			// Hash both sides so the comparison length never depends on the input
			got := sha256.Sum256([]byte(presented))
			if !ConstantTimeHashCompare(got[:], expected[:]) {
				pkghttp.WriteUnauthorized(w, "invalid admin key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ConstantTimeHashCompare compares two digests without leaking where they differ
func ConstantTimeHashCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
