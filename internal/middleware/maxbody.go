package middleware

import "net/http"

// MaxBodySize caps request body reads at n bytes. Oversized bodies make
// the handler's read fail with a *http.MaxBytesError, surfaced as a 400
// by the JSON decoding paths. Sized for multipart dataset uploads.
func MaxBodySize(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}
