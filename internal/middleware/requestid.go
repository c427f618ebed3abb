// Package middleware holds the HTTP middleware of the console server.
package middleware

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"sqlspeak-console/internal/domain"
)

const requestIDHeader = "X-Request-ID"

// validRequestID bounds what an inbound X-Request-ID may contain so it can be
// logged and forwarded to the query service as is.
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// RequestID assigns a request ID to each request. A well-formed inbound
// X-Request-ID is reused; anything else is replaced by a new UUID. The ID is
// echoed on the response and stored in the context, from where outbound calls
// to the query service pick it up.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if !validRequestID.MatchString(id) {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(domain.WithRequestID(r.Context(), id)))
	})
}
