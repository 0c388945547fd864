// Package request provides correlation-id middleware for the admin API.
package request

import (
	"net/http"

	"github.com/google/uuid"

	"mailroom/pkg/requestcontext"
)

// Header is the correlation id header, honored inbound and echoed outbound.
const Header = "X-Request-ID"

// Middleware assigns every request a correlation id, reusing the caller's
// when present.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(Header)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(Header, requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
