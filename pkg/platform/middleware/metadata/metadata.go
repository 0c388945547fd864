// Package metadata extracts client network facts for admin API logging.
package metadata

import (
	"net/http"
	"strings"
)

// ClientIPFromRequest extracts the real client IP, handling proxies and
// load balancers in front of the admin API.
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can hold a chain; the first entry is the client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	// RemoteAddr is "ip:port" ("[::1]:port" for IPv6).
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}
	return "unknown"
}
