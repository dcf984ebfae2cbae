package middleware

import (
	"net/http"
	"strings"
)

// FrameAncestors sets a Content-Security-Policy frame-ancestors clause
// built from the domain allow-list on every response.
func FrameAncestors(domains []string) func(http.Handler) http.Handler {
	sources := make([]string, 0, len(domains))
	for _, d := range domains {
		if d = strings.TrimSpace(d); d != "" {
			sources = append(sources, d)
		}
	}
	policy := "frame-ancestors 'self'"
	if len(sources) > 0 {
		policy = "frame-ancestors 'self' " + strings.Join(sources, " ")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Security-Policy", policy)
			next.ServeHTTP(w, r)
		})
	}
}
