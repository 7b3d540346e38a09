package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/cors"
)

const corsMaxAgeSeconds = 300

// CORS allows the configured browser origins. A "*" entry allows any origin
// but then drops credentials, which browsers refuse to combine with it.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowed := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin != "" && !slices.Contains(allowed, origin) {
			allowed = append(allowed, origin)
		}
	}
	wildcard := slices.Contains(allowed, "*")

	return cors.Handler(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			IdempotencyKeyHeader,
		},
		ExposedHeaders: []string{
			"Content-Disposition",
			"Retry-After",
			RequestIDHeader,
			ReplayedHeader,
			"X-Beatstore-Token",
		},
		AllowCredentials: !wildcard,
		MaxAge:           corsMaxAgeSeconds,
	})
}
