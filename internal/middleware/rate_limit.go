package middleware

import (
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
}

// DefaultAuthRateLimit returns default rate limit config for credential endpoints (20 requests per minute)
func DefaultAuthRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 20,
	}
}

// RateLimitByIP is a coarse in-process burst limit for credential endpoints.
// Each client IP gets its own budget per endpoint, so exhausting login does
// not block activation. The shared fixed-window limiter still applies.
func RateLimitByIP(config RateLimitConfig, resolver *pkghttp.IPResolver) func(next http.Handler) http.Handler {
	if config.RequestsPerMinute <= 0 {
		config = DefaultAuthRateLimit()
	}

	clientIP := func(r *http.Request) (string, error) {
		return resolver.ClientIP(r), nil
	}

	return httprate.Limit(
		config.RequestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(clientIP, httprate.KeyByEndpoint),
		httprate.WithResponseHeaders(httprate.ResponseHeaders{}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, time.Minute, "Too many requests to this endpoint")
		}),
	)
}
