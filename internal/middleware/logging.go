package middleware

import (
	"log/slog"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
)

// slowRequest is the duration above which a request is logged at warn level.
const slowRequest = 2 * time.Second

// requestLevel picks the log level for a finished request
func requestLevel(status int, took time.Duration) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case took > slowRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// loggedTarget is the request path with sensitive query values masked
func loggedTarget(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + pkglogger.RedactQuery(r.URL.RawQuery)
}

// SecureLogger logs one line per request. Query values that may hold
// credentials or activation codes never reach the log.
func SecureLogger(logger *slog.Logger, resolver *pkghttp.IPResolver, clock clockwork.Clock) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := clock.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			took := clock.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			logger.LogAttrs(r.Context(), requestLevel(status, took), "http_request",
				slog.String("method", r.Method),
				slog.String("path", loggedTarget(r)),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", took),
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("client_ip", resolver.ClientIP(r)),
			)
		})
	}
}
