package middleware

import (
	"log/slog"
	"net/http"
)

// Check is one step of the request pipeline. It returns the request to pass
// on (possibly with a new context) and whether processing continues. A check
// that stops the request has already written the response.
type Check interface {
	Name() string
	Check(w http.ResponseWriter, r *http.Request) (*http.Request, bool)
}

// Pipeline runs checks in order ahead of the handler.
func Pipeline(logger *slog.Logger, checks ...Check) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, c := range checks {
				var ok bool
				r, ok = c.Check(w, r)
				if !ok {
					logger.Debug("request stopped by pipeline",
						slog.String("check", c.Name()),
						slog.String("path", r.URL.Path))
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
