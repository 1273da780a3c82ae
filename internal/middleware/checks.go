package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	"github.com/BradenHooton/bastion/internal/threat"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// ThreatScanCheck records requests that match attack signatures. It never
// stops a request.
type ThreatScanCheck struct {
	Detector *threat.Detector
	Audit    services.AuditSink
	Resolver *pkghttp.IPResolver
	Logger   *slog.Logger
}

func (c *ThreatScanCheck) Name() string { return "threat_scan" }

func (c *ThreatScanCheck) Check(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	source := c.Resolver.ClientIP(r)

	for _, ev := range c.Detector.Scan(r.URL.EscapedPath(), r.URL.RawQuery, source) {
		c.Audit.Record(r.Context(), models.NewThreatAuditEvent(ev))
	}

	if ev := c.Detector.ScanUserAgent(r.UserAgent(), source); ev != nil {
		c.Logger.Warn("hostile client fingerprint",
			slog.String("source", source),
			slog.String("pattern", ev.MatchedPattern),
			slog.String("path", r.URL.Path))
	}
	if ev := c.Detector.ScanForwardingHeaders(r.Header, source); ev != nil {
		c.Logger.Warn("suspicious forwarding header",
			slog.String("source", source),
			slog.String("pattern", ev.MatchedPattern))
	}
	return r, true
}

// RateLimiter decides admission for one request
type RateLimiter interface {
	Decide(ctx context.Context, scope, identity string, rl models.RateLimit) (models.RateLimitDecision, error)
}

// TieredRateLimitCheck admits requests against the budget of the caller's
// tier. Anonymous callers are counted per client IP, authenticated callers
// per account. Claims must already be in the context.
type TieredRateLimitCheck struct {
	Limiter  RateLimiter
	Policy   services.TierPolicy
	Resolver *pkghttp.IPResolver
	Logger   *slog.Logger
}

func (c *TieredRateLimitCheck) Name() string { return "rate_limit" }

func (c *TieredRateLimitCheck) Check(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	claims := auth.GetUserFromContext(r)
	tier, rl := c.Policy.Resolve(claims)

	identity := "ip:" + c.Resolver.ClientIP(r)
	if claims != nil {
		identity = "account:" + claims.UserID
	}

	d, err := c.Limiter.Decide(r.Context(), models.RateLimitScopeHTTP, identity, rl)
	if err != nil {
		c.Logger.Error("rate limit unavailable, rejecting request",
			slog.String("tier", string(tier)),
			slog.Any("error", err))
	}

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.Requests))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining()))
	if !d.ResetAt.IsZero() {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	}

	if !d.Allowed {
		c.Logger.Warn("rate limit exceeded",
			slog.String("tier", string(tier)),
			slog.String("identity", identity),
			slog.Int64("count", d.Count))
		pkghttp.WriteTooManyRequests(w, rl.Window, "Rate limit exceeded")
		return r, false
	}
	return r, true
}

// DefaultDevelopmentURLs are path prefixes hidden outside development
var DefaultDevelopmentURLs = []string{
	"/accounts/test/",
	"/config/module-disabled-test/",
	"/admin/doc/",
	"/debug/",
}

// DevelopmentURLCheck answers 404 for development-only paths in production.
type DevelopmentURLCheck struct {
	Production bool
	Prefixes   []string
	Audit      services.AuditSink
	Resolver   *pkghttp.IPResolver
}

func (c *DevelopmentURLCheck) Name() string { return "development_urls" }

func (c *DevelopmentURLCheck) Check(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	if !c.Production {
		return r, true
	}
	for _, prefix := range c.Prefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			c.Audit.Record(r.Context(), models.AuditEvent{
				Category: models.AuditCategoryDevURLBlocked,
				Identity: c.Resolver.ClientIP(r),
				Detail:   models.AuditDetail{"path": r.URL.Path},
			})
			pkghttp.WriteNotFound(w, "Not found")
			return r, false
		}
	}
	return r, true
}

// LockChecker reports lock state and ends sessions of locked accounts
type LockChecker interface {
	IsLocked(ctx context.Context, accountID string) bool
	TerminateSessions(ctx context.Context, accountID, reason string) error
}

// LockedSessionCheck ends the session of an authenticated caller whose
// account has been locked since the token was issued.
type LockedSessionCheck struct {
	Locks  LockChecker
	Logger *slog.Logger
}

func (c *LockedSessionCheck) Name() string { return "locked_session" }

func (c *LockedSessionCheck) Check(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	claims := auth.GetUserFromContext(r)
	if claims == nil || !c.Locks.IsLocked(r.Context(), claims.UserID) {
		return r, true
	}

	if err := c.Locks.TerminateSessions(r.Context(), claims.UserID, "account_locked"); err != nil {
		c.Logger.Error("failed to terminate sessions of locked account",
			slog.String("account_id", claims.UserID),
			slog.Any("error", err))
	}
	pkghttp.WriteAccountLocked(w)
	return r, false
}
