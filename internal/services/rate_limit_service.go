package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/counter"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/jonboulle/clockwork"
)

// DefaultSaturationFactor bounds stored counts at this multiple of the limit.
const DefaultSaturationFactor = 10

// RateLimitService is a fixed-window limiter over a shared counter store.
// It is tier-agnostic: callers resolve the limit before asking.
type RateLimitService struct {
	store      counter.Store
	saturation int
	audit      AuditSink
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewRateLimitService creates a new RateLimitService
func NewRateLimitService(store counter.Store, saturation int, audit AuditSink, clock clockwork.Clock, logger *slog.Logger) *RateLimitService {
	if saturation < 1 {
		saturation = DefaultSaturationFactor
	}
	return &RateLimitService{
		store:      store,
		saturation: saturation,
		audit:      audit,
		clock:      clock,
		logger:     logger,
	}
}

// saturationCap is the highest value a counter for limit may reach. Counting
// continues past the limit so floods stay visible, but never without bound.
func (s *RateLimitService) saturationCap(limit int) int64 {
	c := int64(limit) * int64(s.saturation)
	if c < int64(limit)+1 {
		c = int64(limit) + 1
	}
	return c
}

// Admit counts one request for (scope, identity) and reports whether it fits
// within limit for the current window. A store failure rejects the request
// and returns the error for logging.
func (s *RateLimitService) Admit(ctx context.Context, scope, identity string, limit int, window time.Duration) (bool, error) {
	d, err := s.Decide(ctx, scope, identity, models.RateLimit{Requests: limit, Window: window})
	return d.Allowed, err
}

// Decide is Admit with the full decision, for callers that set headers.
func (s *RateLimitService) Decide(ctx context.Context, scope, identity string, rl models.RateLimit) (models.RateLimitDecision, error) {
	count, resetAt, err := s.store.IncrementWithTTL(ctx, counter.Key(scope, identity), rl.Window, s.saturationCap(rl.Requests))
	if err != nil {
		s.logger.Error("rate limit store unavailable, rejecting",
			slog.String("scope", scope),
			slog.Any("error", err))
		return models.RateLimitDecision{
			Allowed: false,
			Limit:   rl.Requests,
			ResetAt: s.clock.Now().Add(rl.Window),
		}, fmt.Errorf("rate limit check failed: %w", err)
	}

	d := models.RateLimitDecision{
		Allowed: count <= int64(rl.Requests),
		Count:   count,
		Limit:   rl.Requests,
		ResetAt: resetAt,
	}

	if !d.Allowed {
		s.audit.Record(ctx, models.AuditEvent{
			Category: models.AuditCategoryRateLimitRejected,
			Identity: identity,
			Detail: models.AuditDetail{
				"scope": scope,
				"count": count,
				"limit": rl.Requests,
			},
		})
	}
	return d, nil
}

// Exceeded reports whether (scope, identity) has already used limit hits in
// the current window, without counting this call. Store failures report
// exceeded.
func (s *RateLimitService) Exceeded(ctx context.Context, scope, identity string, limit int) (bool, error) {
	count, _, err := s.store.Get(ctx, counter.Key(scope, identity))
	if err != nil {
		s.logger.Error("rate limit store unavailable, rejecting",
			slog.String("scope", scope),
			slog.Any("error", err))
		return true, fmt.Errorf("rate limit check failed: %w", err)
	}
	return count >= int64(limit), nil
}

// Hit counts one event for (scope, identity) without an admission decision.
func (s *RateLimitService) Hit(ctx context.Context, scope, identity string, limit int, window time.Duration) error {
	if _, _, err := s.store.IncrementWithTTL(ctx, counter.Key(scope, identity), window, s.saturationCap(limit)); err != nil {
		return fmt.Errorf("failed to record rate limit hit: %w", err)
	}
	return nil
}

// Reset clears the counter for (scope, identity).
func (s *RateLimitService) Reset(ctx context.Context, scope, identity string) error {
	if err := s.store.Delete(ctx, counter.Key(scope, identity)); err != nil {
		return fmt.Errorf("failed to reset rate limit: %w", err)
	}
	s.logger.Info("rate limit reset", slog.String("scope", scope), slog.String("identity", identity))
	return nil
}

// TierPolicy maps a caller's privilege tier to its request budget.
type TierPolicy struct {
	Window        time.Duration
	Anonymous     int
	Authenticated int
	Staff         int
}

// DefaultTierPolicy is 100, 300 and 1000 requests per minute.
func DefaultTierPolicy() TierPolicy {
	return TierPolicy{
		Window:        time.Minute,
		Anonymous:     100,
		Authenticated: 300,
		Staff:         1000,
	}
}

// Resolve picks the tier for claims; nil claims are anonymous.
func (p TierPolicy) Resolve(claims *models.TokenClaims) (models.Tier, models.RateLimit) {
	switch {
	case claims == nil:
		return models.TierAnonymous, models.RateLimit{Requests: p.Anonymous, Window: p.Window}
	case claims.IsPrivileged():
		return models.TierStaff, models.RateLimit{Requests: p.Staff, Window: p.Window}
	default:
		return models.TierAuthenticated, models.RateLimit{Requests: p.Authenticated, Window: p.Window}
	}
}
