package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/counter"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	"github.com/BradenHooton/bastion/internal/threat"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func withClaims(r *http.Request, claims *models.TokenClaims) *http.Request {
	return r.WithContext(auth.WithClaims(r.Context(), claims))
}

func serve(check Check, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	Pipeline(discardLogger(), check)(okHandler()).ServeHTTP(rec, r)
	return rec
}

func TestThreatScanCheck_AuditsButNeverBlocks(t *testing.T) {
	sink := &services.RecordingAuditSink{}
	check := &ThreatScanCheck{
		Detector: threat.NewDetector(clockwork.NewFakeClockAt(epoch)),
		Audit:    sink,
		Logger:   discardLogger(),
	}

	req := httptest.NewRequest(http.MethodGet, "/search?q=1%27+UNION+SELECT+1--&x=%3Cscript%3E", nil)
	req.RemoteAddr = "198.51.100.4:5555"
	req.Header.Set("User-Agent", "sqlmap/1.7")
	rec := serve(check, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sink.Events, 2)
	for _, ev := range sink.Events {
		assert.Equal(t, models.AuditCategoryThreat, ev.Category)
		assert.Equal(t, "198.51.100.4", ev.Identity)
	}

	clean := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	serve(check, clean)
	assert.Len(t, sink.Events, 2)
}

func newTieredCheck(t *testing.T, clock clockwork.Clock, policy services.TierPolicy) (*TieredRateLimitCheck, *services.RecordingAuditSink) {
	t.Helper()
	sink := &services.RecordingAuditSink{}
	limiter := services.NewRateLimitService(counter.NewMemoryStore(clock), services.DefaultSaturationFactor, sink, clock, discardLogger())
	return &TieredRateLimitCheck{
		Limiter: limiter,
		Policy:  policy,
		Logger:  discardLogger(),
	}, sink
}

func TestTieredRateLimitCheck_AnonymousLimit(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	check, sink := newTieredCheck(t, clock, services.DefaultTierPolicy())

	newReq := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/health", nil)
		r.RemoteAddr = "198.51.100.9:1234"
		return r
	}

	for i := 1; i <= 100; i++ {
		rec := serve(check, newReq())
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}

	rec := serve(check, newReq())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, 1, sink.Count(models.AuditCategoryRateLimitRejected))

	clock.Advance(time.Minute)
	rec = serve(check, newReq())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "99", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestTieredRateLimitCheck_TiersAndIdentities(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	check, _ := newTieredCheck(t, clock, services.TierPolicy{
		Window:        time.Minute,
		Anonymous:     1,
		Authenticated: 2,
		Staff:         3,
	})

	run := func(claims *models.TokenClaims, n int) int {
		code := 0
		for i := 0; i < n; i++ {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = "203.0.113.1:1"
			if claims != nil {
				r = withClaims(r, claims)
			}
			code = serve(check, r).Code
		}
		return code
	}

	assert.Equal(t, http.StatusOK, run(nil, 1))
	assert.Equal(t, http.StatusTooManyRequests, run(nil, 1))

	user := &models.TokenClaims{UserID: "u1", Role: models.RoleUser}
	assert.Equal(t, http.StatusOK, run(user, 2), "accounts are counted apart from their address")
	assert.Equal(t, http.StatusTooManyRequests, run(user, 1))

	staff := &models.TokenClaims{UserID: "s1", Role: models.RoleStaff}
	assert.Equal(t, http.StatusOK, run(staff, 3))
	assert.Equal(t, http.StatusTooManyRequests, run(staff, 1))
}

type failingLimiter struct{}

func (failingLimiter) Decide(ctx context.Context, scope, identity string, rl models.RateLimit) (models.RateLimitDecision, error) {
	return models.RateLimitDecision{Limit: rl.Requests}, errors.New("connection refused")
}

func TestTieredRateLimitCheck_StoreFailureRejects(t *testing.T) {
	check := &TieredRateLimitCheck{
		Limiter: failingLimiter{},
		Policy:  services.DefaultTierPolicy(),
		Logger:  discardLogger(),
	}

	rec := serve(check, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestDevelopmentURLCheck(t *testing.T) {
	sink := &services.RecordingAuditSink{}
	prod := &DevelopmentURLCheck{Production: true, Prefixes: DefaultDevelopmentURLs, Audit: sink}
	dev := &DevelopmentURLCheck{Production: false, Prefixes: DefaultDevelopmentURLs, Audit: sink}

	for _, path := range []string{"/debug/vars", "/admin/doc/", "/accounts/test/x", "/config/module-disabled-test/"} {
		rec := serve(prod, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)

		rec = serve(dev, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
	assert.Equal(t, 4, sink.Count(models.AuditCategoryDevURLBlocked))

	rec := serve(prod, httptest.NewRequest(http.MethodGet, "/debugger", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

type mockLockChecker struct {
	locked     map[string]bool
	terminated []string
}

func (m *mockLockChecker) IsLocked(ctx context.Context, accountID string) bool {
	return m.locked[accountID]
}

func (m *mockLockChecker) TerminateSessions(ctx context.Context, accountID, reason string) error {
	m.terminated = append(m.terminated, accountID)
	return nil
}

func TestLockedSessionCheck(t *testing.T) {
	locks := &mockLockChecker{locked: map[string]bool{"locked-1": true}}
	check := &LockedSessionCheck{Locks: locks, Logger: discardLogger()}

	rec := serve(check, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "anonymous requests pass")

	rec = serve(check, withClaims(httptest.NewRequest(http.MethodGet, "/", nil), &models.TokenClaims{UserID: "ok-1"}))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(check, withClaims(httptest.NewRequest(http.MethodGet, "/", nil), &models.TokenClaims{UserID: "locked-1"}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "account_locked")
	assert.Equal(t, []string{"locked-1"}, locks.terminated)
}

func TestChecks_UseResolvedClientIP(t *testing.T) {
	resolver, err := pkghttp.NewIPResolver([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	sink := &services.RecordingAuditSink{}
	check := &DevelopmentURLCheck{Production: true, Prefixes: DefaultDevelopmentURLs, Audit: sink, Resolver: resolver}

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof", nil)
	req.RemoteAddr = "10.1.2.3:443"
	req.Header.Set("X-Forwarded-For", "203.0.113.77")
	serve(check, req)

	require.Len(t, sink.Events, 1)
	assert.Equal(t, "203.0.113.77", sink.Events[0].Identity)
}
