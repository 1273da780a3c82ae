package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds user claims to request context for testing authenticated endpoints
func WithAuthContext(req *http.Request, userID, email string) *http.Request {
	return req.WithContext(auth.WithClaims(req.Context(), &models.TokenClaims{
		UserID: userID,
		Email:  email,
		Role:   models.RoleUser,
		Type:   "access",
	}))
}

// WithStaffContext adds staff claims to request context
func WithStaffContext(req *http.Request, userID, email string) *http.Request {
	return req.WithContext(auth.WithClaims(req.Context(), &models.TokenClaims{
		UserID: userID,
		Email:  email,
		Role:   models.RoleStaff,
		Type:   "access",
	}))
}

// WithURLParams sets chi route parameters on the request
func WithURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc  func(ctx context.Context, email, password, sourceIP, userAgent string) (*services.LoginResponse, error)
	LogoutFunc func(ctx context.Context, claims *models.TokenClaims) error
}

func (m *MockAuthService) Login(ctx context.Context, email, password, sourceIP, userAgent string) (*services.LoginResponse, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, email, password, sourceIP, userAgent)
	}
	return nil, nil
}

func (m *MockAuthService) Logout(ctx context.Context, claims *models.TokenClaims) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, claims)
	}
	return nil
}

// MockAccountService implements AccountServiceInterface and ActivationCodeResetter for testing
type MockAccountService struct {
	RegisterFunc            func(ctx context.Context, email, password, sourceIP string) (*models.Account, error)
	ActivateFunc            func(ctx context.Context, email, code string) error
	ResendCodeFunc          func(ctx context.Context, email string) error
	ResetActivationCodeFunc func(ctx context.Context, accountID, actor string) error
}

func (m *MockAccountService) Register(ctx context.Context, email, password, sourceIP string) (*models.Account, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, email, password, sourceIP)
	}
	return &models.Account{Email: email}, nil
}

func (m *MockAccountService) Activate(ctx context.Context, email, code string) error {
	if m.ActivateFunc != nil {
		return m.ActivateFunc(ctx, email, code)
	}
	return nil
}

func (m *MockAccountService) ResendCode(ctx context.Context, email string) error {
	if m.ResendCodeFunc != nil {
		return m.ResendCodeFunc(ctx, email)
	}
	return nil
}

func (m *MockAccountService) ResetActivationCode(ctx context.Context, accountID, actor string) error {
	if m.ResetActivationCodeFunc != nil {
		return m.ResetActivationCodeFunc(ctx, accountID, actor)
	}
	return nil
}

// MockAccountUnlocker implements AccountUnlocker for testing
type MockAccountUnlocker struct {
	UnlockFunc func(ctx context.Context, accountID, actor string) error
}

func (m *MockAccountUnlocker) Unlock(ctx context.Context, accountID, actor string) error {
	if m.UnlockFunc != nil {
		return m.UnlockFunc(ctx, accountID, actor)
	}
	return nil
}

// MockRateLimitResetter implements RateLimitResetter for testing
type MockRateLimitResetter struct {
	ResetFunc func(ctx context.Context, scope, identity string) error
}

func (m *MockRateLimitResetter) Reset(ctx context.Context, scope, identity string) error {
	if m.ResetFunc != nil {
		return m.ResetFunc(ctx, scope, identity)
	}
	return nil
}
