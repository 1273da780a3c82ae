package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/bastion/internal/handlers"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	"github.com/stretchr/testify/assert"
)

func newAuthHandler(authSvc *handlers.MockAuthService, accounts *handlers.MockAccountService) *handlers.AuthHandler {
	if authSvc == nil {
		authSvc = &handlers.MockAuthService{}
	}
	if accounts == nil {
		accounts = &handlers.MockAccountService{}
	}
	return handlers.NewAuthHandler(authSvc, accounts, nil, 5*time.Minute)
}

func TestLogin_Success(t *testing.T) {
	var gotIP string
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, email, password, sourceIP, userAgent string) (*services.LoginResponse, error) {
			gotIP = sourceIP
			return &services.LoginResponse{AccessToken: "access_token_123", TokenType: "Bearer", ExpiresIn: 900}, nil
		},
	}

	handler := newAuthHandler(mockAuth, nil)
	req := handlers.NewTestRequest(t, http.MethodPost, "/auth/login", handlers.LoginRequest{
		Email:    "user@example.com",
		Password: "SecureP@ss123",
	})
	req.RemoteAddr = "198.51.100.1:4321"

	w := httptest.NewRecorder()
	handler.Login(w, req)

	var resp services.LoginResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "access_token_123", resp.AccessToken)
	assert.Equal(t, "198.51.100.1", gotIP)
}

func TestLogin_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"bad credentials", models.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"locked", models.ErrAccountLocked, http.StatusUnauthorized, "account_locked"},
		{"inactive", models.ErrAccountInactive, http.StatusForbidden, "account_inactive"},
		{"ip limited", models.ErrRateLimitExceeded, http.StatusTooManyRequests, "rate_limit_exceeded"},
		{"store down", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockAuth := &handlers.MockAuthService{
				LoginFunc: func(ctx context.Context, email, password, sourceIP, userAgent string) (*services.LoginResponse, error) {
					return nil, tt.err
				},
			}
			req := handlers.NewTestRequest(t, http.MethodPost, "/auth/login", handlers.LoginRequest{
				Email:    "user@example.com",
				Password: "wrong",
			})
			w := httptest.NewRecorder()
			newAuthHandler(mockAuth, nil).Login(w, req)

			handlers.AssertErrorResponse(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestLogin_RetryAfterOnIPLimit(t *testing.T) {
	mockAuth := &handlers.MockAuthService{
		LoginFunc: func(ctx context.Context, email, password, sourceIP, userAgent string) (*services.LoginResponse, error) {
			return nil, models.ErrRateLimitExceeded
		},
	}
	req := handlers.NewTestRequest(t, http.MethodPost, "/auth/login", handlers.LoginRequest{
		Email:    "user@example.com",
		Password: "x",
	})
	w := httptest.NewRecorder()
	newAuthHandler(mockAuth, nil).Login(w, req)

	assert.Equal(t, "300", w.Header().Get("Retry-After"))
}

func TestLogin_InvalidBody(t *testing.T) {
	handler := newAuthHandler(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	w := httptest.NewRecorder()
	handler.Login(w, req)
	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")

	req = handlers.NewTestRequest(t, http.MethodPost, "/auth/login", handlers.LoginRequest{Email: "not-an-email", Password: "x"})
	w = httptest.NewRecorder()
	handler.Login(w, req)
	resp := handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
	assert.Contains(t, resp.Message, "email")
	assert.Contains(t, resp.Details, "email: must be a valid email address")
}

func TestLogout(t *testing.T) {
	var revoked *models.TokenClaims
	mockAuth := &handlers.MockAuthService{
		LogoutFunc: func(ctx context.Context, claims *models.TokenClaims) error {
			revoked = claims
			return nil
		},
	}
	handler := newAuthHandler(mockAuth, nil)

	w := httptest.NewRecorder()
	handler.Logout(w, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))
	handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")

	req := handlers.WithAuthContext(httptest.NewRequest(http.MethodPost, "/auth/logout", nil), "user-1", "user@example.com")
	w = httptest.NewRecorder()
	handler.Logout(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "user-1", revoked.UserID)
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"new account", nil, http.StatusAccepted},
		{"existing email looks the same", models.ErrConflict, http.StatusAccepted},
		{"weak password", models.ErrBadRequest, http.StatusBadRequest},
		{"limited", models.ErrRateLimitExceeded, http.StatusTooManyRequests},
		{"delivery failure", errors.New("ses down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts := &handlers.MockAccountService{
				RegisterFunc: func(ctx context.Context, email, password, sourceIP string) (*models.Account, error) {
					return nil, tt.err
				},
			}
			req := handlers.NewTestRequest(t, http.MethodPost, "/auth/register", handlers.RegisterRequest{
				Email:    "new@example.com",
				Password: "SecureP@ss123",
			})
			w := httptest.NewRecorder()
			newAuthHandler(nil, accounts).Register(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestActivate(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"incorrect", &models.CodeIncorrectError{AttemptsRemaining: 3}, http.StatusBadRequest, "code_incorrect"},
		{"expired", models.ErrCodeExpired, http.StatusBadRequest, "code_expired"},
		{"exhausted", models.ErrCodeAttemptsExceeded, http.StatusBadRequest, "code_attempts_exceeded"},
		{"no code", models.ErrNoActiveCode, http.StatusBadRequest, "no_active_code"},
		{"unknown", models.ErrUnknownAccount, http.StatusBadRequest, "activation_failed"},
		{"contended", models.ErrCodeContended, http.StatusConflict, "code_contended"},
		{"store down", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accounts := &handlers.MockAccountService{
				ActivateFunc: func(ctx context.Context, email, code string) error {
					return tt.err
				},
			}
			req := handlers.NewTestRequest(t, http.MethodPost, "/auth/activate", handlers.ActivateRequest{
				Email: "new@example.com",
				Code:  "123456",
			})
			w := httptest.NewRecorder()
			newAuthHandler(nil, accounts).Activate(w, req)

			resp := handlers.AssertErrorResponse(t, w, tt.wantStatus, tt.wantCode)
			if tt.wantCode == "code_incorrect" {
				assert.Equal(t, "attempts_remaining=3", resp.Details)
			}
		})
	}
}

func TestActivate_Success(t *testing.T) {
	var gotCode string
	accounts := &handlers.MockAccountService{
		ActivateFunc: func(ctx context.Context, email, code string) error {
			gotCode = code
			return nil
		},
	}
	req := handlers.NewTestRequest(t, http.MethodPost, "/auth/activate", handlers.ActivateRequest{
		Email: "new@example.com",
		Code:  "042917",
	})
	w := httptest.NewRecorder()
	newAuthHandler(nil, accounts).Activate(w, req)

	var resp handlers.MessageResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "042917", gotCode)
}

func TestActivate_RejectsMalformedCode(t *testing.T) {
	for _, code := range []string{"12345", "1234567", "12a456"} {
		req := handlers.NewTestRequest(t, http.MethodPost, "/auth/activate", handlers.ActivateRequest{
			Email: "new@example.com",
			Code:  code,
		})
		w := httptest.NewRecorder()
		newAuthHandler(nil, nil).Activate(w, req)

		handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
	}
}

func TestResendCode(t *testing.T) {
	accounts := &handlers.MockAccountService{
		ResendCodeFunc: func(ctx context.Context, email string) error {
			switch email {
			case "cooling@example.com":
				return &models.ResendCooldownError{RetryAfter: 150 * time.Second}
			case "ghost@example.com":
				return models.ErrUnknownAccount
			}
			return nil
		},
	}
	handler := newAuthHandler(nil, accounts)

	send := func(email string) *httptest.ResponseRecorder {
		req := handlers.NewTestRequest(t, http.MethodPost, "/auth/activation-code", handlers.ResendCodeRequest{Email: email})
		w := httptest.NewRecorder()
		handler.ResendCode(w, req)
		return w
	}

	assert.Equal(t, http.StatusAccepted, send("pending@example.com").Code)
	assert.Equal(t, http.StatusAccepted, send("ghost@example.com").Code, "unknown emails are not revealed")

	w := send("cooling@example.com")
	handlers.AssertErrorResponse(t, w, http.StatusTooManyRequests, "rate_limit_exceeded")
	assert.Equal(t, "150", w.Header().Get("Retry-After"))
}
