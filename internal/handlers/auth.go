package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password, sourceIP, userAgent string) (*services.LoginResponse, error)
	Logout(ctx context.Context, claims *models.TokenClaims) error
}

// AccountServiceInterface defines registration and activation
type AccountServiceInterface interface {
	Register(ctx context.Context, email, password, sourceIP string) (*models.Account, error)
	Activate(ctx context.Context, email, code string) error
	ResendCode(ctx context.Context, email string) error
}

// AuthHandler handles authentication and activation HTTP requests
type AuthHandler struct {
	service    AuthServiceInterface
	accounts   AccountServiceInterface
	resolver   *pkghttp.IPResolver
	retryAfter time.Duration
}

// NewAuthHandler creates a new AuthHandler. retryAfter is advertised when a
// client exceeds the login or registration failure limit.
func NewAuthHandler(service AuthServiceInterface, accounts AccountServiceInterface, resolver *pkghttp.IPResolver, retryAfter time.Duration) *AuthHandler {
	return &AuthHandler{
		service:    service,
		accounts:   accounts,
		resolver:   resolver,
		retryAfter: retryAfter,
	}
}

// Request DTOs

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=72"`
}

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// ActivateRequest represents the request body for account activation
type ActivateRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// ResendCodeRequest represents the request body for a new activation code
type ResendCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}

// Login handles account login
// @Summary Account login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} services.LoginResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	resp, err := h.service.Login(r.Context(), req.Email, req.Password, h.resolver.ClientIP(r), r.UserAgent())
	if err != nil {
		switch {
		case errors.Is(err, models.ErrAccountLocked):
			pkghttp.WriteAccountLocked(w)
		case errors.Is(err, models.ErrAccountInactive):
			pkghttp.WriteError(w, http.StatusForbidden, "account_inactive",
				"Account is not activated. Check your email for the activation code.")
		case errors.Is(err, models.ErrRateLimitExceeded):
			pkghttp.WriteTooManyRequests(w, h.retryAfter, "Too many failed login attempts. Please try again later.")
		case errors.Is(err, models.ErrUnauthorized):
			pkghttp.WriteUnauthorized(w, "Authentication failed")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Logout revokes the presented access token
// @Summary Account logout
// @Security BearerAuth
// @Success 204
// @Failure 401 {object} ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if err := h.service.Logout(r.Context(), claims); err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Register creates an inactive account and emails its activation code
// @Summary Account registration
// @Accept json
// @Param request body RegisterRequest true "Register request"
// @Produce json
// @Success 202 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	_, err := h.accounts.Register(r.Context(), req.Email, req.Password, h.resolver.ClientIP(r))
	switch {
	case err == nil, errors.Is(err, models.ErrConflict):
		// Existing emails get the same answer as new ones
		pkghttp.WriteJSON(w, http.StatusAccepted, MessageResponse{
			Message: "Registration received. If the email is not already registered, you will receive an activation code.",
		})
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "invalid password")
	case errors.Is(err, models.ErrRateLimitExceeded):
		pkghttp.WriteTooManyRequests(w, h.retryAfter, "Too many failed registrations. Please try again later.")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// Activate checks an activation code and activates the account
// @Summary Account activation
// @Accept json
// @Param request body ActivateRequest true "Activate request"
// @Produce json
// @Success 200 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Router /auth/activate [post]
func (h *AuthHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	err := h.accounts.Activate(r.Context(), req.Email, req.Code)
	if err != nil {
		writeActivationError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Account activated. Please log in."})
}

func writeActivationError(w http.ResponseWriter, err error) {
	var incorrect *models.CodeIncorrectError
	switch {
	case errors.As(err, &incorrect):
		pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "code_incorrect",
			"Activation code is incorrect",
			fmt.Sprintf("attempts_remaining=%d", incorrect.AttemptsRemaining))
	case errors.Is(err, models.ErrCodeExpired):
		pkghttp.WriteError(w, http.StatusBadRequest, "code_expired",
			"Activation code has expired. Request a new one.")
	case errors.Is(err, models.ErrCodeAttemptsExceeded):
		pkghttp.WriteError(w, http.StatusBadRequest, "code_attempts_exceeded",
			"Too many incorrect attempts. Request a new code.")
	case errors.Is(err, models.ErrCodeContended):
		pkghttp.WriteError(w, http.StatusConflict, "code_contended",
			"Activation code changed during verification. Try again.")
	case errors.Is(err, models.ErrNoActiveCode):
		pkghttp.WriteError(w, http.StatusBadRequest, "no_active_code",
			"No activation code is pending. Request a new one.")
	case errors.Is(err, models.ErrUnknownAccount):
		pkghttp.WriteError(w, http.StatusBadRequest, "activation_failed",
			"No pending activation for this email")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// ResendCode issues a fresh activation code
// @Summary Resend activation code
// @Accept json
// @Param request body ResendCodeRequest true "Resend request"
// @Produce json
// @Success 202 {object} MessageResponse
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /auth/activation-code [post]
func (h *AuthHandler) ResendCode(w http.ResponseWriter, r *http.Request) {
	var req ResendCodeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	err := h.accounts.ResendCode(r.Context(), req.Email)

	var cooldown *models.ResendCooldownError
	switch {
	case err == nil, errors.Is(err, models.ErrUnknownAccount):
		pkghttp.WriteJSON(w, http.StatusAccepted, MessageResponse{
			Message: "If the account is awaiting activation, a new code has been sent.",
		})
	case errors.As(err, &cooldown):
		pkghttp.WriteTooManyRequests(w, cooldown.RetryAfter, "An activation code was sent recently. Please wait before requesting another.")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
