package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/go-chi/chi/v5"
)

// AccountUnlocker lifts account locks
type AccountUnlocker interface {
	Unlock(ctx context.Context, accountID, actor string) error
}

// ActivationCodeResetter drops pending activation codes
type ActivationCodeResetter interface {
	ResetActivationCode(ctx context.Context, accountID, actor string) error
}

// RateLimitResetter clears rate limit counters
type RateLimitResetter interface {
	Reset(ctx context.Context, scope, identity string) error
}

// AdminHandler handles staff-only security operations
type AdminHandler struct {
	unlocker AccountUnlocker
	codes    ActivationCodeResetter
	limits   RateLimitResetter
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(unlocker AccountUnlocker, codes ActivationCodeResetter, limits RateLimitResetter) *AdminHandler {
	return &AdminHandler{unlocker: unlocker, codes: codes, limits: limits}
}

// UnlockAccount handles POST /admin/accounts/{id}/unlock
func (h *AdminHandler) UnlockAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := accountIDParam(w, r)
	if !ok {
		return
	}

	if err := h.unlocker.Unlock(r.Context(), id, actor(r)); err != nil {
		writeAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetActivationCode handles DELETE /admin/accounts/{id}/activation-code
func (h *AdminHandler) ResetActivationCode(w http.ResponseWriter, r *http.Request) {
	id, ok := accountIDParam(w, r)
	if !ok {
		return
	}

	if err := h.codes.ResetActivationCode(r.Context(), id, actor(r)); err != nil {
		writeAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearRateLimit handles DELETE /admin/rate-limits/{scope}/{identity}
func (h *AdminHandler) ClearRateLimit(w http.ResponseWriter, r *http.Request) {
	scope := chi.URLParam(r, "scope")
	identity := chi.URLParam(r, "identity")

	if err := ValidateVar("scope", scope, "required,oneof=http login register"); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	if err := ValidateVar("identity", identity, "required,max=255"); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.limits.Reset(r.Context(), scope, identity); err != nil {
		writeAdminError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func accountIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := ValidateVar("id", id, "required,uuid"); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return "", false
	}
	return id, true
}

func actor(r *http.Request) string {
	if claims := auth.GetUserFromContext(r); claims != nil {
		return claims.UserID
	}
	return "unknown"
}

func writeAdminError(w http.ResponseWriter, err error) {
	if errors.Is(err, models.ErrNotFound) {
		pkghttp.WriteNotFound(w, "Account not found")
		return
	}
	pkghttp.WriteInternalError(w, "Internal server error")
}
