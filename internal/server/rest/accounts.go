package rest

import (
	"net/http"

	"github.com/dmitrijs2005/dlogr/internal/common"
	"github.com/dmitrijs2005/dlogr/internal/server/services"
	"github.com/go-chi/chi/v5"
)

type loginRequest struct {
	Email    *string `json:"email" validate:"required,notblank,email"`
	Password *string `json:"password" validate:"required,notblank"`
}

type verifyAccountRequest struct {
	Token *string `json:"token" validate:"required,notblank"`
}

type resetPasswordRequest struct {
	Email *string `json:"email" validate:"required,notblank,email"`
}

type changePasswordRequest struct {
	ResetToken  *string `json:"reset_token"`
	Email       *string `json:"email" validate:"omitempty,email"`
	Password    *string `json:"password"`
	NewPassword *string `json:"new_password" validate:"required"`
}

// accountRequest is the writable account representation. Presence is
// checked here; content rules belong to the account service.
type accountRequest struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Name     *string `json:"name"`
	Timezone *string `json:"timezone"`
}

type fullAccountRequest struct {
	Email    *string `json:"email" validate:"required"`
	Password *string `json:"password" validate:"required"`
	Name     *string `json:"name" validate:"required"`
	Timezone *string `json:"timezone" validate:"required"`
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// bind decodes the body into req and runs its tag checks.
func (h *handler) bind(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := decode(r, req); err != nil {
		writeParseError(w, err)
		return false
	}
	if err := h.validator.Struct(req); err != nil {
		h.writeError(w, r, err)
		return false
	}
	return true
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.bind(w, r, &req) {
		return
	}
	out, err := h.accounts.Login(r.Context(), *req.Email, *req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAuthenticatedAccountView(out))
}

func (h *handler) verifyAccount(w http.ResponseWriter, r *http.Request) {
	var req verifyAccountRequest
	if !h.bind(w, r, &req) {
		return
	}
	out, err := h.accounts.VerifyAccount(r.Context(), *req.Token)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAuthenticatedAccountView(out))
}

func (h *handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.bind(w, r, &req) {
		return
	}
	if err := h.accounts.RequestPasswordReset(r.Context(), *req.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !h.bind(w, r, &req) {
		return
	}
	out, err := h.accounts.ChangePassword(r.Context(), services.ChangePasswordInput{
		ResetToken:  deref(req.ResetToken),
		Email:       deref(req.Email),
		Password:    deref(req.Password),
		NewPassword: deref(req.NewPassword),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAuthenticatedAccountView(out))
}

func (h *handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req fullAccountRequest
	if !h.bind(w, r, &req) {
		return
	}
	out, err := h.accounts.Signup(r.Context(), services.SignupInput{
		Email:    *req.Email,
		Password: *req.Password,
		Name:     *req.Name,
		Timezone: *req.Timezone,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeView(w, r, http.StatusCreated, newAuthenticatedAccountView(out))
}

// listAccounts is never allowed, so accounts cannot be enumerated.
func (h *handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, common.ErrMethodNotAllowed)
}

func (h *handler) getAccount(w http.ResponseWriter, r *http.Request) {
	a, err := h.accounts.Get(r.Context(), caller(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeView(w, r, http.StatusOK, newAccountView(a))
}

func (h *handler) updateAccount(partial bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req accountRequest
		if partial {
			if !h.bind(w, r, &req) {
				return
			}
		} else {
			var full fullAccountRequest
			if !h.bind(w, r, &full) {
				return
			}
			req = accountRequest(full)
		}

		a, err := h.accounts.Update(r.Context(), caller(r), chi.URLParam(r, "id"), services.AccountPatch{
			Email:    req.Email,
			Password: req.Password,
			Name:     req.Name,
			Timezone: req.Timezone,
		})
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeView(w, r, http.StatusOK, newAccountView(a))
	}
}

func (h *handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Delete(r.Context(), caller(r), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
