package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/dlogr/internal/common"
	"github.com/dmitrijs2005/dlogr/internal/server/validation"
)

const (
	msgNotFound          = "Not found."
	msgNotAuthenticated  = "Authentication credentials were not provided."
	msgInvalidToken      = "Invalid token."
	msgInvalidBasic      = "Invalid username/password."
	msgTechnicalTrouble  = "Sorry, Dlogr API is facing technical difficulties"
	msgTokenInvalid      = "Token is invalid (or has expired)."
	msgResetTokenInvalid = "Reset token is invalid (or has expired)."
	msgBadCredentials    = "Unable to login with credentials provided."
	msgNeedCredentials   = "Either reset_token or (email, password) is required."
	msgFieldsAndExclude  = `Provide "fields" or "exclude" - not both.`
)

type detail struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, detail{Detail: msg})
}

func nonField(msg string) map[string][]string {
	return map[string][]string{validation.NonFieldErrors: {msg}}
}

// writeError maps service errors onto responses. Anything unrecognised is
// logged and answered with the generic 500 body.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if ve, ok := validation.AsError(err); ok {
		writeJSON(w, http.StatusBadRequest, ve.Fields)
		return
	}

	switch {
	case errors.Is(err, common.ErrTokenInvalidOrExpired):
		writeJSON(w, http.StatusBadRequest, nonField(msgTokenInvalid))
	case errors.Is(err, common.ErrResetTokenInvalid):
		writeJSON(w, http.StatusBadRequest, nonField(msgResetTokenInvalid))
	case errors.Is(err, common.ErrInvalidCredentials):
		writeJSON(w, http.StatusBadRequest, nonField(msgBadCredentials))
	case errors.Is(err, common.ErrCredentialsRequired):
		writeJSON(w, http.StatusBadRequest, nonField(msgNeedCredentials))
	case errors.Is(err, common.ErrorUnauthorized):
		unauthorized(w, msgInvalidToken)
	case errors.Is(err, common.ErrorNotFound):
		writeDetail(w, http.StatusNotFound, msgNotFound)
	case errors.Is(err, common.ErrMethodNotAllowed):
		methodNotAllowed(w, r)
	default:
		h.logger.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeDetail(w, http.StatusInternalServerError, msgTechnicalTrouble)
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="api"`)
	writeDetail(w, http.StatusUnauthorized, msg)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeDetail(w, http.StatusMethodNotAllowed, fmt.Sprintf("Method %q not allowed.", r.Method))
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeDetail(w, http.StatusNotFound, msgNotFound)
}

// decode reads a JSON object body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("JSON parse error - %s", err.Error())
	}
	return nil
}

func writeParseError(w http.ResponseWriter, err error) {
	writeDetail(w, http.StatusBadRequest, err.Error())
}
