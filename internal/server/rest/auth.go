package rest

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/dlogr/internal/common"
	"github.com/dmitrijs2005/dlogr/internal/server/models"
)

type ctxKey string

const accountKey ctxKey = "account"

// AccountFromContext returns the authenticated caller, if any.
func AccountFromContext(ctx context.Context) (*models.Account, bool) {
	a, ok := ctx.Value(accountKey).(*models.Account)
	return a, ok && a != nil
}

func withAccount(ctx context.Context, a *models.Account) context.Context {
	return context.WithValue(ctx, accountKey, a)
}

// authenticate resolves the Authorization header. Requests without one pass
// through anonymously; a header that does not check out is rejected even on
// public routes. Schemes: Token and Bearer carry the account key, Basic
// carries email and password.
func (h *handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		scheme, credentials, _ := strings.Cut(header, " ")
		credentials = strings.TrimSpace(credentials)

		var (
			account *models.Account
			err     error
			failMsg = msgInvalidToken
		)
		switch {
		case strings.EqualFold(scheme, common.AuthTokenKeyword), strings.EqualFold(scheme, "Bearer"):
			if credentials == "" || strings.Contains(credentials, " ") {
				unauthorized(w, "Invalid token header. No credentials provided.")
				return
			}
			account, err = h.accounts.Authenticate(r.Context(), credentials)
		case strings.EqualFold(scheme, "Basic"):
			failMsg = msgInvalidBasic
			email, password, ok := r.BasicAuth()
			if !ok {
				unauthorized(w, "Invalid basic header. Credentials not correctly base64 encoded.")
				return
			}
			account, err = h.accounts.AuthenticateBasic(r.Context(), email, password)
		default:
			next.ServeHTTP(w, r)
			return
		}

		if err != nil {
			if errors.Is(err, common.ErrorUnauthorized) {
				unauthorized(w, failMsg)
				return
			}
			h.writeError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(withAccount(r.Context(), account)))
	})
}

// requireAccount rejects anonymous requests.
func requireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := AccountFromContext(r.Context()); !ok {
			unauthorized(w, msgNotAuthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// caller is only used behind requireAccount.
func caller(r *http.Request) *models.Account {
	a, _ := AccountFromContext(r.Context())
	return a
}
