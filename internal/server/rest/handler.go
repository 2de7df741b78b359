// Package rest is the HTTP/JSON transport of dlogr.
package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/dlogr/internal/logging"
	"github.com/dmitrijs2005/dlogr/internal/server/models"
	"github.com/dmitrijs2005/dlogr/internal/server/services"
	"github.com/dmitrijs2005/dlogr/internal/server/validation"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type AccountService interface {
	Signup(ctx context.Context, in services.SignupInput) (*services.AuthenticatedAccount, error)
	Login(ctx context.Context, email, password string) (*services.AuthenticatedAccount, error)
	Authenticate(ctx context.Context, key string) (*models.Account, error)
	AuthenticateBasic(ctx context.Context, email, password string) (*models.Account, error)
	VerifyAccount(ctx context.Context, token string) (*services.AuthenticatedAccount, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ChangePassword(ctx context.Context, in services.ChangePasswordInput) (*services.AuthenticatedAccount, error)
	Get(ctx context.Context, caller *models.Account, id string) (*models.Account, error)
	Update(ctx context.Context, caller *models.Account, id string, p services.AccountPatch) (*models.Account, error)
	Delete(ctx context.Context, caller *models.Account, id string) error
}

type EventService interface {
	Create(ctx context.Context, caller *models.Account, in services.EventInput) (*models.Event, error)
	Get(ctx context.Context, caller *models.Account, id string) (*models.Event, error)
	Update(ctx context.Context, caller *models.Account, id string, in services.EventInput, partial bool) (*models.Event, error)
	Delete(ctx context.Context, caller *models.Account, id string) error
	List(ctx context.Context, caller *models.Account, f models.EventFilter) (*models.EventPage, models.EventFilter, error)
}

type ExportService interface {
	Export(ctx context.Context, caller *models.Account, f models.EventFilter) (*services.Export, error)
}

type handler struct {
	accounts  AccountService
	events    EventService
	exports   ExportService
	validator *validation.Validator
	logger    logging.Logger
}

// NewRouter builds the API routes.
func NewRouter(as AccountService, es EventService, xs ExportService, logger logging.Logger) http.Handler {
	h := &handler{
		accounts:  as,
		events:    es,
		exports:   xs,
		validator: validation.New(),
		logger:    logger.With("module", "rest"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(tagRequest)
	r.Use(middleware.RealIP)
	r.Use(h.logRequests)
	r.Use(h.recoverer)

	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.authenticate)

			r.Route("/auth", func(r chi.Router) {
				r.Post("/login", h.login)
				r.Post("/verify-account", h.verifyAccount)
				r.Post("/reset-password", h.resetPassword)
				r.Post("/change-password", h.changePassword)
			})

			r.Route("/events", func(r chi.Router) {
				r.Use(requireAccount)
				r.Use(guardProjection)
				r.Get("/", h.listEvents)
				r.Post("/", h.createEvent)
				r.Post("/export", h.exportEvents)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.getEvent)
					r.Put("/", h.updateEvent(false))
					r.Patch("/", h.updateEvent(true))
					r.Delete("/", h.deleteEvent)
				})
			})
		})

		r.Route("/customers", func(r chi.Router) {
			// Listing is refused before credentials are looked at.
			r.Get("/", h.listAccounts)

			r.Group(func(r chi.Router) {
				r.Use(h.authenticate)
				r.Use(guardProjection)
				r.Post("/", h.createAccount)
				r.Route("/{id}", func(r chi.Router) {
					r.Use(requireAccount)
					r.Get("/", h.getAccount)
					r.Put("/", h.updateAccount(false))
					r.Patch("/", h.updateAccount(true))
					r.Delete("/", h.deleteAccount)
				})
			})
		})
	})

	return r
}

// tagRequest makes every log record of the request carry its id.
func tagRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Info(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
		)
	})
}

// recoverer turns panics into the generic 500 response.
func (h *handler) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				h.logger.Error(r.Context(), "panic", "method", r.Method, "path", r.URL.Path, "panic", p)
				writeDetail(w, http.StatusInternalServerError, msgTechnicalTrouble)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
