package rest

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/dlogr/internal/server/models"
	"github.com/dmitrijs2005/dlogr/internal/server/services"
)

// AccountView is the public shape of an account.
type AccountView struct {
	ID       string    `json:"id"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Timezone string    `json:"timezone"`
}

// AuthenticatedAccountView is returned by the operations that prove identity.
type AuthenticatedAccountView struct {
	AccountView
	AuthToken string `json:"auth_token"`
}

type EventView struct {
	ID              string          `json:"id"`
	Created         time.Time       `json:"created"`
	Modified        time.Time       `json:"modified"`
	ObjectID        string          `json:"object_id"`
	ObjectType      string          `json:"object_type"`
	HumanIdentifier string          `json:"human_identifier"`
	Timestamp       time.Time       `json:"timestamp"`
	Message         string          `json:"message"`
	Metadata        json.RawMessage `json:"metadata"`
}

type PageView struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []any   `json:"results"`
}

type ExportView struct {
	Key     string    `json:"key"`
	URL     string    `json:"url"`
	Count   int       `json:"count"`
	Expires time.Time `json:"expires"`
}

func newAccountView(a *models.Account) AccountView {
	return AccountView{
		ID:       a.ID,
		Created:  a.Created,
		Modified: a.Modified,
		Email:    a.Email,
		Name:     a.Name,
		Timezone: a.Timezone,
	}
}

func newAuthenticatedAccountView(a *services.AuthenticatedAccount) AuthenticatedAccountView {
	return AuthenticatedAccountView{AccountView: newAccountView(a.Account), AuthToken: a.AuthToken}
}

func newEventView(e *models.Event) EventView {
	md := e.Metadata
	if len(md) == 0 {
		md = json.RawMessage("null")
	}
	return EventView{
		ID:              e.ID,
		Created:         e.Created,
		Modified:        e.Modified,
		ObjectID:        e.ObjectID,
		ObjectType:      e.ObjectType,
		HumanIdentifier: e.HumanIdentifier,
		Timestamp:       e.Timestamp,
		Message:         e.Message,
		Metadata:        md,
	}
}

// projection keeps (fields) or drops (exclude) top-level keys of a view.
type projection struct {
	fields  map[string]bool
	exclude map[string]bool
}

func splitSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out[f] = true
		}
	}
	return out
}

// parseProjection reads the fields and exclude query parameters. ok is
// false when both are given.
func parseProjection(r *http.Request) (p projection, ok bool) {
	q := r.URL.Query()
	p.fields = splitSet(q.Get("fields"))
	p.exclude = splitSet(q.Get("exclude"))
	return p, len(p.fields) == 0 || len(p.exclude) == 0
}

func (p projection) empty() bool {
	return len(p.fields) == 0 && len(p.exclude) == 0
}

// apply serializes v and filters its keys.
func (p projection) apply(v any) (any, error) {
	if p.empty() {
		return v, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	for k := range m {
		if len(p.fields) > 0 && !p.fields[k] {
			delete(m, k)
		}
		if p.exclude[k] {
			delete(m, k)
		}
	}
	return m, nil
}

// guardProjection rejects requests asking for both fields and exclude
// before any handler runs.
func guardProjection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := parseProjection(r); !ok {
			writeJSON(w, http.StatusBadRequest, []string{msgFieldsAndExclude})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeView writes v after applying the request's projection.
func (h *handler) writeView(w http.ResponseWriter, r *http.Request, status int, v any) {
	p, _ := parseProjection(r)
	out, err := p.apply(v)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, status, out)
}
