package rest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/dlogr/internal/common"
	"github.com/dmitrijs2005/dlogr/internal/logging"
	"github.com/dmitrijs2005/dlogr/internal/server/models"
	"github.com/dmitrijs2005/dlogr/internal/server/services"
	"github.com/dmitrijs2005/dlogr/internal/server/validation"
)

type nopLogger struct{}

func (n nopLogger) Debug(context.Context, string, ...any) {}
func (n nopLogger) Info(context.Context, string, ...any)  {}
func (n nopLogger) Warn(context.Context, string, ...any)  {}
func (n nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) logging.Logger            { return n }

var (
	alice = &models.Account{ID: "11111111-1111-1111-1111-111111111111", Email: "a@x.com", Name: "A", Timezone: "UTC"}
	bob   = &models.Account{ID: "22222222-2222-2222-2222-222222222222", Email: "b@x.com", Name: "B", Timezone: "UTC"}
)

const (
	aliceKey = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	bobKey   = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

type fakeAccounts struct {
	mu sync.Mutex

	signups   []services.SignupInput
	resets    []string
	changes   []services.ChangePasswordInput
	patches   []services.AccountPatch
	deleted   []string
	changeErr error
}

func (f *fakeAccounts) Signup(_ context.Context, in services.SignupInput) (*services.AuthenticatedAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signups = append(f.signups, in)
	switch in.Email {
	case "taken@x.com":
		return nil, validation.FieldError("email", validation.MsgEmailTaken)
	case "boom@x.com":
		return nil, errors.New("db error: connection refused")
	case "panic@x.com":
		panic("kaboom")
	}
	a := *alice
	a.Email = in.Email
	return &services.AuthenticatedAccount{Account: &a, AuthToken: aliceKey}, nil
}

func (f *fakeAccounts) Login(_ context.Context, email, password string) (*services.AuthenticatedAccount, error) {
	if email == alice.Email && password == "12345678" {
		return &services.AuthenticatedAccount{Account: alice, AuthToken: aliceKey}, nil
	}
	return nil, common.ErrInvalidCredentials
}

func (f *fakeAccounts) Authenticate(_ context.Context, key string) (*models.Account, error) {
	switch key {
	case aliceKey:
		return alice, nil
	case bobKey:
		return bob, nil
	}
	return nil, common.ErrorUnauthorized
}

func (f *fakeAccounts) AuthenticateBasic(_ context.Context, email, password string) (*models.Account, error) {
	if email == alice.Email && password == "12345678" {
		return alice, nil
	}
	return nil, common.ErrorUnauthorized
}

func (f *fakeAccounts) VerifyAccount(_ context.Context, token string) (*services.AuthenticatedAccount, error) {
	if token != "good-token" {
		return nil, common.ErrTokenInvalidOrExpired
	}
	a := *alice
	a.EmailVerified = true
	return &services.AuthenticatedAccount{Account: &a, AuthToken: aliceKey}, nil
}

func (f *fakeAccounts) RequestPasswordReset(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, email)
	return nil
}

func (f *fakeAccounts) ChangePassword(_ context.Context, in services.ChangePasswordInput) (*services.AuthenticatedAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, in)
	if f.changeErr != nil {
		return nil, f.changeErr
	}
	return &services.AuthenticatedAccount{Account: alice, AuthToken: aliceKey}, nil
}

func (f *fakeAccounts) Get(_ context.Context, caller *models.Account, id string) (*models.Account, error) {
	if caller.ID != id {
		return nil, common.ErrorNotFound
	}
	return caller, nil
}

func (f *fakeAccounts) Update(_ context.Context, caller *models.Account, id string, p services.AccountPatch) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if caller.ID != id {
		return nil, common.ErrorNotFound
	}
	f.patches = append(f.patches, p)
	a := *caller
	if p.Name != nil {
		a.Name = *p.Name
	}
	return &a, nil
}

func (f *fakeAccounts) Delete(_ context.Context, caller *models.Account, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if caller.ID != id {
		return common.ErrorNotFound
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeEvents struct {
	mu sync.Mutex

	events   map[string]*models.Event
	created  []services.EventInput
	updates  []bool
	lastList models.EventFilter
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{events: map[string]*models.Event{}}
}

func (f *fakeEvents) add(owner *models.Account, id, msg string) *models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := &models.Event{
		ID:              id,
		AccountID:       owner.ID,
		ObjectID:        "1",
		ObjectType:      "invoice",
		HumanIdentifier: "INV-1",
		Message:         msg,
		Timestamp:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.events[id] = e
	return e
}

func (f *fakeEvents) Create(_ context.Context, caller *models.Account, in services.EventInput) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, in)
	if in.Message == nil {
		return nil, validation.FieldError("message", validation.MsgRequired)
	}
	e := &models.Event{ID: "e-new", AccountID: caller.ID, Message: *in.Message, Metadata: in.Metadata}
	if in.Timestamp != nil {
		e.Timestamp = *in.Timestamp
	}
	f.events[e.ID] = e
	return e, nil
}

func (f *fakeEvents) Get(_ context.Context, caller *models.Account, id string) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[id]
	if !ok || e.AccountID != caller.ID {
		return nil, common.ErrorNotFound
	}
	return e, nil
}

func (f *fakeEvents) Update(ctx context.Context, caller *models.Account, id string, in services.EventInput, partial bool) (*models.Event, error) {
	e, err := f.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, partial)
	if in.Message != nil {
		e.Message = *in.Message
	}
	return e, nil
}

func (f *fakeEvents) Delete(ctx context.Context, caller *models.Account, id string) error {
	if _, err := f.Get(ctx, caller, id); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.events, id)
	return nil
}

func (f *fakeEvents) List(_ context.Context, caller *models.Account, flt models.EventFilter) (*models.EventPage, models.EventFilter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if flt.Limit <= 0 {
		flt.Limit = 30
	}
	f.lastList = flt

	var own []*models.Event
	for _, id := range sortedKeys(f.events) {
		if e := f.events[id]; e.AccountID == caller.ID {
			own = append(own, e)
		}
	}
	page := &models.EventPage{Count: len(own)}
	if flt.Offset < len(own) {
		end := min(flt.Offset+flt.Limit, len(own))
		page.Events = own[flt.Offset:end]
	}
	return page, flt, nil
}

func sortedKeys(m map[string]*models.Event) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type fakeExports struct {
	last models.EventFilter
	err  error
}

func (f *fakeExports) Export(_ context.Context, caller *models.Account, flt models.EventFilter) (*services.Export, error) {
	f.last = flt
	if f.err != nil {
		return nil, f.err
	}
	return &services.Export{Key: "exports/" + caller.ID + "/x.jsonl", URL: "https://s3.local/x", Count: 2}, nil
}

type testAPI struct {
	handler  http.Handler
	accounts *fakeAccounts
	events   *fakeEvents
	exports  *fakeExports
}

func newTestAPI() *testAPI {
	api := &testAPI{accounts: &fakeAccounts{}, events: newFakeEvents(), exports: &fakeExports{}}
	api.handler = NewRouter(api.accounts, api.events, api.exports, nopLogger{})
	return api
}

func (api *testAPI) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	return rec
}

func tokenAuth(key string) []string {
	return []string{"Authorization", "Token " + key}
}
