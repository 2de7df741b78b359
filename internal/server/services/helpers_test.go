package services

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/dlogr/internal/common"
	"github.com/dmitrijs2005/dlogr/internal/dbx"
	"github.com/dmitrijs2005/dlogr/internal/logging"
	"github.com/dmitrijs2005/dlogr/internal/server/config"
	"github.com/dmitrijs2005/dlogr/internal/server/mailer"
	"github.com/dmitrijs2005/dlogr/internal/server/models"
	"github.com/dmitrijs2005/dlogr/internal/server/passwords"
	"github.com/dmitrijs2005/dlogr/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/dlogr/internal/server/repositories/authtokens"
	"github.com/dmitrijs2005/dlogr/internal/server/repositories/events"
	"github.com/dmitrijs2005/dlogr/internal/server/tokens"
	"github.com/matthewhartstonge/argon2"
)

type nopLogger struct{}

func (n nopLogger) Debug(context.Context, string, ...any) {}
func (n nopLogger) Info(context.Context, string, ...any)  {}
func (n nopLogger) Warn(context.Context, string, ...any)  {}
func (n nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) logging.Logger            { return n }

// --- accounts ---

type fakeAccountsRepo struct {
	mu        sync.Mutex
	byID      map[string]models.Account
	getErr    error
	hideTaken bool
}

func newFakeAccountsRepo() *fakeAccountsRepo {
	return &fakeAccountsRepo{byID: map[string]models.Account{}}
}

func (f *fakeAccountsRepo) takenLocked(email, excludeID string) bool {
	for id, a := range f.byID {
		if id != excludeID && strings.EqualFold(a.Email, email) {
			return true
		}
	}
	return false
}

func (f *fakeAccountsRepo) Create(_ context.Context, a *models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.takenLocked(a.Email, a.ID) {
		return common.ErrorAlreadyExists
	}
	f.byID[a.ID] = *a
	return nil
}

func (f *fakeAccountsRepo) Update(_ context.Context, a *models.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[a.ID]; !ok {
		return common.ErrorNotFound
	}
	f.byID[a.ID] = *a
	return nil
}

func (f *fakeAccountsRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return common.ErrorNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeAccountsRepo) GetByID(_ context.Context, id string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	a, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &a, nil
}

func (f *fakeAccountsRepo) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, a := range f.byID {
		if strings.EqualFold(a.Email, email) {
			return &a, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeAccountsRepo) EmailTaken(_ context.Context, email, excludeID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hideTaken {
		return false, nil
	}
	return f.takenLocked(email, excludeID), nil
}

type fakeAuthTokensRepo struct {
	mu   sync.Mutex
	keys map[string]models.AuthToken
}

func newFakeAuthTokensRepo() *fakeAuthTokensRepo {
	return &fakeAuthTokensRepo{keys: map[string]models.AuthToken{}}
}

func (f *fakeAuthTokensRepo) Create(_ context.Context, accountID, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[key] = models.AuthToken{Key: key, AccountID: accountID, Created: time.Now()}
	return nil
}

func (f *fakeAuthTokensRepo) Find(_ context.Context, key string) (*models.AuthToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.keys[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &t, nil
}

func (f *fakeAuthTokensRepo) GetByAccount(_ context.Context, accountID string) (*models.AuthToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.keys {
		if t.AccountID == accountID {
			return &t, nil
		}
	}
	return nil, common.ErrorNotFound
}

// --- events ---

type fakeEventsRepo struct {
	mu       sync.Mutex
	byID     map[string]models.Event
	lastList models.EventFilter
	listErr  error
}

func newFakeEventsRepo() *fakeEventsRepo {
	return &fakeEventsRepo{byID: map[string]models.Event{}}
}

func (f *fakeEventsRepo) Create(_ context.Context, e *models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[e.ID] = *e
	return nil
}

func (f *fakeEventsRepo) Update(_ context.Context, e *models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	old, ok := f.byID[e.ID]
	if !ok || old.AccountID != e.AccountID {
		return common.ErrorNotFound
	}
	f.byID[e.ID] = *e
	return nil
}

func (f *fakeEventsRepo) Delete(_ context.Context, accountID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	old, ok := f.byID[id]
	if !ok || old.AccountID != accountID {
		return common.ErrorNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeEventsRepo) Get(_ context.Context, accountID, id string) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.byID[id]
	if !ok || e.AccountID != accountID {
		return nil, common.ErrorNotFound
	}
	return &e, nil
}

func (f *fakeEventsRepo) List(_ context.Context, accountID string, flt models.EventFilter) (*models.EventPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastList = flt
	if f.listErr != nil {
		return nil, f.listErr
	}

	var all []*models.Event
	for _, e := range f.byID {
		if e.AccountID != accountID {
			continue
		}
		if flt.ObjectType != "" && e.ObjectType != flt.ObjectType {
			continue
		}
		if flt.Search != "" && !strings.Contains(strings.ToLower(e.Message), strings.ToLower(flt.Search)) {
			continue
		}
		e := e
		all = append(all, &e)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Timestamp.Equal(all[j].Timestamp) {
			return all[i].ID < all[j].ID
		}
		return all[i].Timestamp.After(all[j].Timestamp)
	})

	page := &models.EventPage{Count: len(all)}
	if flt.Offset < len(all) {
		end := flt.Offset + flt.Limit
		if end > len(all) {
			end = len(all)
		}
		page.Events = all[flt.Offset:end]
	}
	return page, nil
}

// --- wiring ---

type fakeRepoManager struct {
	accounts   *fakeAccountsRepo
	authTokens *fakeAuthTokensRepo
	events     *fakeEventsRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		accounts:   newFakeAccountsRepo(),
		authTokens: newFakeAuthTokensRepo(),
		events:     newFakeEventsRepo(),
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Accounts(dbx.DBTX) accounts.Repository        { return m.accounts }
func (m *fakeRepoManager) AuthTokens(dbx.DBTX) authtokens.Repository    { return m.authTokens }
func (m *fakeRepoManager) Events(dbx.DBTX) events.Repository            { return m.events }

type sentEmail struct {
	template string
	data     mailer.Context
	to       string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (r *recordingSender) Send(_ context.Context, template string, data mailer.Context, to string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentEmail{template: template, data: data, to: to})
	return r.err
}

func (r *recordingSender) count(template string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sent {
		if s.template == template {
			n++
		}
	}
	return n
}

func (r *recordingSender) last() sentEmail {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[len(r.sent)-1]
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	return cfg
}

func fastHasher() *passwords.Hasher {
	return passwords.NewHasherWithConfig(argon2.Config{
		HashLength:  32,
		SaltLength:  16,
		TimeCost:    1,
		MemoryCost:  8 * 1024,
		Parallelism: 1,
		Mode:        argon2.ModeArgon2id,
		Version:     argon2.Version13,
	})
}

type accountEnv struct {
	svc    *AccountService
	mock   sqlmock.Sqlmock
	db     *sql.DB
	store  *tokens.MemoryStore
	sender *recordingSender
	rm     *fakeRepoManager
}

// expectTx queues n committed transactions.
func (e *accountEnv) expectTx(n int) {
	for i := 0; i < n; i++ {
		e.mock.ExpectBegin()
		e.mock.ExpectCommit()
	}
}

func newAccountEnvTTL(t *testing.T, ttl time.Duration) *accountEnv {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := testConfig()
	cfg.TokenValidityDuration = ttl

	store := tokens.NewMemoryStore()
	tm := tokens.NewManager(store, tokens.NewGenerator(cfg.SecretKey), ttl, nopLogger{})
	sender := &recordingSender{}
	rm := newFakeRepoManager()

	return &accountEnv{
		svc:    NewAccountService(db, rm, tm, sender, fastHasher(), cfg, nopLogger{}),
		mock:   mock,
		db:     db,
		store:  store,
		sender: sender,
		rm:     rm,
	}
}

func newAccountEnv(t *testing.T) *accountEnv {
	return newAccountEnvTTL(t, 24*time.Hour)
}

func signupInput() SignupInput {
	return SignupInput{Email: "a@x.com", Password: "12345678", Name: "A", Timezone: "UTC"}
}

func strPtr(s string) *string { return &s }
