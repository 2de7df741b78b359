package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/dlogr/internal/common"
	"github.com/dmitrijs2005/dlogr/internal/logging"
	"github.com/dmitrijs2005/dlogr/internal/server/models"
)

// Manager binds a Generator to a Store.
//
// Issued tokens map "{purpose}:{token}" to the account id. Resolving never
// deletes the key: a token stays usable until its TTL runs out, and issuing
// a new token leaves older ones valid.
type Manager struct {
	store     Store
	gen       *Generator
	ttl       time.Duration
	debugKeys bool
	logger    logging.Logger
}

type Option func(*Manager)

// WithDebugKeys also stores "{purpose}:account:{id}" -> token. Nothing reads
// these keys; they exist for inspecting the cache by hand.
func WithDebugKeys(enabled bool) Option {
	return func(m *Manager) { m.debugKeys = enabled }
}

func NewManager(store Store, gen *Generator, ttl time.Duration, logger logging.Logger, opts ...Option) *Manager {
	m := &Manager{store: store, gen: gen, ttl: ttl, logger: logger.With("module", "tokens")}
	for _, o := range opts {
		o(m)
	}
	return m
}

func key(purpose, token string) string {
	return purpose + ":" + token
}

func debugKey(purpose, accountID string) string {
	return purpose + ":account:" + accountID
}

// Issue creates a token for account under purpose and stores it with the
// configured TTL.
func (m *Manager) Issue(ctx context.Context, account *models.Account, purpose string) (string, error) {
	token, err := m.gen.Make(account)
	if err != nil {
		return "", err
	}

	if err := m.store.Set(ctx, key(purpose, token), account.ID, m.ttl); err != nil {
		return "", err
	}

	if m.debugKeys {
		if err := m.store.Set(ctx, debugKey(purpose, account.ID), token, m.ttl); err != nil {
			m.logger.Warn(ctx, "debug key not stored", "purpose", purpose, "error", err)
		}
	}

	m.logger.Debug(ctx, "token issued", "purpose", purpose, "account_id", account.ID)
	return token, nil
}

// Resolve returns the account id token was issued for under purpose.
// Unknown, expired and empty tokens all yield common.ErrTokenInvalidOrExpired.
// Store failures are returned as they are.
func (m *Manager) Resolve(ctx context.Context, token, purpose string) (string, error) {
	if token == "" {
		return "", common.ErrTokenInvalidOrExpired
	}

	id, err := m.store.Get(ctx, key(purpose, token))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return "", common.ErrTokenInvalidOrExpired
		}
		return "", fmt.Errorf("resolve token: %w", err)
	}
	return id, nil
}
