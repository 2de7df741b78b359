// Package authtokens stores the persistent bearer key issued to every account.
package authtokens

import (
	"context"

	"github.com/dmitrijs2005/dlogr/internal/server/models"
)

// Repository defines operations on bearer keys. Each account has exactly one.
type Repository interface {
	// Create stores key as the bearer key of accountID.
	Create(ctx context.Context, accountID string, key string) error

	// Find returns the token row for key, or a not-found error.
	Find(ctx context.Context, key string) (*models.AuthToken, error)

	// GetByAccount returns the key belonging to accountID.
	GetByAccount(ctx context.Context, accountID string) (*models.AuthToken, error)
}
