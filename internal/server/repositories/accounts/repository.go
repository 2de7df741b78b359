// Package accounts declares the credential store contract for tenant accounts.
package accounts

import (
	"context"

	"github.com/dmitrijs2005/dlogr/internal/server/models"
)

// Repository persists accounts. Email lookups are case-insensitive.
type Repository interface {
	Create(ctx context.Context, account *models.Account) error
	Update(ctx context.Context, account *models.Account) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)

	// EmailTaken reports whether another account (id != excludeID) already
	// uses email, ignoring case.
	EmailTaken(ctx context.Context, email string, excludeID string) (bool, error)
}
