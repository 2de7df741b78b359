// Package events persists audit-log events. Every query is scoped by the
// owning account, so foreign rows behave exactly like missing ones.
package events

import (
	"context"

	"github.com/dmitrijs2005/dlogr/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, event *models.Event) error
	Update(ctx context.Context, event *models.Event) error
	Delete(ctx context.Context, accountID, id string) error
	Get(ctx context.Context, accountID, id string) (*models.Event, error)
	List(ctx context.Context, accountID string, filter models.EventFilter) (*models.EventPage, error)
}
