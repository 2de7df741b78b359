// Package repomanager vends repositories bound to a dbx.DBTX, so services can
// use the same repository types inside and outside a transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/dlogr/internal/dbx"
	"github.com/dmitrijs2005/dlogr/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/dlogr/internal/server/repositories/authtokens"
	"github.com/dmitrijs2005/dlogr/internal/server/repositories/events"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	AuthTokens(db dbx.DBTX) authtokens.Repository
	Events(db dbx.DBTX) events.Repository
}
