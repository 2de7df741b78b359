package authtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/dlogr/internal/common"
	"github.com/dmitrijs2005/dlogr/internal/dbx"
	"github.com/dmitrijs2005/dlogr/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, accountID string, key string) error {
	query := `
		INSERT INTO auth_tokens (key, account_id)
		VALUES ($1, $2)
	`
	if _, err := r.db.ExecContext(ctx, query, key, accountID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) find(ctx context.Context, query string, arg string) (*models.AuthToken, error) {
	t := &models.AuthToken{}
	if err := r.db.QueryRowContext(ctx, query, arg).Scan(&t.Key, &t.AccountID, &t.Created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) Find(ctx context.Context, key string) (*models.AuthToken, error) {
	query := `
		SELECT key, account_id, created
		FROM auth_tokens
		WHERE key = $1
	`
	return r.find(ctx, query, key)
}

func (r *PostgresRepository) GetByAccount(ctx context.Context, accountID string) (*models.AuthToken, error) {
	query := `
		SELECT key, account_id, created
		FROM auth_tokens
		WHERE account_id = $1
	`
	return r.find(ctx, query, accountID)
}
