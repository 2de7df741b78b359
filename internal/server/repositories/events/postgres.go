package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/dlogr/internal/common"
	"github.com/dmitrijs2005/dlogr/internal/dbx"
	"github.com/dmitrijs2005/dlogr/internal/server/models"
)

const (
	eventColumns    = `id, account_id, object_id, object_type, human_identifier, timestamp, message, metadata, created, modified`
	DefaultOrdering = "-timestamp"
)

// orderable maps the public ordering names onto columns.
var orderable = map[string]string{
	"timestamp":   "timestamp",
	"created":     "created",
	"modified":    "modified",
	"object_type": "object_type",
	"object_id":   "object_id",
}

// PostgresRepository implements event storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func metadataArg(m json.RawMessage) any {
	if len(m) == 0 {
		return nil
	}
	return string(m)
}

func (r *PostgresRepository) Create(ctx context.Context, e *models.Event) error {
	query := `
		INSERT INTO events (id, account_id, object_id, object_type, human_identifier, timestamp, message, metadata, created, modified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.AccountID, e.ObjectID, e.ObjectType, e.HumanIdentifier, e.Timestamp, e.Message,
		metadataArg(e.Metadata), e.Created, e.Modified)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Update rewrites the mutable columns of an event owned by e.AccountID.
// Rows of other accounts are never touched and yield common.ErrorNotFound.
func (r *PostgresRepository) Update(ctx context.Context, e *models.Event) error {
	query := `
		UPDATE events
		SET object_id = $3, object_type = $4, human_identifier = $5, timestamp = $6,
		    message = $7, metadata = $8, modified = $9
		WHERE id = $1 AND account_id = $2
	`
	res, err := r.db.ExecContext(ctx, query,
		e.ID, e.AccountID, e.ObjectID, e.ObjectType, e.HumanIdentifier, e.Timestamp, e.Message,
		metadataArg(e.Metadata), e.Modified)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func (r *PostgresRepository) Delete(ctx context.Context, accountID, id string) error {
	query := `DELETE FROM events WHERE id = $1 AND account_id = $2`

	res, err := r.db.ExecContext(ctx, query, id, accountID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (*models.Event, error) {
	e := &models.Event{}
	var metadata []byte
	if err := s.Scan(&e.ID, &e.AccountID, &e.ObjectID, &e.ObjectType, &e.HumanIdentifier,
		&e.Timestamp, &e.Message, &metadata, &e.Created, &e.Modified); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		e.Metadata = json.RawMessage(metadata)
	}
	return e, nil
}

func (r *PostgresRepository) Get(ctx context.Context, accountID, id string) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1 AND account_id = $2`

	e, err := scanEvent(r.db.QueryRowContext(ctx, query, id, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return e, nil
}

// orderBy turns "-timestamp" style input into an ORDER BY clause. Unknown
// fields fall back to DefaultOrdering. id breaks ties so pages are stable.
func orderBy(ordering string) string {
	name, desc := strings.TrimPrefix(ordering, "-"), strings.HasPrefix(ordering, "-")
	col, ok := orderable[name]
	if !ok {
		return orderBy(DefaultOrdering)
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	return fmt.Sprintf("ORDER BY %s %s, id %s", col, dir, dir)
}

// escapeLike escapes LIKE wildcards so search terms match literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func whereClause(accountID string, f models.EventFilter) (string, []any) {
	conds := []string{"account_id = $1"}
	args := []any{accountID}

	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.ObjectID != "" {
		add("object_id = $%d", f.ObjectID)
	}
	if f.ObjectType != "" {
		add("object_type = $%d", f.ObjectType)
	}
	if f.HumanIdentifier != "" {
		add("human_identifier = $%d", f.HumanIdentifier)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		args = append(args, "%"+escapeLike(s)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(object_id ILIKE $%[1]d OR object_type ILIKE $%[1]d OR human_identifier ILIKE $%[1]d OR message ILIKE $%[1]d)", n))
	}

	return "WHERE " + strings.Join(conds, " AND "), args
}

// List returns one page of the caller's events matching f and the total
// number of matches.
func (r *PostgresRepository) List(ctx context.Context, accountID string, f models.EventFilter) (*models.EventPage, error) {
	where, args := whereClause(accountID, f)

	page := &models.EventPage{}
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM events `+where, args...).Scan(&page.Count); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM events %s %s LIMIT $%d OFFSET $%d`,
		eventColumns, where, orderBy(f.Ordering), n+1, n+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select events: %w", err)
	}
	defer rows.Close()

	page.Events = []*models.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		page.Events = append(page.Events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return page, nil
}
