package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	dbTimeout         = 5 * time.Second
	pgUniqueViolation = "23505"

	itemColumns = `id, topic_id, content_type, order_num, parent_content_id, status, content, created_at, updated_at`

	// Must match the predicate of content_items_slide_slot_key in the schema.
	slideSlotPredicate = `content_type = 'slide' AND parent_content_id IS NULL AND status NOT IN ('deleted', 'migrated')`
)

// PostgresStore is a PostgreSQL-backed Store. Items live in content_items
// with their content map in a jsonb column.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed content store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

type pgTxKey struct{}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

func (s *PostgresStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, pgTxKey{}, tx))
	})
}

func (s *PostgresStore) Find(ctx context.Context, f Filter) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	where, args := pgWhere(f)
	rows, err := s.q(ctx).Query(ctx,
		`SELECT `+itemColumns+`
		 FROM content_items
		 WHERE `+where+`
		 ORDER BY order_num ASC NULLS LAST, id ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query content items: %w", err)
	}
	defer rows.Close()

	items := []Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate content items: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) FindOne(ctx context.Context, f Filter) (*Item, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	where, args := pgWhere(f)
	it, err := scanItem(s.q(ctx).QueryRow(ctx,
		`SELECT `+itemColumns+`
		 FROM content_items
		 WHERE `+where+`
		 ORDER BY order_num ASC NULLS LAST, id ASC
		 LIMIT 1`,
		args...,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return it, err
}

func (s *PostgresStore) FindOneAndUpsert(ctx context.Context, key SlotKey, set Fields, onInsert InsertFields) (UpsertResult, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	content, err := marshalContent(set.Content)
	if err != nil {
		return UpsertResult{}, err
	}
	status := set.Status
	if status == "" {
		status = StatusDraft
	}

	// xmax is zero only for a row version created by this statement's insert.
	var res UpsertResult
	err = s.q(ctx).QueryRow(ctx,
		`INSERT INTO content_items (id, topic_id, content_type, order_num, status, content, created_at, updated_at)
		 VALUES ($1, $2, 'slide', $3, $4, $5::jsonb, $6, $7)
		 ON CONFLICT (topic_id, content_type, order_num) WHERE `+slideSlotPredicate+`
		 DO UPDATE SET
		   status = COALESCE(NULLIF($8, ''), content_items.status),
		   content = content_items.content || EXCLUDED.content,
		   updated_at = EXCLUDED.updated_at
		 RETURNING id, (xmax = 0)`,
		onInsert.ID,
		key.TopicID,
		float64(key.Order),
		string(status),
		content,
		onInsert.CreatedAt,
		set.UpdatedAt,
		string(set.Status),
	).Scan(&res.ID, &res.WasInserted)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upsert slide slot %s/%d: %w", key.TopicID, key.Order, pgErr(err))
	}
	return res, nil
}

func (s *PostgresStore) UpdateOne(ctx context.Context, id string, set Fields) (*Item, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	content, err := marshalContent(set.Content)
	if err != nil {
		return nil, err
	}
	updatedAt := set.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	it, err := scanItem(s.q(ctx).QueryRow(ctx,
		`UPDATE content_items
		 SET status = COALESCE(NULLIF($2, ''), status),
		     content = content || $3::jsonb,
		     updated_at = $4
		 WHERE id = $1
		 RETURNING `+itemColumns,
		id,
		string(set.Status),
		content,
		updatedAt,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("content item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update content item: %w", pgErr(err))
	}
	return it, nil
}

func (s *PostgresStore) DeleteMany(ctx context.Context, f Filter) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	where, args := pgWhere(f)
	cmd, err := s.q(ctx).Exec(ctx, `DELETE FROM content_items WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete content items: %w", err)
	}
	return cmd.RowsAffected(), nil
}

func (s *PostgresStore) InsertOne(ctx context.Context, item Item) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if item.ID == "" {
		return "", fmt.Errorf("item id is required")
	}
	content, err := marshalContent(item.Content)
	if err != nil {
		return "", err
	}

	_, err = s.q(ctx).Exec(ctx,
		`INSERT INTO content_items (`+itemColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9)`,
		item.ID,
		item.TopicID,
		string(item.ContentType),
		item.Order,
		nullIfEmpty(item.ParentContentID),
		string(item.Status),
		content,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert content item: %w", pgErr(err))
	}
	return item.ID, nil
}

func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// pgWhere renders f as a WHERE clause with positional arguments.
func pgWhere(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !f.IncludeInactive {
		conds = append(conds, `status NOT IN ('deleted', 'migrated')`)
	}
	if len(f.IDs) > 0 {
		conds = append(conds, "id = ANY("+arg(f.IDs)+")")
	}
	if f.TopicID != "" {
		conds = append(conds, "topic_id = "+arg(f.TopicID))
	}
	if len(f.Types) > 0 {
		conds = append(conds, "content_type = ANY("+arg(typeStrings(f.Types))+")")
	}
	if len(f.ExcludeTypes) > 0 {
		conds = append(conds, "NOT (content_type = ANY("+arg(typeStrings(f.ExcludeTypes))+"))")
	}
	if f.Order != nil {
		conds = append(conds, "order_num = "+arg(*f.Order))
	}
	if f.OrderGT != nil {
		conds = append(conds, "order_num > "+arg(*f.OrderGT))
	}
	switch f.Parent {
	case ParentNone:
		conds = append(conds, "parent_content_id IS NULL")
	case ParentSet:
		conds = append(conds, "parent_content_id IS NOT NULL")
	}
	if f.ParentID != "" {
		conds = append(conds, "parent_content_id = "+arg(f.ParentID))
	}

	if len(conds) == 0 {
		return "TRUE", nil
	}
	return strings.Join(conds, " AND "), args
}

func scanItem(row pgx.Row) (*Item, error) {
	var (
		it          Item
		contentType string
		status      string
		parentID    *string
		content     []byte
	)
	if err := row.Scan(
		&it.ID,
		&it.TopicID,
		&contentType,
		&it.Order,
		&parentID,
		&status,
		&content,
		&it.CreatedAt,
		&it.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan content item: %w", err)
	}
	it.ContentType = ContentType(contentType)
	it.Status = Status(status)
	if parentID != nil {
		it.ParentContentID = *parentID
	}
	it.Content = map[string]any{}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &it.Content); err != nil {
			return nil, fmt.Errorf("decode content of %s: %w", it.ID, err)
		}
	}
	return &it, nil
}

func marshalContent(content map[string]any) (string, error) {
	if content == nil {
		content = map[string]any{}
	}
	b, err := json.Marshal(content)
	if err != nil {
		return "", fmt.Errorf("marshal content: %w", err)
	}
	return string(b), nil
}

// pgErr tags unique violations with ErrDuplicateKey.
func pgErr(err error) error {
	var pe *pgconn.PgError
	if errors.As(err, &pe) && pe.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %w", ErrDuplicateKey, err)
	}
	return err
}

func typeStrings(types []ContentType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
