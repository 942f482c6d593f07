package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads audit_logs.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Entries implements Repository.
func (r *PGRepository) Entries(ctx context.Context, q Query) ([]Entry, error) {
	sql, args := buildQuery(q)
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	return pgx.CollectRows(rows, scanEntry)
}

func buildQuery(q Query) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if !q.From.IsZero() {
		add("occurred_at >= $%d", pgtype.Timestamptz{Time: q.From, Valid: true})
	}
	if !q.To.IsZero() {
		add("occurred_at < $%d", pgtype.Timestamptz{Time: q.To, Valid: true})
	}
	if q.Filters.Actor != uuid.Nil {
		add("actor_id = $%d", q.Filters.Actor)
	}
	if v := strings.TrimSpace(q.Filters.Entity); v != "" {
		add("entity = $%d", v)
	}
	if v := strings.TrimSpace(q.Filters.EntityID); v != "" {
		add("entity_id = $%d", v)
	}
	if v := strings.TrimSpace(q.Filters.Action); v != "" {
		add("action = $%d", v)
	}

	var b strings.Builder
	b.WriteString("SELECT id, occurred_at, actor_id, action, entity, entity_id, meta FROM audit_logs")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY occurred_at DESC, id DESC")
	args = append(args, q.Limit)
	fmt.Fprintf(&b, " LIMIT $%d", len(args))
	if q.Offset > 0 {
		args = append(args, q.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return b.String(), args
}

func scanEntry(row pgx.CollectableRow) (Entry, error) {
	var (
		e    Entry
		at   pgtype.Timestamptz
		meta []byte
	)
	if err := row.Scan(&e.ID, &at, &e.ActorID, &e.Action, &e.Entity, &e.EntityID, &meta); err != nil {
		return Entry{}, err
	}
	if at.Valid {
		e.At = at.Time
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Meta); err != nil {
			return Entry{}, fmt.Errorf("audit: decode meta: %w", err)
		}
	}
	return e, nil
}

var _ Repository = (*PGRepository)(nil)
