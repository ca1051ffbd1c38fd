package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/plugin-registry/pkg/events"
)

const (
	repoLogPrefix     = "db:repository"
	defaultListLimit  = 50
	maxListLimit      = 1000
	invocationColumns = `id, request_id, operation, group_name, name, ok, error_code, error_message, duration_ms, created`
)

// Repository provides database access for the invocation audit log.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RecordInvocation inserts one finished invocation. Re-recording the same ID is a no-op.
func (r *Repository) RecordInvocation(ctx context.Context, event *events.InvocationEvent) error {
	created := time.Now().UTC()
	if ts, err := time.Parse(time.RFC3339, event.Timestamp); err == nil {
		created = ts
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO invocations (id, request_id, operation, group_name, name, ok, error_code, error_message, duration_ms, created)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO NOTHING`,
		event.InvocationID, nullIfEmpty(event.RequestID), event.Operation, event.Group, event.Name,
		event.Ok, nullIfEmpty(event.ErrorCode), nullIfEmpty(event.ErrorMessage), event.DurationMs, created)
	if err != nil {
		return fmt.Errorf("%s - failed to record invocation %s: %w", repoLogPrefix, event.InvocationID, err)
	}
	slog.Debug(fmt.Sprintf("%s - Recorded invocation %s of %s", repoLogPrefix, event.InvocationID, event.Operation))
	return nil
}

// PublishInvoked lets the repository sit behind an events.EventPublisher.
func (r *Repository) PublishInvoked(ctx context.Context, event *events.InvocationEvent) error {
	return r.RecordInvocation(ctx, event)
}

// GetInvocation finds an invocation by ID. Returns nil, nil when absent.
func (r *Repository) GetInvocation(ctx context.Context, id string) (*Invocation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+invocationColumns+` FROM invocations WHERE id = $1`, id)
	inv, err := scanInvocation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - GetInvocation %s: %w", repoLogPrefix, id, err)
	}
	return inv, nil
}

// ListInvocations returns the most recent invocations, newest first.
func (r *Repository) ListInvocations(ctx context.Context, params ListInvocationsParams) ([]Invocation, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	slog.Debug(fmt.Sprintf("%s - ListInvocations operation=%s onlyFailed=%v limit=%d", repoLogPrefix, params.Operation, params.OnlyFailed, limit))

	rows, err := r.pool.Query(ctx,
		`SELECT `+invocationColumns+`
		 FROM invocations
		 WHERE ($1 = '' OR operation = $1)
		   AND (NOT $2 OR ok = FALSE)
		 ORDER BY created DESC, id
		 LIMIT $3`,
		params.Operation, params.OnlyFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("%s - ListInvocations: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	out := []Invocation{}
	for rows.Next() {
		inv, err := scanInvocation(rows)
		if err != nil {
			return nil, fmt.Errorf("%s - ListInvocations scan: %w", repoLogPrefix, err)
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

// OperationStats aggregates call counts, failures and mean duration per operation.
func (r *Repository) OperationStats(ctx context.Context) ([]OperationStat, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT operation,
		        COUNT(*),
		        COUNT(*) FILTER (WHERE NOT ok),
		        COALESCE(AVG(duration_ms), 0)::float8,
		        MAX(created)
		 FROM invocations
		 GROUP BY operation
		 ORDER BY operation`)
	if err != nil {
		return nil, fmt.Errorf("%s - OperationStats: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	out := []OperationStat{}
	for rows.Next() {
		var s OperationStat
		if err := rows.Scan(&s.Operation, &s.Calls, &s.Failures, &s.AvgDurationMs, &s.LastInvoked); err != nil {
			return nil, fmt.Errorf("%s - OperationStats scan: %w", repoLogPrefix, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// PruneInvocations deletes invocations older than the cutoff and returns how many were removed.
func (r *Repository) PruneInvocations(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM invocations WHERE created < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("%s - PruneInvocations: %w", repoLogPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Pruned %d invocations older than %s", repoLogPrefix, tag.RowsAffected(), olderThan.Format(time.RFC3339)))
	return tag.RowsAffected(), nil
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanInvocation(row pgx.Row) (*Invocation, error) {
	var inv Invocation
	err := row.Scan(&inv.ID, &inv.RequestID, &inv.Operation, &inv.GroupName, &inv.Name,
		&inv.Ok, &inv.ErrorCode, &inv.ErrorMessage, &inv.DurationMs, &inv.Created)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
