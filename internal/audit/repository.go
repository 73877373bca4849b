package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// Repository persists audit entries in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates the audit repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const entryColumns = `
	id, timestamp, action, module,
	COALESCE(event_type, ''), COALESCE(bitrix_contact_id, ''), COALESCE(bitrix_deal_id, ''), COALESCE(bitrix_activity_id, ''),
	COALESCE(user_name, ''), COALESCE(user_email, ''), COALESCE(user_phone, ''),
	COALESCE(product_name, ''), COALESCE(amount, 0), COALESCE(currency, ''),
	COALESCE(metadata, ''), status, COALESCE(error_message, ''),
	COALESCE(source_ip, ''), COALESCE(webhook_id, ''), COALESCE(processing_time_ms, 0)`

// Insert stores one entry and fills in its assigned id and timestamp.
func (r *Repository) Insert(ctx context.Context, e *Entry) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO audit_logs (
			action, module, event_type,
			bitrix_contact_id, bitrix_deal_id, bitrix_activity_id,
			user_name, user_email, user_phone,
			product_name, amount, currency,
			metadata, status, error_message,
			source_ip, webhook_id, processing_time_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id, timestamp`,
		e.Action, e.Module, e.EventType,
		e.ContactID, e.DealID, e.ActivityID,
		e.UserName, e.UserEmail, e.UserPhone,
		e.ProductName, e.Amount, e.Currency,
		e.Metadata, e.Status, e.ErrorMessage,
		e.SourceIP, e.WebhookID, e.ProcessingTimeMs,
	).Scan(&e.ID, &e.Timestamp)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListFilter narrows a paginated listing. Zero values are skipped.
type ListFilter struct {
	Module    string
	Action    string
	Status    string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// List returns entries newest-first plus the unpaginated total.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Entry, int64, error) {
	where := "WHERE 1=1"
	args := []any{}

	addCondition := func(clause string, value any) {
		args = append(args, value)
		where += fmt.Sprintf(" AND %s $%d", clause, len(args))
	}

	if filter.Module != "" {
		addCondition("module =", filter.Module)
	}
	if filter.Action != "" {
		addCondition("action =", filter.Action)
	}
	if filter.Status != "" {
		addCondition("status =", filter.Status)
	}
	if filter.StartDate != nil && filter.EndDate != nil {
		addCondition("timestamp >=", *filter.StartDate)
		addCondition("timestamp <=", *filter.EndDate)
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_logs "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(
		"SELECT %s FROM audit_logs %s ORDER BY timestamp DESC LIMIT $%d OFFSET $%d",
		entryColumns, where, len(args)-1, len(args),
	)

	entries, err := r.queryEntries(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// ByDealID returns all entries linked to a CRM deal, newest first.
func (r *Repository) ByDealID(ctx context.Context, dealID string) ([]Entry, error) {
	query := fmt.Sprintf("SELECT %s FROM audit_logs WHERE bitrix_deal_id = $1 ORDER BY timestamp DESC", entryColumns)
	return r.queryEntries(ctx, query, dealID)
}

// ByContactID returns all entries linked to a CRM contact, newest first.
func (r *Repository) ByContactID(ctx context.Context, contactID string) ([]Entry, error) {
	query := fmt.Sprintf("SELECT %s FROM audit_logs WHERE bitrix_contact_id = $1 ORDER BY timestamp DESC", entryColumns)
	return r.queryEntries(ctx, query, contactID)
}

// ByPhone returns all entries recorded for a user phone, newest first.
func (r *Repository) ByPhone(ctx context.Context, phone string) ([]Entry, error) {
	query := fmt.Sprintf("SELECT %s FROM audit_logs WHERE user_phone = $1 ORDER BY timestamp DESC", entryColumns)
	return r.queryEntries(ctx, query, phone)
}

// GroupCount is one bucket of a grouped aggregate.
type GroupCount struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// RawStats holds the aggregate counts for a date window.
type RawStats struct {
	Total    int64
	Success  int64
	Errors   int64
	ByModule []GroupCount
	ByAction []GroupCount
}

// Stats computes aggregate counts. The five queries are independent and run
// in parallel.
func (r *Repository) Stats(ctx context.Context, start, end *time.Time) (*RawStats, error) {
	where := ""
	args := []any{}
	if start != nil && end != nil {
		where = " WHERE timestamp BETWEEN $1 AND $2"
		args = append(args, *start, *end)
	}

	statusArg := func(status string) []any {
		return append(append([]any{}, args...), status)
	}
	statusClause := "status = $" + fmt.Sprint(len(args)+1)
	statusWhere := " WHERE " + statusClause
	if where != "" {
		statusWhere = where + " AND " + statusClause
	}

	stats := &RawStats{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return r.pool.QueryRow(gctx, "SELECT COUNT(*) FROM audit_logs"+where, args...).Scan(&stats.Total)
	})
	g.Go(func() error {
		return r.pool.QueryRow(gctx, "SELECT COUNT(*) FROM audit_logs"+statusWhere, statusArg("success")...).Scan(&stats.Success)
	})
	g.Go(func() error {
		return r.pool.QueryRow(gctx, "SELECT COUNT(*) FROM audit_logs"+statusWhere, statusArg("error")...).Scan(&stats.Errors)
	})
	g.Go(func() error {
		groups, err := r.groupCounts(gctx, "module", where, args)
		stats.ByModule = groups
		return err
	})
	g.Go(func() error {
		groups, err := r.groupCounts(gctx, "action", where, args)
		stats.ByAction = groups
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("aggregate audit stats: %w", err)
	}
	return stats, nil
}

// DeleteOlderThan removes entries before the cutoff and reports how many
// were deleted.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, "DELETE FROM audit_logs WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old audit entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) groupCounts(ctx context.Context, column, where string, args []any) ([]GroupCount, error) {
	query := fmt.Sprintf("SELECT %s, COUNT(*) FROM audit_logs%s GROUP BY %s", column, where, column)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []GroupCount
	for rows.Next() {
		var g GroupCount
		if err := rows.Scan(&g.Key, &g.Count); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (r *Repository) queryEntries(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(
			&e.ID, &e.Timestamp, &e.Action, &e.Module,
			&e.EventType, &e.ContactID, &e.DealID, &e.ActivityID,
			&e.UserName, &e.UserEmail, &e.UserPhone,
			&e.ProductName, &e.Amount, &e.Currency,
			&e.Metadata, &e.Status, &e.ErrorMessage,
			&e.SourceIP, &e.WebhookID, &e.ProcessingTimeMs,
		)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan audit entries: %w", err)
	}
	return entries, nil
}
