package audit

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	"voice-scheduler/pkg/utils"
)

//go:embed migrations.sql
var migrationsSQL string

// Migrate creates the audit_events table and its append-only trigger.
func Migrate(ctx context.Context, db *sql.DB) error {
	return utils.ApplySchema(ctx, db, "audit", migrationsSQL)
}

// PostgresRepo stores events in audit_events. UPDATE and DELETE are rejected by a table trigger.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	var metadata any
	if strings.TrimSpace(e.Metadata) != "" {
		metadata = e.Metadata
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO audit_events (id, type, actor_user_id, actor_role, ip_address, scheduled_call_id, call_log_id, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, string(e.Type), e.ActorUserID, e.ActorRole, e.IPAddress, e.ScheduledCallID, e.CallLogID, e.Message, metadata, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}

func (r *PostgresRepo) List(ctx context.Context, f Filter) ([]Event, error) {
	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		args = append(args, string(f.Type))
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if f.ScheduledCallID != "" {
		args = append(args, f.ScheduledCallID)
		where = append(where, fmt.Sprintf("scheduled_call_id = $%d", len(args)))
	}
	q := `SELECT id, type, actor_user_id, actor_role, ip_address, scheduled_call_id, call_log_id, message,
  COALESCE(metadata::text, ''), created_at FROM audit_events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var (
			e   Event
			typ string
		)
		if err := rows.Scan(&e.ID, &typ, &e.ActorUserID, &e.ActorRole, &e.IPAddress, &e.ScheduledCallID,
			&e.CallLogID, &e.Message, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.Type = EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}
