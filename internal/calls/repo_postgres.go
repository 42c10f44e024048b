package calls

import (
	"context"
	"database/sql"
	"database/sql/driver"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"voice-scheduler/pkg/utils"
)

//go:embed migrations.sql
var migrationsSQL string

// Migrate creates the scheduled_calls and call_logs tables if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	return utils.ApplySchema(ctx, db, "calls", migrationsSQL)
}

// PostgresRepo implements Store on Postgres through database/sql (pgx stdlib driver).
//
// Mutations run inside a transaction with the target row locked (SELECT ... FOR UPDATE), so concurrent
// webhook deliveries for the same call serialize on the row instead of overwriting each other.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

// Value stores ProviderOptions as JSONB.
func (o ProviderOptions) Value() (driver.Value, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads ProviderOptions from a JSONB column.
func (o *ProviderOptions) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*o = ProviderOptions{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("calls: cannot scan %T into ProviderOptions", src)
	}
	if len(b) == 0 {
		*o = ProviderOptions{}
		return nil
	}
	return json.Unmarshal(b, o)
}

type rowScanner interface {
	Scan(dest ...any) error
}

const scheduledColumns = `id, to_number, contact_id, recording_id, scheduled_at, next_run_at,
  recurrence_pattern, recurrence_enabled, detection_mode, detection_timeout_seconds,
  post_beep_delay_seconds, provider_options, status, last_run_at, last_error, created_at, updated_at`

func scanScheduled(row rowScanner) (ScheduledCall, error) {
	var (
		sc        ScheduledCall
		contactID sql.NullString
		nextRunAt sql.NullTime
		lastRunAt sql.NullTime
	)
	err := row.Scan(
		&sc.ID,
		&sc.To,
		&contactID,
		&sc.RecordingID,
		&sc.ScheduledAt,
		&nextRunAt,
		&sc.RecurrencePattern,
		&sc.RecurrenceEnabled,
		&sc.DetectionMode,
		&sc.DetectionTimeoutSeconds,
		&sc.PostBeepDelaySeconds,
		&sc.ProviderOptions,
		&sc.Status,
		&lastRunAt,
		&sc.LastError,
		&sc.CreatedAt,
		&sc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ScheduledCall{}, ErrNotFound
		}
		return ScheduledCall{}, err
	}
	sc.ContactID = stringPtr(contactID)
	sc.NextRunAt = timePtr(nextRunAt)
	sc.LastRunAt = timePtr(lastRunAt)
	return sc, nil
}

func (r *PostgresRepo) CreateScheduledCall(ctx context.Context, sc ScheduledCall) error {
	const q = `
INSERT INTO scheduled_calls (` + scheduledColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
`
	_, err := r.db.ExecContext(ctx, q,
		sc.ID,
		sc.To,
		sc.ContactID,
		sc.RecordingID,
		sc.ScheduledAt,
		sc.NextRunAt,
		sc.RecurrencePattern,
		sc.RecurrenceEnabled,
		sc.DetectionMode,
		sc.DetectionTimeoutSeconds,
		sc.PostBeepDelaySeconds,
		sc.ProviderOptions,
		sc.Status,
		sc.LastRunAt,
		sc.LastError,
		sc.CreatedAt,
		sc.UpdatedAt,
	)
	if utils.IsUniqueViolation(err) {
		return ErrDuplicateID
	}
	return err
}

func (r *PostgresRepo) GetScheduledCall(ctx context.Context, id string) (ScheduledCall, error) {
	q := `SELECT ` + scheduledColumns + ` FROM scheduled_calls WHERE id = $1`
	return scanScheduled(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) MutateScheduledCall(ctx context.Context, id string, fn ScheduledCallMutateFunc) (ScheduledCall, error) {
	var out ScheduledCall
	err := utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		q := `SELECT ` + scheduledColumns + ` FROM scheduled_calls WHERE id = $1 FOR UPDATE`
		cur, err := scanScheduled(tx.QueryRowContext(ctx, q, id))
		if err != nil {
			return err
		}
		next := cur
		changed, err := fn(&next)
		if err != nil {
			return err
		}
		if !changed {
			out = cur
			return nil
		}
		const upd = `
UPDATE scheduled_calls SET
  to_number = $2, contact_id = $3, recording_id = $4, scheduled_at = $5, next_run_at = $6,
  recurrence_pattern = $7, recurrence_enabled = $8, detection_mode = $9, detection_timeout_seconds = $10,
  post_beep_delay_seconds = $11, provider_options = $12, status = $13, last_run_at = $14,
  last_error = $15, updated_at = $16
WHERE id = $1
`
		if _, err := tx.ExecContext(ctx, upd,
			cur.ID,
			next.To,
			next.ContactID,
			next.RecordingID,
			next.ScheduledAt,
			next.NextRunAt,
			next.RecurrencePattern,
			next.RecurrenceEnabled,
			next.DetectionMode,
			next.DetectionTimeoutSeconds,
			next.PostBeepDelaySeconds,
			next.ProviderOptions,
			next.Status,
			next.LastRunAt,
			next.LastError,
			next.UpdatedAt,
		); err != nil {
			return err
		}
		next.ID = cur.ID
		out = next
		return nil
	})
	return out, err
}

func (r *PostgresRepo) DeleteScheduledCall(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scheduled_calls WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) ListScheduledCalls(ctx context.Context, status ScheduledCallStatus) ([]ScheduledCall, error) {
	q := `SELECT ` + scheduledColumns + ` FROM scheduled_calls`
	args := []any{}
	if status != "" {
		q += ` WHERE status = $1`
		args = append(args, status)
	}
	q += ` ORDER BY scheduled_at`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ScheduledCall, 0)
	for rows.Next() {
		sc, err := scanScheduled(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) CountScheduledCallsByStatus(ctx context.Context) (map[ScheduledCallStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM scheduled_calls GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[ScheduledCallStatus]int{}
	for rows.Next() {
		var (
			s ScheduledCallStatus
			n int
		)
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[s] = n
	}
	return out, rows.Err()
}

const logColumns = `id, scheduled_call_id, contact_id, recording_id, to_number, provider_call_id, status,
  answered_by, duration, error_code, error_message, initiated_at, answered_at, ended_at, retry_of`

func scanLog(row rowScanner) (CallLog, error) {
	var (
		l               CallLog
		scheduledCallID sql.NullString
		contactID       sql.NullString
		providerCallID  sql.NullString
		answeredBy      sql.NullString
		duration        sql.NullInt64
		answeredAt      sql.NullTime
		endedAt         sql.NullTime
		retryOf         sql.NullString
	)
	err := row.Scan(
		&l.ID,
		&scheduledCallID,
		&contactID,
		&l.RecordingID,
		&l.To,
		&providerCallID,
		&l.Status,
		&answeredBy,
		&duration,
		&l.ErrorCode,
		&l.ErrorMessage,
		&l.InitiatedAt,
		&answeredAt,
		&endedAt,
		&retryOf,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallLog{}, ErrNotFound
		}
		return CallLog{}, err
	}
	l.ScheduledCallID = stringPtr(scheduledCallID)
	l.ContactID = stringPtr(contactID)
	l.ProviderCallID = stringPtr(providerCallID)
	l.RetryOf = stringPtr(retryOf)
	l.AnsweredAt = timePtr(answeredAt)
	l.EndedAt = timePtr(endedAt)
	if answeredBy.Valid {
		d := DetectionResult(answeredBy.String)
		l.AnsweredBy = &d
	}
	if duration.Valid {
		d := int(duration.Int64)
		l.DurationSeconds = &d
	}
	return l, nil
}

func (r *PostgresRepo) CreateCallLog(ctx context.Context, l CallLog) error {
	const q = `
INSERT INTO call_logs (` + logColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
`
	_, err := r.db.ExecContext(ctx, q,
		l.ID,
		l.ScheduledCallID,
		l.ContactID,
		l.RecordingID,
		l.To,
		l.ProviderCallID,
		l.Status,
		detectionArg(l.AnsweredBy),
		l.DurationSeconds,
		l.ErrorCode,
		l.ErrorMessage,
		l.InitiatedAt,
		l.AnsweredAt,
		l.EndedAt,
		l.RetryOf,
	)
	if utils.IsUniqueViolation(err) {
		return ErrDuplicateID
	}
	return err
}

func (r *PostgresRepo) GetCallLog(ctx context.Context, id string) (CallLog, error) {
	q := `SELECT ` + logColumns + ` FROM call_logs WHERE id = $1`
	return scanLog(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) GetCallLogByProviderCallID(ctx context.Context, providerCallID string) (CallLog, error) {
	if providerCallID == "" {
		return CallLog{}, ErrNotFound
	}
	q := `SELECT ` + logColumns + ` FROM call_logs WHERE provider_call_id = $1`
	return scanLog(r.db.QueryRowContext(ctx, q, providerCallID))
}

func (r *PostgresRepo) SetProviderCallID(ctx context.Context, id, providerCallID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE call_logs SET provider_call_id = $2 WHERE id = $1 AND provider_call_id IS NULL`,
		id, providerCallID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	// Distinguish a missing row from an id that was already written.
	if _, err := r.GetCallLog(ctx, id); err != nil {
		return err
	}
	return ErrProviderCallIDSet
}

func (r *PostgresRepo) MutateCallLog(ctx context.Context, id string, fn CallLogMutateFunc) (CallLog, error) {
	return r.mutateLog(ctx, `id = $1`, id, fn)
}

func (r *PostgresRepo) MutateCallLogByProviderCallID(ctx context.Context, providerCallID string, fn CallLogMutateFunc) (CallLog, error) {
	if providerCallID == "" {
		return CallLog{}, ErrNotFound
	}
	return r.mutateLog(ctx, `provider_call_id = $1`, providerCallID, fn)
}

func (r *PostgresRepo) mutateLog(ctx context.Context, where string, key string, fn CallLogMutateFunc) (CallLog, error) {
	var out CallLog
	err := utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		q := `SELECT ` + logColumns + ` FROM call_logs WHERE ` + where + ` FOR UPDATE`
		cur, err := scanLog(tx.QueryRowContext(ctx, q, key))
		if err != nil {
			return err
		}
		next := cur
		changed, err := fn(&next)
		if err != nil {
			return err
		}
		if !changed {
			out = cur
			return nil
		}
		// provider_call_id is only written by SetProviderCallID.
		const upd = `
UPDATE call_logs SET
  status = $2, answered_by = $3, duration = $4, error_code = $5, error_message = $6,
  answered_at = $7, ended_at = $8
WHERE id = $1
`
		if _, err := tx.ExecContext(ctx, upd,
			cur.ID,
			next.Status,
			detectionArg(next.AnsweredBy),
			next.DurationSeconds,
			next.ErrorCode,
			next.ErrorMessage,
			next.AnsweredAt,
			next.EndedAt,
		); err != nil {
			return err
		}
		next.ID = cur.ID
		next.ProviderCallID = cur.ProviderCallID
		out = next
		return nil
	})
	return out, err
}

func (r *PostgresRepo) ListCallLogs(ctx context.Context, f CallLogFilter) ([]CallLog, error) {
	where, args := logFilterSQL(f)
	q := `SELECT ` + logColumns + ` FROM call_logs` + where + ` ORDER BY initiated_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]CallLog, 0)
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) CountCallLogsByStatus(ctx context.Context, f CallLogFilter) (map[CallStatus]int, error) {
	where, args := logFilterSQL(f)
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM call_logs`+where+` GROUP BY status`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[CallStatus]int{}
	for rows.Next() {
		var (
			s CallStatus
			n int
		)
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[s] = n
	}
	return out, rows.Err()
}

func (r *PostgresRepo) CountCallLogsByDetection(ctx context.Context, f CallLogFilter) (map[DetectionResult]int, error) {
	where, args := logFilterSQL(f)
	if where == "" {
		where = ` WHERE answered_by IS NOT NULL`
	} else {
		where += ` AND answered_by IS NOT NULL`
	}
	rows, err := r.db.QueryContext(ctx, `SELECT answered_by, COUNT(*) FROM call_logs`+where+` GROUP BY answered_by`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[DetectionResult]int{}
	for rows.Next() {
		var (
			d DetectionResult
			n int
		)
		if err := rows.Scan(&d, &n); err != nil {
			return nil, err
		}
		out[d] = n
	}
	return out, rows.Err()
}

func logFilterSQL(f CallLogFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.ScheduledCallID != "" {
		add("scheduled_call_id = $%d", f.ScheduledCallID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if !f.From.IsZero() {
		add("initiated_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("initiated_at < $%d", f.To)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func detectionArg(d *DetectionResult) any {
	if d == nil {
		return nil
	}
	return string(*d)
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
