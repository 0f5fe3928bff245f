package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/opdesk/clinic-queue/internal/schedule"
)

// Querier is the subset of pgx both a pool and an open transaction satisfy.
// Repository methods take one so they compose inside the allocator's
// transaction as well as standalone.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgxPool is the pool surface the repository needs; pgxpool.Pool and
// pgxmock both satisfy it.
type PgxPool interface {
	Querier
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Repository persists appointments and break periods in Postgres.
type Repository struct {
	pool PgxPool
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool PgxPool) *Repository {
	if pool == nil {
		panic("booking: pgx pool required")
	}
	return &Repository{pool: pool}
}

// InSerializableTx runs fn inside a serializable transaction, the isolation
// the allocator's read-modify-write depends on. First committer wins: a
// losing transaction surfaces as ErrSlotConflict for the caller to retry.
func (r *Repository) InSerializableTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("booking: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return asConflict(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return asConflict(fmt.Errorf("booking: commit tx: %w", err))
	}
	return nil
}

// asConflict maps the two storage signals of a lost race, serialization
// failure and the partial unique index on live slots, onto ErrSlotConflict.
// Anything else passes through as an infrastructure error and is not retried.
func asConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "23505":
			return fmt.Errorf("%w: %s", ErrSlotConflict, pgErr.Code)
		}
	}
	return err
}

const appointmentColumns = `id, doctor_id, patient_id, date, session_index, slot_index,
	time_label, channel, token_seq, status, cancelled_by_break, break_placeholder,
	created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.Date,
		&a.SessionIndex,
		&a.SlotIndex,
		&a.TimeLabel,
		&a.Channel,
		&a.TokenSeq,
		&a.Status,
		&a.CancelledByBreak,
		&a.BreakPlaceholder,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

// ListForDay returns every appointment for a doctor and civil date, cancelled
// rows included, ordered by session then slot. The allocator needs the full
// set: cancelled rows still pin their slot and keep the token sequence
// monotonic.
func (r *Repository) ListForDay(ctx context.Context, q Querier, doctorID, date string) ([]Appointment, error) {
	if q == nil {
		q = r.pool
	}
	rows, err := q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND date = $2
		ORDER BY session_index, slot_index, created_at`,
		doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("booking: list appointments: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("booking: scan appointment: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("booking: list appointments: %w", err)
	}
	return out, nil
}

// MaxTokenSeq returns the highest token number issued for the channel on the
// given day, zero when none, which is how the counter resets when the civil
// date changes. Cancelled rows count: tokens are never reissued.
func (r *Repository) MaxTokenSeq(ctx context.Context, q Querier, doctorID, date string, channel Channel) (int, error) {
	if q == nil {
		q = r.pool
	}
	var max int
	err := q.QueryRow(ctx, `
		SELECT COALESCE(MAX(token_seq), 0)
		FROM appointments
		WHERE doctor_id = $1 AND date = $2 AND channel = $3`,
		doctorID, date, channel).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("booking: max token seq: %w", err)
	}
	return max, nil
}

// Insert writes a new appointment. The partial unique index on live
// (doctor, date, session, slot) rows is the storage-level double-booking
// backstop; a violation comes back as ErrSlotConflict.
func (r *Repository) Insert(ctx context.Context, q Querier, a *Appointment) error {
	if q == nil {
		q = r.pool
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := q.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		a.ID, a.DoctorID, a.PatientID, a.Date, a.SessionIndex, a.SlotIndex,
		a.TimeLabel, a.Channel, a.TokenSeq, a.Status, a.CancelledByBreak,
		a.BreakPlaceholder, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return asConflict(fmt.Errorf("booking: insert appointment: %w", err))
	}
	return nil
}

// GetByID loads one appointment.
func (r *Repository) GetByID(ctx context.Context, q Querier, id uuid.UUID) (*Appointment, error) {
	if q == nil {
		q = r.pool
	}
	row := q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1`, id)
	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("booking: get appointment: %w", err)
	}
	return a, nil
}

// UpdateStatus moves an appointment from one status to another, compare-and-
// set style: the update only lands if the row is still in the expected
// status.
func (r *Repository) UpdateStatus(ctx context.Context, q Querier, id uuid.UUID, from, to Status, byBreak bool) error {
	if q == nil {
		q = r.pool
	}
	tag, err := q.Exec(ctx, `
		UPDATE appointments
		SET status = $1, cancelled_by_break = cancelled_by_break OR $2, updated_at = $3
		WHERE id = $4 AND status = $5`,
		to, byBreak, time.Now().UTC(), id, from)
	if err != nil {
		return fmt.Errorf("booking: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

// InsertBreak appends a break period. Breaks are immutable once created; a
// correction is a new row.
func (r *Repository) InsertBreak(ctx context.Context, q Querier, doctorID, date string, b schedule.BreakPeriod) error {
	if q == nil {
		q = r.pool
	}
	_, err := q.Exec(ctx, `
		INSERT INTO break_periods (id, doctor_id, date, session_index, start_at, end_at, duration_minutes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New(), doctorID, date, b.SessionIndex, b.StartAt, b.EndAt, b.Minutes(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("booking: insert break: %w", err)
	}
	return nil
}

// ListBreaks returns the day's break periods in declaration order.
func (r *Repository) ListBreaks(ctx context.Context, q Querier, doctorID, date string) ([]schedule.BreakPeriod, error) {
	if q == nil {
		q = r.pool
	}
	rows, err := q.Query(ctx, `
		SELECT session_index, start_at, end_at
		FROM break_periods
		WHERE doctor_id = $1 AND date = $2
		ORDER BY created_at`,
		doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("booking: list breaks: %w", err)
	}
	defer rows.Close()

	var out []schedule.BreakPeriod
	for rows.Next() {
		var b schedule.BreakPeriod
		if err := rows.Scan(&b.SessionIndex, &b.StartAt, &b.EndAt); err != nil {
			return nil, fmt.Errorf("booking: scan break: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("booking: list breaks: %w", err)
	}
	return out, nil
}

// SessionCompletionCounts returns how many appointments in a session finished
// for real and how many are break placeholders marked completed. The pace
// estimator decides which of the two count as work.
func (r *Repository) SessionCompletionCounts(ctx context.Context, q Querier, doctorID, date string, sessionIndex int) (completed, placeholders int, err error) {
	if q == nil {
		q = r.pool
	}
	err = q.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE NOT break_placeholder),
			COUNT(*) FILTER (WHERE break_placeholder)
		FROM appointments
		WHERE doctor_id = $1 AND date = $2 AND session_index = $3 AND status = $4`,
		doctorID, date, sessionIndex, StatusCompleted).Scan(&completed, &placeholders)
	if err != nil {
		return 0, 0, fmt.Errorf("booking: completion counts: %w", err)
	}
	return completed, placeholders, nil
}
