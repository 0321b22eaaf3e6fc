package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/autoflowlabs/consultancy-crm/internal/scheduling"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgxDB interface {
	pgxQuerier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresRepository persists appointments. Writes that claim a slot run in a
// transaction holding a per-date advisory lock, so concurrent bookings for the
// same day re-check against each other's committed rows.
type PostgresRepository struct {
	db pgxDB
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithExec(db pgxDB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const appointmentColumns = `id, customer_id, title, description, scheduled_date, start_time, duration_minutes, meeting_type, status, notes, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var id, customerID uuid.UUID
	if err := row.Scan(
		&id,
		&customerID,
		&a.Title,
		&a.Description,
		&a.Date,
		&a.StartTime,
		&a.DurationMinutes,
		&a.MeetingType,
		&a.Status,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.ID = id.String()
	a.CustomerID = customerID.String()
	return &a, nil
}

func dateLockKey(date string) string {
	return "appointments:" + date
}

func lockDate(ctx context.Context, q pgxQuerier, date string) error {
	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, dateLockKey(date)); err != nil {
		return fmt.Errorf("appointments: lock %s: %w", date, err)
	}
	return nil
}

// bookingsOn loads the non-cancelled bookings for date, skipping exclude.
func bookingsOn(ctx context.Context, q pgxQuerier, date string, exclude uuid.UUID) ([]scheduling.Booking, error) {
	rows, err := q.Query(ctx, `
		SELECT id, start_time, duration_minutes
		FROM appointments
		WHERE scheduled_date = $1 AND status <> 'cancelled' AND id <> $2
	`, date, exclude)
	if err != nil {
		return nil, fmt.Errorf("appointments: load bookings: %w", err)
	}
	defer rows.Close()

	var bookings []scheduling.Booking
	for rows.Next() {
		var id uuid.UUID
		b := scheduling.Booking{Date: date}
		if err := rows.Scan(&id, &b.StartTime, &b.DurationMinutes); err != nil {
			return nil, fmt.Errorf("appointments: scan booking: %w", err)
		}
		b.ID = id.String()
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: booking rows: %w", err)
	}
	return bookings, nil
}

func (r *PostgresRepository) CreateIfAvailable(ctx context.Context, appt *Appointment, check SlotCheck) (*Appointment, error) {
	customerID, err := uuid.Parse(appt.CustomerID)
	if err != nil {
		return nil, ErrMissingCustomer
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("appointments: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockDate(ctx, tx, appt.Date); err != nil {
		return nil, err
	}
	if check != nil {
		existing, err := bookingsOn(ctx, tx, appt.Date, uuid.Nil)
		if err != nil {
			return nil, err
		}
		if err := check(existing); err != nil {
			return nil, err
		}
	}

	status := appt.Status
	if status == "" {
		status = StatusScheduled
	}
	created, err := scanAppointment(tx.QueryRow(ctx, `
		INSERT INTO appointments (id, customer_id, title, description, scheduled_date, start_time, duration_minutes, meeting_type, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+appointmentColumns,
		uuid.New(),
		customerID,
		appt.Title,
		appt.Description,
		appt.Date,
		appt.StartTime,
		appt.DurationMinutes,
		appt.MeetingType,
		status,
		appt.Notes,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, ErrMissingCustomer
		}
		return nil, fmt.Errorf("appointments: insert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("appointments: commit: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Appointment, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrAppointmentNotFound
	}
	a, err := scanAppointment(r.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, parsed))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("appointments: select: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Appointment, error) {
	var where []string
	var args []any
	if filter.From != "" {
		args = append(args, filter.From)
		where = append(where, fmt.Sprintf("scheduled_date >= $%d", len(args)))
	}
	if filter.To != "" {
		args = append(args, filter.To)
		where = append(where, fmt.Sprintf("scheduled_date <= $%d", len(args)))
	}
	if filter.CustomerID != "" {
		customerID, err := uuid.Parse(filter.CustomerID)
		if err != nil {
			return []*Appointment{}, nil
		}
		args = append(args, customerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY scheduled_date, start_time, created_at"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: list: %w", err)
	}
	defer rows.Close()

	list := []*Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: list rows: %w", err)
	}
	return list, nil
}

func (r *PostgresRepository) ListBetween(ctx context.Context, from, to string) ([]*Appointment, error) {
	return r.List(ctx, ListFilter{From: from, To: to})
}

func (r *PostgresRepository) Update(ctx context.Context, id string, req *UpdateAppointmentRequest) (*Appointment, error) {
	existing, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := req.Apply(existing); err != nil {
		return nil, err
	}
	updated, err := scanAppointment(r.db.QueryRow(ctx, `
		UPDATE appointments
		SET title = $2, description = $3, meeting_type = $4, notes = $5, updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		uuid.MustParse(existing.ID),
		existing.Title,
		existing.Description,
		existing.MeetingType,
		existing.Notes,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("appointments: update: %w", err)
	}
	return updated, nil
}

func selectForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("appointments: select for update: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, next Status) (Status, *Appointment, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", nil, ErrAppointmentNotFound
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("appointments: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	existing, err := selectForUpdate(ctx, tx, parsed)
	if err != nil {
		return "", nil, err
	}
	if !existing.Status.CanTransitionTo(next) {
		return existing.Status, nil, ErrInvalidTransition
	}

	updated, err := scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns, parsed, next))
	if err != nil {
		return "", nil, fmt.Errorf("appointments: update status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", nil, fmt.Errorf("appointments: commit: %w", err)
	}
	return existing.Status, updated, nil
}

func (r *PostgresRepository) Reschedule(ctx context.Context, id, date, startTime string, durationMinutes int, check SlotCheck) (*Appointment, *Appointment, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, nil, ErrAppointmentNotFound
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("appointments: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	existing, err := selectForUpdate(ctx, tx, parsed)
	if err != nil {
		return nil, nil, err
	}
	if !existing.Status.Active() {
		return nil, nil, ErrNotRescheduleable
	}
	if err := lockDate(ctx, tx, date); err != nil {
		return nil, nil, err
	}
	if check != nil {
		others, err := bookingsOn(ctx, tx, date, parsed)
		if err != nil {
			return nil, nil, err
		}
		if err := check(others); err != nil {
			return nil, nil, err
		}
	}

	updated, err := scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET scheduled_date = $2, start_time = $3, duration_minutes = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns, parsed, date, startTime, durationMinutes))
	if err != nil {
		return nil, nil, fmt.Errorf("appointments: reschedule: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("appointments: commit: %w", err)
	}
	return existing, updated, nil
}
