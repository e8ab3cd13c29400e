package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const userColumns = `id, name, email, role, google_refresh_token, created_at, updated_at`

const appointmentColumns = `id, user_id, title, description, start_time, end_time, status,
	google_event_id, reminder_sent, confirmation_sent, attendance_confirmed, confirmation_token,
	created_at, updated_at`

// Helpers

func scanUser(row pgx.Row) (*User, error) {
	var u User

	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.Role,
		&u.GoogleRefreshToken,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return &u, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.Title,
		&a.Description,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&a.GoogleEventID,
		&a.ReminderSent,
		&a.ConfirmationSent,
		&a.AttendanceConfirmed,
		&a.ConfirmationToken,
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

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func scanRule(row pgx.Row) (*AvailabilityRule, error) {
	var r AvailabilityRule

	err := row.Scan(
		&r.ID,
		&r.DayOfWeek,
		&r.StartTime,
		&r.EndTime,
		&r.IsAvailable,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &r, nil
}

// Users

func (r *PgRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (r *PgRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE lower(email) = lower($1)
	`, email)
	return scanUser(row)
}

func (r *PgRepository) GetAdminUser(ctx context.Context) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE role = 'admin'
		ORDER BY created_at
		LIMIT 1
	`)
	return scanUser(row)
}

func (r *PgRepository) SaveGoogleCredential(ctx context.Context, userID uuid.UUID, refreshToken string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET google_refresh_token = $2,
		    updated_at = now()
		WHERE id = $1
	`, userID, refreshToken)
	if err != nil {
		return fmt.Errorf("save google credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Appointments

func (r *PgRepository) CreateAppointment(ctx context.Context, appt *Appointment) (*Appointment, error) {
	id := appt.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	status := appt.Status
	if status == "" {
		status = StatusConfirmed
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, user_id, title, description, start_time, end_time, status, google_event_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, appt.UserID, appt.Title, appt.Description, appt.StartTime, appt.EndTime, status, appt.GoogleEventID)

	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByToken(ctx context.Context, token string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE confirmation_token = $1
		  AND status = 'confirmed'
	`, token)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByEventID(ctx context.Context, eventID string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE google_event_id = $1
		  AND status <> 'cancelled'
	`, eventID)
	return scanAppointment(row)
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM appointments
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, status)

	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentDetails(ctx context.Context, id uuid.UUID, title, description string, start, end time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET title = $2,
		    description = $3,
		    start_time = $4,
		    end_time = $5,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, title, description, start, end)

	return scanAppointment(row)
}

func (r *PgRepository) SetGoogleEventID(ctx context.Context, id uuid.UUID, eventID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET google_event_id = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, eventID)
	if err != nil {
		return fmt.Errorf("set google event id: %w", err)
	}
	return nil
}

func (r *PgRepository) MarkReminderSent(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET reminder_sent = TRUE,
		    updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	return nil
}

func (r *PgRepository) SetConfirmationToken(ctx context.Context, id uuid.UUID, token string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET confirmation_token = $2,
		    confirmation_sent = TRUE,
		    updated_at = now()
		WHERE id = $1
	`, id, token)
	if err != nil {
		return fmt.Errorf("set confirmation token: %w", err)
	}
	return nil
}

func (r *PgRepository) MarkAttendanceConfirmed(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET attendance_confirmed = TRUE,
		    updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark attendance confirmed: %w", err)
	}
	return nil
}

func (r *PgRepository) UpdateFromRemote(ctx context.Context, id uuid.UUID, title, description string, start, end time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET title = $2,
		    description = $3,
		    start_time = $4,
		    end_time = $5,
		    status = 'confirmed',
		    updated_at = now()
		WHERE id = $1
	`, id, title, description, start, end)
	if err != nil {
		return fmt.Errorf("update from remote: %w", err)
	}
	return nil
}

func (r *PgRepository) ListAppointments(ctx context.Context) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		ORDER BY start_time DESC
	`)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListUserAppointments(ctx context.Context, userID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE user_id = $1
		ORDER BY start_time DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListActiveBetween(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE start_time >= $1
		  AND start_time <= $2
		  AND status <> 'cancelled'
		ORDER BY start_time
	`, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) FindUserAppointmentInWeek(ctx context.Context, userID uuid.UUID, weekStart, weekEnd time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE user_id = $1
		  AND start_time >= $2
		  AND start_time <= $3
		  AND status <> 'cancelled'
		LIMIT 1
	`, userID, weekStart, weekEnd)
	return scanAppointment(row)
}

func (r *PgRepository) FindOverlapping(ctx context.Context, start, end time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE start_time < $2
		  AND end_time > $1
		  AND status <> 'cancelled'
		LIMIT 1
	`, start, end)
	return scanAppointment(row)
}

func (r *PgRepository) FindDueReminders(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE start_time >= $1
		  AND start_time <= $2
		  AND status <> 'cancelled'
		  AND reminder_sent = FALSE
		ORDER BY start_time
	`, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) FindDueConfirmations(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE start_time >= $1
		  AND start_time <= $2
		  AND status <> 'cancelled'
		  AND confirmation_sent = FALSE
		ORDER BY start_time
	`, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// Availability rules

func (r *PgRepository) ListAvailabilityRules(ctx context.Context) ([]AvailabilityRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, day_of_week, start_time, end_time, is_available, created_at, updated_at
		FROM availability_rules
		ORDER BY day_of_week, start_time
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AvailabilityRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) RulesForDay(ctx context.Context, dayOfWeek int) ([]AvailabilityRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, day_of_week, start_time, end_time, is_available, created_at, updated_at
		FROM availability_rules
		WHERE day_of_week = $1
		  AND is_available = TRUE
		ORDER BY start_time
	`, dayOfWeek)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AvailabilityRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CountAvailabilityRules(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM availability_rules`).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *PgRepository) CreateAvailabilityRules(ctx context.Context, rules []AvailabilityRule) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, rule := range rules {
		id := rule.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO availability_rules (id, day_of_week, start_time, end_time, is_available, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
		`, id, rule.DayOfWeek, rule.StartTime, rule.EndTime, rule.IsAvailable)
		if err != nil {
			return fmt.Errorf("insert availability rule: %w", err)
		}
	}

	return tx.Commit(ctx)
}
