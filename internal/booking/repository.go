package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrNoAvailabilityRules = errors.New("no availability rules configured")
)

// Repository contains all DB interactions needed by the booking core.
type Repository interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// GetAdminUser returns the site owner, who holds the calendar credential
	// and is the fallback owner for reconciled events.
	GetAdminUser(ctx context.Context) (*User, error)
	SaveGoogleCredential(ctx context.Context, userID uuid.UUID, refreshToken string) error

	CreateAppointment(ctx context.Context, appt *Appointment) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentByToken(ctx context.Context, token string) (*Appointment, error)

	// GetAppointmentByEventID looks up a non-cancelled appointment mirrored
	// from the given external event.
	GetAppointmentByEventID(ctx context.Context, eventID string) (*Appointment, error)

	DeleteAppointment(ctx context.Context, id uuid.UUID) error
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status Status) (*Appointment, error)

	// UpdateAppointmentDetails overwrites the editable fields of an appointment.
	UpdateAppointmentDetails(ctx context.Context, id uuid.UUID, title, description string, start, end time.Time) (*Appointment, error)
	SetGoogleEventID(ctx context.Context, id uuid.UUID, eventID string) error
	MarkReminderSent(ctx context.Context, id uuid.UUID) error

	// SetConfirmationToken stores the single-use token and marks the
	// confirmation request as sent in one update.
	SetConfirmationToken(ctx context.Context, id uuid.UUID, token string) error
	MarkAttendanceConfirmed(ctx context.Context, id uuid.UUID) error

	// UpdateFromRemote overwrites the locally mirrored fields from the
	// external event and resets status to confirmed.
	UpdateFromRemote(ctx context.Context, id uuid.UUID, title, description string, start, end time.Time) error

	ListAppointments(ctx context.Context) ([]Appointment, error)
	ListUserAppointments(ctx context.Context, userID uuid.UUID) ([]Appointment, error)

	// ListActiveBetween returns non-cancelled appointments starting in [from, to].
	ListActiveBetween(ctx context.Context, from, to time.Time) ([]Appointment, error)

	// FindUserAppointmentInWeek enforces the one-booking-per-week cap.
	FindUserAppointmentInWeek(ctx context.Context, userID uuid.UUID, weekStart, weekEnd time.Time) (*Appointment, error)

	// FindOverlapping returns a non-cancelled appointment whose interval
	// intersects [start, end), if any.
	FindOverlapping(ctx context.Context, start, end time.Time) (*Appointment, error)

	FindDueReminders(ctx context.Context, from, to time.Time) ([]Appointment, error)
	FindDueConfirmations(ctx context.Context, from, to time.Time) ([]Appointment, error)

	ListAvailabilityRules(ctx context.Context) ([]AvailabilityRule, error)
	RulesForDay(ctx context.Context, dayOfWeek int) ([]AvailabilityRule, error)
	CountAvailabilityRules(ctx context.Context) (int, error)
	CreateAvailabilityRules(ctx context.Context, rules []AvailabilityRule) error
}
