package booking

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is one of the allowed status values. Any valid
// status is reachable from any other; there is no transition graph.
func (s Status) Valid() bool {
	switch s {
	case StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is the thin projection of the identity collaborator this core needs:
// ownership, admin role, and the admin's calendar credential.
type User struct {
	ID                 uuid.UUID
	Name               string
	Email              string
	Role               Role
	GoogleRefreshToken *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// CalendarConnected reports whether this user holds a calendar credential.
func (u *User) CalendarConnected() bool {
	return u != nil && u.GoogleRefreshToken != nil && *u.GoogleRefreshToken != ""
}

type Appointment struct {
	ID                  uuid.UUID
	UserID              uuid.UUID
	Title               string
	Description         string
	StartTime           time.Time
	EndTime             time.Time
	Status              Status
	GoogleEventID       *string
	ReminderSent        bool
	ConfirmationSent    bool
	AttendanceConfirmed bool
	ConfirmationToken   *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// AvailabilityRule is one weekly working window, used only when no external
// calendar is connected. Times are "HH:MM" strings as stored.
type AvailabilityRule struct {
	ID          uuid.UUID
	DayOfWeek   int // 0 = Sunday .. 6 = Saturday
	StartTime   string
	EndTime     string
	IsAvailable bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Slot is an ephemeral bookable interval. Never persisted, carries no identity.
type Slot struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Timezone string    `json:"timezone"`
}

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect. Touching
// boundaries do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}
