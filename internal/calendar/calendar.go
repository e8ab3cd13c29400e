// Package calendar wraps the external Google Calendar API behind an interface
// the booking core can consume. The admin's refresh token is treated as an
// opaque credential and passed into every call; a fresh API client is built
// per call so concurrent requests never share mutable OAuth state.
package calendar

import (
	"context"
	"time"
)

// Event is a normalized external calendar event.
type Event struct {
	ID          string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Attendees   []string // attendee email addresses
}

// EventInput is the payload for creating or updating an external event.
type EventInput struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Timezone    string
	Attendees   []string
}

// Client is the external calendar surface used by the booking core.
type Client interface {
	// ListUpcoming returns up to maxResults upcoming events ordered by start time.
	ListUpcoming(ctx context.Context, credential string, maxResults int64) ([]Event, error)

	// ListBetween returns events overlapping [from, to]. The timezone is used
	// to interpret all-day events.
	ListBetween(ctx context.Context, credential string, from, to time.Time, timezone string) ([]Event, error)

	CreateEvent(ctx context.Context, credential string, in EventInput) (*Event, error)
	UpdateEvent(ctx context.Context, credential, eventID string, in EventInput) (*Event, error)

	// PatchDescription updates only the event description, leaving times and
	// attendees untouched.
	PatchDescription(ctx context.Context, credential, eventID, description string) error

	DeleteEvent(ctx context.Context, credential, eventID string) error

	// AuthURL returns the consent URL for connecting a calendar.
	AuthURL(state string) string

	// ExchangeCode trades an authorization code for a refresh token.
	ExchangeCode(ctx context.Context, code string) (string, error)
}
