package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bookline/booking-engine/internal/calendar"
	"github.com/bookline/booking-engine/internal/observability/metrics"
	"github.com/bookline/booking-engine/pkg/logging"
)

// syncMaxEvents bounds one reconciliation pass.
const syncMaxEvents = 100

// Reconciler imports appointments created directly on the external calendar
// and refreshes the local copy of mirrored ones. The merge is conservative:
// remote data overwrites local fields, but nothing local is ever deleted, so
// an event vanishing remotely (or an API hiccup) cannot destroy bookings.
type Reconciler struct {
	repo    Repository
	cal     calendar.Client
	metrics *metrics.BookingMetrics
	logger  *logging.Logger
}

func NewReconciler(repo Repository, cal calendar.Client, m *metrics.BookingMetrics, logger *logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{repo: repo, cal: cal, metrics: m, logger: logger}
}

// SyncResult reports one reconciliation pass.
type SyncResult struct {
	Created int
	Updated int
}

// Sync runs one reconciliation pass against the admin's calendar.
func (r *Reconciler) Sync(ctx context.Context) (SyncResult, error) {
	if r.cal == nil {
		return SyncResult{}, ErrCalendarNotConnected
	}
	admin, err := r.repo.GetAdminUser(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("load admin user: %w", err)
	}
	if !admin.CalendarConnected() {
		return SyncResult{}, ErrCalendarNotConnected
	}

	events, err := r.cal.ListUpcoming(ctx, *admin.GoogleRefreshToken, syncMaxEvents)
	if err != nil {
		return SyncResult{}, fmt.Errorf("list upcoming events: %w", err)
	}

	var result SyncResult
	for _, ev := range events {
		// All-day and undated events have no bookable interval.
		if ev.AllDay || ev.Start.IsZero() || ev.End.IsZero() {
			continue
		}

		local, err := r.repo.GetAppointmentByEventID(ctx, ev.ID)
		switch {
		case err == nil:
			updated, err := r.refresh(ctx, local, ev)
			if err != nil {
				r.logger.Error("refresh mirrored appointment", "error", err, "event_id", ev.ID)
				continue
			}
			if updated {
				result.Updated++
				r.metrics.ObserveSync("updated")
			}
		case errors.Is(err, ErrAppointmentNotFound):
			if !isBookingLike(ev) {
				continue
			}
			if err := r.importEvent(ctx, admin, ev); err != nil {
				r.logger.Error("import calendar event", "error", err, "event_id", ev.ID)
				continue
			}
			result.Created++
			r.metrics.ObserveSync("created")
		default:
			r.logger.Error("look up mirrored appointment", "error", err, "event_id", ev.ID)
		}
	}

	r.logger.Info("calendar sync complete", "created", result.Created, "updated", result.Updated)
	return result, nil
}

// refresh overwrites the local appointment with remote fields when they
// drifted. The remote calendar is authoritative for time and text, and a
// still-present event means the appointment stands, so status resets to
// confirmed.
func (r *Reconciler) refresh(ctx context.Context, local *Appointment, ev calendar.Event) (bool, error) {
	if local.Title == ev.Summary &&
		local.Description == ev.Description &&
		local.StartTime.Equal(ev.Start) &&
		local.EndTime.Equal(ev.End) &&
		local.Status == StatusConfirmed {
		return false, nil
	}
	if err := r.repo.UpdateFromRemote(ctx, local.ID, ev.Summary, ev.Description, ev.Start, ev.End); err != nil {
		return false, err
	}
	return true, nil
}

// importEvent creates a local appointment for an event booked directly on the
// calendar. Ownership goes to the first non-admin attendee with a matching
// user account, else to the admin.
func (r *Reconciler) importEvent(ctx context.Context, admin *User, ev calendar.Event) error {
	owner := admin
	for _, email := range ev.Attendees {
		if strings.EqualFold(email, admin.Email) {
			continue
		}
		user, err := r.repo.GetUserByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				continue
			}
			return fmt.Errorf("look up attendee %s: %w", email, err)
		}
		owner = user
		break
	}

	eventID := ev.ID
	_, err := r.repo.CreateAppointment(ctx, &Appointment{
		UserID:        owner.ID,
		Title:         ev.Summary,
		Description:   ev.Description,
		StartTime:     ev.Start,
		EndTime:       ev.End,
		Status:        StatusConfirmed,
		GoogleEventID: &eventID,
	})
	return err
}

// bookingTitleMarkers are the title fragments that mark an externally created
// event as a booking worth importing.
var bookingTitleMarkers = []string{"consultation", "appointment", "booking"}

func isBookingLike(ev calendar.Event) bool {
	title := strings.ToLower(ev.Summary)
	for _, marker := range bookingTitleMarkers {
		if strings.Contains(title, marker) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(ev.Description), "consultation")
}
