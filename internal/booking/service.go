package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bookline/booking-engine/internal/calendar"
	"github.com/bookline/booking-engine/internal/config"
	"github.com/bookline/booking-engine/internal/notify"
	"github.com/bookline/booking-engine/internal/observability/metrics"
	redisclient "github.com/bookline/booking-engine/internal/redis"
	"github.com/bookline/booking-engine/pkg/logging"
)

var (
	ErrInvalidTimeRange     = errors.New("end time must be after start time")
	ErrLeadTime             = errors.New("appointments must be booked at least 48 hours in advance")
	ErrWeeklyLimit          = errors.New("only one appointment may be booked per calendar week")
	ErrSlotUnavailable      = errors.New("selected time is not available")
	ErrSlotContended        = errors.New("slot is currently being booked, please retry")
	ErrInvalidStatus        = errors.New("invalid appointment status")
	ErrNotOwner             = errors.New("appointment belongs to another user")
	ErrInvalidTimezone      = errors.New("unknown timezone")
	ErrRulesExist           = errors.New("availability schedule already exists")
	ErrCalendarNotConnected = errors.New("google calendar not connected")
)

// Service owns booking validation and commit, availability reads, and the
// best-effort mirroring of appointments to the external calendar.
type Service struct {
	repo      Repository
	locker    redisclient.Locker
	cal       calendar.Client
	notifier  notify.Notifier
	reminders *ReminderScheduler
	metrics   *metrics.BookingMetrics
	cfg       config.Config
	logger    *logging.Logger
	now       func() time.Time
}

func NewService(
	repo Repository,
	locker redisclient.Locker,
	cal calendar.Client,
	notifier notify.Notifier,
	reminders *ReminderScheduler,
	m *metrics.BookingMetrics,
	cfg config.Config,
	logger *logging.Logger,
) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:      repo,
		locker:    locker,
		cal:       cal,
		notifier:  notifier,
		reminders: reminders,
		metrics:   m,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) location(timezone string) (*time.Location, error) {
	if timezone == "" {
		timezone = s.cfg.Timezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, ErrInvalidTimezone
	}
	return loc, nil
}

// admin returns the credential-holding admin user, or nil when there is none.
// A missing admin only means the external calendar is unavailable.
func (s *Service) admin(ctx context.Context) *User {
	admin, err := s.repo.GetAdminUser(ctx)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			s.logger.Error("load admin user", "error", err)
		}
		return nil
	}
	return admin
}

func (s *Service) externalConnected(admin *User) bool {
	return s.cal != nil && s.cfg.GoogleConfigured() && admin != nil && admin.CalendarConnected()
}

// Availability returns the bookable slots in [from, to]. The external
// calendar is preferred when connected; any failure there degrades to the
// local rule source, logged but not surfaced (reads are best-effort).
func (s *Service) Availability(ctx context.Context, from, to time.Time, timezone string) ([]Slot, error) {
	loc, err := s.location(timezone)
	if err != nil {
		return nil, err
	}

	admin := s.admin(ctx)
	if s.externalConnected(admin) {
		src := NewGoogleCalendarSource(s.cal, *admin.GoogleRefreshToken, loc.String(), loc)
		slots, err := GenerateSlots(ctx, src, from, to, loc)
		if err == nil {
			return slots, nil
		}
		s.logger.Warn("external availability failed, falling back to local rules", "error", err)
		s.metrics.ObserveSourceFallback()
	}

	return GenerateSlots(ctx, NewLocalRuleSource(s.repo, loc), from, to, loc)
}

type BookingRequest struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	Timezone    string
}

// Book validates the request against the lead-time, weekly-cap, and
// slot-exactness invariants, then commits the appointment. The availability
// re-check and the insert run under a per-slot Redis lock so two concurrent
// requests for the same slot cannot both pass validation.
func (s *Service) Book(ctx context.Context, userID uuid.UUID, req BookingRequest) (*Appointment, error) {
	now := s.now()

	if !req.Start.Before(req.End) {
		s.metrics.ObserveBooking("invalid")
		return nil, ErrInvalidTimeRange
	}
	if req.Start.Before(now.Add(s.cfg.BookingLeadTime)) {
		s.metrics.ObserveBooking("lead_time")
		return nil, ErrLeadTime
	}

	loc, err := s.location(req.Timezone)
	if err != nil {
		s.metrics.ObserveBooking("invalid")
		return nil, err
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	weekStart, weekEnd := weekBounds(req.Start.In(loc))
	existing, err := s.repo.FindUserAppointmentInWeek(ctx, userID, weekStart, weekEnd)
	if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		return nil, fmt.Errorf("check weekly limit: %w", err)
	}
	if existing != nil {
		s.metrics.ObserveBooking("weekly_limit")
		return nil, ErrWeeklyLimit
	}

	admin := s.admin(ctx)

	var created *Appointment
	err = s.locker.WithSlotLock(ctx, req.Start, func(lockCtx context.Context) error {
		ok, err := s.slotBookable(lockCtx, admin, req, loc)
		if err != nil {
			return err
		}
		if !ok {
			return ErrSlotUnavailable
		}

		// The slot check above trusts the availability source; this guards the
		// no-overlap invariant against appointments that never got mirrored.
		overlap, err := s.repo.FindOverlapping(lockCtx, req.Start, req.End)
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			return fmt.Errorf("check overlap: %w", err)
		}
		if overlap != nil {
			return ErrSlotUnavailable
		}

		appt, err := s.repo.CreateAppointment(lockCtx, &Appointment{
			UserID:      userID,
			Title:       req.Title,
			Description: req.Description,
			StartTime:   req.Start,
			EndTime:     req.End,
			Status:      StatusConfirmed,
		})
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		created = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			s.metrics.ObserveBooking("contended")
			return nil, ErrSlotContended
		}
		if errors.Is(err, ErrSlotUnavailable) {
			s.metrics.ObserveBooking("unavailable")
		}
		return nil, err
	}

	// Mirroring is best-effort: the local appointment stays authoritative
	// even when the remote event cannot be created.
	if s.externalConnected(admin) {
		ev, err := s.cal.CreateEvent(ctx, *admin.GoogleRefreshToken, calendar.EventInput{
			Summary:     created.Title,
			Description: created.Description,
			Start:       created.StartTime,
			End:         created.EndTime,
			Timezone:    loc.String(),
			Attendees:   []string{user.Email},
		})
		if err != nil {
			s.logger.Error("mirror appointment to calendar", "error", err, "appointment_id", created.ID)
		} else {
			if err := s.repo.SetGoogleEventID(ctx, created.ID, ev.ID); err != nil {
				s.logger.Error("store calendar event id", "error", err, "appointment_id", created.ID)
			} else {
				eventID := ev.ID
				created.GoogleEventID = &eventID
			}
		}
	}

	if s.notifier != nil {
		if err := s.notifier.BookingConfirmed(ctx, recipient(user), notifyAppointment(created)); err != nil {
			s.logger.Error("send booking confirmation", "error", err, "appointment_id", created.ID)
		}
	}

	if s.reminders != nil {
		s.reminders.Arm(created)
	}

	s.metrics.ObserveBooking("booked")
	s.logger.Info("appointment booked",
		"appointment_id", created.ID,
		"user_id", userID,
		"start", created.StartTime,
	)
	return created, nil
}

// slotBookable re-checks the requested interval against freshly generated
// slots for the single day containing the start. An exact start+end match is
// required; a non-conflicting partial overlap is still rejected. When the
// external source fails mid-booking the check degrades to the local rule
// windows plus the overlap guard, never to "assume available".
func (s *Service) slotBookable(ctx context.Context, admin *User, req BookingRequest, loc *time.Location) (bool, error) {
	dayStart := startOfDay(req.Start.In(loc))
	dayEnd := endOfDay(req.Start.In(loc))

	if s.externalConnected(admin) {
		src := NewGoogleCalendarSource(s.cal, *admin.GoogleRefreshToken, loc.String(), loc)
		slots, err := GenerateSlots(ctx, src, dayStart, dayEnd, loc)
		if err == nil {
			return slotMatch(slots, req.Start, req.End), nil
		}
		s.logger.Warn("external availability check failed, using local recheck", "error", err)
		s.metrics.ObserveSourceFallback()
		return s.localRecheck(ctx, req, loc)
	}

	slots, err := GenerateSlots(ctx, NewLocalRuleSource(s.repo, loc), dayStart, dayEnd, loc)
	if err != nil {
		return false, err
	}
	return slotMatch(slots, req.Start, req.End), nil
}

// localRecheck verifies the requested interval falls inside a rule window for
// that weekday. Overlap with existing appointments is checked by the caller.
func (s *Service) localRecheck(ctx context.Context, req BookingRequest, loc *time.Location) (bool, error) {
	day := startOfDay(req.Start.In(loc))
	windows, err := NewLocalRuleSource(s.repo, loc).Windows(ctx, day)
	if err != nil {
		return false, err
	}
	for _, w := range windows {
		if !req.Start.Before(w.Start) && !req.End.After(w.End) {
			return true, nil
		}
	}
	return false, nil
}

func slotMatch(slots []Slot, start, end time.Time) bool {
	for _, slot := range slots {
		if slot.Start.Equal(start) && slot.End.Equal(end) {
			return true
		}
	}
	return false
}

// UpdateRequest carries the editable appointment fields. A nil field keeps
// the stored value.
type UpdateRequest struct {
	Title       *string
	Description *string
	Start       *time.Time
	End         *time.Time
}

// Update edits an appointment on behalf of its owner or an admin.
// Rescheduling an existing appointment does not re-run the lead-time or
// slot checks; moving a booking outside the public grid is allowed. The
// mirrored remote event is updated best-effort.
func (s *Service) Update(ctx context.Context, apptID, actorID uuid.UUID, req UpdateRequest) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, apptID)
	if err != nil {
		return nil, err
	}

	actor, err := s.repo.GetUserByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrNotOwner
		}
		return nil, fmt.Errorf("load actor: %w", err)
	}
	if appt.UserID != actorID && !actor.IsAdmin() {
		return nil, ErrNotOwner
	}

	title := appt.Title
	if req.Title != nil {
		title = *req.Title
	}
	description := appt.Description
	if req.Description != nil {
		description = *req.Description
	}
	start := appt.StartTime
	if req.Start != nil {
		start = *req.Start
	}
	end := appt.EndTime
	if req.End != nil {
		end = *req.End
	}
	if !start.Before(end) {
		return nil, ErrInvalidTimeRange
	}

	updated, err := s.repo.UpdateAppointmentDetails(ctx, apptID, title, description, start, end)
	if err != nil {
		return nil, err
	}

	admin := s.admin(ctx)
	if updated.GoogleEventID != nil && s.externalConnected(admin) {
		in := calendar.EventInput{
			Summary:     updated.Title,
			Description: updated.Description,
			Start:       updated.StartTime,
			End:         updated.EndTime,
			Timezone:    s.cfg.Timezone,
		}
		if owner, err := s.repo.GetUserByID(ctx, updated.UserID); err == nil {
			in.Attendees = []string{owner.Email}
		}
		if _, err := s.cal.UpdateEvent(ctx, *admin.GoogleRefreshToken, *updated.GoogleEventID, in); err != nil {
			s.logger.Error("update mirrored calendar event", "error", err, "event_id", *updated.GoogleEventID)
		}
	}

	s.logger.Info("appointment updated", "appointment_id", apptID, "actor_id", actorID)
	return updated, nil
}

// Cancel removes an appointment on behalf of its owner or an admin. The
// mirrored remote event is deleted best-effort, the owner is notified with
// the reason, and the record is hard-deleted.
func (s *Service) Cancel(ctx context.Context, apptID, actorID uuid.UUID, reason string) error {
	appt, err := s.repo.GetAppointmentByID(ctx, apptID)
	if err != nil {
		return err
	}

	actor, err := s.repo.GetUserByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrNotOwner
		}
		return fmt.Errorf("load actor: %w", err)
	}
	if appt.UserID != actorID && !actor.IsAdmin() {
		return ErrNotOwner
	}

	admin := s.admin(ctx)
	if appt.GoogleEventID != nil && s.externalConnected(admin) {
		if err := s.cal.DeleteEvent(ctx, *admin.GoogleRefreshToken, *appt.GoogleEventID); err != nil {
			s.logger.Error("delete mirrored calendar event", "error", err, "event_id", *appt.GoogleEventID)
		}
	}

	if s.notifier != nil {
		owner, err := s.repo.GetUserByID(ctx, appt.UserID)
		if err != nil {
			s.logger.Error("load appointment owner for cancellation notice", "error", err)
		} else if err := s.notifier.BookingCancelled(ctx, recipient(owner), notifyAppointment(appt), reason); err != nil {
			s.logger.Error("send cancellation notice", "error", err, "appointment_id", appt.ID)
		}
	}

	if err := s.repo.DeleteAppointment(ctx, apptID); err != nil {
		return err
	}

	s.metrics.ObserveCancellation()
	s.logger.Info("appointment cancelled", "appointment_id", apptID, "actor_id", actorID, "reason", reason)
	return nil
}

// SetStatus is the admin status override. Any allowed value is settable from
// any other; cancelling also deletes the mirrored remote event, other
// transitions update its description.
func (s *Service) SetStatus(ctx context.Context, apptID uuid.UUID, status Status) (*Appointment, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	appt, err := s.repo.GetAppointmentByID(ctx, apptID)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, apptID, status)
	if err != nil {
		return nil, err
	}

	admin := s.admin(ctx)
	if appt.GoogleEventID != nil && s.externalConnected(admin) {
		if status == StatusCancelled {
			if err := s.cal.DeleteEvent(ctx, *admin.GoogleRefreshToken, *appt.GoogleEventID); err != nil {
				s.logger.Error("delete mirrored calendar event", "error", err, "event_id", *appt.GoogleEventID)
			}
		} else {
			description := fmt.Sprintf("%s\nStatus: %s", appt.Description, status)
			if err := s.cal.PatchDescription(ctx, *admin.GoogleRefreshToken, *appt.GoogleEventID, description); err != nil {
				s.logger.Error("update mirrored calendar event", "error", err, "event_id", *appt.GoogleEventID)
			}
		}
	}

	if s.notifier != nil {
		owner, err := s.repo.GetUserByID(ctx, appt.UserID)
		if err != nil {
			s.logger.Error("load appointment owner for status notice", "error", err)
		} else if err := s.notifier.StatusChanged(ctx, recipient(owner), notifyAppointment(updated), string(status)); err != nil {
			s.logger.Error("send status notice", "error", err, "appointment_id", appt.ID)
		}
	}

	return updated, nil
}

func (s *Service) ListAll(ctx context.Context) ([]Appointment, error) {
	return s.repo.ListAppointments(ctx)
}

func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]Appointment, error) {
	return s.repo.ListUserAppointments(ctx, userID)
}

// SeedDefaultRules creates the Monday-to-Friday 09:00-17:00 schedule. It
// refuses to run when any rules already exist.
func (s *Service) SeedDefaultRules(ctx context.Context) ([]AvailabilityRule, error) {
	count, err := s.repo.CountAvailabilityRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("count availability rules: %w", err)
	}
	if count > 0 {
		return nil, ErrRulesExist
	}

	var rules []AvailabilityRule
	for day := 1; day <= 5; day++ {
		rules = append(rules, AvailabilityRule{
			DayOfWeek:   day,
			StartTime:   "09:00",
			EndTime:     "17:00",
			IsAvailable: true,
		})
	}

	if err := s.repo.CreateAvailabilityRules(ctx, rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// CalendarStatus reports the calendar connection state.
type CalendarStatus struct {
	Connected      bool
	UpcomingEvents int
}

// CheckCalendar verifies the stored credential actually works by issuing a
// small upcoming-events read against the external calendar.
func (s *Service) CheckCalendar(ctx context.Context) (*CalendarStatus, error) {
	admin := s.admin(ctx)
	if !s.externalConnected(admin) {
		return &CalendarStatus{}, nil
	}
	events, err := s.cal.ListUpcoming(ctx, *admin.GoogleRefreshToken, 5)
	if err != nil {
		return nil, fmt.Errorf("list upcoming events: %w", err)
	}
	return &CalendarStatus{Connected: true, UpcomingEvents: len(events)}, nil
}

// CalendarAuthURL returns the consent URL that starts the calendar
// connection flow.
func (s *Service) CalendarAuthURL(state string) (string, error) {
	if s.cal == nil || !s.cfg.GoogleConfigured() {
		return "", ErrCalendarNotConnected
	}
	return s.cal.AuthURL(state), nil
}

// ConnectCalendar exchanges an OAuth authorization code and stores the
// resulting refresh token on the admin user.
func (s *Service) ConnectCalendar(ctx context.Context, code string) error {
	if s.cal == nil || !s.cfg.GoogleConfigured() {
		return ErrCalendarNotConnected
	}
	admin, err := s.repo.GetAdminUser(ctx)
	if err != nil {
		return err
	}
	token, err := s.cal.ExchangeCode(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}
	return s.repo.SaveGoogleCredential(ctx, admin.ID, token)
}

func recipient(u *User) notify.Recipient {
	return notify.Recipient{Name: u.Name, Email: u.Email}
}

func notifyAppointment(a *Appointment) notify.Appointment {
	return notify.Appointment{
		Title:       a.Title,
		Description: a.Description,
		Start:       a.StartTime,
		End:         a.EndTime,
	}
}
