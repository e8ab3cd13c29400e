package booking

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bookline/booking-engine/internal/calendar"
	"github.com/bookline/booking-engine/internal/notify"
	redisclient "github.com/bookline/booking-engine/internal/redis"
)

// fakeRepo is an in-memory Repository mirroring the Postgres query semantics.
type fakeRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*User
	appts map[uuid.UUID]*Appointment
	rules []AvailabilityRule
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users: make(map[uuid.UUID]*User),
		appts: make(map[uuid.UUID]*Appointment),
	}
}

func (r *fakeRepo) addUser(u User) *User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	r.users[u.ID] = &u
	return &u
}

func (r *fakeRepo) addAppointment(a Appointment) *Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = StatusConfirmed
	}
	r.appts[a.ID] = &a
	return &a
}

func (r *fakeRepo) GetUserByID(_ context.Context, id uuid.UUID) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, ErrUserNotFound
}

func (r *fakeRepo) GetUserByEmail(_ context.Context, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *fakeRepo) GetAdminUser(_ context.Context) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Role == RoleAdmin {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (r *fakeRepo) SaveGoogleCredential(_ context.Context, userID uuid.UUID, refreshToken string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.GoogleRefreshToken = &refreshToken
	return nil
}

func (r *fakeRepo) CreateAppointment(_ context.Context, appt *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *appt
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.appts[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *fakeRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.appts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, ErrAppointmentNotFound
}

func (r *fakeRepo) GetAppointmentByToken(_ context.Context, token string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.appts {
		if a.ConfirmationToken != nil && *a.ConfirmationToken == token && a.Status == StatusConfirmed {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (r *fakeRepo) GetAppointmentByEventID(_ context.Context, eventID string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.appts {
		if a.GoogleEventID != nil && *a.GoogleEventID == eventID && a.Status != StatusCancelled {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (r *fakeRepo) DeleteAppointment(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.appts[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(r.appts, id)
	return nil
}

func (r *fakeRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, status Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.Status = status
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) UpdateAppointmentDetails(_ context.Context, id uuid.UUID, title, description string, start, end time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.Title = title
	a.Description = description
	a.StartTime = start
	a.EndTime = end
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) SetGoogleEventID(_ context.Context, id uuid.UUID, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	a.GoogleEventID = &eventID
	return nil
}

func (r *fakeRepo) MarkReminderSent(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	a.ReminderSent = true
	return nil
}

func (r *fakeRepo) SetConfirmationToken(_ context.Context, id uuid.UUID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	a.ConfirmationToken = &token
	a.ConfirmationSent = true
	return nil
}

func (r *fakeRepo) MarkAttendanceConfirmed(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	a.AttendanceConfirmed = true
	return nil
}

func (r *fakeRepo) UpdateFromRemote(_ context.Context, id uuid.UUID, title, description string, start, end time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return ErrAppointmentNotFound
	}
	a.Title = title
	a.Description = description
	a.StartTime = start
	a.EndTime = end
	a.Status = StatusConfirmed
	a.UpdatedAt = time.Now()
	return nil
}

func (r *fakeRepo) ListAppointments(_ context.Context) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Appointment, 0, len(r.appts))
	for _, a := range r.appts {
		out = append(out, *a)
	}
	sortAppointments(out)
	return out, nil
}

func (r *fakeRepo) ListUserAppointments(_ context.Context, userID uuid.UUID) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appts {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (r *fakeRepo) ListActiveBetween(_ context.Context, from, to time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appts {
		if a.Status == StatusCancelled {
			continue
		}
		if a.StartTime.Before(from) || a.StartTime.After(to) {
			continue
		}
		out = append(out, *a)
	}
	sortAppointments(out)
	return out, nil
}

func (r *fakeRepo) FindUserAppointmentInWeek(_ context.Context, userID uuid.UUID, weekStart, weekEnd time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.appts {
		if a.UserID != userID || a.Status == StatusCancelled {
			continue
		}
		if a.StartTime.Before(weekStart) || a.StartTime.After(weekEnd) {
			continue
		}
		cp := *a
		return &cp, nil
	}
	return nil, ErrAppointmentNotFound
}

func (r *fakeRepo) FindOverlapping(_ context.Context, start, end time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.appts {
		if a.Status == StatusCancelled {
			continue
		}
		if a.StartTime.Before(end) && start.Before(a.EndTime) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (r *fakeRepo) FindDueReminders(_ context.Context, from, to time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appts {
		if a.Status == StatusCancelled || a.ReminderSent {
			continue
		}
		if a.StartTime.Before(from) || a.StartTime.After(to) {
			continue
		}
		out = append(out, *a)
	}
	sortAppointments(out)
	return out, nil
}

func (r *fakeRepo) FindDueConfirmations(_ context.Context, from, to time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appts {
		if a.Status == StatusCancelled || a.ConfirmationSent {
			continue
		}
		if a.StartTime.Before(from) || a.StartTime.After(to) {
			continue
		}
		out = append(out, *a)
	}
	sortAppointments(out)
	return out, nil
}

func (r *fakeRepo) ListAvailabilityRules(_ context.Context) ([]AvailabilityRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AvailabilityRule(nil), r.rules...), nil
}

func (r *fakeRepo) RulesForDay(_ context.Context, dayOfWeek int) ([]AvailabilityRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []AvailabilityRule
	for _, rule := range r.rules {
		if rule.DayOfWeek == dayOfWeek && rule.IsAvailable {
			out = append(out, rule)
		}
	}
	return out, nil
}

func (r *fakeRepo) CountAvailabilityRules(_ context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rules), nil
}

func (r *fakeRepo) CreateAvailabilityRules(_ context.Context, rules []AvailabilityRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rule := range rules {
		if rule.ID == uuid.Nil {
			rule.ID = uuid.New()
		}
		r.rules = append(r.rules, rule)
	}
	return nil
}

func sortAppointments(appts []Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		return appts[i].StartTime.Before(appts[j].StartTime)
	})
}

// fakeCalendar is an in-memory calendar.Client.
type fakeCalendar struct {
	mu sync.Mutex

	events    []calendar.Event
	listErr   error
	createErr error

	created []calendar.EventInput
	deleted []string
	patched map[string]string

	nextID int
}

func newFakeCalendar(events ...calendar.Event) *fakeCalendar {
	return &fakeCalendar{events: events, patched: make(map[string]string)}
}

func (c *fakeCalendar) ListUpcoming(_ context.Context, _ string, maxResults int64) ([]calendar.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	out := append([]calendar.Event(nil), c.events...)
	if int64(len(out)) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}

func (c *fakeCalendar) ListBetween(_ context.Context, _ string, from, to time.Time, _ string) ([]calendar.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	var out []calendar.Event
	for _, ev := range c.events {
		if ev.Start.Before(to) && from.Before(ev.End) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (c *fakeCalendar) CreateEvent(_ context.Context, _ string, in calendar.EventInput) (*calendar.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return nil, c.createErr
	}
	c.nextID++
	ev := calendar.Event{
		ID:          fmt.Sprintf("ev-%d", c.nextID),
		Summary:     in.Summary,
		Description: in.Description,
		Start:       in.Start,
		End:         in.End,
		Attendees:   in.Attendees,
	}
	c.events = append(c.events, ev)
	c.created = append(c.created, in)
	return &ev, nil
}

func (c *fakeCalendar) UpdateEvent(_ context.Context, _ string, eventID string, in calendar.EventInput) (*calendar.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.events {
		if c.events[i].ID == eventID {
			c.events[i].Summary = in.Summary
			c.events[i].Description = in.Description
			c.events[i].Start = in.Start
			c.events[i].End = in.End
			ev := c.events[i]
			return &ev, nil
		}
	}
	return nil, fmt.Errorf("event %s not found", eventID)
}

func (c *fakeCalendar) PatchDescription(_ context.Context, _ string, eventID, description string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.patched[eventID] = description
	return nil
}

func (c *fakeCalendar) DeleteEvent(_ context.Context, _ string, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, eventID)
	for i := range c.events {
		if c.events[i].ID == eventID {
			c.events = append(c.events[:i], c.events[i+1:]...)
			break
		}
	}
	return nil
}

func (c *fakeCalendar) AuthURL(state string) string {
	return "https://example.test/auth?state=" + state
}

func (c *fakeCalendar) ExchangeCode(_ context.Context, code string) (string, error) {
	return "refresh-" + code, nil
}

func fakeEvent(id string, start, end time.Time) calendar.Event {
	return calendar.Event{
		ID:      id,
		Summary: "Busy",
		Start:   start,
		End:     end,
	}
}

// fakeNotifier records every notification.
type fakeNotifier struct {
	mu sync.Mutex

	confirmed     []notify.Appointment
	cancelled     []string
	reminders     []notify.Appointment
	confirmations []string // confirm URLs
	statusChanges []string

	err error
}

func (n *fakeNotifier) BookingConfirmed(_ context.Context, _ notify.Recipient, appt notify.Appointment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.confirmed = append(n.confirmed, appt)
	return nil
}

func (n *fakeNotifier) BookingCancelled(_ context.Context, _ notify.Recipient, _ notify.Appointment, reason string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.cancelled = append(n.cancelled, reason)
	return nil
}

func (n *fakeNotifier) Reminder(_ context.Context, _ notify.Recipient, appt notify.Appointment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.reminders = append(n.reminders, appt)
	return nil
}

func (n *fakeNotifier) AttendanceConfirmation(_ context.Context, _ notify.Recipient, _ notify.Appointment, confirmURL string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.confirmations = append(n.confirmations, confirmURL)
	return nil
}

func (n *fakeNotifier) StatusChanged(_ context.Context, _ notify.Recipient, _ notify.Appointment, status string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.statusChanges = append(n.statusChanges, status)
	return nil
}

// fakeLocker runs the critical section inline, optionally simulating a held lock.
type fakeLocker struct {
	contended bool
	calls     int
}

func (l *fakeLocker) WithSlotLock(ctx context.Context, _ time.Time, fn func(ctx context.Context) error) error {
	l.calls++
	if l.contended {
		return redisclient.ErrLockNotAcquired
	}
	return fn(ctx)
}
