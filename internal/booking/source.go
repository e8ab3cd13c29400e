package booking

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bookline/booking-engine/internal/calendar"
)

// AvailabilitySource produces the working windows and busy intervals slot
// generation needs. The two variants intentionally use different slot
// granularities: hour-long slots against the external calendar, half-hour
// slots against the local rule table.
type AvailabilitySource interface {
	Name() string
	SlotDuration() time.Duration

	// Windows returns the bookable windows for one calendar day. day must be
	// midnight in the source's location.
	Windows(ctx context.Context, day time.Time) ([]Interval, error)

	// BusyIntervals returns occupied ranges overlapping [from, to], ordered
	// by start.
	BusyIntervals(ctx context.Context, from, to time.Time) ([]Interval, error)
}

const (
	externalSlotDuration = time.Hour
	localSlotDuration    = 30 * time.Minute

	externalDayStartHour = 9
	externalDayEndHour   = 17
)

// GoogleCalendarSource derives availability from the admin's external
// calendar: fixed weekday working hours minus existing events.
type GoogleCalendarSource struct {
	cal        calendar.Client
	credential string
	timezone   string
	loc        *time.Location
}

func NewGoogleCalendarSource(cal calendar.Client, credential, timezone string, loc *time.Location) *GoogleCalendarSource {
	return &GoogleCalendarSource{
		cal:        cal,
		credential: credential,
		timezone:   timezone,
		loc:        loc,
	}
}

func (s *GoogleCalendarSource) Name() string { return "google-calendar" }

func (s *GoogleCalendarSource) SlotDuration() time.Duration { return externalSlotDuration }

func (s *GoogleCalendarSource) Windows(_ context.Context, day time.Time) ([]Interval, error) {
	switch day.Weekday() {
	case time.Saturday, time.Sunday:
		return nil, nil
	}
	return []Interval{{
		Start: time.Date(day.Year(), day.Month(), day.Day(), externalDayStartHour, 0, 0, 0, s.loc),
		End:   time.Date(day.Year(), day.Month(), day.Day(), externalDayEndHour, 0, 0, 0, s.loc),
	}}, nil
}

func (s *GoogleCalendarSource) BusyIntervals(ctx context.Context, from, to time.Time) ([]Interval, error) {
	events, err := s.cal.ListBetween(ctx, s.credential, from, to, s.timezone)
	if err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}

	intervals := make([]Interval, 0, len(events))
	for _, ev := range events {
		if ev.Start.IsZero() || ev.End.IsZero() {
			continue
		}
		intervals = append(intervals, Interval{Start: ev.Start, End: ev.End})
	}
	return intervals, nil
}

// LocalRuleSource derives availability from the weekly rule table, with
// booked appointments as the busy intervals.
type LocalRuleSource struct {
	repo Repository
	loc  *time.Location
}

func NewLocalRuleSource(repo Repository, loc *time.Location) *LocalRuleSource {
	return &LocalRuleSource{repo: repo, loc: loc}
}

func (s *LocalRuleSource) Name() string { return "local-rules" }

func (s *LocalRuleSource) SlotDuration() time.Duration { return localSlotDuration }

func (s *LocalRuleSource) Windows(ctx context.Context, day time.Time) ([]Interval, error) {
	rules, err := s.repo.RulesForDay(ctx, int(day.Weekday()))
	if err != nil {
		return nil, fmt.Errorf("load availability rules: %w", err)
	}

	var windows []Interval
	for _, rule := range rules {
		start, err := atTimeOfDay(day, rule.StartTime, s.loc)
		if err != nil {
			return nil, fmt.Errorf("rule %s start: %w", rule.ID, err)
		}
		end, err := atTimeOfDay(day, rule.EndTime, s.loc)
		if err != nil {
			return nil, fmt.Errorf("rule %s end: %w", rule.ID, err)
		}
		if !start.Before(end) {
			continue
		}
		windows = append(windows, Interval{Start: start, End: end})
	}
	return windows, nil
}

func (s *LocalRuleSource) BusyIntervals(ctx context.Context, from, to time.Time) ([]Interval, error) {
	appts, err := s.repo.ListActiveBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list booked appointments: %w", err)
	}

	intervals := make([]Interval, 0, len(appts))
	for _, a := range appts {
		intervals = append(intervals, Interval{Start: a.StartTime, End: a.EndTime})
	}
	return intervals, nil
}

// atTimeOfDay resolves an "HH:MM" rule time onto a concrete date.
func atTimeOfDay(day time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("malformed time %q", hhmm)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("malformed hour in %q", hhmm)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("malformed minute in %q", hhmm)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc), nil
}
