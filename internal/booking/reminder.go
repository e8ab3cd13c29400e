package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bookline/booking-engine/internal/notify"
	"github.com/bookline/booking-engine/internal/observability/metrics"
	"github.com/bookline/booking-engine/pkg/logging"
)

// BatchResult reports one sweep of a periodic worker.
type BatchResult struct {
	Processed int
	Sent      int
}

// ReminderScheduler delivers the pre-appointment reminder email. Two
// mechanisms cooperate: an in-process timer armed at booking time, and a
// periodic sweep that catches appointments whose timer was lost to a restart.
// Both funnel through fire, which reloads the appointment and checks the
// reminder_sent flag, so duplicate delivery is suppressed no matter which
// path runs first.
type ReminderScheduler struct {
	repo     Repository
	notifier notify.Notifier
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
	lead     time.Duration

	now       func() time.Time
	afterFunc func(d time.Duration, f func()) *time.Timer

	mu     sync.Mutex
	timers map[uuid.UUID]*time.Timer
}

func NewReminderScheduler(
	repo Repository,
	notifier notify.Notifier,
	m *metrics.BookingMetrics,
	lead time.Duration,
	logger *logging.Logger,
) *ReminderScheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ReminderScheduler{
		repo:      repo,
		notifier:  notifier,
		metrics:   m,
		logger:    logger,
		lead:      lead,
		now:       time.Now,
		afterFunc: time.AfterFunc,
		timers:    make(map[uuid.UUID]*time.Timer),
	}
}

// WithClock overrides the scheduler clock and timer factory. Test hook.
func (r *ReminderScheduler) WithClock(now func() time.Time, afterFunc func(time.Duration, func()) *time.Timer) *ReminderScheduler {
	if now != nil {
		r.now = now
	}
	if afterFunc != nil {
		r.afterFunc = afterFunc
	}
	return r
}

// Arm schedules the in-process reminder timer for a fresh booking. Nothing is
// armed when the reminder moment is already in the past; the appointment is
// simply too close for a reminder.
func (r *ReminderScheduler) Arm(appt *Appointment) {
	fireAt := appt.StartTime.Add(-r.lead)
	delay := fireAt.Sub(r.now())
	if delay <= 0 {
		return
	}

	id := appt.ID
	timer := r.afterFunc(delay, func() {
		r.Disarm(id)
		r.fire(context.Background(), id)
	})

	r.mu.Lock()
	if prev, ok := r.timers[id]; ok {
		prev.Stop()
	}
	r.timers[id] = timer
	r.mu.Unlock()
}

// Disarm stops a pending timer, typically after a cancellation.
func (r *ReminderScheduler) Disarm(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if timer, ok := r.timers[id]; ok {
		timer.Stop()
		delete(r.timers, id)
	}
}

// Stop cancels every pending timer. Used during shutdown.
func (r *ReminderScheduler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, timer := range r.timers {
		timer.Stop()
		delete(r.timers, id)
	}
}

// fire reloads the appointment and sends the reminder if it is still due.
// The reload is what makes timers safe: a cancelled or already-reminded
// appointment is silently skipped.
func (r *ReminderScheduler) fire(ctx context.Context, id uuid.UUID) {
	appt, err := r.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrAppointmentNotFound) {
			r.logger.Error("reload appointment for reminder", "error", err, "appointment_id", id)
		}
		return
	}
	if appt.Status == StatusCancelled || appt.ReminderSent {
		return
	}
	if err := r.send(ctx, appt); err != nil {
		r.logger.Error("send reminder", "error", err, "appointment_id", id)
	}
}

func (r *ReminderScheduler) send(ctx context.Context, appt *Appointment) error {
	owner, err := r.repo.GetUserByID(ctx, appt.UserID)
	if err != nil {
		return fmt.Errorf("load appointment owner: %w", err)
	}
	if r.notifier != nil {
		if err := r.notifier.Reminder(ctx, recipient(owner), notifyAppointment(appt)); err != nil {
			return err
		}
	}
	if err := r.repo.MarkReminderSent(ctx, appt.ID); err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	r.metrics.ObserveReminderSent()
	r.logger.Info("reminder sent", "appointment_id", appt.ID, "start", appt.StartTime)
	return nil
}

// reminderSweepWidth pads the sweep window past the lead so a slightly late
// tick does not skip over an appointment.
const reminderSweepWidth = 5 * time.Minute

// SendDueReminders sweeps for confirmed appointments starting one lead away
// and sends any reminder not already delivered by a timer.
func (r *ReminderScheduler) SendDueReminders(ctx context.Context) (BatchResult, error) {
	now := r.now()
	from := now.Add(r.lead)
	to := from.Add(reminderSweepWidth)

	due, err := r.repo.FindDueReminders(ctx, from, to)
	if err != nil {
		return BatchResult{}, fmt.Errorf("find due reminders: %w", err)
	}

	result := BatchResult{Processed: len(due)}
	for i := range due {
		appt := &due[i]
		if err := r.send(ctx, appt); err != nil {
			r.logger.Error("send reminder", "error", err, "appointment_id", appt.ID)
			continue
		}
		r.Disarm(appt.ID)
		result.Sent++
	}
	return result, nil
}
