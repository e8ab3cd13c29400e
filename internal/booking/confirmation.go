package booking

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/bookline/booking-engine/internal/notify"
	"github.com/bookline/booking-engine/internal/observability/metrics"
	"github.com/bookline/booking-engine/pkg/logging"
)

// ConfirmationFlow sends day-before attendance confirmation requests and
// records confirmations arriving through the tokenized link.
type ConfirmationFlow struct {
	repo      Repository
	notifier  notify.Notifier
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
	lead      time.Duration
	clientURL string

	now     func() time.Time
	tokenFn func() (string, error)
}

func NewConfirmationFlow(
	repo Repository,
	notifier notify.Notifier,
	m *metrics.BookingMetrics,
	lead time.Duration,
	clientURL string,
	logger *logging.Logger,
) *ConfirmationFlow {
	if logger == nil {
		logger = logging.Default()
	}
	return &ConfirmationFlow{
		repo:      repo,
		notifier:  notifier,
		metrics:   m,
		logger:    logger,
		lead:      lead,
		clientURL: strings.TrimRight(clientURL, "/"),
		now:       time.Now,
		tokenFn:   newConfirmationToken,
	}
}

// WithClock overrides the flow clock and token generator. Test hook.
func (f *ConfirmationFlow) WithClock(now func() time.Time, tokenFn func() (string, error)) *ConfirmationFlow {
	if now != nil {
		f.now = now
	}
	if tokenFn != nil {
		f.tokenFn = tokenFn
	}
	return f
}

func newConfirmationToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate confirmation token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// confirmationSweepWidth matches the worker cadence so consecutive sweeps
// cover adjoining windows.
const confirmationSweepWidth = time.Hour

// SendDueConfirmations sweeps for confirmed appointments starting one lead
// away, mints a token for each, and emails the confirmation link. The token
// write and the sent flag land in one update, so a failed email leaves the
// appointment marked and it is not retried; the reminder still covers it.
func (f *ConfirmationFlow) SendDueConfirmations(ctx context.Context) (BatchResult, error) {
	now := f.now()
	from := now.Add(f.lead)
	to := from.Add(confirmationSweepWidth)

	due, err := f.repo.FindDueConfirmations(ctx, from, to)
	if err != nil {
		return BatchResult{}, fmt.Errorf("find due confirmations: %w", err)
	}

	result := BatchResult{Processed: len(due)}
	for i := range due {
		appt := &due[i]

		token, err := f.tokenFn()
		if err != nil {
			f.logger.Error("generate confirmation token", "error", err, "appointment_id", appt.ID)
			continue
		}
		if err := f.repo.SetConfirmationToken(ctx, appt.ID, token); err != nil {
			f.logger.Error("store confirmation token", "error", err, "appointment_id", appt.ID)
			continue
		}

		owner, err := f.repo.GetUserByID(ctx, appt.UserID)
		if err != nil {
			f.logger.Error("load appointment owner", "error", err, "appointment_id", appt.ID)
			continue
		}

		confirmURL := fmt.Sprintf("%s/confirm-attendance/%s", f.clientURL, token)
		if f.notifier != nil {
			if err := f.notifier.AttendanceConfirmation(ctx, recipient(owner), notifyAppointment(appt), confirmURL); err != nil {
				f.logger.Error("send attendance confirmation request", "error", err, "appointment_id", appt.ID)
				continue
			}
		}

		f.metrics.ObserveConfirmationSent()
		result.Sent++
	}
	return result, nil
}

// ConfirmationResult reports a confirmation lookup.
type ConfirmationResult struct {
	Appointment      *Appointment
	AlreadyConfirmed bool
}

// Confirm records attendance for the appointment holding the token. The token
// stays valid after use, so re-clicking the link succeeds and reports that
// attendance was already confirmed.
func (f *ConfirmationFlow) Confirm(ctx context.Context, token string) (*ConfirmationResult, error) {
	if token == "" {
		return nil, ErrAppointmentNotFound
	}

	appt, err := f.repo.GetAppointmentByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if appt.AttendanceConfirmed {
		return &ConfirmationResult{Appointment: appt, AlreadyConfirmed: true}, nil
	}

	if err := f.repo.MarkAttendanceConfirmed(ctx, appt.ID); err != nil {
		return nil, fmt.Errorf("mark attendance confirmed: %w", err)
	}
	appt.AttendanceConfirmed = true

	f.metrics.ObserveAttendanceConfirmed()
	f.logger.Info("attendance confirmed", "appointment_id", appt.ID)
	return &ConfirmationResult{Appointment: appt}, nil
}
