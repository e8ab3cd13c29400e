// Package notify composes and delivers the appointment emails. Every call is
// best-effort from the booking core's perspective: failures are returned so
// callers can log them, but the core never lets them abort a booking.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/bookline/booking-engine/pkg/logging"
)

// Recipient identifies who receives a notification.
type Recipient struct {
	Name  string
	Email string
}

// Appointment carries the fields the email bodies need. Kept as a plain value
// so this package stays independent of the booking domain types.
type Appointment struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
}

// Notifier is the notification surface consumed by the booking core.
type Notifier interface {
	BookingConfirmed(ctx context.Context, to Recipient, appt Appointment) error
	BookingCancelled(ctx context.Context, to Recipient, appt Appointment, reason string) error
	Reminder(ctx context.Context, to Recipient, appt Appointment) error
	AttendanceConfirmation(ctx context.Context, to Recipient, appt Appointment, confirmURL string) error
	StatusChanged(ctx context.Context, to Recipient, appt Appointment, status string) error
}

const emailTimeLayout = "Monday, January 2, 2006 at 3:04 PM"

// EmailNotifier renders plain-text bodies and hands them to an EmailSender.
type EmailNotifier struct {
	sender EmailSender
	logger *logging.Logger
}

func NewEmailNotifier(sender EmailSender, logger *logging.Logger) *EmailNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &EmailNotifier{sender: sender, logger: logger}
}

func (n *EmailNotifier) send(ctx context.Context, to Recipient, subject, body string) error {
	if n.sender == nil {
		n.logger.Debug("notify: no email sender configured, dropping message", "subject", subject)
		return nil
	}
	return n.sender.Send(ctx, EmailMessage{
		To:      to.Email,
		ToName:  to.Name,
		Subject: subject,
		Body:    body,
	})
}

func greeting(to Recipient) string {
	if to.Name == "" {
		return "Hello,"
	}
	return fmt.Sprintf("Hello %s,", to.Name)
}

func (n *EmailNotifier) BookingConfirmed(ctx context.Context, to Recipient, appt Appointment) error {
	body := fmt.Sprintf(`%s

Your appointment has been booked.

%s
%s - %s

We look forward to meeting with you.`,
		greeting(to),
		appt.Title,
		appt.Start.Format(emailTimeLayout),
		appt.End.Format("3:04 PM"),
	)
	return n.send(ctx, to, "Appointment Confirmed: "+appt.Title, body)
}

func (n *EmailNotifier) BookingCancelled(ctx context.Context, to Recipient, appt Appointment, reason string) error {
	if reason == "" {
		reason = "No reason provided"
	}
	body := fmt.Sprintf(`%s

Your appointment "%s" on %s has been cancelled.

Reason: %s

You are welcome to book a new time that works for you.`,
		greeting(to),
		appt.Title,
		appt.Start.Format(emailTimeLayout),
		reason,
	)
	return n.send(ctx, to, "Appointment Cancelled: "+appt.Title, body)
}

func (n *EmailNotifier) Reminder(ctx context.Context, to Recipient, appt Appointment) error {
	body := fmt.Sprintf(`%s

This is a reminder that your appointment starts in about an hour.

%s
%s - %s`,
		greeting(to),
		appt.Title,
		appt.Start.Format(emailTimeLayout),
		appt.End.Format("3:04 PM"),
	)
	return n.send(ctx, to, "Reminder: "+appt.Title, body)
}

func (n *EmailNotifier) AttendanceConfirmation(ctx context.Context, to Recipient, appt Appointment, confirmURL string) error {
	body := fmt.Sprintf(`%s

Your appointment "%s" is scheduled for %s.

Please confirm your attendance by clicking the link below:

%s

If you can no longer make it, you can cancel from your dashboard.`,
		greeting(to),
		appt.Title,
		appt.Start.Format(emailTimeLayout),
		confirmURL,
	)
	return n.send(ctx, to, "Please Confirm Your Attendance: "+appt.Title, body)
}

func (n *EmailNotifier) StatusChanged(ctx context.Context, to Recipient, appt Appointment, status string) error {
	body := fmt.Sprintf(`%s

The status of your appointment "%s" on %s has changed to: %s.`,
		greeting(to),
		appt.Title,
		appt.Start.Format(emailTimeLayout),
		status,
	)
	return n.send(ctx, to, "Appointment Update: "+appt.Title, body)
}
