package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters for the booking and reconciliation flows.
// All observe methods are nil-safe so wiring metrics stays optional.
type BookingMetrics struct {
	bookingsTotal      *prometheus.CounterVec
	cancellationsTotal prometheus.Counter
	remindersSent      prometheus.Counter
	confirmationsSent  prometheus.Counter
	attendanceTotal    prometheus.Counter
	syncTotal          *prometheus.CounterVec
	sourceFallbacks    prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookline",
			Subsystem: "booking",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		cancellationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookline",
			Subsystem: "booking",
			Name:      "cancellations_total",
			Help:      "Cancelled appointments",
		}),
		remindersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookline",
			Subsystem: "booking",
			Name:      "reminders_sent_total",
			Help:      "Reminder emails sent",
		}),
		confirmationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookline",
			Subsystem: "booking",
			Name:      "attendance_requests_sent_total",
			Help:      "Attendance confirmation emails sent",
		}),
		attendanceTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookline",
			Subsystem: "booking",
			Name:      "attendance_confirmed_total",
			Help:      "Attendance confirmations recorded",
		}),
		syncTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bookline",
			Subsystem: "calendar",
			Name:      "sync_records_total",
			Help:      "Appointments created or updated by reconciliation",
		}, []string{"action"}),
		sourceFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bookline",
			Subsystem: "calendar",
			Name:      "availability_fallbacks_total",
			Help:      "Availability reads that fell back to local rules",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.bookingsTotal,
		m.cancellationsTotal,
		m.remindersSent,
		m.confirmationsSent,
		m.attendanceTotal,
		m.syncTotal,
		m.sourceFallbacks,
	)
	return m
}

func (m *BookingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveCancellation() {
	if m == nil {
		return
	}
	m.cancellationsTotal.Inc()
}

func (m *BookingMetrics) ObserveReminderSent() {
	if m == nil {
		return
	}
	m.remindersSent.Inc()
}

func (m *BookingMetrics) ObserveConfirmationSent() {
	if m == nil {
		return
	}
	m.confirmationsSent.Inc()
}

func (m *BookingMetrics) ObserveAttendanceConfirmed() {
	if m == nil {
		return
	}
	m.attendanceTotal.Inc()
}

func (m *BookingMetrics) ObserveSync(action string) {
	if m == nil {
		return
	}
	m.syncTotal.WithLabelValues(action).Inc()
}

func (m *BookingMetrics) ObserveSourceFallback() {
	if m == nil {
		return
	}
	m.sourceFallbacks.Inc()
}
