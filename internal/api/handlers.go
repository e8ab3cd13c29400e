package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bookline/booking-engine/internal/booking"
	"github.com/bookline/booking-engine/pkg/logging"
)

// Server holds the handlers for the booking HTTP surface.
type Server struct {
	svc             *booking.Service
	reminders       *booking.ReminderScheduler
	confirmations   *booking.ConfirmationFlow
	reconciler      *booking.Reconciler
	defaultTimezone string
	logger          *logging.Logger
}

func NewServer(
	svc *booking.Service,
	reminders *booking.ReminderScheduler,
	confirmations *booking.ConfirmationFlow,
	reconciler *booking.Reconciler,
	defaultTimezone string,
	logger *logging.Logger,
) *Server {
	if logger == nil {
		logger = logging.Default()
	}
	return &Server{
		svc:             svc,
		reminders:       reminders,
		confirmations:   confirmations,
		reconciler:      reconciler,
		defaultTimezone: defaultTimezone,
		logger:          logger,
	}
}

// respondError maps domain sentinels onto HTTP statuses.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrInvalidTimeRange),
		errors.Is(err, booking.ErrInvalidTimezone),
		errors.Is(err, booking.ErrInvalidStatus),
		errors.Is(err, booking.ErrCalendarNotConnected):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, booking.ErrLeadTime),
		errors.Is(err, booking.ErrWeeklyLimit),
		errors.Is(err, booking.ErrSlotUnavailable),
		errors.Is(err, booking.ErrSlotContended),
		errors.Is(err, booking.ErrRulesExist):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, booking.ErrNotOwner):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound),
		errors.Is(err, booking.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseDateParam accepts a plain date or an RFC 3339 timestamp. Plain dates
// are anchored in the requested timezone.
func parseDateParam(value string, loc *time.Location) (time.Time, bool) {
	if t, err := time.ParseInLocation("2006-01-02", value, loc); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func (s *Server) handleAvailability() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timezone := r.URL.Query().Get("timezone")
		if timezone == "" {
			timezone = s.defaultTimezone
		}
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unknown timezone")
			return
		}

		// Missing bounds default to the next seven days.
		from := time.Now().In(loc)
		if v := r.URL.Query().Get("startDate"); v != "" {
			parsed, ok := parseDateParam(v, loc)
			if !ok {
				writeError(w, http.StatusBadRequest, "invalid startDate (YYYY-MM-DD)")
				return
			}
			from = parsed
		}
		to := from.AddDate(0, 0, 7)
		if v := r.URL.Query().Get("endDate"); v != "" {
			parsed, ok := parseDateParam(v, loc)
			if !ok {
				writeError(w, http.StatusBadRequest, "invalid endDate (YYYY-MM-DD)")
				return
			}
			// A plain end date means the whole day.
			if parsed.Hour() == 0 && parsed.Minute() == 0 && parsed.Second() == 0 {
				parsed = parsed.Add(24*time.Hour - time.Second)
			}
			to = parsed
		}
		if to.Before(from) {
			writeError(w, http.StatusBadRequest, "endDate must not precede startDate")
			return
		}

		slots, err := s.svc.Availability(r.Context(), from, to, timezone)
		if err != nil {
			s.respondError(w, err)
			return
		}
		if slots == nil {
			slots = []booking.Slot{}
		}
		writeJSON(w, http.StatusOK, availabilityResponse{Slots: slots, Timezone: timezone})
	}
}

func (s *Server) handleCreateAppointment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		var req createAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Title == "" {
			writeError(w, http.StatusBadRequest, "title is required")
			return
		}
		if req.StartTime.IsZero() || req.EndTime.IsZero() {
			writeError(w, http.StatusBadRequest, "startTime and endTime are required")
			return
		}

		appt, err := s.svc.Book(r.Context(), id.UserID, booking.BookingRequest{
			Title:       req.Title,
			Description: req.Description,
			Start:       req.StartTime,
			End:         req.EndTime,
			Timezone:    req.Timezone,
		})
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func (s *Server) handleListAppointments() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appts, err := s.svc.ListAll(r.Context())
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	}
}

func (s *Server) handleListMine() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		appts, err := s.svc.ListForUser(r.Context(), id.UserID)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	}
}

func (s *Server) handleUpdateAppointment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		apptID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid appointment id")
			return
		}

		var req updateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		appt, err := s.svc.Update(r.Context(), apptID, id.UserID, booking.UpdateRequest{
			Title:       req.Title,
			Description: req.Description,
			Start:       req.StartTime,
			End:         req.EndTime,
		})
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func (s *Server) handleCancelAppointment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		apptID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid appointment id")
			return
		}

		var req cancelAppointmentRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req) // body is optional
		}

		if err := s.svc.Cancel(r.Context(), apptID, id.UserID, req.CancellationReason); err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "appointment cancelled"})
	}
}

func (s *Server) handleSetStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apptID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid appointment id")
			return
		}

		var req setStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		appt, err := s.svc.SetStatus(r.Context(), apptID, booking.Status(req.Status))
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func (s *Server) handleConfirmAttendance() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")

		res, err := s.confirmations.Confirm(r.Context(), token)
		if err != nil {
			s.respondError(w, err)
			return
		}

		message := "attendance confirmed"
		if res.AlreadyConfirmed {
			message = "attendance was already confirmed"
		}
		writeJSON(w, http.StatusOK, confirmAttendanceResponse{
			Message:          message,
			AlreadyConfirmed: res.AlreadyConfirmed,
			Appointment:      toAppointmentResponse(res.Appointment),
		})
	}
}

func (s *Server) handleSendReminders() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := s.reminders.SendDueReminders(r.Context())
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, batchResponse{Processed: result.Processed, Sent: result.Sent})
	}
}

func (s *Server) handleSendConfirmations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := s.confirmations.SendDueConfirmations(r.Context())
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, batchResponse{Processed: result.Processed, Sent: result.Sent})
	}
}

func (s *Server) handleSyncCalendar() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := s.reconciler.Sync(r.Context())
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, syncResponse{Created: result.Created, Updated: result.Updated})
	}
}

func (s *Server) handleSeedDefaultRules() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rules, err := s.svc.SeedDefaultRules(r.Context())
		if err != nil {
			s.respondError(w, err)
			return
		}
		out := make([]ruleResponse, 0, len(rules))
		for _, rule := range rules {
			out = append(out, ruleResponse{
				DayOfWeek:   rule.DayOfWeek,
				StartTime:   rule.StartTime,
				EndTime:     rule.EndTime,
				IsAvailable: rule.IsAvailable,
			})
		}
		writeJSON(w, http.StatusCreated, out)
	}
}

func (s *Server) handleGoogleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := s.svc.CheckCalendar(r.Context())
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, calendarStatusResponse{
			Connected:      status.Connected,
			UpcomingEvents: status.UpcomingEvents,
		})
	}
}

func (s *Server) handleGoogleAuthURL() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		url, err := s.svc.CalendarAuthURL(r.URL.Query().Get("state"))
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": url})
	}
}

func (s *Server) handleGoogleCallback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			writeError(w, http.StatusBadRequest, "code is required")
			return
		}
		if err := s.svc.ConnectCalendar(r.Context(), code); err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "google calendar connected"})
	}
}
