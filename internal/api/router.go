package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bookline/booking-engine/pkg/logging"
)

// NewRouter assembles the booking HTTP surface.
func NewRouter(srv *Server, health *Health, auth *Authenticator, logger *logging.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(logger))

	r.Get("/health/live", health.Live)
	r.Get("/health/ready", health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/appointments", func(r chi.Router) {
		r.Get("/availability", srv.handleAvailability())
		r.Get("/confirm-attendance/{token}", srv.handleConfirmAttendance())

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth)

			r.Post("/", srv.handleCreateAppointment())
			r.Get("/me", srv.handleListMine())
			r.Put("/{id}", srv.handleUpdateAppointment())
			r.Delete("/{id}", srv.handleCancelAppointment())

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAdmin)

				r.Get("/", srv.handleListAppointments())
				r.Put("/{id}/status", srv.handleSetStatus())
				r.Post("/send-reminders", srv.handleSendReminders())
				r.Post("/send-attendance-confirmations", srv.handleSendConfirmations())
				r.Get("/sync-google-calendar", srv.handleSyncCalendar())
				r.Post("/availability/defaults", srv.handleSeedDefaultRules())
			})
		})
	})

	r.Route("/google", func(r chi.Router) {
		r.With(auth.RequireAuth, auth.RequireAdmin).Get("/auth", srv.handleGoogleAuthURL())
		r.With(auth.RequireAuth, auth.RequireAdmin).Get("/status", srv.handleGoogleStatus())
		r.Get("/oauth2callback", srv.handleGoogleCallback())
	})

	return r
}
