package api

import (
	"time"

	"github.com/bookline/booking-engine/internal/booking"
)

type createAppointmentRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	Timezone    string    `json:"timezone"`
}

// updateAppointmentRequest uses pointer fields so absent keys leave the
// stored values untouched.
type updateAppointmentRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	StartTime   *time.Time `json:"startTime"`
	EndTime     *time.Time `json:"endTime"`
}

type cancelAppointmentRequest struct {
	CancellationReason string `json:"cancellationReason"`
}

type setStatusRequest struct {
	Status string `json:"status"`
}

type appointmentResponse struct {
	ID                  string    `json:"id"`
	UserID              string    `json:"userId"`
	Title               string    `json:"title"`
	Description         string    `json:"description,omitempty"`
	StartTime           time.Time `json:"startTime"`
	EndTime             time.Time `json:"endTime"`
	Status              string    `json:"status"`
	GoogleEventID       *string   `json:"googleEventId,omitempty"`
	ReminderSent        bool      `json:"reminderSent"`
	ConfirmationSent    bool      `json:"confirmationSent"`
	AttendanceConfirmed bool      `json:"attendanceConfirmed"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

func toAppointmentResponse(a *booking.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:                  a.ID.String(),
		UserID:              a.UserID.String(),
		Title:               a.Title,
		Description:         a.Description,
		StartTime:           a.StartTime,
		EndTime:             a.EndTime,
		Status:              string(a.Status),
		GoogleEventID:       a.GoogleEventID,
		ReminderSent:        a.ReminderSent,
		ConfirmationSent:    a.ConfirmationSent,
		AttendanceConfirmed: a.AttendanceConfirmed,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
}

func toAppointmentResponses(appts []booking.Appointment) []appointmentResponse {
	out := make([]appointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentResponse(&appts[i]))
	}
	return out
}

type availabilityResponse struct {
	Slots    []booking.Slot `json:"slots"`
	Timezone string         `json:"timezone"`
}

type batchResponse struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
}

type calendarStatusResponse struct {
	Connected      bool `json:"connected"`
	UpcomingEvents int  `json:"upcomingEvents"`
}

type syncResponse struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

type confirmAttendanceResponse struct {
	Message          string              `json:"message"`
	AlreadyConfirmed bool                `json:"alreadyConfirmed"`
	Appointment      appointmentResponse `json:"appointment"`
}

type ruleResponse struct {
	DayOfWeek   int    `json:"dayOfWeek"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	IsAvailable bool   `json:"isAvailable"`
}
