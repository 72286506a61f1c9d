package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/appointment-engine/internal/availability"
	"github.com/clinicdesk/appointment-engine/internal/booking"
	"github.com/clinicdesk/appointment-engine/internal/slot"
)

type CreateAppointmentRequest struct {
	PatientID string `json:"patient_id"`
	DoctorID  string `json:"doctor_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
}

type RescheduleRequest struct {
	DoctorID string `json:"doctor_id,omitempty"` // empty keeps the current doctor
	Date     string `json:"date"`
	Time     string `json:"time"`
}

type CompleteRequest struct {
	Diagnosis    string `json:"diagnosis"`
	Prescription string `json:"prescription,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

type SetAvailabilityRequest struct {
	Date  string `json:"date"`
	Start string `json:"start"`
	End   string `json:"end"`
}

type CreatedResponse struct {
	ID uuid.UUID `json:"id"`
}

type AppointmentResponse struct {
	ID        uuid.UUID `json:"id"`
	PatientID uuid.UUID `json:"patient_id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	Status    string    `json:"status"`
}

type TreatmentResponse struct {
	Diagnosis    string `json:"diagnosis"`
	Prescription string `json:"prescription,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	Treatment *TreatmentResponse `json:"treatment,omitempty"`
}

type WindowResponse struct {
	Date      string    `json:"date"`
	Start     string    `json:"start"`
	End       string    `json:"end"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DoctorDashboardResponse struct {
	Upcoming     []AppointmentResponse `json:"upcoming"`
	Past         []AppointmentResponse `json:"past"`
	Availability []WindowResponse      `json:"availability"`
}

type PatientDashboardResponse struct {
	Upcoming []AppointmentResponse `json:"upcoming"`
	Past     []AppointmentResponse `json:"past"`
}

type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func toAppointmentResponse(a booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		PatientID: a.PatientID,
		DoctorID:  a.DoctorID,
		Date:      slot.FormatDate(a.Date),
		Time:      a.Time.String(),
		Status:    string(a.Status),
	}
}

func toAppointmentResponses(appts []booking.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentResponse(a))
	}
	return out
}

func toWindowResponse(w availability.Window) WindowResponse {
	return WindowResponse{
		Date:      slot.FormatDate(w.Date),
		Start:     w.Start.String(),
		End:       w.End.String(),
		UpdatedAt: w.UpdatedAt,
	}
}

func toWindowResponses(windows []availability.Window) []WindowResponse {
	out := make([]WindowResponse, 0, len(windows))
	for _, w := range windows {
		out = append(out, toWindowResponse(w))
	}
	return out
}
