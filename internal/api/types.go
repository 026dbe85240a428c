package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/scheduling/internal/appointment"
)

type BookAppointmentRequest struct {
	PatientID string    `json:"patient_id"`
	DoctorID  string    `json:"doctor_id"`
	StartsAt  time.Time `json:"starts_at"`
	Reason    string    `json:"reason"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type CompleteAppointmentRequest struct {
	Notes string `json:"notes"`
}

type RescheduleAppointmentRequest struct {
	StartsAt time.Time `json:"starts_at"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID  `json:"id"`
	PatientID          uuid.UUID  `json:"patient_id"`
	DoctorID           uuid.UUID  `json:"doctor_id"`
	ScheduledAt        time.Time  `json:"scheduled_at"`
	Status             string     `json:"status"`
	Reason             string     `json:"reason"`
	ConsultationFee    float64    `json:"consultation_fee"`
	FeeCurrency        string     `json:"fee_currency"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	DoctorNotes        *string    `json:"doctor_notes,omitempty"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	ModifiedAt         *time.Time `json:"modified_at,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		PatientID:          a.PatientID,
		DoctorID:           a.DoctorID,
		ScheduledAt:        a.ScheduledTime.Value(),
		Status:             string(a.Status),
		Reason:             a.Reason,
		ConsultationFee:    a.ConsultationFee.Amount(),
		FeeCurrency:        a.ConsultationFee.Currency(),
		CancellationReason: a.CancellationReason,
		DoctorNotes:        a.DoctorNotes,
		ConfirmedAt:        a.ConfirmedAt,
		CompletedAt:        a.CompletedAt,
		CancelledAt:        a.CancelledAt,
		CreatedAt:          a.CreatedAt,
		ModifiedAt:         a.ModifiedAt,
	}
}
