package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clinicore/scheduling/internal/appointment"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeServiceError maps domain failures onto HTTP statuses. Validation
// problems are 400s, business conflicts 409s, unknown ids 404s; anything
// else is a storage or infrastructure failure.
func writeServiceError(w http.ResponseWriter, err error) {
	var timeErr *appointment.InvalidAppointmentTimeError
	var moneyErr *appointment.InvalidMoneyError
	var stateErr *appointment.InvalidStateError

	switch {
	case errors.As(err, &timeErr):
		writeError(w, http.StatusBadRequest, "invalid_appointment_time", err.Error())
	case errors.As(err, &moneyErr):
		writeError(w, http.StatusBadRequest, "invalid_money", err.Error())
	case errors.Is(err, appointment.ErrReasonTooShort),
		errors.Is(err, appointment.ErrCancellationReasonTooShort),
		errors.Is(err, appointment.ErrNotesTooShort):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.As(err, &stateErr):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, appointment.ErrDoctorNotAvailable):
		writeError(w, http.StatusConflict, "doctor_not_available", err.Error())
	case errors.Is(err, appointment.ErrCalendarBusy):
		writeError(w, http.StatusConflict, "calendar_busy", "doctor calendar is being modified, please retry shortly")
	case errors.Is(err, appointment.ErrPatientInactive),
		errors.Is(err, appointment.ErrDoctorInactive),
		errors.Is(err, appointment.ErrDoctorNotAccepting),
		errors.Is(err, appointment.ErrScheduledTimePassed),
		errors.Is(err, appointment.ErrTooEarlyForNoShow),
		errors.Is(err, appointment.ErrSameScheduledTime):
		writeError(w, http.StatusConflict, "business_rule_violation", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
