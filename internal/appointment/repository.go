package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Repository contains all DB interactions needed by the booking service
// and the workers.
type Repository interface {
	FindPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	FindDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	FindAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// FindDoctorAppointments narrows the conflict-scan candidate set to one
	// doctor's calendar day. day is midnight UTC.
	FindDoctorAppointments(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]Appointment, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	// Reminder worker
	FindNeedingReminder(ctx context.Context, now time.Time, window time.Duration) ([]Appointment, error)
	MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error

	// Audit observer
	InsertEvent(ctx context.Context, ev EventLog) error

	// Begin opens the unit of work for a booking or transition.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is the unit of work: the appointment write plus commit happen
// atomically, or not at all.
type Tx interface {
	SaveAppointment(ctx context.Context, a *Appointment) error

	// UpdateAppointment persists the aggregate's current state, guarded by a
	// compare on the status the caller loaded. A vanished row or a lost
	// status race surfaces as ErrAppointmentNotFound.
	UpdateAppointment(ctx context.Context, a *Appointment, from AppointmentStatus) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
