package appointment

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
	StatusNoShow    AppointmentStatus = "no_show"
)

const (
	minReasonLength = 10
	minNotesLength  = 20
)

var (
	ErrPatientInactive            = errors.New("patient is not active")
	ErrDoctorInactive             = errors.New("doctor is not active")
	ErrDoctorNotAccepting         = errors.New("doctor is not accepting new patients")
	ErrReasonTooShort             = fmt.Errorf("booking reason must be at least %d characters", minReasonLength)
	ErrCancellationReasonTooShort = fmt.Errorf("cancellation reason must be at least %d characters", minReasonLength)
	ErrNotesTooShort              = fmt.Errorf("doctor notes must be at least %d characters", minNotesLength)
	ErrScheduledTimePassed        = errors.New("scheduled time has already passed")
	ErrTooEarlyForNoShow          = errors.New("cannot mark no-show before the scheduled time")
	ErrSameScheduledTime          = errors.New("new time matches the current scheduled time")
)

// InvalidStateError reports a lifecycle operation attempted from a status
// that does not permit it.
type InvalidStateError struct {
	Operation string
	Status    AppointmentStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s an appointment in status %q", e.Operation, e.Status)
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID                uuid.UUID
	Name              string
	Specialty         *string
	Active            bool
	AcceptingPatients bool
	ConsultationFee   Money
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsAvailable reports whether the doctor can take an appointment at the
// candidate time given the already-booked appointments for that day.
// Cancelled and no-show entries do not block a slot. A conflict is any
// booking strictly inside the buffer on either side of the candidate.
func (d *Doctor) IsAvailable(candidate AppointmentTime, existing []Appointment) bool {
	if !d.Active || !d.AcceptingPatients {
		return false
	}
	for i := range existing {
		a := &existing[i]
		if a.Status == StatusCancelled || a.Status == StatusNoShow {
			continue
		}
		diff := a.ScheduledTime.Value().Sub(candidate.Value())
		if diff < 0 {
			diff = -diff
		}
		if diff < ConflictBuffer {
			return false
		}
	}
	return true
}

// Appointment is the aggregate root of the booking lifecycle. It owns a
// queue of not-yet-published events; every state-changing operation except
// Reschedule appends exactly one event. Instances are not safe for
// concurrent mutation.
type Appointment struct {
	ID                 uuid.UUID
	PatientID          uuid.UUID
	DoctorID           uuid.UUID
	ScheduledTime      AppointmentTime
	Status             AppointmentStatus
	Reason             string
	ConsultationFee    Money
	CancellationReason *string
	DoctorNotes        *string
	ConfirmedAt        *time.Time
	CompletedAt        *time.Time
	CancelledAt        *time.Time
	RemindedAt         *time.Time
	CreatedAt          time.Time
	ModifiedAt         *time.Time

	events []DomainEvent
}

// NewAppointment is the only way to create an appointment. It enforces
// eligibility of both parties and a minimum booking reason.
func NewAppointment(patient *Patient, doctor *Doctor, scheduledTime AppointmentTime, reason string) (*Appointment, error) {
	if !patient.Active {
		return nil, ErrPatientInactive
	}
	if !doctor.Active {
		return nil, ErrDoctorInactive
	}
	if !doctor.AcceptingPatients {
		return nil, ErrDoctorNotAccepting
	}
	if len(strings.TrimSpace(reason)) < minReasonLength {
		return nil, ErrReasonTooShort
	}

	a := &Appointment{
		ID:              uuid.New(),
		PatientID:       patient.ID,
		DoctorID:        doctor.ID,
		ScheduledTime:   scheduledTime,
		Status:          StatusPending,
		Reason:          reason,
		ConsultationFee: doctor.ConsultationFee,
		CreatedAt:       time.Now().UTC(),
	}
	a.raise(&AppointmentCreated{
		baseEvent:     newBaseEvent(),
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		DoctorID:      a.DoctorID,
		ScheduledFor:  a.ScheduledTime.Value(),
	})
	return a, nil
}

func (a *Appointment) Confirm() error {
	if a.Status != StatusPending {
		return &InvalidStateError{Operation: "confirm", Status: a.Status}
	}
	now := time.Now().UTC()
	if a.ScheduledTime.IsPast(now) {
		return ErrScheduledTimePassed
	}
	a.Status = StatusConfirmed
	a.ConfirmedAt = &now
	a.touch(now)
	a.raise(&AppointmentConfirmed{
		baseEvent:     newBaseEvent(),
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		DoctorID:      a.DoctorID,
		ConfirmedAt:   now,
	})
	return nil
}

func (a *Appointment) Cancel(reason string) error {
	if a.Status != StatusPending && a.Status != StatusConfirmed {
		return &InvalidStateError{Operation: "cancel", Status: a.Status}
	}
	if len(strings.TrimSpace(reason)) < minReasonLength {
		return ErrCancellationReasonTooShort
	}
	now := time.Now().UTC()
	a.Status = StatusCancelled
	a.CancellationReason = &reason
	a.CancelledAt = &now
	a.touch(now)
	a.raise(&AppointmentCancelled{
		baseEvent:     newBaseEvent(),
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		DoctorID:      a.DoctorID,
		Reason:        reason,
		CancelledAt:   now,
	})
	return nil
}

func (a *Appointment) Complete(notes string) error {
	if a.Status != StatusConfirmed {
		return &InvalidStateError{Operation: "complete", Status: a.Status}
	}
	if len(strings.TrimSpace(notes)) < minNotesLength {
		return ErrNotesTooShort
	}
	now := time.Now().UTC()
	a.Status = StatusCompleted
	a.DoctorNotes = &notes
	a.CompletedAt = &now
	a.touch(now)
	a.raise(&AppointmentCompleted{
		baseEvent:     newBaseEvent(),
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		DoctorID:      a.DoctorID,
		CompletedAt:   now,
	})
	return nil
}

func (a *Appointment) MarkNoShow() error {
	if a.Status != StatusConfirmed {
		return &InvalidStateError{Operation: "mark no-show for", Status: a.Status}
	}
	now := time.Now().UTC()
	if !a.ScheduledTime.IsPast(now) {
		return ErrTooEarlyForNoShow
	}
	a.Status = StatusNoShow
	a.touch(now)
	a.raise(&AppointmentNoShow{
		baseEvent:     newBaseEvent(),
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		DoctorID:      a.DoctorID,
		ScheduledFor:  a.ScheduledTime.Value(),
	})
	return nil
}

// Reschedule replaces the scheduled time. It raises no event; downstream
// observers only hear about lifecycle status changes.
func (a *Appointment) Reschedule(newTime AppointmentTime) error {
	if a.Status != StatusPending && a.Status != StatusConfirmed {
		return &InvalidStateError{Operation: "reschedule", Status: a.Status}
	}
	if newTime.Equal(a.ScheduledTime) {
		return ErrSameScheduledTime
	}
	a.ScheduledTime = newTime
	a.touch(time.Now().UTC())
	return nil
}

func (a *Appointment) touch(now time.Time) {
	a.ModifiedAt = &now
}

func (a *Appointment) raise(ev DomainEvent) {
	a.events = append(a.events, ev)
}

// Events returns the queued, not-yet-published events in emission order.
func (a *Appointment) Events() []DomainEvent {
	return a.events
}

// ClearEvents drains the queue once dispatch has succeeded.
func (a *Appointment) ClearEvents() {
	a.events = nil
}

// EventLog is a persisted audit record of a dispatched domain event.
type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
