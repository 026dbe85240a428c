package appointment

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentNoShow      = "APPOINTMENT_NO_SHOW"
	EventAppointmentReminderDue = "APPOINTMENT_REMINDER_DUE"
)

// DomainEvent is an immutable record of a lifecycle transition. Ownership
// moves from the aggregate to the dispatcher at publish time.
type DomainEvent interface {
	Name() string
	ID() uuid.UUID
	OccurredOn() time.Time
	Subject() uuid.UUID
}

type baseEvent struct {
	EventID    uuid.UUID `json:"event_id"`
	OccurredAt time.Time `json:"occurred_on"`
}

func newBaseEvent() baseEvent {
	return baseEvent{EventID: uuid.New(), OccurredAt: time.Now().UTC()}
}

func (e baseEvent) ID() uuid.UUID         { return e.EventID }
func (e baseEvent) OccurredOn() time.Time { return e.OccurredAt }

type AppointmentCreated struct {
	baseEvent
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	ScheduledFor  time.Time `json:"scheduled_for"`
}

func (e *AppointmentCreated) Name() string       { return EventAppointmentCreated }
func (e *AppointmentCreated) Subject() uuid.UUID { return e.AppointmentID }

type AppointmentConfirmed struct {
	baseEvent
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
}

func (e *AppointmentConfirmed) Name() string       { return EventAppointmentConfirmed }
func (e *AppointmentConfirmed) Subject() uuid.UUID { return e.AppointmentID }

type AppointmentCancelled struct {
	baseEvent
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	Reason        string    `json:"reason"`
	CancelledAt   time.Time `json:"cancelled_at"`
}

func (e *AppointmentCancelled) Name() string       { return EventAppointmentCancelled }
func (e *AppointmentCancelled) Subject() uuid.UUID { return e.AppointmentID }

type AppointmentCompleted struct {
	baseEvent
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	CompletedAt   time.Time `json:"completed_at"`
}

func (e *AppointmentCompleted) Name() string       { return EventAppointmentCompleted }
func (e *AppointmentCompleted) Subject() uuid.UUID { return e.AppointmentID }

type AppointmentNoShow struct {
	baseEvent
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	ScheduledFor  time.Time `json:"scheduled_for"`
}

func (e *AppointmentNoShow) Name() string       { return EventAppointmentNoShow }
func (e *AppointmentNoShow) Subject() uuid.UUID { return e.AppointmentID }

type AppointmentReminderDue struct {
	baseEvent
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	DoctorID      uuid.UUID `json:"doctor_id"`
	ScheduledFor  time.Time `json:"scheduled_for"`
}

func (e *AppointmentReminderDue) Name() string       { return EventAppointmentReminderDue }
func (e *AppointmentReminderDue) Subject() uuid.UUID { return e.AppointmentID }
