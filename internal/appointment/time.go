package appointment

import (
	"fmt"
	"time"
)

// Scheduling rules. ConflictBuffer and SlotGranularity happen to share a
// value but are independent knobs; keep them separate.
const (
	MinAdvanceNotice = time.Hour
	WorkdayStartHour = 8
	WorkdayEndHour   = 18
	SlotGranularity  = 30 * time.Minute
	ConflictBuffer   = 30 * time.Minute
	ReminderWindow   = 24 * time.Hour
)

type InvalidAppointmentTimeError struct {
	Reason string
}

func (e *InvalidAppointmentTimeError) Error() string {
	return fmt.Sprintf("invalid appointment time: %s", e.Reason)
}

// AppointmentTime is a validated UTC instant on the booking grid.
// Immutable; a reschedule builds a new one.
type AppointmentTime struct {
	value time.Time
}

// NewAppointmentTime validates the candidate instant against the scheduling
// rules using a single clock snapshot.
func NewAppointmentTime(t time.Time) (AppointmentTime, error) {
	return newAppointmentTimeAt(t, time.Now())
}

func newAppointmentTimeAt(t, now time.Time) (AppointmentTime, error) {
	utc := t.UTC()
	now = now.UTC()

	if !utc.After(now) {
		return AppointmentTime{}, &InvalidAppointmentTimeError{Reason: "must be in the future"}
	}
	if utc.Sub(now) < MinAdvanceNotice {
		return AppointmentTime{}, &InvalidAppointmentTimeError{
			Reason: fmt.Sprintf("must be booked at least %s in advance", MinAdvanceNotice),
		}
	}
	if wd := utc.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return AppointmentTime{}, &InvalidAppointmentTimeError{Reason: "must fall on a weekday"}
	}
	if utc.Hour() < WorkdayStartHour || utc.Hour() >= WorkdayEndHour {
		return AppointmentTime{}, &InvalidAppointmentTimeError{
			Reason: fmt.Sprintf("must be within working hours [%02d:00, %02d:00)", WorkdayStartHour, WorkdayEndHour),
		}
	}
	if utc.Minute()%int(SlotGranularity/time.Minute) != 0 {
		return AppointmentTime{}, &InvalidAppointmentTimeError{
			Reason: fmt.Sprintf("must align to the %s booking grid", SlotGranularity),
		}
	}
	if utc.Second() != 0 || utc.Nanosecond() != 0 {
		return AppointmentTime{}, &InvalidAppointmentTimeError{Reason: "must not carry seconds"}
	}

	return AppointmentTime{value: utc}, nil
}

// appointmentTimeFromStorage rehydrates an instant that was validated when
// the appointment was created. Repository use only.
func appointmentTimeFromStorage(t time.Time) AppointmentTime {
	return AppointmentTime{value: t.UTC()}
}

func (at AppointmentTime) Value() time.Time { return at.value }

// DatePart returns midnight UTC of the appointment's day.
func (at AppointmentTime) DatePart() time.Time {
	y, m, d := at.value.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// TimePart returns the wall-clock portion as HH:MM.
func (at AppointmentTime) TimePart() string {
	return at.value.Format("15:04")
}

// NeedsReminder reports whether the appointment falls within the next
// reminder window. Status is not consulted here.
func (at AppointmentTime) NeedsReminder(now time.Time) bool {
	d := at.value.Sub(now.UTC())
	return d > 0 && d <= ReminderWindow
}

func (at AppointmentTime) IsPast(now time.Time) bool {
	return at.value.Before(now.UTC())
}

func (at AppointmentTime) Equal(other AppointmentTime) bool {
	return at.value.Equal(other.value)
}

func (at AppointmentTime) IsZero() bool { return at.value.IsZero() }

func (at AppointmentTime) String() string {
	return at.value.Format(time.RFC3339)
}
