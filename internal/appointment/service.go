package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	redisclient "github.com/clinicore/scheduling/internal/redis"
)

var (
	// ErrCalendarBusy means another booking holds the doctor's calendar
	// lock right now. Retryable by the caller.
	ErrCalendarBusy = errors.New("doctor calendar is being modified, please retry")

	ErrDoctorNotAvailable = errors.New("doctor is not available at the requested time")
)

// Service implements the booking use case and the lifecycle transitions.
// Bookings for the same doctor serialize on a distributed per-day calendar
// lock; bookings for different doctors proceed concurrently.
type Service struct {
	repo       Repository
	locker     redisclient.CalendarLocker
	dispatcher *Dispatcher
	log        *logrus.Logger
}

func NewService(repo Repository, locker redisclient.CalendarLocker, dispatcher *Dispatcher, log *logrus.Logger) *Service {
	return &Service{
		repo:       repo,
		locker:     locker,
		dispatcher: dispatcher,
		log:        log,
	}
}

type BookingRequest struct {
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	StartsAt  time.Time
	Reason    string
}

// Book reserves an appointment. The availability check and the insert run
// under the calendar lock, so two concurrent requests for overlapping slots
// on the same doctor can never both commit. The lock is released on every
// exit path; its TTL covers a crashed holder.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	when, err := NewAppointmentTime(req.StartsAt)
	if err != nil {
		return nil, err
	}

	handle, err := s.locker.Acquire(ctx, req.DoctorID, when.DatePart())
	if err != nil {
		return nil, fmt.Errorf("acquire calendar lock: %w", err)
	}
	if handle == nil {
		return nil, ErrCalendarBusy
	}
	defer s.releaseLock(ctx, handle)

	patient, err := s.repo.FindPatient(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}

	doctor, err := s.repo.FindDoctor(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindDoctorAppointments(ctx, doctor.ID, when.DatePart())
	if err != nil {
		return nil, fmt.Errorf("load doctor calendar: %w", err)
	}
	if !doctor.IsAvailable(when, existing) {
		return nil, ErrDoctorNotAvailable
	}

	appt, err := NewAppointment(patient, doctor, when, req.Reason)
	if err != nil {
		return nil, err
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin unit of work: %w", err)
	}
	if err := tx.SaveAppointment(ctx, appt); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("save appointment: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit booking: %w", err)
	}

	// The booking is committed; notification outcomes no longer affect it.
	s.dispatcher.DispatchAll(ctx, appt.Events())
	appt.ClearEvents()

	return appt, nil
}

// Confirm moves a pending appointment to confirmed.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, func(a *Appointment) error {
		return a.Confirm()
	})
}

// Cancel cancels a pending or confirmed appointment with a stated reason.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	return s.transition(ctx, id, func(a *Appointment) error {
		return a.Cancel(reason)
	})
}

// Complete closes out a confirmed appointment with the doctor's notes.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, notes string) (*Appointment, error) {
	return s.transition(ctx, id, func(a *Appointment) error {
		return a.Complete(notes)
	})
}

// MarkNoShow records that the patient did not attend.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, func(a *Appointment) error {
		return a.MarkNoShow()
	})
}

// Reschedule moves an appointment to a new time. It touches the doctor's
// calendar, so it takes the same lock as Book and re-checks availability
// against the target day, ignoring the appointment being moved.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, startsAt time.Time) (*Appointment, error) {
	when, err := NewAppointmentTime(startsAt)
	if err != nil {
		return nil, err
	}

	appt, err := s.repo.FindAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	handle, err := s.locker.Acquire(ctx, appt.DoctorID, when.DatePart())
	if err != nil {
		return nil, fmt.Errorf("acquire calendar lock: %w", err)
	}
	if handle == nil {
		return nil, ErrCalendarBusy
	}
	defer s.releaseLock(ctx, handle)

	doctor, err := s.repo.FindDoctor(ctx, appt.DoctorID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindDoctorAppointments(ctx, appt.DoctorID, when.DatePart())
	if err != nil {
		return nil, fmt.Errorf("load doctor calendar: %w", err)
	}
	others := existing[:0]
	for _, other := range existing {
		if other.ID != appt.ID {
			others = append(others, other)
		}
	}
	if !doctor.IsAvailable(when, others) {
		return nil, ErrDoctorNotAvailable
	}

	from := appt.Status
	if err := appt.Reschedule(when); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, appt, from); err != nil {
		return nil, err
	}

	// Reschedule raises no event, nothing to dispatch.
	return appt, nil
}

// Get retrieves one appointment.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.FindAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	return appt, nil
}

// ListByPatient retrieves a patient's appointments, newest first.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	appointments, err := s.repo.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

// DispatchDueReminders is called periodically by the reminder worker. Each
// appointment inside the reminder window gets exactly one reminder event;
// reminded_at guards against duplicates across runs.
func (s *Service) DispatchDueReminders(ctx context.Context) error {
	now := time.Now().UTC()

	due, err := s.repo.FindNeedingReminder(ctx, now, ReminderWindow)
	if err != nil {
		return fmt.Errorf("find appointments needing reminder: %w", err)
	}

	for i := range due {
		a := &due[i]
		if !a.ScheduledTime.NeedsReminder(now) {
			continue
		}
		if err := s.repo.MarkReminded(ctx, a.ID, now); err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				s.log.WithError(err).WithField("appointment_id", a.ID).Warn("mark reminded failed")
			}
			continue
		}
		s.dispatcher.Dispatch(ctx, &AppointmentReminderDue{
			baseEvent:     newBaseEvent(),
			AppointmentID: a.ID,
			PatientID:     a.PatientID,
			DoctorID:      a.DoctorID,
			ScheduledFor:  a.ScheduledTime.Value(),
		})
	}

	return nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, op func(*Appointment) error) (*Appointment, error) {
	appt, err := s.repo.FindAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	from := appt.Status
	if err := op(appt); err != nil {
		return nil, err
	}

	if err := s.persist(ctx, appt, from); err != nil {
		return nil, err
	}

	s.dispatcher.DispatchAll(ctx, appt.Events())
	appt.ClearEvents()

	return appt, nil
}

func (s *Service) persist(ctx context.Context, a *Appointment, from AppointmentStatus) error {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin unit of work: %w", err)
	}
	if err := tx.UpdateAppointment(ctx, a, from); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}

func (s *Service) releaseLock(ctx context.Context, handle *redisclient.LockHandle) {
	if err := s.locker.Release(ctx, handle); err != nil {
		s.log.WithError(err).WithField("lock_key", handle.Key).Warn("release calendar lock failed")
	}
}
