package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/clinicore/scheduling/internal/redis"
)

// memLocker is an in-process stand-in for the Redis calendar lock with the
// same contract: non-blocking, token-checked, not reentrant.
type memLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]string)}
}

func (l *memLocker) Acquire(_ context.Context, doctorID uuid.UUID, day time.Time) (*redisclient.LockHandle, error) {
	key := doctorID.String() + ":" + day.UTC().Format("2006-01-02")

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.held[key]; taken {
		return nil, nil
	}
	token := uuid.NewString()
	l.held[key] = token
	return &redisclient.LockHandle{Key: key, Token: token, AcquiredAt: time.Now()}, nil
}

func (l *memLocker) Release(_ context.Context, handle *redisclient.LockHandle) error {
	if handle == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if token, ok := l.held[handle.Key]; ok && token == handle.Token {
		delete(l.held, handle.Key)
	}
	return nil
}

func (l *memLocker) heldCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}

// memRepo keeps everything in maps, guarded by one mutex.
type memRepo struct {
	mu           sync.Mutex
	patients     map[uuid.UUID]Patient
	doctors      map[uuid.UUID]Doctor
	appointments map[uuid.UUID]Appointment
	eventLogs    []EventLog
}

func newMemRepo() *memRepo {
	return &memRepo{
		patients:     make(map[uuid.UUID]Patient),
		doctors:      make(map[uuid.UUID]Doctor),
		appointments: make(map[uuid.UUID]Appointment),
	}
}

func (r *memRepo) addPatient(p *Patient) { r.patients[p.ID] = *p }
func (r *memRepo) addDoctor(d *Doctor)   { r.doctors[d.ID] = *d }

func (r *memRepo) putAppointment(a Appointment) {
	a.events = nil
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appointments[a.ID] = a
}

func (r *memRepo) FindPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *memRepo) FindDoctor(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (r *memRepo) FindAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *memRepo) FindDoctorAppointments(_ context.Context, doctorID uuid.UUID, day time.Time) ([]Appointment, error) {
	dayStart := day.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	r.mu.Lock()
	defer r.mu.Unlock()
	var result []Appointment
	for _, a := range r.appointments {
		at := a.ScheduledTime.Value()
		if a.DoctorID == doctorID && !at.Before(dayStart) && at.Before(dayEnd) {
			result = append(result, a)
		}
	}
	return result, nil
}

func (r *memRepo) ListByPatient(_ context.Context, patientID uuid.UUID, _, _ int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []Appointment
	for _, a := range r.appointments {
		if a.PatientID == patientID {
			result = append(result, a)
		}
	}
	return result, nil
}

func (r *memRepo) FindNeedingReminder(_ context.Context, now time.Time, window time.Duration) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []Appointment
	for _, a := range r.appointments {
		if a.Status != StatusPending && a.Status != StatusConfirmed {
			continue
		}
		if a.RemindedAt != nil {
			continue
		}
		at := a.ScheduledTime.Value()
		if at.After(now) && !at.After(now.Add(window)) {
			result = append(result, a)
		}
	}
	return result, nil
}

func (r *memRepo) MarkReminded(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok || a.RemindedAt != nil {
		return ErrAppointmentNotFound
	}
	a.RemindedAt = &at
	r.appointments[id] = a
	return nil
}

func (r *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eventLogs = append(r.eventLogs, ev)
	return nil
}

func (r *memRepo) Begin(_ context.Context) (Tx, error) {
	return &memTx{repo: r}, nil
}

func (r *memRepo) eventLogCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.eventLogs)
}

type memTx struct {
	repo    *memRepo
	saves   []Appointment
	updates []Appointment
}

func (t *memTx) SaveAppointment(_ context.Context, a *Appointment) error {
	c := *a
	c.events = nil
	t.saves = append(t.saves, c)
	return nil
}

func (t *memTx) UpdateAppointment(_ context.Context, a *Appointment, from AppointmentStatus) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	current, ok := t.repo.appointments[a.ID]
	if !ok || current.Status != from {
		return ErrAppointmentNotFound
	}
	c := *a
	c.events = nil
	t.updates = append(t.updates, c)
	return nil
}

func (t *memTx) Commit(_ context.Context) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for _, a := range t.saves {
		t.repo.appointments[a.ID] = a
	}
	for _, a := range t.updates {
		t.repo.appointments[a.ID] = a
	}
	return nil
}

func (t *memTx) Rollback(_ context.Context) error {
	t.saves = nil
	t.updates = nil
	return nil
}

// eventRecorder counts dispatched events by name, concurrency-safe.
type eventRecorder struct {
	mu   sync.Mutex
	seen []string
}

func (r *eventRecorder) Handle(_ context.Context, ev DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, ev.Name())
	return nil
}

func (r *eventRecorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.seen))
	copy(out, r.seen)
	return out
}

type testEnv struct {
	repo     *memRepo
	locker   *memLocker
	svc      *Service
	recorder *eventRecorder
}

func newTestEnv() *testEnv {
	log, _ := logrustest.NewNullLogger()

	repo := newMemRepo()
	locker := newMemLocker()
	recorder := &eventRecorder{}

	dispatcher := NewDispatcher(log)
	RegisterDefaultObservers(dispatcher, repo, log)
	for _, name := range []string{
		EventAppointmentCreated,
		EventAppointmentConfirmed,
		EventAppointmentCancelled,
		EventAppointmentCompleted,
		EventAppointmentNoShow,
		EventAppointmentReminderDue,
	} {
		dispatcher.Register(name, recorder)
	}

	return &testEnv{
		repo:     repo,
		locker:   locker,
		svc:      NewService(repo, locker, dispatcher, log),
		recorder: recorder,
	}
}

func (e *testEnv) seedPair() (*Patient, *Doctor) {
	p := activePatient()
	d := availableDoctor()
	e.repo.addPatient(p)
	e.repo.addDoctor(d)
	return p, d
}

func TestService_Book(t *testing.T) {
	env := newTestEnv()
	patient, doctor := env.seedPair()
	ctx := context.Background()

	appt, err := env.svc.Book(ctx, BookingRequest{
		PatientID: patient.ID,
		DoctorID:  doctor.ID,
		StartsAt:  nextWeekdaySlot(0),
		Reason:    "Annual checkup",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, appt.Status)
	assert.Empty(t, appt.Events(), "queue is drained after dispatch")

	stored, err := env.repo.FindAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)

	assert.Equal(t, []string{EventAppointmentCreated}, env.recorder.names(),
		"exactly one AppointmentCreated observed")
	assert.Equal(t, 1, env.repo.eventLogCount(), "audit observer persisted the event")
	assert.Zero(t, env.locker.heldCount(), "lock released on the success path")
}

func TestService_Book_InvalidTimeFailsFast(t *testing.T) {
	env := newTestEnv()
	patient, doctor := env.seedPair()

	_, err := env.svc.Book(context.Background(), BookingRequest{
		PatientID: patient.ID,
		DoctorID:  doctor.ID,
		StartsAt:  nextWeekdaySlot(0).Add(15 * time.Minute), // off grid
		Reason:    "Annual checkup",
	})

	var timeErr *InvalidAppointmentTimeError
	require.ErrorAs(t, err, &timeErr)
	assert.Empty(t, env.recorder.names())
}

func TestService_Book_UnknownParties(t *testing.T) {
	env := newTestEnv()
	patient, doctor := env.seedPair()
	ctx := context.Background()

	_, err := env.svc.Book(ctx, BookingRequest{
		PatientID: uuid.New(),
		DoctorID:  doctor.ID,
		StartsAt:  nextWeekdaySlot(0),
		Reason:    "Annual checkup",
	})
	assert.ErrorIs(t, err, ErrPatientNotFound)
	assert.Zero(t, env.locker.heldCount(), "lock released on the failure path")

	_, err = env.svc.Book(ctx, BookingRequest{
		PatientID: patient.ID,
		DoctorID:  uuid.New(),
		StartsAt:  nextWeekdaySlot(0),
		Reason:    "Annual checkup",
	})
	assert.ErrorIs(t, err, ErrDoctorNotFound)
	assert.Zero(t, env.locker.heldCount())
}

func TestService_Book_DoctorNotAvailable(t *testing.T) {
	env := newTestEnv()
	patient, doctor := env.seedPair()
	other := activePatient()
	env.repo.addPatient(other)
	ctx := context.Background()

	_, err := env.svc.Book(ctx, BookingRequest{
		PatientID: patient.ID,
		DoctorID:  doctor.ID,
		StartsAt:  nextWeekdaySlot(0),
		Reason:    "Annual checkup",
	})
	require.NoError(t, err)

	_, err = env.svc.Book(ctx, BookingRequest{
		PatientID: other.ID,
		DoctorID:  doctor.ID,
		StartsAt:  nextWeekdaySlot(0),
		Reason:    "Second opinion consult",
	})
	assert.ErrorIs(t, err, ErrDoctorNotAvailable)

	all, err := env.repo.FindDoctorAppointments(ctx, doctor.ID, nextWeekdaySlot(0).Truncate(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, all, 1, "the conflicting booking never committed")
	assert.Zero(t, env.locker.heldCount())
}

func TestService_Book_CalendarBusy(t *testing.T) {
	env := newTestEnv()
	patient, doctor := env.seedPair()
	ctx := context.Background()

	when, err := NewAppointmentTime(nextWeekdaySlot(0))
	require.NoError(t, err)

	handle, err := env.locker.Acquire(ctx, doctor.ID, when.DatePart())
	require.NoError(t, err)
	require.NotNil(t, handle)

	_, err = env.svc.Book(ctx, BookingRequest{
		PatientID: patient.ID,
		DoctorID:  doctor.ID,
		StartsAt:  nextWeekdaySlot(0),
		Reason:    "Annual checkup",
	})
	assert.ErrorIs(t, err, ErrCalendarBusy)

	require.NoError(t, env.locker.Release(ctx, handle))
}

func TestService_Book_ConcurrentOverlap(t *testing.T) {
	env := newTestEnv()
	_, doctor := env.seedPair()
	ctx := context.Background()

	const attempts = 8
	patients := make([]*Patient, attempts)
	for i := range patients {
		patients[i] = activePatient()
		env.repo.addPatient(patients[i])
	}

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.Book(ctx, BookingRequest{
				PatientID: patients[i].ID,
				DoctorID:  doctor.ID,
				StartsAt:  nextWeekdaySlot(0),
				Reason:    "Annual checkup",
			})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		default:
			assert.True(t,
				errors.Is(err, ErrCalendarBusy) || errors.Is(err, ErrDoctorNotAvailable),
				"unexpected failure mode: %v", err)
		}
	}
	assert.Equal(t, 1, successes, "at most one overlapping booking commits")

	all, err := env.repo.FindDoctorAppointments(ctx, doctor.ID, nextWeekdaySlot(0).Truncate(24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Zero(t, env.locker.heldCount())
}

func TestService_ConfirmAndComplete(t *testing.T) {
	env := newTestEnv()
	patient, doctor := env.seedPair()
	ctx := context.Background()

	appt, err := env.svc.Book(ctx, BookingRequest{
		PatientID: patient.ID,
		DoctorID:  doctor.ID,
		StartsAt:  nextWeekdaySlot(0),
		Reason:    "Annual checkup",
	})
	require.NoError(t, err)

	confirmed, err := env.svc.Confirm(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	stored, err := env.repo.FindAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, stored.Status)

	// completion needs the visit to have happened; backdate it
	past := *stored
	past.ScheduledTime = appointmentTimeFromStorage(time.Now().UTC().Add(-time.Hour))
	env.repo.putAppointment(past)

	done, err := env.svc.Complete(ctx, appt.ID, "Routine examination, no findings, follow up in a year")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)

	assert.Equal(t, []string{
		EventAppointmentCreated,
		EventAppointmentConfirmed,
		EventAppointmentCompleted,
	}, env.recorder.names())
}

func TestService_CancelUnknownAppointment(t *testing.T) {
	env := newTestEnv()

	_, err := env.svc.Cancel(context.Background(), uuid.New(), "patient requested reschedule due to conflict")
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestService_MarkNoShow(t *testing.T) {
	env := newTestEnv()
	patient, doctor := env.seedPair()
	ctx := context.Background()

	missed := Appointment{
		ID:            uuid.New(),
		PatientID:     patient.ID,
		DoctorID:      doctor.ID,
		ScheduledTime: appointmentTimeFromStorage(time.Now().UTC().Add(-2 * time.Hour)),
		Status:        StatusConfirmed,
		Reason:        "Annual checkup",
		CreatedAt:     time.Now().UTC().Add(-48 * time.Hour),
	}
	env.repo.putAppointment(missed)

	updated, err := env.svc.MarkNoShow(ctx, missed.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, updated.Status)
	assert.Equal(t, []string{EventAppointmentNoShow}, env.recorder.names())
}

func TestService_Reschedule(t *testing.T) {
	env := newTestEnv()
	patient, doctor := env.seedPair()
	other := activePatient()
	env.repo.addPatient(other)
	ctx := context.Background()

	first, err := env.svc.Book(ctx, BookingRequest{
		PatientID: patient.ID,
		DoctorID:  doctor.ID,
		StartsAt:  nextWeekdaySlot(0),
		Reason:    "Annual checkup",
	})
	require.NoError(t, err)

	_, err = env.svc.Book(ctx, BookingRequest{
		PatientID: other.ID,
		DoctorID:  doctor.ID,
		StartsAt:  nextWeekdaySlot(2),
		Reason:    "Second opinion consult",
	})
	require.NoError(t, err)

	// moving onto the other patient's slot conflicts
	_, err = env.svc.Reschedule(ctx, first.ID, nextWeekdaySlot(2))
	assert.ErrorIs(t, err, ErrDoctorNotAvailable)

	before := len(env.recorder.names())
	moved, err := env.svc.Reschedule(ctx, first.ID, nextWeekdaySlot(4))
	require.NoError(t, err)
	assert.Equal(t, nextWeekdaySlot(4), moved.ScheduledTime.Value())
	assert.Len(t, env.recorder.names(), before, "reschedule dispatches no event")

	stored, err := env.repo.FindAppointment(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, nextWeekdaySlot(4), stored.ScheduledTime.Value())

	// staying put is rejected, and the appointment's own slot never
	// counts against itself
	_, err = env.svc.Reschedule(ctx, first.ID, nextWeekdaySlot(4))
	assert.ErrorIs(t, err, ErrSameScheduledTime)

	assert.Zero(t, env.locker.heldCount())
}

func TestService_DispatchDueReminders(t *testing.T) {
	env := newTestEnv()
	patient, doctor := env.seedPair()
	ctx := context.Background()

	soon := Appointment{
		ID:            uuid.New(),
		PatientID:     patient.ID,
		DoctorID:      doctor.ID,
		ScheduledTime: appointmentTimeFromStorage(time.Now().UTC().Add(3 * time.Hour)),
		Status:        StatusConfirmed,
		Reason:        "Annual checkup",
		CreatedAt:     time.Now().UTC(),
	}
	farOut := soon
	farOut.ID = uuid.New()
	farOut.ScheduledTime = appointmentTimeFromStorage(time.Now().UTC().Add(72 * time.Hour))
	env.repo.putAppointment(soon)
	env.repo.putAppointment(farOut)

	require.NoError(t, env.svc.DispatchDueReminders(ctx))
	assert.Equal(t, []string{EventAppointmentReminderDue}, env.recorder.names(),
		"only the appointment inside the window is reminded")

	stored, err := env.repo.FindAppointment(ctx, soon.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.RemindedAt)

	// a second sweep is a no-op
	require.NoError(t, env.svc.DispatchDueReminders(ctx))
	assert.Len(t, env.recorder.names(), 1)
}
