package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var specialty *string
	var feeCents int64
	var feeCurrency string

	err := row.Scan(
		&d.ID,
		&d.Name,
		&specialty,
		&d.Active,
		&d.AcceptingPatients,
		&feeCents,
		&feeCurrency,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.Specialty = specialty
	d.ConsultationFee = moneyFromCents(feeCents, feeCurrency)
	return &d, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var scheduledAt time.Time
	var feeCents int64
	var feeCurrency string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&scheduledAt,
		&a.Status,
		&a.Reason,
		&feeCents,
		&feeCurrency,
		&a.CancellationReason,
		&a.DoctorNotes,
		&a.ConfirmedAt,
		&a.CompletedAt,
		&a.CancelledAt,
		&a.RemindedAt,
		&a.CreatedAt,
		&a.ModifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.ScheduledTime = appointmentTimeFromStorage(scheduledAt)
	a.ConsultationFee = moneyFromCents(feeCents, feeCurrency)
	return &a, nil
}

const appointmentColumns = `
	id, patient_id, doctor_id, scheduled_at, status, reason,
	consultation_fee_cents, consultation_fee_currency,
	cancellation_reason, doctor_notes,
	confirmed_at, completed_at, cancelled_at, reminded_at,
	created_at, modified_at`

// Interface methods

func (r *PgRepository) FindPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, active, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) FindDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, active, accepting_patients,
		       consultation_fee_cents, consultation_fee_currency,
		       created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) FindAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) FindDoctorAppointments(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]Appointment, error) {
	dayStart := day.UTC().Truncate(24 * time.Hour)
	dayEnd := dayStart.Add(24 * time.Hour)

	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND scheduled_at >= $2
		  AND scheduled_at < $3
		ORDER BY scheduled_at
	`, doctorID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY scheduled_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) FindNeedingReminder(ctx context.Context, now time.Time, window time.Duration) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status IN ('pending', 'confirmed')
		  AND reminded_at IS NULL
		  AND scheduled_at > $1
		  AND scheduled_at <= $2
		ORDER BY scheduled_at
	`, now, now.Add(window))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET reminded_at = $2
		WHERE id = $1
		  AND reminded_at IS NULL
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark reminded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func (r *PgRepository) Begin(ctx context.Context) (Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) SaveAppointment(ctx context.Context, a *Appointment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments (
			id, patient_id, doctor_id, scheduled_at, status, reason,
			consultation_fee_cents, consultation_fee_currency,
			cancellation_reason, doctor_notes,
			confirmed_at, completed_at, cancelled_at, reminded_at,
			created_at, modified_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		a.ID, a.PatientID, a.DoctorID, a.ScheduledTime.Value(), a.Status, a.Reason,
		a.ConsultationFee.Cents(), a.ConsultationFee.Currency(),
		a.CancellationReason, a.DoctorNotes,
		a.ConfirmedAt, a.CompletedAt, a.CancelledAt, a.RemindedAt,
		a.CreatedAt, a.ModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateAppointment(ctx context.Context, a *Appointment, from AppointmentStatus) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET scheduled_at = $2,
		    status = $3,
		    cancellation_reason = $4,
		    doctor_notes = $5,
		    confirmed_at = $6,
		    completed_at = $7,
		    cancelled_at = $8,
		    modified_at = $9
		WHERE id = $1
		  AND status = $10
	`,
		a.ID, a.ScheduledTime.Value(), a.Status,
		a.CancellationReason, a.DoctorNotes,
		a.ConfirmedAt, a.CompletedAt, a.CancelledAt,
		a.ModifiedAt, from,
	)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}
