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

const appointmentColumns = `id, patient_id, clinician_id, clinic_id, start_time, end_time, appointment_type, status, is_emergency, reason, notes, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
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

func scanClinician(row pgx.Row) (*Clinician, error) {
	var c Clinician
	var specialty *string

	err := row.Scan(
		&c.ID,
		&c.Name,
		&specialty,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicianNotFound
		}
		return nil, err
	}

	c.Specialty = specialty
	return &c, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var clinicID *uuid.UUID
	var endTime *time.Time
	var reason, notes *string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ClinicianID,
		&clinicID,
		&a.StartTime,
		&endTime,
		&a.Type,
		&a.Status,
		&a.IsEmergency,
		&reason,
		&notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.ClinicID = clinicID
	a.EndTime = endTime
	if reason != nil {
		a.Reason = *reason
	}
	if notes != nil {
		a.Notes = *notes
	}
	return &a, nil
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetClinicianByID(ctx context.Context, id uuid.UUID) (*Clinician, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM clinicians
		WHERE id = $1
	`, id)
	return scanClinician(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*Detail, error) {
	appt, err := r.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &Detail{Appointment: *appt}

	patient, err := r.GetPatientByID(ctx, appt.PatientID)
	if err != nil && !errors.Is(err, ErrPatientNotFound) {
		return nil, err
	}
	detail.Patient = patient

	clinician, err := r.GetClinicianByID(ctx, appt.ClinicianID)
	if err != nil && !errors.Is(err, ErrClinicianNotFound) {
		return nil, err
	}
	detail.Clinician = clinician

	return detail, nil
}

// UpdateAppointmentStatus is the compare-and-set every transition funnels
// through: the WHERE clause on the expected status makes a lost race a
// zero-row update rather than a double write.
func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status, reason *string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    reason = COALESCE($4, reason),
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from, reason)

	return scanAppointment(row)
}

func (r *PgRepository) FindNoShowEligible(ctx context.Context, now time.Time, defaultDuration time.Duration) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status IN ('confirmed', 'in_progress')
		  AND COALESCE(end_time, start_time + $2) < $1
	`, now, defaultDuration)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	var appID *uuid.UUID
	if ev.AppointmentID != nil {
		appID = ev.AppointmentID
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, appID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
