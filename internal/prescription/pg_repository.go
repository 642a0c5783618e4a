package prescription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

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

const prescriptionColumns = `id, appointment_id, patient_id, clinician_id, title, body, medications, interaction_warnings, created_at, updated_at`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	var appointmentID *uuid.UUID
	var medications []byte
	var warnings []string

	err := row.Scan(
		&p.ID,
		&appointmentID,
		&p.PatientID,
		&p.ClinicianID,
		&p.Title,
		&p.Body,
		&medications,
		&warnings,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPrescriptionNotFound
		}
		return nil, err
	}

	p.AppointmentID = appointmentID
	p.InteractionWarnings = warnings
	if len(medications) > 0 {
		if err := json.Unmarshal(medications, &p.Medications); err != nil {
			return nil, fmt.Errorf("decode medications: %w", err)
		}
	}
	return &p, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+prescriptionColumns+`
		FROM prescriptions
		WHERE id = $1
	`, id)
	return scanPrescription(row)
}

func (r *PgRepository) GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*Prescription, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+prescriptionColumns+`
		FROM prescriptions
		WHERE appointment_id = $1
	`, appointmentID)
	return scanPrescription(row)
}

func (r *PgRepository) Insert(ctx context.Context, p *Prescription) (*Prescription, error) {
	id := uuid.New()

	medications, err := json.Marshal(p.Medications)
	if err != nil {
		return nil, fmt.Errorf("encode medications: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO prescriptions (id, appointment_id, patient_id, clinician_id, title, body, medications, interaction_warnings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+prescriptionColumns+`
	`, id, p.AppointmentID, p.PatientID, p.ClinicianID, p.Title, p.Body, medications, p.InteractionWarnings)

	return scanPrescription(row)
}

func (r *PgRepository) Update(ctx context.Context, p *Prescription) (*Prescription, error) {
	medications, err := json.Marshal(p.Medications)
	if err != nil {
		return nil, fmt.Errorf("encode medications: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE prescriptions
		SET title = $2,
		    body = $3,
		    medications = $4,
		    interaction_warnings = $5,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+prescriptionColumns+`
	`, p.ID, p.Title, p.Body, medications, p.InteractionWarnings)

	return scanPrescription(row)
}
