package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrClinicianNotFound   = errors.New("clinician not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetClinicianByID(ctx context.Context, id uuid.UUID) (*Clinician, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*Detail, error)

	// UpdateAppointmentStatus performs a compare-and-set on status; it returns
	// ErrAppointmentNotFound when no row matched (missing record or lost race).
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status, reason *string) (*Appointment, error)

	// No-show eligibility sweep
	FindNoShowEligible(ctx context.Context, now time.Time, defaultDuration time.Duration) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
