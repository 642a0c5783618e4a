package prescription

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrPrescriptionNotFound = errors.New("prescription not found")

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)

	// GetByAppointmentID returns the single prescription tied to an
	// appointment, or ErrPrescriptionNotFound. "Not found" is the normal
	// answer while the clinician has not authored one yet.
	GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*Prescription, error)

	Insert(ctx context.Context, p *Prescription) (*Prescription, error)
	Update(ctx context.Context, p *Prescription) (*Prescription, error)
}
