package prescription

import (
	"time"

	"github.com/google/uuid"
)

// Medication is one entry on a prescription. Only the name is required.
type Medication struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage,omitempty"`
	Frequency    string `json:"frequency,omitempty"`
	Duration     string `json:"duration,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// Prescription is the clinical record justifying an appointment's completion.
// AppointmentID is nil for emergency walk-in patients, who are prescribed
// without a scheduled encounter. At most one prescription exists per
// appointment id; writing a second one amends the first.
type Prescription struct {
	ID                  uuid.UUID
	AppointmentID       *uuid.UUID
	PatientID           uuid.UUID
	ClinicianID         uuid.UUID
	Title               string
	Body                string
	Medications         []Medication
	InteractionWarnings []string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// MedicationNames returns the trimmed, non-empty medication names in order.
func (p *Prescription) MedicationNames() []string {
	return nonEmptyNames(medicationNames(p.Medications))
}

func medicationNames(meds []Medication) []string {
	names := make([]string, 0, len(meds))
	for _, m := range meds {
		names = append(names, m.Name)
	}
	return names
}
