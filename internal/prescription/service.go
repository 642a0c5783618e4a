package prescription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/healthlink/appointment-lifecycle/internal/appointment"
)

const (
	EventPrescriptionCreated = "PRESCRIPTION_CREATED"
	EventPrescriptionAmended = "PRESCRIPTION_AMENDED"
)

var (
	ErrAppointmentNotInProgress = errors.New("prescriptions can only be written while the appointment is in progress")
	ErrPatientMismatch          = errors.New("appointment belongs to a different patient")
)

// AppointmentDirectory is the slice of the appointment store this service
// needs: record lookups for authoring rules plus the shared event log.
type AppointmentDirectory interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*appointment.Patient, error)
	InsertEvent(ctx context.Context, ev appointment.EventLog) error
}

type Service struct {
	repo         Repository
	appointments AppointmentDirectory
	screener     *Screener
}

func NewService(repo Repository, appointments AppointmentDirectory, screener *Screener) *Service {
	return &Service{
		repo:         repo,
		appointments: appointments,
		screener:     screener,
	}
}

type CreateInput struct {
	PatientID     uuid.UUID
	AppointmentID *uuid.UUID // nil for emergency walk-ins
	ClinicianID   uuid.UUID
	Title         string
	Body          string
	Medications   []Medication
}

type CreateResult struct {
	Prescription *Prescription
	// ScreeningPerformed is false when the knowledge source could not be
	// consulted. Callers must show that screening did not run rather than
	// presenting the empty warning list as a clean result.
	ScreeningPerformed bool
	// Amended is true when an existing prescription for the same appointment
	// was updated instead of a new record being created.
	Amended bool
}

// Create writes or amends a prescription. When an appointment is named it
// must be in progress; emergency prescriptions carry no appointment at all.
// Interaction screening runs on the way in and its warnings are persisted,
// but screening failure never blocks the write.
func (s *Service) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	if _, err := s.appointments.GetPatientByID(ctx, in.PatientID); err != nil {
		return nil, err
	}

	if in.AppointmentID != nil {
		appt, err := s.appointments.GetAppointmentByID(ctx, *in.AppointmentID)
		if err != nil {
			return nil, err
		}
		if appt.PatientID != in.PatientID {
			return nil, ErrPatientMismatch
		}
		if appt.Status != appointment.StatusInProgress {
			return nil, ErrAppointmentNotInProgress
		}
	}

	screeningPerformed := true
	warnings, err := s.screener.Check(ctx, medicationNames(in.Medications))
	if err != nil {
		if !errors.Is(err, ErrScreeningUnavailable) {
			return nil, err
		}
		// Advisory check: record that it did not run and keep going.
		screeningPerformed = false
		warnings = nil
	}

	record := &Prescription{
		AppointmentID:       in.AppointmentID,
		PatientID:           in.PatientID,
		ClinicianID:         in.ClinicianID,
		Title:               in.Title,
		Body:                in.Body,
		Medications:         in.Medications,
		InteractionWarnings: warnings,
	}

	var existing *Prescription
	if in.AppointmentID != nil {
		existing, err = s.repo.GetByAppointmentID(ctx, *in.AppointmentID)
		if err != nil && !errors.Is(err, ErrPrescriptionNotFound) {
			return nil, fmt.Errorf("check existing prescription: %w", err)
		}
	}

	var saved *Prescription
	amended := false
	if existing != nil {
		// One prescription per appointment: the second write is an edit.
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
		saved, err = s.repo.Update(ctx, record)
		amended = true
	} else {
		saved, err = s.repo.Insert(ctx, record)
	}
	if err != nil {
		return nil, fmt.Errorf("save prescription: %w", err)
	}

	s.logEvent(ctx, saved, amended, screeningPerformed)

	return &CreateResult{
		Prescription:       saved,
		ScreeningPerformed: screeningPerformed,
		Amended:            amended,
	}, nil
}

// CheckInteractions screens a medication-name set without touching any
// record. Fewer than two non-empty names short-circuits to an empty result.
func (s *Service) CheckInteractions(ctx context.Context, names []string) ([]string, error) {
	return s.screener.Check(ctx, names)
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*Prescription, error) {
	return s.repo.GetByAppointmentID(ctx, appointmentID)
}

// ExistsForAppointment implements the completion gate's prescription check.
func (s *Service) ExistsForAppointment(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	_, err := s.repo.GetByAppointmentID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrPrescriptionNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Service) logEvent(ctx context.Context, p *Prescription, amended, screeningPerformed bool) {
	eventType := EventPrescriptionCreated
	if amended {
		eventType = EventPrescriptionAmended
	}

	payload, err := json.Marshal(map[string]any{
		"prescription_id":     p.ID.String(),
		"patient_id":          p.PatientID.String(),
		"medications":         len(p.Medications),
		"warnings":            len(p.InteractionWarnings),
		"screening_performed": screeningPerformed,
	})
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		payload = nil
	}

	ev := appointment.EventLog{
		EventType:     eventType,
		AppointmentID: p.AppointmentID,
		Payload:       payload,
		CreatedAt:     time.Now(),
	}

	if err := s.appointments.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s for prescription %s: %v", eventType, p.ID, err)
	}
}
