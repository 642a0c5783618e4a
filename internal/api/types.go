package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/healthlink/appointment-lifecycle/internal/prescription"
)

type TransitionRequest struct {
	Reason string `json:"reason,omitempty"`
}

type MedicationRequest struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage,omitempty"`
	Frequency    string `json:"frequency,omitempty"`
	Duration     string `json:"duration,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

type CreatePrescriptionRequest struct {
	PatientID     string              `json:"patient_id"`
	AppointmentID string              `json:"appointment_id,omitempty"`
	ClinicianID   string              `json:"clinician_id"`
	Title         string              `json:"title"`
	Body          string              `json:"body"`
	Medications   []MedicationRequest `json:"medications"`
}

type CheckInteractionsRequest struct {
	Medications []string `json:"medications"`
}

type CheckInteractionsResponse struct {
	Warnings []string `json:"warnings"`
}

type AppointmentResponse struct {
	ID          uuid.UUID  `json:"id"`
	PatientID   uuid.UUID  `json:"patient_id"`
	ClinicianID uuid.UUID  `json:"clinician_id"`
	ClinicID    *uuid.UUID `json:"clinic_id,omitempty"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Type        string     `json:"appointment_type"`
	Status      string     `json:"status"`
	IsEmergency bool       `json:"is_emergency"`
	Reason      string     `json:"reason,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	PatientName     string `json:"patient_name,omitempty"`
	ClinicianName   string `json:"clinician_name,omitempty"`
	HasPrescription bool   `json:"has_prescription"`
	HasStarted      bool   `json:"has_started"`
	CanMarkNoShow   bool   `json:"can_mark_no_show"`
	IsActive        bool   `json:"is_active"`
}

type PrescriptionResponse struct {
	ID                  uuid.UUID                 `json:"id"`
	AppointmentID       *uuid.UUID                `json:"appointment_id,omitempty"`
	PatientID           uuid.UUID                 `json:"patient_id"`
	ClinicianID         uuid.UUID                 `json:"clinician_id"`
	Title               string                    `json:"title"`
	Body                string                    `json:"body"`
	Medications         []prescription.Medication `json:"medications"`
	InteractionWarnings []string                  `json:"interaction_warnings"`
	CreatedAt           time.Time                 `json:"created_at"`
}

type CreatePrescriptionResponse struct {
	PrescriptionResponse
	ScreeningPerformed bool `json:"screening_performed"`
	Amended            bool `json:"amended"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
