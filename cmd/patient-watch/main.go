package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/healthlink/appointment-lifecycle/internal/monitor"
	"github.com/healthlink/appointment-lifecycle/internal/prescription"
)

// patient-watch is the patient-side poll loop as a CLI: it watches one
// appointment through the public API and reports when a prescription appears,
// with the same auto-redirect countdown the web client applies.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	baseURL := flag.String("api", "http://127.0.0.1:8080", "api-server base URL")
	appointmentID := flag.String("appointment", "", "appointment id to watch (required)")
	interval := flag.Duration("interval", 5*time.Second, "poll interval")
	redirectDelay := flag.Duration("redirect-delay", 5*time.Second, "auto-redirect countdown")
	flag.Parse()

	id, err := uuid.Parse(*appointmentID)
	if err != nil {
		log.Fatalf("-appointment must be a valid UUID: %v", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lookup := &apiLookup{
		baseURL: *baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}

	policy := monitor.NewRedirectPolicy(*redirectDelay, func(appointmentID uuid.UUID) {
		log.Printf("redirecting to prescription view for appointment %s", appointmentID)
		stop()
	})

	mon := monitor.New(lookup, *interval, func(p *prescription.Prescription) {
		log.Printf("prescription available: id=%s title=%q medications=%d warnings=%d",
			p.ID, p.Title, len(p.Medications), len(p.InteractionWarnings))
		if p.AppointmentID != nil {
			policy.Notify(*p.AppointmentID)
		}
	})
	defer mon.Close()

	mon.Designate(id)

	log.Printf("watching appointment %s every %s", id, *interval)
	mon.Run(rootCtx)
}

type apiLookup struct {
	baseURL string
	client  *http.Client
}

type prescriptionPayload struct {
	ID                  uuid.UUID                 `json:"id"`
	AppointmentID       *uuid.UUID                `json:"appointment_id"`
	PatientID           uuid.UUID                 `json:"patient_id"`
	ClinicianID         uuid.UUID                 `json:"clinician_id"`
	Title               string                    `json:"title"`
	Body                string                    `json:"body"`
	Medications         []prescription.Medication `json:"medications"`
	InteractionWarnings []string                  `json:"interaction_warnings"`
	CreatedAt           time.Time                 `json:"created_at"`
}

func (l *apiLookup) GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*prescription.Prescription, error) {
	url := fmt.Sprintf("%s/prescriptions/by-appointment/%s", l.baseURL, appointmentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, prescription.ErrPrescriptionNotFound
	default:
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	var payload prescriptionPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode prescription: %w", err)
	}

	return &prescription.Prescription{
		ID:                  payload.ID,
		AppointmentID:       payload.AppointmentID,
		PatientID:           payload.PatientID,
		ClinicianID:         payload.ClinicianID,
		Title:               payload.Title,
		Body:                payload.Body,
		Medications:         payload.Medications,
		InteractionWarnings: payload.InteractionWarnings,
		CreatedAt:           payload.CreatedAt,
	}, nil
}
