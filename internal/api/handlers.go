package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/healthlink/appointment-lifecycle/internal/appointment"
	"github.com/healthlink/appointment-lifecycle/internal/prescription"
)

func appointmentResponseFrom(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		PatientID:   a.PatientID,
		ClinicianID: a.ClinicianID,
		ClinicID:    a.ClinicID,
		StartTime:   a.StartTime,
		EndTime:     a.EndTime,
		Type:        string(a.Type),
		Status:      string(a.Status),
		IsEmergency: a.IsEmergency,
		Reason:      a.Reason,
		Notes:       a.Notes,
	}
}

func prescriptionResponseFrom(p *prescription.Prescription) PrescriptionResponse {
	warnings := p.InteractionWarnings
	if warnings == nil {
		warnings = []string{}
	}
	return PrescriptionResponse{
		ID:                  p.ID,
		AppointmentID:       p.AppointmentID,
		PatientID:           p.PatientID,
		ClinicianID:         p.ClinicianID,
		Title:               p.Title,
		Body:                p.Body,
		Medications:         p.Medications,
		InteractionWarnings: warnings,
		CreatedAt:           p.CreatedAt,
	}
}

func parseAppointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// decodeOptionalReason tolerates an empty body: start/complete need none and
// cancel/no-show treat the reason as optional.
func decodeOptionalReason(r *http.Request) string {
	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return ""
	}
	return req.Reason
}

func startAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseAppointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.Start(r.Context(), id)
		if err != nil {
			handleTransitionError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponseFrom(appt))
	}
}

func completeAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseAppointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.Complete(r.Context(), id)
		if err != nil {
			handleTransitionError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponseFrom(appt))
	}
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseAppointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.Cancel(r.Context(), id, decodeOptionalReason(r))
		if err != nil {
			handleTransitionError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponseFrom(appt))
	}
}

func markNoShowHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseAppointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.MarkNoShow(r.Context(), id, decodeOptionalReason(r))
		if err != nil {
			handleTransitionError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponseFrom(appt))
	}
}

func getAppointmentHandler(svc *appointment.Service, rx *prescription.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseAppointmentID(w, r)
		if !ok {
			return
		}

		detail, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleTransitionError(w, err)
			return
		}

		hasRx, err := rx.ExistsForAppointment(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := AppointmentDetailResponse{
			AppointmentResponse: appointmentResponseFrom(&detail.Appointment),
			HasPrescription:     hasRx,
			HasStarted:          svc.HasStarted(&detail.Appointment),
			CanMarkNoShow:       svc.CanMarkNoShow(&detail.Appointment),
			IsActive:            svc.IsActive(&detail.Appointment),
		}
		if detail.Patient != nil {
			resp.PatientName = detail.Patient.Name
		}
		if detail.Clinician != nil {
			resp.ClinicianName = detail.Clinician.Name
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func createPrescriptionHandler(svc *prescription.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreatePrescriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		clinicianID, err := uuid.Parse(req.ClinicianID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_clinician_id", "clinician_id must be a valid UUID")
			return
		}

		var appointmentID *uuid.UUID
		if req.AppointmentID != "" {
			id, err := uuid.Parse(req.AppointmentID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointment_id must be a valid UUID")
				return
			}
			appointmentID = &id
		}

		medications := make([]prescription.Medication, 0, len(req.Medications))
		for _, m := range req.Medications {
			medications = append(medications, prescription.Medication{
				Name:         m.Name,
				Dosage:       m.Dosage,
				Frequency:    m.Frequency,
				Duration:     m.Duration,
				Instructions: m.Instructions,
			})
		}

		result, err := svc.Create(r.Context(), prescription.CreateInput{
			PatientID:     patientID,
			AppointmentID: appointmentID,
			ClinicianID:   clinicianID,
			Title:         req.Title,
			Body:          req.Body,
			Medications:   medications,
		})
		if err != nil {
			handlePrescriptionError(w, err)
			return
		}

		status := http.StatusCreated
		if result.Amended {
			status = http.StatusOK
		}
		writeJSON(w, status, CreatePrescriptionResponse{
			PrescriptionResponse: prescriptionResponseFrom(result.Prescription),
			ScreeningPerformed:   result.ScreeningPerformed,
			Amended:              result.Amended,
		})
	}
}

func getPrescriptionByAppointmentHandler(svc *prescription.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseAppointmentID(w, r)
		if !ok {
			return
		}

		p, err := svc.GetByAppointmentID(r.Context(), id)
		if err != nil {
			handlePrescriptionError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, prescriptionResponseFrom(p))
	}
}

func checkInteractionsHandler(svc *prescription.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CheckInteractionsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		warnings, err := svc.CheckInteractions(r.Context(), req.Medications)
		if err != nil {
			handlePrescriptionError(w, err)
			return
		}
		if warnings == nil {
			warnings = []string{}
		}

		writeJSON(w, http.StatusOK, CheckInteractionsResponse{Warnings: warnings})
	}
}

func handleTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrInvalidStateTransition):
		writeError(w, http.StatusConflict, "invalid_state_transition", err.Error())
	case errors.Is(err, appointment.ErrTimeWindowNotElapsed):
		writeError(w, http.StatusConflict, "time_window_not_elapsed", err.Error())
	case errors.Is(err, appointment.ErrMissingPrescription):
		writeError(w, http.StatusConflict, "missing_prescription", "create a prescription for this appointment, then complete it")
	case errors.Is(err, appointment.ErrTransitionInFlight):
		writeError(w, http.StatusConflict, "transition_in_flight", "another transition is in flight for this appointment, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handlePrescriptionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, prescription.ErrPrescriptionNotFound):
		writeError(w, http.StatusNotFound, "prescription_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, prescription.ErrAppointmentNotInProgress):
		writeError(w, http.StatusConflict, "appointment_not_in_progress", err.Error())
	case errors.Is(err, prescription.ErrPatientMismatch):
		writeError(w, http.StatusConflict, "patient_mismatch", err.Error())
	case errors.Is(err, prescription.ErrScreeningUnavailable):
		writeError(w, http.StatusServiceUnavailable, "screening_unavailable", "drug interaction screening could not run; this is not a clean screen")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
