package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthlink/appointment-lifecycle/internal/appointment"
	"github.com/healthlink/appointment-lifecycle/internal/clock"
	"github.com/healthlink/appointment-lifecycle/internal/config"
	"github.com/healthlink/appointment-lifecycle/internal/prescription"
)

// In-memory stores standing in for Postgres.

type memApptRepo struct {
	appts      map[uuid.UUID]*appointment.Appointment
	patients   map[uuid.UUID]*appointment.Patient
	clinicians map[uuid.UUID]*appointment.Clinician
	events     []appointment.EventLog
}

func newMemApptRepo() *memApptRepo {
	return &memApptRepo{
		appts:      make(map[uuid.UUID]*appointment.Appointment),
		patients:   make(map[uuid.UUID]*appointment.Patient),
		clinicians: make(map[uuid.UUID]*appointment.Clinician),
	}
}

func (m *memApptRepo) GetPatientByID(ctx context.Context, id uuid.UUID) (*appointment.Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, appointment.ErrPatientNotFound
	}
	return p, nil
}

func (m *memApptRepo) GetClinicianByID(ctx context.Context, id uuid.UUID) (*appointment.Clinician, error) {
	c, ok := m.clinicians[id]
	if !ok {
		return nil, appointment.ErrClinicianNotFound
	}
	return c, nil
}

func (m *memApptRepo) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	a, ok := m.appts[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memApptRepo) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*appointment.Detail, error) {
	a, err := m.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &appointment.Detail{Appointment: *a}
	if p, ok := m.patients[a.PatientID]; ok {
		d.Patient = p
	}
	if c, ok := m.clinicians[a.ClinicianID]; ok {
		d.Clinician = c
	}
	return d, nil
}

func (m *memApptRepo) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to appointment.Status, reason *string) (*appointment.Appointment, error) {
	a, ok := m.appts[id]
	if !ok || a.Status != from {
		return nil, appointment.ErrAppointmentNotFound
	}
	a.Status = to
	if reason != nil {
		a.Reason = *reason
	}
	cp := *a
	return &cp, nil
}

func (m *memApptRepo) FindNoShowEligible(ctx context.Context, now time.Time, defaultDuration time.Duration) ([]appointment.Appointment, error) {
	var out []appointment.Appointment
	for _, a := range m.appts {
		if a.Status != appointment.StatusConfirmed && a.Status != appointment.StatusInProgress {
			continue
		}
		if a.EffectiveEnd(defaultDuration).Before(now) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memApptRepo) InsertEvent(ctx context.Context, ev appointment.EventLog) error {
	m.events = append(m.events, ev)
	return nil
}

type memRxRepo struct {
	byID   map[uuid.UUID]*prescription.Prescription
	byAppt map[uuid.UUID]uuid.UUID
}

func newMemRxRepo() *memRxRepo {
	return &memRxRepo{
		byID:   make(map[uuid.UUID]*prescription.Prescription),
		byAppt: make(map[uuid.UUID]uuid.UUID),
	}
}

func (m *memRxRepo) GetByID(ctx context.Context, id uuid.UUID) (*prescription.Prescription, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, prescription.ErrPrescriptionNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memRxRepo) GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*prescription.Prescription, error) {
	id, ok := m.byAppt[appointmentID]
	if !ok {
		return nil, prescription.ErrPrescriptionNotFound
	}
	return m.GetByID(ctx, id)
}

func (m *memRxRepo) Insert(ctx context.Context, p *prescription.Prescription) (*prescription.Prescription, error) {
	cp := *p
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.byID[cp.ID] = &cp
	if cp.AppointmentID != nil {
		m.byAppt[*cp.AppointmentID] = cp.ID
	}
	out := cp
	return &out, nil
}

func (m *memRxRepo) Update(ctx context.Context, p *prescription.Prescription) (*prescription.Prescription, error) {
	if _, ok := m.byID[p.ID]; !ok {
		return nil, prescription.ErrPrescriptionNotFound
	}
	cp := *p
	cp.UpdatedAt = time.Now()
	m.byID[cp.ID] = &cp
	out := cp
	return &out, nil
}

type passLocker struct{}

func (passLocker) WithAppointmentLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Test fixture

type fixture struct {
	router      http.Handler
	repo        *memApptRepo
	clk         *clock.Mock
	appt        *appointment.Appointment
	patientID   uuid.UUID
	clinicianID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := newMemApptRepo()
	rxRepo := newMemRxRepo()
	clk := clock.NewMock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	cfg := config.Config{DefaultDuration: 30 * time.Minute}

	screener := prescription.NewScreener(prescription.NewStaticSource())
	rxSvc := prescription.NewService(rxRepo, repo, screener)
	apptSvc := appointment.NewService(repo, passLocker{}, rxSvc, clk, cfg)

	patientID := uuid.New()
	clinicianID := uuid.New()
	repo.patients[patientID] = &appointment.Patient{ID: patientID, Name: "Ayesha Khan"}
	repo.clinicians[clinicianID] = &appointment.Clinician{ID: clinicianID, Name: "Dr. Imran Malik"}

	appt := &appointment.Appointment{
		ID:          uuid.New(),
		PatientID:   patientID,
		ClinicianID: clinicianID,
		StartTime:   clk.Now(),
		Type:        appointment.TypeOnline,
		Status:      appointment.StatusConfirmed,
	}
	repo.appts[appt.ID] = appt

	router := NewRouter(RouterConfig{
		Appointments:  apptSvc,
		Prescriptions: rxSvc,
		Env:           "test",
		Version:       "test",
	})

	return &fixture{
		router:      router,
		repo:        repo,
		clk:         clk,
		appt:        appt,
		patientID:   patientID,
		clinicianID: clinicianID,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) createPrescription(t *testing.T, meds ...string) *httptest.ResponseRecorder {
	t.Helper()

	medications := make([]MedicationRequest, 0, len(meds))
	for _, name := range meds {
		medications = append(medications, MedicationRequest{Name: name})
	}
	return f.do(t, http.MethodPost, "/prescriptions", CreatePrescriptionRequest{
		PatientID:     f.patientID.String(),
		AppointmentID: f.appt.ID.String(),
		ClinicianID:   f.clinicianID.String(),
		Title:         "Consultation outcome",
		Body:          "As discussed.",
		Medications:   medications,
	})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&e))
	return e
}

// Tests

func TestCompleteFlowThroughGate(t *testing.T) {
	f := newFixture(t)
	base := fmt.Sprintf("/appointments/%s", f.appt.ID)

	rec := f.do(t, http.MethodPost, base+"/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Completion is gated on a prescription existing.
	rec = f.do(t, http.MethodPost, base+"/complete", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "missing_prescription", decodeError(t, rec).Error)
	assert.Equal(t, appointment.StatusInProgress, f.repo.appts[f.appt.ID].Status)

	rec = f.createPrescription(t, "Amoxicillin")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, base+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, appointment.StatusCompleted, f.repo.appts[f.appt.ID].Status)

	// Terminal: a second completion is an invalid transition.
	rec = f.do(t, http.MethodPost, base+"/complete", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state_transition", decodeError(t, rec).Error)
}

func TestNoShowTimeWindow(t *testing.T) {
	f := newFixture(t)
	base := fmt.Sprintf("/appointments/%s", f.appt.ID)

	f.clk.Set(f.appt.StartTime.Add(29 * time.Minute))
	rec := f.do(t, http.MethodPost, base+"/no-show", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "time_window_not_elapsed", decodeError(t, rec).Error)
	assert.Equal(t, appointment.StatusConfirmed, f.repo.appts[f.appt.ID].Status)

	f.clk.Set(f.appt.StartTime.Add(30 * time.Minute))
	rec = f.do(t, http.MethodPost, base+"/no-show", TransitionRequest{Reason: "patient did not join"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, appointment.StatusNoShow, f.repo.appts[f.appt.ID].Status)
}

func TestCancelAppliesDefaultReason(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/appointments/%s/cancel", f.appt.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AppointmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "cancelled", resp.Status)
	assert.Equal(t, appointment.DefaultCancelReason, resp.Reason)
}

func TestGetPrescriptionByAppointment(t *testing.T) {
	f := newFixture(t)
	path := fmt.Sprintf("/prescriptions/by-appointment/%s", f.appt.ID)

	// "Not yet" is a 404 the monitor treats as a normal outcome.
	rec := f.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "prescription_not_found", decodeError(t, rec).Error)

	require.Equal(t, http.StatusOK,
		f.do(t, http.MethodPost, fmt.Sprintf("/appointments/%s/start", f.appt.ID), nil).Code)
	require.Equal(t, http.StatusCreated, f.createPrescription(t, "Warfarin", "Aspirin").Code)

	rec = f.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PrescriptionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.InteractionWarnings)
	require.NotNil(t, resp.AppointmentID)
	assert.Equal(t, f.appt.ID, *resp.AppointmentID)
}

func TestCreatePrescriptionAmends(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusOK,
		f.do(t, http.MethodPost, fmt.Sprintf("/appointments/%s/start", f.appt.ID), nil).Code)

	rec := f.createPrescription(t, "Amoxicillin")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.createPrescription(t, "Amoxicillin", "Paracetamol")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp CreatePrescriptionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Amended)
	assert.Len(t, resp.Medications, 2)
}

func TestCreatePrescriptionRequiresInProgress(t *testing.T) {
	f := newFixture(t)

	rec := f.createPrescription(t, "Amoxicillin")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "appointment_not_in_progress", decodeError(t, rec).Error)
}

func TestCheckInteractions(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/prescriptions/check-interactions", CheckInteractionsRequest{
		Medications: []string{"Warfarin", "Aspirin"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp CheckInteractionsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.Warnings)

	rec = f.do(t, http.MethodPost, "/prescriptions/check-interactions", CheckInteractionsRequest{
		Medications: []string{"Paracetamol"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Empty(t, resp.Warnings)
}

func TestGetAppointmentDetail(t *testing.T) {
	f := newFixture(t)
	path := fmt.Sprintf("/appointments/%s", f.appt.ID)

	rec := f.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AppointmentDetailResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Ayesha Khan", resp.PatientName)
	assert.Equal(t, "Dr. Imran Malik", resp.ClinicianName)
	assert.False(t, resp.HasPrescription)
	assert.True(t, resp.HasStarted)
	assert.False(t, resp.CanMarkNoShow)
	assert.False(t, resp.IsActive)
}

func TestInvalidAndUnknownIDs(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/appointments/not-a-uuid/start", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_appointment_id", decodeError(t, rec).Error)

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/appointments/%s/start", uuid.New()), nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "appointment_not_found", decodeError(t, rec).Error)
}
