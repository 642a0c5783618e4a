package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/healthlink/appointment-lifecycle/internal/clock"
	"github.com/healthlink/appointment-lifecycle/internal/config"
	redisclient "github.com/healthlink/appointment-lifecycle/internal/redis"
)

const (
	EventAppointmentStarted   = "APPOINTMENT_STARTED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentNoShow    = "APPOINTMENT_NO_SHOW"
	EventNoShowEligible       = "NO_SHOW_ELIGIBLE"
)

var (
	ErrInvalidStateTransition = errors.New("invalid status transition")
	ErrTimeWindowNotElapsed   = errors.New("appointment end time has not elapsed yet")
	ErrMissingPrescription    = errors.New("a prescription must exist before the appointment can be completed")
	ErrTransitionInFlight     = errors.New("another transition for this appointment is in flight, please retry")
)

// PrescriptionChecker is the completion gate's view of the prescription store.
// Kept narrow so the gate policy can evolve without touching the state machine.
type PrescriptionChecker interface {
	ExistsForAppointment(ctx context.Context, appointmentID uuid.UUID) (bool, error)
}

type Service struct {
	repo          Repository
	locker        redisclient.Locker
	prescriptions PrescriptionChecker
	clk           clock.Clock
	cfg           config.Config
}

func NewService(repo Repository, locker redisclient.Locker, prescriptions PrescriptionChecker, clk clock.Clock, cfg config.Config) *Service {
	return &Service{
		repo:          repo,
		locker:        locker,
		prescriptions: prescriptions,
		clk:           clk,
		cfg:           cfg,
	}
}

// Start moves a confirmed appointment to in_progress. There is deliberately no
// time precondition: a clinician may open the encounter at any time relative
// to the scheduled slot.
func (s *Service) Start(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, OpStart, nil, nil)
}

// Complete moves an in_progress appointment to completed. The completion gate
// runs first: without a prescription on record the transition is refused with
// ErrMissingPrescription and nothing is written.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	guard := func(lockCtx context.Context, appt *Appointment) error {
		exists, err := s.prescriptions.ExistsForAppointment(lockCtx, appt.ID)
		if err != nil {
			return fmt.Errorf("check prescription for appointment: %w", err)
		}
		if !exists {
			return ErrMissingPrescription
		}
		return nil
	}
	return s.transition(ctx, id, OpComplete, nil, guard)
}

// Cancel moves a non-terminal appointment to cancelled. An empty reason is
// recorded as the role default.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	if reason == "" {
		reason = DefaultCancelReason
	}
	return s.transition(ctx, id, OpCancel, &reason, nil)
}

// MarkNoShow moves a non-terminal appointment to no_show, but only once the
// effective end time has elapsed. Attempting earlier fails with
// ErrTimeWindowNotElapsed and leaves the record untouched.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	guard := func(_ context.Context, appt *Appointment) error {
		if s.clk.Now().Before(appt.EffectiveEnd(s.cfg.DefaultDuration)) {
			return ErrTimeWindowNotElapsed
		}
		return nil
	}
	return s.transition(ctx, id, OpMarkNoShow, reasonPtr, guard)
}

// transition runs one lifecycle operation under the per-appointment lock:
// load, table lookup, operation guard, then a compare-and-set keyed on the
// loaded status. A CAS miss means another caller won the race and is reported
// as ErrInvalidStateTransition, same as any other illegal edge.
func (s *Service) transition(ctx context.Context, id uuid.UUID, op Op, reason *string, guard func(ctx context.Context, appt *Appointment) error) (*Appointment, error) {
	var updated *Appointment

	err := s.locker.WithAppointmentLock(ctx, id, func(lockCtx context.Context) error {
		appt, err := s.repo.GetAppointmentByID(lockCtx, id)
		if err != nil {
			return err
		}

		next, err := Next(appt.Status, op)
		if err != nil {
			return err
		}

		if guard != nil {
			if err := guard(lockCtx, appt); err != nil {
				return err
			}
		}

		updated, err = s.repo.UpdateAppointmentStatus(lockCtx, appt.ID, appt.Status, next, reason)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return ErrInvalidStateTransition
			}
			return fmt.Errorf("%s appointment: %w", op, err)
		}

		payload := map[string]any{"from": string(appt.Status), "to": string(next)}
		if reason != nil {
			payload["reason"] = *reason
		}
		s.logEvent(lockCtx, appt.ID, eventTypeFor(op), payload)

		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrTransitionInFlight
		}
		return nil, err
	}

	return updated, nil
}

func eventTypeFor(op Op) string {
	switch op {
	case OpStart:
		return EventAppointmentStarted
	case OpComplete:
		return EventAppointmentCompleted
	case OpCancel:
		return EventAppointmentCancelled
	case OpMarkNoShow:
		return EventAppointmentNoShow
	}
	return "APPOINTMENT_TRANSITION"
}

// FlagNoShowEligible is intended to be called by the worker periodically. It
// records an eligibility event for every non-terminal appointment whose end
// window has elapsed; marking the no-show itself stays a clinician action.
func (s *Service) FlagNoShowEligible(ctx context.Context) (int, error) {
	now := s.clk.Now()
	eligible, err := s.repo.FindNoShowEligible(ctx, now, s.cfg.DefaultDuration)
	if err != nil {
		return 0, fmt.Errorf("find no-show eligible appointments: %w", err)
	}

	for _, appt := range eligible {
		s.logEvent(ctx, appt.ID, EventNoShowEligible, map[string]any{
			"status":   string(appt.Status),
			"end_time": appt.EffectiveEnd(s.cfg.DefaultDuration),
		})
	}

	return len(eligible), nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s for appointment %s: %v", eventType, appointmentID, err)
	}
}

// GetAppointment retrieves a fully hydrated appointment by ID
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Detail, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// HasStarted, CanMarkNoShow and IsActive mirror the model queries with the
// service clock applied, for callers deciding which actions to offer.
func (s *Service) HasStarted(a *Appointment) bool {
	return a.HasStarted(s.clk.Now())
}

func (s *Service) CanMarkNoShow(a *Appointment) bool {
	return a.CanMarkNoShow(s.clk.Now(), s.cfg.DefaultDuration)
}

func (s *Service) IsActive(a *Appointment) bool {
	return a.IsActive()
}
