package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

type Type string

const (
	TypeOnline Type = "online"
	TypeOnSite Type = "on_site"
)

// DefaultCancelReason is recorded when a clinician cancels without giving one.
const DefaultCancelReason = "Cancelled by doctor"

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Clinician struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	ClinicianID uuid.UUID
	ClinicID    *uuid.UUID
	StartTime   time.Time
	EndTime     *time.Time
	Type        Type
	Status      Status
	IsEmergency bool
	Reason      string
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EffectiveEnd is the explicit end time, or start plus the default duration
// when none was recorded.
func (a *Appointment) EffectiveEnd(defaultDuration time.Duration) time.Time {
	if a.EndTime != nil {
		return *a.EndTime
	}
	return a.StartTime.Add(defaultDuration)
}

// HasStarted reports whether the scheduled slot has arrived. Advisory only:
// start() carries no time precondition, clinicians may open a meeting early.
func (a *Appointment) HasStarted(now time.Time) bool {
	return !now.Before(a.StartTime)
}

// IsActive reports whether the encounter is currently underway.
func (a *Appointment) IsActive() bool {
	return a.Status == StatusInProgress
}

// CanMarkNoShow reports whether the no-show window has elapsed. Advisory:
// MarkNoShow re-checks and is the authority.
func (a *Appointment) CanMarkNoShow(now time.Time, defaultDuration time.Duration) bool {
	return !now.Before(a.EffectiveEnd(defaultDuration))
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type Detail struct {
	Appointment
	Patient   *Patient
	Clinician *Clinician
}
