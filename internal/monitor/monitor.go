package monitor

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/healthlink/appointment-lifecycle/internal/prescription"
)

// State of the availability monitor.
type State string

const (
	StateIdle    State = "idle"    // no appointment designated, or disabled
	StatePolling State = "polling" // designated and enabled, nothing seen yet
	StateFound   State = "found"   // a prescription has been observed
)

// Lookup is the monitor's view of the prescription store. A lookup answering
// prescription.ErrPrescriptionNotFound is the normal "not yet" outcome.
type Lookup interface {
	GetByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*prescription.Prescription, error)
}

// Monitor bridges the absence of a push channel: it repeatedly checks for a
// prescription tied to the designated appointment and raises OnFound once per
// distinct prescription identity. After firing it keeps refreshing the cached
// record so amendments propagate without re-firing.
type Monitor struct {
	lookup   Lookup
	interval time.Duration
	onFound  func(p *prescription.Prescription)

	mu            sync.Mutex
	appointmentID *uuid.UUID
	enabled       bool
	inFlight      bool
	lastSeen      uuid.UUID
	current       *prescription.Prescription

	kick chan struct{}
	done chan struct{}
	once sync.Once
}

// New creates a monitor. onFound may be nil. The monitor does not poll until
// an appointment is designated via Designate and it is enabled.
func New(lookup Lookup, interval time.Duration, onFound func(p *prescription.Prescription)) *Monitor {
	return &Monitor{
		lookup:   lookup,
		interval: interval,
		onFound:  onFound,
		enabled:  true,
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Designate points the monitor at an appointment, resetting the last-seen
// identity and discovery state, and triggers an immediate check.
func (m *Monitor) Designate(appointmentID uuid.UUID) {
	m.mu.Lock()
	id := appointmentID
	m.appointmentID = &id
	m.lastSeen = uuid.Nil
	m.current = nil
	m.mu.Unlock()

	m.requestCheck()
}

// Clear removes the designation. No further lookups are issued.
func (m *Monitor) Clear() {
	m.mu.Lock()
	m.appointmentID = nil
	m.lastSeen = uuid.Nil
	m.current = nil
	m.mu.Unlock()
}

// SetEnabled pauses or resumes polling. Re-enabling with a designation in
// place checks immediately rather than waiting a full period.
func (m *Monitor) SetEnabled(enabled bool) {
	m.mu.Lock()
	wasEnabled := m.enabled
	m.enabled = enabled
	hasTarget := m.appointmentID != nil
	m.mu.Unlock()

	if enabled && !wasEnabled && hasTarget {
		m.requestCheck()
	}
}

// State reports where the monitor is in its idle/polling/found cycle.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled || m.appointmentID == nil {
		return StateIdle
	}
	if m.lastSeen == uuid.Nil {
		return StatePolling
	}
	return StateFound
}

// Current returns the most recently observed prescription, if any.
func (m *Monitor) Current() *prescription.Prescription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Run drives the poll loop until ctx is cancelled or Close is called. It
// checks immediately on designation kicks and otherwise once per period.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-m.kick:
			m.Tick(ctx)
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Close stops Run. Idempotent.
func (m *Monitor) Close() {
	m.once.Do(func() { close(m.done) })
}

// Tick performs at most one lookup. It is a no-op while disabled, while no
// appointment is designated, or while a previous lookup is still outstanding
// (an overlapping tick is skipped, not queued).
func (m *Monitor) Tick(ctx context.Context) {
	m.mu.Lock()
	if !m.enabled || m.appointmentID == nil || m.inFlight {
		m.mu.Unlock()
		return
	}
	target := *m.appointmentID
	m.inFlight = true
	m.mu.Unlock()

	p, err := m.lookup.GetByAppointmentID(ctx, target)

	m.mu.Lock()
	m.inFlight = false

	// The designation may have changed while the lookup was outstanding;
	// a stale answer must not fire for the new target.
	if m.appointmentID == nil || *m.appointmentID != target {
		m.mu.Unlock()
		return
	}

	if err != nil {
		m.mu.Unlock()
		if !errors.Is(err, prescription.ErrPrescriptionNotFound) {
			log.Printf("prescription lookup for appointment %s failed: %v", target, err)
		}
		return
	}

	m.current = p
	fire := p.ID != m.lastSeen
	if fire {
		m.lastSeen = p.ID
	}
	onFound := m.onFound
	m.mu.Unlock()

	if fire && onFound != nil {
		onFound(p)
	}
}

func (m *Monitor) requestCheck() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}
