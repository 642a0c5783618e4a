package monitor

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// RedirectPolicy is the presentation policy attached to the monitor's
// discovery signal: after a countdown the viewer is navigated to the
// prescription view. Dismiss cancels the countdown, View fulfills it
// immediately. At most one navigation happens per notification.
type RedirectPolicy struct {
	delay    time.Duration
	navigate func(appointmentID uuid.UUID)

	mu      sync.Mutex
	pending bool
	target  uuid.UUID
	timer   *time.Timer
}

func NewRedirectPolicy(delay time.Duration, navigate func(appointmentID uuid.UUID)) *RedirectPolicy {
	return &RedirectPolicy{
		delay:    delay,
		navigate: navigate,
	}
}

// Notify arms the countdown for an appointment's prescription view. A
// previously armed countdown is replaced.
func (p *RedirectPolicy) Notify(appointmentID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
	}
	p.pending = true
	p.target = appointmentID
	p.timer = time.AfterFunc(p.delay, p.fire)
}

func (p *RedirectPolicy) fire() {
	p.mu.Lock()
	if !p.pending {
		p.mu.Unlock()
		return
	}
	p.pending = false
	target := p.target
	p.mu.Unlock()

	p.navigate(target)
}

// View navigates immediately and cancels the countdown.
func (p *RedirectPolicy) View() {
	p.mu.Lock()
	if !p.pending {
		p.mu.Unlock()
		return
	}
	p.pending = false
	if p.timer != nil {
		p.timer.Stop()
	}
	target := p.target
	p.mu.Unlock()

	p.navigate(target)
}

// Dismiss cancels the countdown without navigating.
func (p *RedirectPolicy) Dismiss() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pending = false
	if p.timer != nil {
		p.timer.Stop()
	}
}

// Pending reports whether a countdown is armed.
func (p *RedirectPolicy) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}
