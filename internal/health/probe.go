// Package health tracks whether the relay is fit to serve traffic: the
// outcome of its last completed batch and the last time its database and
// broker dependencies answered a reachability ping.
package health

import (
	"sync"
	"time"

	"github.com/lattice-systems/txoutbox"
)

// Probe wraps a txoutbox.Metrics recorder and observes every batch outcome
// the relay reports, without changing what the wrapped recorder does. Wire
// it in with txoutbox.WithMetrics(probe).
type Probe struct {
	inner txoutbox.Metrics
	clock txoutbox.Clock

	mu              sync.RWMutex
	lastCycleErr    bool
	lastCycleAt     time.Time
	dbOK            bool
	dbCheckedAt     time.Time
	brokerOK        bool
	brokerCheckedAt time.Time
}

// NewProbe constructs a Probe. inner may be nil, in which case batch
// metrics are only observed, not forwarded.
func NewProbe(inner txoutbox.Metrics, clock txoutbox.Clock) *Probe {
	if inner == nil {
		inner = txoutbox.NopMetrics{}
	}
	if clock == nil {
		clock = txoutbox.SystemClock{}
	}

	return &Probe{inner: inner, clock: clock}
}

// ObserveBatchDuration forwards to the wrapped recorder.
func (p *Probe) ObserveBatchDuration(d time.Duration) {
	p.inner.ObserveBatchDuration(d)
}

// AddProcessed forwards to the wrapped recorder and marks the cycle clean,
// unless AddErrors/AddQuarantined are also called for the same batch.
func (p *Probe) AddProcessed(count int) {
	p.inner.AddProcessed(count)
	p.recordCycle(false)
}

// AddErrors forwards to the wrapped recorder and, when count is positive,
// marks the last cycle as having thrown.
func (p *Probe) AddErrors(count int) {
	p.inner.AddErrors(count)
	if count > 0 {
		p.recordCycle(true)
	}
}

// AddRetries forwards to the wrapped recorder.
func (p *Probe) AddRetries(count int) {
	p.inner.AddRetries(count)
}

// AddQuarantined forwards to the wrapped recorder and, when count is
// positive, marks the last cycle as having thrown.
func (p *Probe) AddQuarantined(count int) {
	p.inner.AddQuarantined(count)
	if count > 0 {
		p.recordCycle(true)
	}
}

// SetPending forwards to the wrapped recorder.
func (p *Probe) SetPending(count int) {
	p.inner.SetPending(count)
}

func (p *Probe) recordCycle(failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastCycleErr = failed
	p.lastCycleAt = p.clock.Now()
}

// RecordDBPing records the outcome of a database reachability check.
func (p *Probe) RecordDBPing(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.dbOK = err == nil
	p.dbCheckedAt = p.clock.Now()
}

// RecordBrokerPing records the outcome of a broker reachability check.
func (p *Probe) RecordBrokerPing(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.brokerOK = err == nil
	p.brokerCheckedAt = p.clock.Now()
}

// Healthy reports whether the last batch the relay reported had no failed
// or quarantined record (see AddErrors and AddQuarantined) and both
// dependencies answered their last ping. A cycle that fails at the top
// level before reporting a batch (e.g. a failed fetch) does not reach the
// probe and leaves this unchanged. A dependency that
// has never been checked is treated as healthy, so a freshly started
// process is not immediately reported unhealthy before its first ping.
func (p *Probe) Healthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.lastCycleErr {
		return false
	}
	if !p.dbCheckedAt.IsZero() && !p.dbOK {
		return false
	}
	if !p.brokerCheckedAt.IsZero() && !p.brokerOK {
		return false
	}

	return true
}

// Status summarizes the probe's current view, for a readiness endpoint.
type Status struct {
	Healthy         bool
	LastCycleErr    bool
	LastCycleAt     time.Time
	DBOK            bool
	DBCheckedAt     time.Time
	BrokerOK        bool
	BrokerCheckedAt time.Time
}

// Snapshot returns the current Status.
func (p *Probe) Snapshot() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return Status{
		Healthy:         p.healthyLocked(),
		LastCycleErr:    p.lastCycleErr,
		LastCycleAt:     p.lastCycleAt,
		DBOK:            p.dbOK,
		DBCheckedAt:     p.dbCheckedAt,
		BrokerOK:        p.brokerOK,
		BrokerCheckedAt: p.brokerCheckedAt,
	}
}

func (p *Probe) healthyLocked() bool {
	if p.lastCycleErr {
		return false
	}
	if !p.dbCheckedAt.IsZero() && !p.dbOK {
		return false
	}
	if !p.brokerCheckedAt.IsZero() && !p.brokerOK {
		return false
	}

	return true
}

var _ txoutbox.Metrics = (*Probe)(nil)
