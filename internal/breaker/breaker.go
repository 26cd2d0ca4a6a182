// Package breaker implements a per-upstream-key circuit breaker guarding
// the render coordinator from hammering a browser that has stopped
// responding.
package breaker

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is one of the three circuit breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config controls a breaker's trip and recovery thresholds.
type Config struct {
	Enabled      bool
	FailMax      int
	ResetTimeout time.Duration
}

// circuit is the per-key state machine.
type circuit struct {
	mu          sync.Mutex
	state       State
	failures    int
	openedAt    time.Time
	halfOpenUse bool // a trial call is already outstanding in HALF_OPEN
}

// Breaker tracks one circuit per upstream key (e.g. the CDP browser
// endpoint), so a single misbehaving upstream doesn't need a process-wide
// trip.
type Breaker struct {
	cfg    Config
	logger *zap.Logger

	mu       sync.Mutex
	circuits map[string]*circuit
}

// New creates a Breaker. A zero-value Config.FailMax/ResetTimeout falls
// back to 5 failures and a 60s reset window, matching the gateway's
// documented defaults.
func New(cfg Config, logger *zap.Logger) *Breaker {
	if cfg.FailMax <= 0 {
		cfg.FailMax = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}
	return &Breaker{cfg: cfg, logger: logger, circuits: make(map[string]*circuit)}
}

func (b *Breaker) circuitFor(key string) *circuit {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		c = &circuit{}
		b.circuits[key] = c
	}
	return c
}

// Allow reports whether a call against key may proceed. In OPEN state it
// returns false until ResetTimeout has elapsed, at which point it
// transitions to HALF_OPEN and allows exactly one trial call through.
func (b *Breaker) Allow(key string) bool {
	if !b.cfg.Enabled {
		return true
	}

	c := b.circuitFor(key)
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case Closed:
		return true
	case HalfOpen:
		if c.halfOpenUse {
			return false
		}
		c.halfOpenUse = true
		return true
	case Open:
		if time.Since(c.openedAt) >= b.cfg.ResetTimeout {
			c.state = HalfOpen
			c.halfOpenUse = true
			b.logger.Info("circuit half-open", zap.String("key", key))
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess reports a successful call against key. From HALF_OPEN this
// closes the circuit and resets the failure count; from CLOSED it resets
// the consecutive-failure count.
func (b *Breaker) RecordSuccess(key string) {
	if !b.cfg.Enabled {
		return
	}

	c := b.circuitFor(key)
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Closed {
		b.logger.Info("circuit closed", zap.String("key", key))
	}
	c.state = Closed
	c.failures = 0
	c.halfOpenUse = false
}

// RecordFailure reports a failed call against key. In CLOSED state it
// trips to OPEN once FailMax consecutive failures accumulate; in HALF_OPEN
// a single failure re-opens the circuit immediately.
func (b *Breaker) RecordFailure(key string) {
	if !b.cfg.Enabled {
		return
	}

	c := b.circuitFor(key)
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case HalfOpen:
		c.state = Open
		c.openedAt = time.Now()
		c.halfOpenUse = false
		b.logger.Warn("circuit re-opened after half-open trial failed", zap.String("key", key))
	case Closed:
		c.failures++
		if c.failures >= b.cfg.FailMax {
			c.state = Open
			c.openedAt = time.Now()
			b.logger.Warn("circuit opened", zap.String("key", key), zap.Int("failures", c.failures))
		}
	case Open:
		// already open; nothing to do
	}
}

// State returns the current state of key's circuit, for observability.
func (b *Breaker) State(key string) State {
	c := b.circuitFor(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
