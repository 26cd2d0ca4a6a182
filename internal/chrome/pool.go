package chrome

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/chromegate/prerender/internal/cdpconn"
	apperrors "github.com/chromegate/prerender/internal/errors"
	"github.com/chromegate/prerender/internal/policy"
)

// waiter is one entry on the FIFO waitlist: a channel the pool delivers an
// acquired session (or an error) to, exactly once.
type waiter struct {
	result chan acquireResult
}

type acquireResult struct {
	session *Session
	err     error
}

// Pool is a bounded, recyclable set of page Sessions opened against one
// Browser. Acquire blocks on a FIFO waitlist once capacity is saturated;
// Release recycles a healthy session back to idle or destroys it and frees
// its capacity slot. Session creation never happens while the pool's
// mutex is held.
type Pool struct {
	browser  *cdpconn.Browser
	cfg      SessionConfig
	policy   *policy.Filter
	logger   *zap.Logger
	capacity int

	mu        sync.Mutex
	idle      []*Session
	inventory int // |idle| + |busy|, counted against capacity at allocation time
	waitlist  *list.List
	nextID    int
	closed    bool
}

// NewPool creates an empty Pool; sessions are opened lazily on first
// Acquire, matching the spec's "create on demand up to capacity" model.
func NewPool(browser *cdpconn.Browser, capacity int, cfg SessionConfig, pol *policy.Filter, logger *zap.Logger) *Pool {
	return &Pool{
		browser:  browser,
		cfg:      cfg,
		policy:   pol,
		logger:   logger,
		capacity: capacity,
		waitlist: list.New(),
	}
}

// Acquire returns an idle healthy session, creates a fresh one if capacity
// allows, or blocks on the FIFO waitlist until one is released or ctx is
// done.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, apperrors.Pool(fmt.Errorf("pool is shutting down"))
		}

		if n := len(p.idle); n > 0 {
			s := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.mu.Unlock()

			if s.Usable() {
				return s, nil
			}
			s.Close()
			p.mu.Lock()
			p.inventory--
			p.mu.Unlock()
			continue
		}

		if p.inventory < p.capacity {
			p.inventory++
			p.mu.Unlock()

			s, err := p.createSession(ctx)
			if err != nil {
				p.mu.Lock()
				p.inventory--
				p.mu.Unlock()
				return nil, apperrors.Transport(err)
			}
			return s, nil
		}

		w := &waiter{result: make(chan acquireResult, 1)}
		elem := p.waitlist.PushBack(w)
		p.mu.Unlock()

		select {
		case res := <-w.result:
			if res.err != nil {
				return nil, res.err
			}
			return res.session, nil
		case <-ctx.Done():
			p.mu.Lock()
			p.waitlist.Remove(elem)
			p.mu.Unlock()
			return nil, apperrors.Pool(ctx.Err())
		}
	}
}

// Release returns session to the pool. If healthy and still usable, it is
// handed directly to the longest-waiting waiter or parked idle. Otherwise
// it is destroyed and, if a waiter is queued, a replacement session is
// created for them.
func (p *Pool) Release(ctx context.Context, session *Session, healthy bool) {
	if session == nil {
		return
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if healthy && !closed && session.Usable() {
		p.mu.Lock()
		if front := p.waitlist.Front(); front != nil {
			p.waitlist.Remove(front)
			w := front.Value.(*waiter)
			p.mu.Unlock()
			w.result <- acquireResult{session: session}
			return
		}
		p.idle = append(p.idle, session)
		p.mu.Unlock()
		return
	}

	session.Close()

	p.mu.Lock()
	front := p.waitlist.Front()
	if front != nil {
		// Slot stays reserved in inventory for the waiter's replacement
		// session; only decrement when no one is waiting for it.
		p.waitlist.Remove(front)
	} else {
		p.inventory--
	}
	p.mu.Unlock()

	if front == nil {
		return
	}

	w := front.Value.(*waiter)
	s, err := p.createSession(ctx)
	if err != nil {
		p.mu.Lock()
		p.inventory--
		p.mu.Unlock()
		w.result <- acquireResult{err: apperrors.Transport(err)}
		return
	}
	w.result <- acquireResult{session: s}
}

// createSession opens a fresh CDP target. It performs no pool bookkeeping
// and must be called without p.mu held.
func (p *Pool) createSession(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.mu.Unlock()

	conn, cancel, err := p.browser.NewTarget(ctx)
	if err != nil {
		return nil, err
	}

	return newSession(id, conn, cancel, p.cfg, p.policy, p.logger), nil
}

// Stats reports current pool occupancy, for observability.
type Stats struct {
	Idle      int
	Inventory int
	Capacity  int
	Waiting   int
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Idle: len(p.idle), Inventory: p.inventory, Capacity: p.capacity, Waiting: p.waitlist.Len()}
}

// Shutdown closes every idle session and marks the pool closed so no new
// acquisitions start; sessions already loaned out are left for their
// callers to release, which will then observe closed and discard them.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
}
