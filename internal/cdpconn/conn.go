package cdpconn

import (
	"context"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	apperrors "github.com/chromegate/prerender/internal/errors"
)

// Cmd is satisfied by every cdproto command builder (page.Navigate(...),
// dom.GetOuterHTML(), emulation.SetDeviceMetricsOverride(...), ...); Do is
// their common calling convention throughout the teacher's renderer.
type Cmd interface {
	Do(ctx context.Context) error
}

// Conn is one CDP connection bound to a single browser target. It adapts
// cdproto's Do(ctx)-style commands and chromedp.ListenTarget's event stream
// into the transport contract a page session needs: Call for request/
// response commands, Events for a cancellable stream of CDP events. An
// error returned through Call poisons the Conn permanently — it never
// reconnects, matching the teacher's restart-the-whole-instance
// recovery strategy (the owning session is discarded, not the connection).
type Conn struct {
	ctx    context.Context
	logger *zap.Logger

	mu     sync.Mutex
	broken error
}

func newConn(ctx context.Context, logger *zap.Logger) *Conn {
	return &Conn{ctx: ctx, logger: logger}
}

// TargetContext returns the context carrying this connection's chromedp
// executor. Callers that need a per-call deadline must derive it from this
// context (context.WithTimeout(conn.TargetContext(), ...)) rather than
// build an unrelated context — only a context descended from TargetContext
// carries the executor cdproto commands need.
func (c *Conn) TargetContext() context.Context {
	return c.ctx
}

// Call executes cmd against this connection's target. ctx must be derived
// from TargetContext. Any error is treated as a transport failure and
// poisons the connection for subsequent calls, since cdproto surfaces both
// protocol errors and socket errors through the same Do(ctx) return value
// and callers can't safely tell them apart here.
func (c *Conn) Call(ctx context.Context, cmd Cmd) error {
	if err := c.deadConn(); err != nil {
		return err
	}

	if err := cmd.Do(ctx); err != nil {
		wrapped := apperrors.Transport(err)
		c.poison(wrapped)
		return wrapped
	}

	return nil
}

// Events subscribes to every CDP event on this connection's target for
// which match returns true, returning a channel of matched events and a
// cancel function that stops the subscription. The returned channel is
// closed once cancel is called or the target's context ends; poisoning the
// connection does not close it.
func (c *Conn) Events(match func(ev interface{}) bool) (<-chan interface{}, func()) {
	out := make(chan interface{}, 32)
	listenCtx, cancel := context.WithCancel(c.ctx)

	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		if !match(ev) {
			return
		}
		select {
		case out <- ev:
		case <-listenCtx.Done():
		}
	})

	stop := func() {
		cancel()
	}

	go func() {
		<-listenCtx.Done()
		close(out)
	}()

	return out, stop
}

// Broken reports the transport error that poisoned this connection, or nil
// if the connection is still usable.
func (c *Conn) Broken() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broken
}

func (c *Conn) poison(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken == nil {
		c.broken = err
		c.logger.Warn("cdp connection poisoned", zap.Error(err))
	}
}

func (c *Conn) deadConn() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken != nil {
		return c.broken
	}
	return nil
}
