// Package cdpconn adapts the chromedp browser/target connection machinery
// into the transport contract the rendering engine depends on: dial an
// already-running browser's devtools endpoint, open one connection per page
// session, and surface socket loss as a single terminal error.
package cdpconn

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Browser is a dialed connection to a running Chrome instance's devtools
// endpoint. It is the allocator every page session's Conn is created from.
type Browser struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// Dial connects to debugURL (the browser's devtools HTTP endpoint, e.g.
// "http://127.0.0.1:9222/json/version" or host:port accepted by
// chromedp.NewRemoteAllocator) and verifies it is responsive with a
// throwaway navigation, mirroring the teacher's about:blank probe in
// Instance.createBrowser.
func Dial(ctx context.Context, debugURL string, logger *zap.Logger) (*Browser, error) {
	// ctx bounds only the dial and probe below; the allocator is detached
	// from its cancellation, so the Browser lives until Close.
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.WithoutCancel(ctx), debugURL)

	probeCtx, probeCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(format, args...))
		}),
	)
	defer probeCancel()

	timeoutCtx, timeoutCancel := context.WithTimeout(probeCtx, probeTimeout)
	defer timeoutCancel()
	stopProbe := context.AfterFunc(ctx, timeoutCancel)
	defer stopProbe()

	if err := chromedp.Run(timeoutCtx, chromedp.Navigate("about:blank")); err != nil {
		allocCancel()
		return nil, fmt.Errorf("cdpconn: dial %s: %w", debugURL, err)
	}

	logger.Info("dialed CDP browser endpoint", zap.String("debug_url", debugURL))

	return &Browser{allocCtx: allocCtx, allocCancel: allocCancel, logger: logger}, nil
}

// NewTarget opens a new browser target (tab) and returns a Conn bound to it.
// The returned cancel function closes the target; callers must call it
// exactly once when the session is torn down.
func (b *Browser) NewTarget(ctx context.Context) (*Conn, context.CancelFunc, error) {
	targetCtx, cancel := chromedp.NewContext(b.allocCtx)

	// ctx only bounds the target-creation call below; the target itself is
	// a long-lived, pool-recycled resource whose lifetime the caller owns
	// exclusively through the returned cancel func. Binding it to ctx would
	// tear the tab down the moment whatever per-request context created it
	// expires, even though the session backed by it is about to be released
	// healthy back to the pool for reuse.
	createCtx, stopCreate := context.WithCancel(targetCtx)
	unregister := context.AfterFunc(ctx, stopCreate)
	defer unregister()
	defer stopCreate()

	if err := chromedp.Run(createCtx); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("cdpconn: new target: %w", err)
	}

	conn := newConn(targetCtx, b.logger)

	return conn, cancel, nil
}

// Close tears down the browser allocator and every target opened from it.
func (b *Browser) Close() {
	b.allocCancel()
}

// probeTimeout bounds Dial's about:blank health check independently of any
// caller-supplied ctx deadline, matching the teacher's fixed health-check
// window (healthCheckTimeout in instance.go).
const probeTimeout = 5 * time.Second
