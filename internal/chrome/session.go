package chrome

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"go.uber.org/zap"

	"github.com/chromegate/prerender/internal/cdpconn"
	apperrors "github.com/chromegate/prerender/internal/errors"
	"github.com/chromegate/prerender/internal/policy"
	"github.com/chromegate/prerender/internal/types"
)

const (
	desktopWidth  = 1366
	desktopHeight = 768
)

// Session owns one CDP target and drives the Configure -> Navigate ->
// Intercept -> Await-readiness -> Extract -> Reset state machine described
// for a single render. It is loaned to exactly one caller at a time by Pool.
type Session struct {
	id     int
	conn   *cdpconn.Conn
	close  context.CancelFunc
	cfg    SessionConfig
	policy *policy.Filter
	logger *zap.Logger

	mu         sync.Mutex
	generation int
	state      State
	configured bool
	dead       bool
	lastUA     string
	lastWidth  int
	lastHeight int
}

func newSession(id int, conn *cdpconn.Conn, cancel context.CancelFunc, cfg SessionConfig, pol *policy.Filter, logger *zap.Logger) *Session {
	return &Session{id: id, conn: conn, close: cancel, cfg: cfg, policy: pol, logger: logger, state: StateIdle}
}

// ID returns the session's pool-assigned identifier.
func (s *Session) ID() int { return s.id }

// Usable reports whether the session is healthy and has not exceeded its
// recycle threshold.
func (s *Session) Usable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.dead && s.generation < s.cfg.MaxIterations
}

// Generation returns the number of renders this session has completed.
func (s *Session) Generation() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Close idempotently tears down the session's CDP target.
func (s *Session) Close() {
	s.mu.Lock()
	if s.dead {
		s.mu.Unlock()
		return
	}
	s.dead = true
	s.state = StateDead
	s.mu.Unlock()

	s.close()
}

func (s *Session) condemn() {
	s.mu.Lock()
	s.dead = true
	s.mu.Unlock()
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Render drives one request through the full state machine, honoring the
// absolute deadline. The returned error is one of apperrors' AppError kinds.
func (s *Session) Render(ctx context.Context, deadline time.Time, req types.RenderRequest) (*types.Artifact, error) {
	base := s.conn.TargetContext()
	renderCtx, cancel := context.WithDeadline(base, deadline)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	host, err := hostOf(req.URL)
	if err != nil {
		return nil, apperrors.Navigate(apperrors.FaultClient, err)
	}
	// Defense in depth: the coordinator checks the allow-list before ever
	// acquiring a session, so this should never trigger in practice.
	if s.policy != nil && !s.policy.AllowDomain(host) {
		return nil, apperrors.Policy(fmt.Sprintf("domain %q is not on the allow-list", host))
	}

	if err := s.configure(renderCtx, req); err != nil {
		return nil, s.classify(renderCtx, err)
	}

	stopIntercept := s.intercept(renderCtx, host)
	defer stopIntercept()

	if err := s.navigate(renderCtx, req.URL); err != nil {
		return nil, s.classify(renderCtx, err)
	}

	if err := s.awaitReady(renderCtx); err != nil {
		return nil, s.classify(renderCtx, err)
	}

	artifact, err := s.extract(renderCtx, req)
	if err != nil {
		return nil, apperrors.Extract(err)
	}

	s.reset(renderCtx)

	s.mu.Lock()
	s.generation++
	s.mu.Unlock()

	return artifact, nil
}

// classify maps a generic failure observed mid-render to the deadline or
// cancellation that actually caused it, per spec §4.2's "first missed
// deadline converts the in-flight step to a TimeoutError" rule.
func (s *Session) classify(renderCtx context.Context, err error) error {
	if appErr, ok := err.(*apperrors.AppError); ok {
		if appErr.Kind == apperrors.KindTransport {
			s.condemn()
			return appErr
		}
	}

	switch renderCtx.Err() {
	case context.DeadlineExceeded:
		s.condemn()
		return apperrors.Timeout(err)
	case context.Canceled:
		s.condemn()
		return apperrors.Cancelled(err)
	default:
		return apperrors.Navigate(apperrors.FaultUpstream, err)
	}
}

// configure applies per-session setup that is safe to repeat on a reused
// session. The one-time domain enablement (network/page/lifecycle events)
// is issued only on a session's first render; user-agent and viewport are
// re-applied only when the request actually asks for something different
// from what's already in effect, per spec §4.2 step 1.
func (s *Session) configure(ctx context.Context, req types.RenderRequest) error {
	s.setState(StateConfiguring)

	if !s.configured {
		if err := s.conn.Call(ctx, network.Enable()); err != nil {
			return err
		}
		if err := s.conn.Call(ctx, page.Enable()); err != nil {
			return err
		}
		if err := s.conn.Call(ctx, page.SetLifecycleEventsEnabled(true)); err != nil {
			return err
		}
		s.configured = true
	}

	ua := req.Options.UserAgent
	if ua == "" {
		ua = s.cfg.UserAgent
	}
	if ua != "" && ua != s.lastUA {
		if err := s.conn.Call(ctx, emulation.SetUserAgentOverride(ua)); err != nil {
			return err
		}
		s.lastUA = ua
	}

	width, height := desktopWidth, desktopHeight
	if req.Options.ViewportWidth > 0 && req.Options.ViewportHeight > 0 {
		width, height = req.Options.ViewportWidth, req.Options.ViewportHeight
	}
	if width != s.lastWidth || height != s.lastHeight {
		if err := s.conn.Call(ctx, emulation.SetDeviceMetricsOverride(int64(width), int64(height), 1.0, false)); err != nil {
			return err
		}
		s.lastWidth, s.lastHeight = width, height
	}

	return nil
}

// intercept enables Fetch domain request interception and installs the
// policy decision for every paused request. It returns a function that
// tears the subscription down; callers must call it once per render.
func (s *Session) intercept(ctx context.Context, mainHost string) func() {
	s.setState(StateNavigating)

	events, stopEvents := s.conn.Events(func(ev interface{}) bool {
		_, ok := ev.(*fetch.EventRequestPaused)
		return ok
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			paused := ev.(*fetch.EventRequestPaused)
			s.decideRequest(ctx, paused, mainHost)
		}
	}()

	patterns := []*fetch.RequestPattern{{RequestStage: fetch.RequestStageRequest}}
	if err := s.conn.Call(ctx, fetch.Enable().WithPatterns(patterns)); err != nil {
		s.logger.Warn("fetch interception enable failed", zap.Int("session", s.id), zap.Error(err))
	}

	return func() {
		stopEvents()
		<-done
		if err := s.conn.Call(ctx, fetch.Disable()); err != nil {
			s.logger.Debug("fetch disable failed during teardown", zap.Int("session", s.id), zap.Error(err))
		}
	}
}

func (s *Session) decideRequest(ctx context.Context, ev *fetch.EventRequestPaused, mainHost string) {
	isMainDocument := ev.ResourceType == network.ResourceTypeDocument

	block := false
	if !isMainDocument {
		host, err := hostOf(ev.Request.URL)
		if err == nil && s.policy != nil && !s.policy.AllowDomain(host) {
			block = true
		}
		if s.policy != nil && s.policy.DecideResource(policy.ResourceType(ev.ResourceType)) {
			block = true
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if block {
		if err := s.conn.Call(callCtx, fetch.FailRequest(ev.RequestID, network.ErrorReasonAborted)); err != nil {
			s.logger.Debug("failed to block request", zap.String("url", ev.Request.URL), zap.Error(err))
		}
		return
	}

	if err := s.conn.Call(callCtx, fetch.ContinueRequest(ev.RequestID)); err != nil {
		s.logger.Debug("failed to continue request", zap.String("url", ev.Request.URL), zap.Error(err))
	}
}

// navigate issues Page.navigate and waits to observe frameStartedLoading
// for the main frame within navigateTimeout.
func (s *Session) navigate(ctx context.Context, rawURL string) error {
	s.setState(StateNavigating)

	events, stop := s.conn.Events(func(ev interface{}) bool {
		_, ok := ev.(*page.EventFrameStartedLoading)
		return ok
	})
	defer stop()

	if _, _, _, _, err := page.Navigate(rawURL).Do(ctx); err != nil {
		return apperrors.Navigate(apperrors.FaultUpstream, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, navigateTimeout)
	defer cancel()

	select {
	case _, ok := <-events:
		if !ok {
			return apperrors.Navigate(apperrors.FaultUpstream, fmt.Errorf("navigate: connection closed"))
		}
		return nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperrors.Navigate(apperrors.FaultUpstream, fmt.Errorf("navigate: frameStartedLoading not observed within %s", navigateTimeout))
	}
}

// awaitReady polls window.prerenderReady on a fixed interval until it is
// explicitly true, or (if it stays undefined) the load lifecycle event has
// fired and no network activity has been observed for SettleWindow.
func (s *Session) awaitReady(ctx context.Context) error {
	s.setState(StateAwaitingReady)

	loadFired := make(chan struct{})
	var loadOnce sync.Once

	lifecycleEvents, stopLifecycle := s.conn.Events(func(ev interface{}) bool {
		e, ok := ev.(*page.EventLifecycleEvent)
		return ok && e.Name == "load"
	})
	defer stopLifecycle()

	go func() {
		for range lifecycleEvents {
			loadOnce.Do(func() { close(loadFired) })
		}
	}()

	lastActivity := make(chan time.Time, 256)
	lastActivity <- time.Now()

	activityEvents, stopActivity := s.conn.Events(func(ev interface{}) bool {
		switch ev.(type) {
		case *network.EventRequestWillBeSent, *network.EventLoadingFinished, *network.EventLoadingFailed:
			return true
		}
		return false
	})
	defer stopActivity()

	go func() {
		for range activityEvents {
			select {
			case lastActivity <- time.Now():
			default:
			}
		}
	}()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	loaded := false
	lastSeen := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-lastActivity:
			if t.After(lastSeen) {
				lastSeen = t
			}
			continue
		case <-loadFired:
			loaded = true
			// A closed channel is always selectable; nil it out so this
			// case never wins again and the loop falls back to waiting on
			// ticker.C at PollInterval like every other iteration.
			loadFired = nil
		case <-ticker.C:
		}

		ready, explicit, err := s.evaluatePrerenderReady(ctx)
		if err != nil {
			return err
		}
		if explicit {
			if ready {
				return nil
			}
			// prerenderReady === false blocks readiness until true or deadline.
			continue
		}

		if loaded && time.Since(lastSeen) >= s.cfg.SettleWindow {
			return nil
		}
	}
}

// evaluatePrerenderReady returns (ready, explicit, err). explicit is true
// when the page has set window.prerenderReady to a boolean; ready is only
// meaningful when explicit is true.
func (s *Session) evaluatePrerenderReady(ctx context.Context) (ready bool, explicit bool, err error) {
	const expr = `(function() {
		var v = window.prerenderReady;
		if (typeof v === "boolean") {
			return JSON.stringify({explicit: true, ready: v});
		}
		return JSON.stringify({explicit: false, ready: false});
	})()`

	evalCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	remote, exceptionDetails, evalErr := cdpruntime.Evaluate(expr).WithReturnByValue(true).Do(evalCtx)
	if evalErr != nil {
		return false, false, apperrors.Transport(evalErr)
	}
	if exceptionDetails != nil {
		return false, false, nil
	}

	var encoded string
	if err := json.Unmarshal(remote.Value, &encoded); err != nil {
		return false, false, nil
	}

	var result struct {
		Explicit bool `json:"explicit"`
		Ready    bool `json:"ready"`
	}
	if err := json.Unmarshal([]byte(encoded), &result); err != nil {
		return false, false, nil
	}

	return result.Ready, result.Explicit, nil
}

// extract performs the format-specific CDP extraction call.
func (s *Session) extract(ctx context.Context, req types.RenderRequest) (*types.Artifact, error) {
	s.setState(StateExtracting)

	switch req.Format {
	case types.FormatHTML:
		root, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return nil, err
		}
		html, err := dom.GetOuterHTML().WithNodeID(root.NodeID).Do(ctx)
		if err != nil {
			return nil, err
		}
		return &types.Artifact{Format: req.Format, Bytes: []byte(html), ContentType: req.Format.ContentType(), ProducedAt: time.Now()}, nil

	case types.FormatMHTML:
		snapshot, err := page.CaptureSnapshot().WithFormat(page.CaptureSnapshotFormatMhtml).Do(ctx)
		if err != nil {
			return nil, err
		}
		return &types.Artifact{Format: req.Format, Bytes: []byte(snapshot), ContentType: req.Format.ContentType(), ProducedAt: time.Now()}, nil

	case types.FormatPDF:
		landscape := req.Options.Landscape
		width := req.Options.PaperWidth
		height := req.Options.PaperHeight
		params := page.PrintToPDF().WithLandscape(landscape)
		if width > 0 {
			params = params.WithPaperWidth(width)
		}
		if height > 0 {
			params = params.WithPaperHeight(height)
		}
		bytes, _, err := params.Do(ctx)
		if err != nil {
			return nil, err
		}
		return &types.Artifact{Format: req.Format, Bytes: bytes, ContentType: req.Format.ContentType(), ProducedAt: time.Now()}, nil

	case types.FormatPNG, types.FormatJPEG:
		format := page.CaptureScreenshotFormatPng
		quality := req.Options.Quality
		params := page.CaptureScreenshot().WithFormat(format)
		if req.Format == types.FormatJPEG {
			params = params.WithFormat(page.CaptureScreenshotFormatJpeg)
			if quality > 0 {
				params = params.WithQuality(int64(quality))
			}
		}
		bytes, err := params.Do(ctx)
		if err != nil {
			return nil, err
		}
		return &types.Artifact{Format: req.Format, Bytes: bytes, ContentType: req.Format.ContentType(), ProducedAt: time.Now()}, nil

	default:
		return nil, fmt.Errorf("chrome: unsupported format %q", req.Format)
	}
}

// reset navigates to about:blank to drop the previous document. Failures
// here are logged, not propagated: the render already succeeded.
func (s *Session) reset(ctx context.Context) {
	s.setState(StateResetting)

	if _, _, _, _, err := page.Navigate("about:blank").Do(ctx); err != nil {
		s.logger.Warn("reset navigation failed", zap.Int("session", s.id), zap.Error(err))
	}

	s.setState(StateIdle)
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("chrome: invalid url %q: %w", rawURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("chrome: url %q has no host", rawURL)
	}
	return u.Hostname(), nil
}
