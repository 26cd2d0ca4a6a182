// Package coordinator implements the gateway's single render pipeline: the
// policy, cache-get, circuit-breaker, pool-acquire, render, release,
// breaker-record, cache-put sequence spec §4.4 describes for every
// incoming request, regardless of which HTTP route triggered it.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/chromegate/prerender/internal/breaker"
	"github.com/chromegate/prerender/internal/cache"
	"github.com/chromegate/prerender/internal/chrome"
	apperrors "github.com/chromegate/prerender/internal/errors"
	"github.com/chromegate/prerender/internal/policy"
	"github.com/chromegate/prerender/internal/types"
)

// upstreamKey is the single circuit breaker key: one browser endpoint
// backs the whole pool, so there is exactly one upstream to trip on.
const upstreamKey = "cdp-browser"

// Coordinator owns the pipeline glue between the HTTP front door and the
// rendering engine: it never talks CDP directly.
type Coordinator struct {
	pool    *chrome.Pool
	cache   cache.Facade
	breaker *breaker.Breaker
	policy  *policy.Filter
	logger  *zap.Logger

	renderTimeout time.Duration
}

// New builds a Coordinator. renderTimeout bounds the absolute deadline for
// a single render attempt, measured from the moment the cache has missed
// and the breaker has admitted the request.
func New(pool *chrome.Pool, cacheFacade cache.Facade, br *breaker.Breaker, pol *policy.Filter, logger *zap.Logger, renderTimeout time.Duration) *Coordinator {
	return &Coordinator{
		pool:          pool,
		cache:         cacheFacade,
		breaker:       br,
		policy:        pol,
		logger:        logger,
		renderTimeout: renderTimeout,
	}
}

// DoRender executes the full pipeline for one request and returns the
// produced (or cached) Artifact.
func (c *Coordinator) DoRender(ctx context.Context, req types.RenderRequest) (*types.Artifact, error) {
	if !req.Format.Valid() {
		return nil, apperrors.Navigate(apperrors.FaultClient, fmt.Errorf("unsupported format %q", req.Format))
	}

	key, err := types.NewCacheKey(req)
	if err != nil {
		return nil, apperrors.Navigate(apperrors.FaultClient, err)
	}

	host, err := hostOf(req.URL)
	if err != nil {
		return nil, apperrors.Navigate(apperrors.FaultClient, err)
	}

	// Policy is checked before the cache lookup and before any pool
	// acquisition: a disallowed domain never touches CDP or the cache,
	// per spec §7's ordering requirement.
	if c.policy != nil && !c.policy.AllowDomain(host) {
		return nil, apperrors.Policy(fmt.Sprintf("domain %q is not on the allow-list", host))
	}

	if artifact, hit, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("cache get failed, treating as miss", zap.Error(err))
	} else if hit {
		return artifact, nil
	}

	if c.breaker != nil && !c.breaker.Allow(upstreamKey) {
		return nil, apperrors.UpstreamOpen()
	}

	deadline := time.Now().Add(c.renderTimeout)
	renderCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	session, err := c.pool.Acquire(renderCtx)
	if err != nil {
		classified := c.classifyAcquire(err)
		if c.breaker != nil && apperrors.CountsTowardBreaker(classified) {
			c.breaker.RecordFailure(upstreamKey)
		}
		return nil, classified
	}

	artifact, renderErr := session.Render(renderCtx, deadline, req)

	healthy := renderErr == nil || !apperrors.ShouldCondemnSession(renderErr)
	c.pool.Release(context.Background(), session, healthy)

	if c.breaker != nil {
		if renderErr != nil && apperrors.CountsTowardBreaker(renderErr) {
			c.breaker.RecordFailure(upstreamKey)
		} else if renderErr == nil {
			c.breaker.RecordSuccess(upstreamKey)
		}
	}

	if renderErr != nil {
		return nil, renderErr
	}

	if err := c.cache.Put(ctx, key, artifact); err != nil {
		c.logger.Warn("cache put failed", zap.Error(err))
	}

	return artifact, nil
}

// classifyAcquire distinguishes a caller-side cancellation from a genuine
// pool-exhaustion timeout, since both surface as wrapped context errors
// from Pool.Acquire.
func (c *Coordinator) classifyAcquire(err error) error {
	if errors.Is(err, context.Canceled) {
		return apperrors.Cancelled(err)
	}
	return err
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("coordinator: invalid url %q: %w", rawURL, err)
	}
	return u.Hostname(), nil
}
