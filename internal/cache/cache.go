// Package cache provides a pluggable artefact cache sitting in front of the
// render coordinator: a canonical CacheKey maps to a previously-produced
// Artifact, backed by one of several interchangeable storage backends.
package cache

import (
	"context"
	"time"

	"github.com/chromegate/prerender/internal/types"
)

// Facade is the cache contract the coordinator depends on. Get returns
// (nil, false, nil) on a clean miss; any non-nil error is logged by the
// caller and treated as a miss, since a cache failure must never fail a
// render.
type Facade interface {
	Get(ctx context.Context, key types.CacheKey) (*types.Artifact, bool, error)
	Put(ctx context.Context, key types.CacheKey, artifact *types.Artifact) error
}

// TTL is the maximum age of a cached artifact before it is treated as a
// miss, regardless of backend.
type TTL time.Duration

// Expired reports whether producedAt is older than ttl when observed at now.
func (ttl TTL) Expired(producedAt, now time.Time) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(producedAt) > time.Duration(ttl)
}
