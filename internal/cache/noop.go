package cache

import (
	"context"

	"github.com/chromegate/prerender/internal/types"
)

// Noop is the Facade implementation used when Cache.Backend is "none": it
// never stores anything and always reports a miss.
type Noop struct{}

func (Noop) Get(_ context.Context, _ types.CacheKey) (*types.Artifact, bool, error) {
	return nil, false, nil
}

func (Noop) Put(_ context.Context, _ types.CacheKey, _ *types.Artifact) error {
	return nil
}
