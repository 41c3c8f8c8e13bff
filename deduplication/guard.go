package deduplication

import (
	"context"

	"go.uber.org/zap"
)

// Prefilter is a probabilistic set: false positives are allowed, false
// negatives are not.
type Prefilter interface {
	Exists(ctx context.Context, hash string) (bool, error)
	Add(ctx context.Context, hash string) error
}

// Confirm performs the authoritative existence lookup.
type Confirm func(ctx context.Context) (bool, error)

// Guard answers "does (scope, key) already exist?". A prefilter miss skips the
// authoritative lookup; a hit, or a prefilter error, is always confirmed.
type Guard struct {
	bloom Prefilter
	log   *zap.Logger
}

// NewGuard creates a guard. bloom may be nil.
func NewGuard(bloom Prefilter, log *zap.Logger) *Guard {
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{bloom: bloom, log: log}
}

// Seen reports whether the key exists.
func (g *Guard) Seen(ctx context.Context, scopeID, naturalKey string, confirm Confirm) (bool, error) {
	if g.bloom != nil {
		maybe, err := g.bloom.Exists(ctx, ScopedHash(scopeID, naturalKey))
		if err != nil {
			g.log.Warn("bloom check failed, falling back to store", zap.Error(err))
		} else if !maybe {
			return false, nil
		}
	}
	return confirm(ctx)
}

// Remember records the key in the prefilter. Errors are logged only.
func (g *Guard) Remember(ctx context.Context, scopeID, naturalKey string) {
	if g.bloom == nil {
		return
	}
	if err := g.bloom.Add(ctx, ScopedHash(scopeID, naturalKey)); err != nil {
		g.log.Warn("bloom add failed", zap.Error(err))
	}
}
