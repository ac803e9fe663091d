package matching

import (
	"context"

	"match-call-backend/internal/breaker"
	"match-call-backend/internal/models"

	gobreaker "github.com/sony/gobreaker/v2"
)

// GuardedPool wraps a Pool with a circuit breaker so a pool outage fails
// fast instead of stalling every request on store round trips
type GuardedPool struct {
	pool Pool
	cb   *gobreaker.CircuitBreaker[any]
}

// NewGuardedPool guards pool with cb
func NewGuardedPool(pool Pool, cb *gobreaker.CircuitBreaker[any]) *GuardedPool {
	return &GuardedPool{pool: pool, cb: cb}
}

func (g *GuardedPool) Enqueue(ctx context.Context, entry models.WaitingEntry) error {
	_, err := breaker.Do(g.cb, func() (struct{}, error) {
		return struct{}{}, g.pool.Enqueue(ctx, entry)
	})
	return err
}

func (g *GuardedPool) Snapshot(ctx context.Context) ([]models.WaitingEntry, error) {
	return breaker.Do(g.cb, func() ([]models.WaitingEntry, error) {
		return g.pool.Snapshot(ctx)
	})
}

func (g *GuardedPool) Remove(ctx context.Context, userID string) (int, error) {
	return breaker.Do(g.cb, func() (int, error) {
		return g.pool.Remove(ctx, userID)
	})
}

func (g *GuardedPool) Claim(ctx context.Context, entry models.WaitingEntry) (bool, error) {
	return breaker.Do(g.cb, func() (bool, error) {
		return g.pool.Claim(ctx, entry)
	})
}

func (g *GuardedPool) Size(ctx context.Context) (int, error) {
	return breaker.Do(g.cb, func() (int, error) {
		return g.pool.Size(ctx)
	})
}
