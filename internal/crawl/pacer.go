package crawl

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// pacer waits MinDelay plus a uniform random jitter in [0, Jitter].
type pacer struct {
	mu        sync.Mutex
	rng       *rand.Rand
	base      time.Duration
	jitterMax time.Duration
	sleep     func(ctx context.Context, d time.Duration) bool
}

func newPacer(rng *rand.Rand, base, jitterMax time.Duration, sleep func(context.Context, time.Duration) bool) *pacer {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if sleep == nil {
		sleep = sleepContext
	}
	return &pacer{rng: rng, base: base, jitterMax: jitterMax, sleep: sleep}
}

func (p *pacer) next() time.Duration {
	jitter := time.Duration(0)
	if p.jitterMax > 0 {
		p.mu.Lock()
		jitter = time.Duration(p.rng.Int63n(int64(p.jitterMax) + 1))
		p.mu.Unlock()
	}
	return p.base + jitter
}

// Wait blocks for the next delay. It returns false if ctx ended first.
func (p *pacer) Wait(ctx context.Context) bool {
	return p.sleep(ctx, p.next())
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
