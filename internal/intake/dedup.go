package intake

import (
	"fmt"
	"sync"
	"time"

	"news-trading-bot/internal/types"
)

// dedupCache remembers the intake outcome per (ticker, source,
// time-bucket) so a retransmitted signal gets the original response
// back instead of a second evaluation. The key is claimed before
// evaluation starts: a concurrent duplicate blocks on the in-flight
// decision and then returns it, so idempotence holds under
// concurrency, not just for sequential repeats.
type dedupCache struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]*dedupEntry
}

type dedupEntry struct {
	result  types.SubmitResult
	savedAt time.Time
	done    chan struct{}
}

func newDedupCache(window time.Duration) *dedupCache {
	return &dedupCache{
		window:  window,
		entries: map[string]*dedupEntry{},
	}
}

// key buckets CreatedAt by the window length so two signals for the
// same ticker from the same source inside one window collide.
func (c *dedupCache) key(ticker, source string, createdAt time.Time) string {
	bucket := createdAt.UTC().Unix() / int64(c.window.Seconds())
	return fmt.Sprintf("%s|%s|%d", ticker, source, bucket)
}

// begin claims key for the caller. When a live entry already holds it,
// begin waits for that decision and returns it with owner=false. An
// owner must complete the claim with finish on every path.
func (c *dedupCache) begin(key string, now time.Time) (prior types.SubmitResult, owner bool) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && now.Sub(e.savedAt) <= c.window {
		c.mu.Unlock()
		<-e.done
		return e.result, false
	}
	e := &dedupEntry{savedAt: now, done: make(chan struct{})}
	c.entries[key] = e
	c.pruneLocked(now)
	c.mu.Unlock()
	return types.SubmitResult{}, true
}

// finish publishes the owner's decision and releases any waiters.
func (c *dedupCache) finish(key string, res types.SubmitResult) {
	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()
	if !ok {
		return
	}
	e.result = res
	close(e.done)
}

func (c *dedupCache) pruneLocked(now time.Time) {
	for k, e := range c.entries {
		select {
		case <-e.done:
		default:
			continue // decision still in flight
		}
		if now.Sub(e.savedAt) > c.window {
			delete(c.entries, k)
		}
	}
}
