package ratelimit

import (
	"context"
	"sync"
	"time"
)

const defaultMaxKeys = 100_000

// MemoryLimiter keeps a log of recent hits per key. Keys idle for a whole
// window are swept out, and the number of tracked keys is capped.
type MemoryLimiter struct {
	mu         sync.Mutex
	limit      int
	window     time.Duration
	maxKeys    int
	hits       map[string][]time.Time
	lastSweep  time.Time
	sweepEvery time.Duration
}

func NewMemory(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:      limit,
		window:     window,
		maxKeys:    defaultMaxKeys,
		hits:       map[string][]time.Time{},
		lastSweep:  time.Now(),
		sweepEvery: window,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, now time.Time) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.sweepEvery {
		l.sweep(now)
	}

	hits := prune(l.hits[key], now.Add(-l.window))
	if len(hits) >= l.limit {
		l.hits[key] = hits
		retryAfter := hits[0].Add(l.window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter, nil
	}

	if _, tracked := l.hits[key]; !tracked && len(l.hits) >= l.maxKeys {
		l.sweep(now)
		if len(l.hits) >= l.maxKeys {
			l.evictOldest()
		}
	}
	l.hits[key] = append(hits, now)
	return true, 0, nil
}

func (l *MemoryLimiter) sweep(now time.Time) {
	cutoff := now.Add(-l.window)
	for k, hits := range l.hits {
		hits = prune(hits, cutoff)
		if len(hits) == 0 {
			delete(l.hits, k)
			continue
		}
		l.hits[k] = hits
	}
	l.lastSweep = now
}

// evictOldest drops the key whose latest hit is the oldest.
func (l *MemoryLimiter) evictOldest() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for k, hits := range l.hits {
		last := hits[len(hits)-1]
		if oldestKey == "" || last.Before(oldest) {
			oldestKey, oldest = k, last
		}
	}
	delete(l.hits, oldestKey)
}

// prune drops hits at or before cutoff. hits is in ascending order.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}
