package rpc

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleEvictAfter bounds how long an idle client keeps its bucket.
const idleEvictAfter = 10 * time.Minute

// ipLimiter keeps one token bucket per client IP. Whitelisted IPs bypass
// the limiter entirely.
type ipLimiter struct {
	limit     rate.Limit
	burst     int
	whitelist map[string]struct{}

	mtx     sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(rps float64, burst int, whitelist []string) *ipLimiter {
	wl := make(map[string]struct{}, len(whitelist))
	for _, ip := range whitelist {
		wl[ip] = struct{}{}
	}
	return &ipLimiter{
		limit:     rate.Limit(rps),
		burst:     burst,
		whitelist: wl,
		buckets:   make(map[string]*bucket),
	}
}

func (l *ipLimiter) allow(ip string) bool {
	if _, ok := l.whitelist[ip]; ok {
		return true
	}

	l.mtx.Lock()
	defer l.mtx.Unlock()

	b, ok := l.buckets[ip]
	if !ok {
		if len(l.buckets) > 1024 {
			l.evictIdle()
		}
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	return b.lim.Allow()
}

// evictIdle is called with the mutex held.
func (l *ipLimiter) evictIdle() {
	cutoff := time.Now().Add(-idleEvictAfter)
	for ip, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, ip)
		}
	}
}
