package ratelimit

import (
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Defaults match the reference policy: at most 5 payment initiations per
// client within a 100 second window.
const (
	DefaultWindow      = 100 * time.Second
	DefaultMaxRequests = 5
)

// InvalidClientBucket collects requests whose client id could not be parsed.
// They are still rate limited, just together.
const InvalidClientBucket = "invalid"

// Limiter is a per-client sliding-window request counter. It holds no
// external state and never fails; a denied call is the only way it blocks
// traffic.
type Limiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]time.Time
}

// New creates a Limiter with the given policy. Non-positive arguments fall
// back to the defaults.
func New(maxRequests int, window time.Duration) *Limiter {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		window: window,
		max:    maxRequests,
		hits:   make(map[string][]time.Time),
	}
}

// Allow records a request for clientID at time now and reports whether it is
// within policy. Entries older than the window are discarded first; a denied
// request is not recorded.
func (l *Limiter) Allow(clientID string, now time.Time) bool {
	if clientID == "" {
		clientID = InvalidClientBucket
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.hits[clientID][:0]
	for _, ts := range l.hits[clientID] {
		if now.Sub(ts) <= l.window {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.max {
		l.hits[clientID] = kept
		zap.L().Warn("payment initiation rate limit exceeded",
			zap.String("client_id", clientID),
			zap.Int("requests_in_window", len(kept)),
		)
		return false
	}

	if len(kept) >= l.max-1 {
		zap.L().Info("suspicious payment initiation activity",
			zap.String("client_id", clientID),
			zap.Int("requests_in_window", len(kept)),
		)
	}

	l.hits[clientID] = append(kept, now)
	return true
}

// Sweep drops buckets whose newest entry fell out of the window. Callers may
// run it periodically to bound memory on long-lived processes.
func (l *Limiter) Sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, stamps := range l.hits {
		if len(stamps) == 0 || now.Sub(stamps[len(stamps)-1]) > l.window {
			delete(l.hits, id)
		}
	}
}

// ClientID validates ip as an IPv4/IPv6 address, mapping anything unparseable
// to the shared invalid bucket.
func ClientID(ip string) string {
	if net.ParseIP(ip) == nil {
		return InvalidClientBucket
	}
	return ip
}
