package dispatch

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// agentLimiter hands out one token bucket per agent id.
type agentLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	visitors map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newAgentLimiter(limit rate.Limit, burst int) *agentLimiter {
	if burst < 1 {
		burst = 1
	}
	return &agentLimiter{limit: limit, burst: burst, visitors: make(map[string]*visitor)}
}

// Allow reports whether agentID may make another call now. A nil limiter
// allows everything.
func (l *agentLimiter) Allow(agentID string) bool {
	if l == nil || agentID == "" {
		return true
	}
	l.mu.Lock()
	v, ok := l.visitors[agentID]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[agentID] = v
	}
	v.lastSeen = time.Now()
	l.mu.Unlock()
	return v.limiter.Allow()
}

// Prune drops buckets not used within idle.
func (l *agentLimiter) Prune(idle time.Duration) int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for id, v := range l.visitors {
		if time.Since(v.lastSeen) > idle {
			delete(l.visitors, id)
			n++
		}
	}
	return n
}
