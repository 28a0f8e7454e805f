package notifier

import (
	"sync"
	"time"
)

// CooldownGate suppresses repeat alerts: each subject may pass once per
// window. A flapping robot produces one mail per half hour instead of one per
// cycle. The clock is injectable for tests.
type CooldownGate struct {
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func NewCooldownGate(window time.Duration) *CooldownGate {
	return &CooldownGate{
		window:   window,
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}
}

// Allow reports whether the subject may be sent now and, if so, records the
// send time. Check and record are one atomic step so concurrent callers
// cannot both pass.
func (g *CooldownGate) Allow(subject string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if last, ok := g.lastSent[subject]; ok && now.Sub(last) < g.window {
		return false
	}
	g.lastSent[subject] = now
	return true
}
