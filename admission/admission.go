// Package admission enforces the two intake limits: a global cap on
// concurrently active sessions and a per-credential message rate.
package admission

import (
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/intelhive/intelhive/core"
)

// Options configure a Controller.
type Options struct {
	// MaxConcurrentSessions caps sessions in a non-terminal status.
	// Zero or negative disables the cap.
	MaxConcurrentSessions int
	// MessagesPerHour is the per-credential sustained message rate.
	// Zero or negative disables rate limiting.
	MessagesPerHour int
	// Burst is the instantaneous allowance per credential. Defaults to
	// MessagesPerHour so an idle credential can spend its full hourly
	// budget at once.
	Burst int
}

// Controller tracks active session count and per-credential limiters.
type Controller struct {
	maxSessions int64
	active      atomic.Int64

	perHour int
	burst   int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New constructs a Controller from the given options.
func New(opts Options) *Controller {
	burst := opts.Burst
	if burst <= 0 {
		burst = opts.MessagesPerHour
	}
	return &Controller{
		maxSessions: int64(opts.MaxConcurrentSessions),
		perHour:     opts.MessagesPerHour,
		burst:       burst,
		limiters:    make(map[string]*rate.Limiter),
	}
}

// AdmitSession reserves one active session slot. Returns
// core.ErrAdmissionRejected when the concurrency cap is reached. A
// successful admit must be paired with exactly one ReleaseSession when
// the session leaves its active states.
func (c *Controller) AdmitSession() error {
	if c.maxSessions <= 0 {
		c.active.Add(1)
		return nil
	}
	for {
		cur := c.active.Load()
		if cur >= c.maxSessions {
			return core.ErrAdmissionRejected
		}
		if c.active.CompareAndSwap(cur, cur+1) {
			return nil
		}
	}
}

// ReleaseSession returns a previously admitted slot.
func (c *Controller) ReleaseSession() {
	c.active.Add(-1)
}

// Active reports the current number of admitted sessions.
func (c *Controller) Active() int64 {
	return c.active.Load()
}

// AllowMessage charges one message against the credential's rate budget.
// Returns core.ErrRateLimited when the budget is exhausted.
func (c *Controller) AllowMessage(credential string) error {
	if c.perHour <= 0 {
		return nil
	}
	if !c.limiter(credential).Allow() {
		return core.ErrRateLimited
	}
	return nil
}

func (c *Controller) limiter(credential string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[credential]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(c.perHour)/3600.0), c.burst)
		c.limiters[credential] = lim
	}
	return lim
}
