package coordinator

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// idleTimer tracks the single inactivity countdown. Arming always creates a
// fresh timer and stops the previous one in the same step, so the deadline
// is always now + timeout and a fire from an abandoned timer can never be
// observed on C.
type idleTimer struct {
	clock   clockwork.Clock
	timeout time.Duration
	timer   clockwork.Timer
}

func newIdleTimer(clock clockwork.Clock, timeout time.Duration) *idleTimer {
	return &idleTimer{clock: clock, timeout: timeout}
}

// Arm restarts the countdown from now.
func (t *idleTimer) Arm() {
	t.Cancel()
	t.timer = t.clock.NewTimer(t.timeout)
}

// Cancel stops and forgets the timer. Safe to call when nothing is armed.
func (t *idleTimer) Cancel() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *idleTimer) Armed() bool {
	return t.timer != nil
}

// C returns the live expiry channel, or nil when nothing is armed. A nil
// channel blocks forever in a select, which is exactly what an unarmed
// timer should do.
func (t *idleTimer) C() <-chan time.Time {
	if t.timer == nil {
		return nil
	}
	return t.timer.Chan()
}
