package tracking

import "time"

// DefaultTimeout bounds the silence tolerated between two accepted transitions.
const DefaultTimeout = 5 * time.Minute

type timer interface {
	C() <-chan time.Time
	Stop() bool
}

type timerFactory func(time.Duration) timer

type stdTimer struct {
	t *time.Timer
}

func (s stdTimer) C() <-chan time.Time { return s.t.C }

func (s stdTimer) Stop() bool { return s.t.Stop() }

func newStdTimer(d time.Duration) timer {
	return stdTimer{t: time.NewTimer(d)}
}

// Watchdog is a single-shot timer re-armed on every accepted transition. It is
// owned by one goroutine and is not safe for concurrent use.
type Watchdog struct {
	timeout  time.Duration
	newTimer timerFactory
	current  timer
}

// NewWatchdog builds a disarmed watchdog. A non-positive timeout selects
// DefaultTimeout.
func NewWatchdog(timeout time.Duration) *Watchdog {
	return newWatchdog(timeout, nil)
}

func newWatchdog(timeout time.Duration, factory timerFactory) *Watchdog {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if factory == nil {
		factory = newStdTimer
	}
	return &Watchdog{timeout: timeout, newTimer: factory}
}

// Timeout returns the configured expiry duration.
func (w *Watchdog) Timeout() time.Duration {
	return w.timeout
}

// Arm cancels any pending expiry and starts a fresh one.
func (w *Watchdog) Arm() {
	w.Stop()
	w.current = w.newTimer(w.timeout)
}

// Stop cancels the pending expiry. Stopping a disarmed watchdog is a no-op.
func (w *Watchdog) Stop() {
	if w.current == nil {
		return
	}
	w.current.Stop()
	w.current = nil
}

// Armed reports whether an expiry is pending.
func (w *Watchdog) Armed() bool {
	return w.current != nil
}

// C delivers the expiry of the armed timer. It returns nil while disarmed, so
// a select on it blocks forever.
func (w *Watchdog) C() <-chan time.Time {
	if w.current == nil {
		return nil
	}
	return w.current.C()
}

// expired clears the fired timer so a later Stop does not touch it.
func (w *Watchdog) expired() {
	w.current = nil
}
