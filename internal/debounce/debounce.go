package debounce

import (
	"sync"
	"time"
)

// Test seams.
var (
	afterFunc = time.AfterFunc
	now       = time.Now
)

// Debouncer runs fn once a burst of Trigger calls has been quiet for delay.
// With a max wait set, a burst that never goes quiet still fires at least
// that often.
type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	maxWait time.Duration
	timer   *time.Timer
	// gen invalidates callbacks of timers that were replaced or stopped but
	// had already fired.
	gen   uint64
	first time.Time
	fn    func()
}

// New returns a Debouncer calling fn after delay of quiet. A positive maxWait
// bounds how long a burst can defer fn; zero leaves it unbounded.
func New(delay, maxWait time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, maxWait: maxWait, fn: fn}
}

func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	t := now()
	if d.first.IsZero() {
		d.first = t
	}
	wait := d.delay
	if d.maxWait > 0 {
		if remaining := d.maxWait - t.Sub(d.first); remaining < wait {
			wait = max(remaining, 0)
		}
	}
	d.timer = afterFunc(wait, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.first = time.Time{}
	fn := d.fn
	d.mu.Unlock()
	fn()
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	d.first = time.Time{}
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
