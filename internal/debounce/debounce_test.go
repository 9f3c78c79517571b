package debounce

import (
	"sync/atomic"
	"testing"
	"time"
)

// scheduler records the timers a Debouncer asks for instead of starting them.
type scheduler struct {
	clock time.Time
	waits []time.Duration
	fires []func()
}

func fakeScheduler(t *testing.T) *scheduler {
	t.Helper()
	s := &scheduler{clock: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	prevAfter, prevNow := afterFunc, now
	t.Cleanup(func() { afterFunc, now = prevAfter, prevNow })
	now = func() time.Time { return s.clock }
	afterFunc = func(d time.Duration, f func()) *time.Timer {
		s.waits = append(s.waits, d)
		s.fires = append(s.fires, f)
		timer := time.NewTimer(time.Hour)
		timer.Stop()
		return timer
	}
	return s
}

func TestReplacedTimerDoesNotFire(t *testing.T) {
	s := fakeScheduler(t)
	var calls atomic.Int32
	d := New(time.Second, 0, func() { calls.Add(1) })

	d.Trigger()
	d.Trigger()
	d.Trigger()
	if len(s.fires) != 3 {
		t.Fatalf("scheduled %d timers, want 3", len(s.fires))
	}
	for _, f := range s.fires {
		f()
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("fn ran %d times, want 1", got)
	}
	if d.Pending() {
		t.Fatal("nothing should be pending after the last timer fired")
	}
}

func TestStopDiscardsScheduledCall(t *testing.T) {
	s := fakeScheduler(t)
	var calls atomic.Int32
	d := New(time.Second, 0, func() { calls.Add(1) })

	d.Trigger()
	if !d.Pending() {
		t.Fatal("Trigger should schedule a call")
	}
	d.Stop()
	s.fires[0]()
	if got := calls.Load(); got != 0 {
		t.Fatalf("fn ran %d times after Stop", got)
	}
}

func TestUnboundedBurstKeepsDeferring(t *testing.T) {
	s := fakeScheduler(t)
	d := New(250*time.Millisecond, 0, func() {})

	for range 5 {
		d.Trigger()
		s.clock = s.clock.Add(200 * time.Millisecond)
	}
	for i, w := range s.waits {
		if w != 250*time.Millisecond {
			t.Fatalf("wait[%d] = %v, want the full delay", i, w)
		}
	}
}

func TestMaxWaitCapsBurst(t *testing.T) {
	s := fakeScheduler(t)
	var calls atomic.Int32
	d := New(250*time.Millisecond, time.Second, func() { calls.Add(1) })

	d.Trigger()
	s.clock = s.clock.Add(900 * time.Millisecond)
	d.Trigger()
	s.clock = s.clock.Add(200 * time.Millisecond)
	d.Trigger()

	want := []time.Duration{250 * time.Millisecond, 100 * time.Millisecond, 0}
	if len(s.waits) != len(want) {
		t.Fatalf("waits = %v, want %v", s.waits, want)
	}
	for i := range want {
		if s.waits[i] != want[i] {
			t.Fatalf("wait[%d] = %v, want %v", i, s.waits[i], want[i])
		}
	}

	s.fires[2]()
	if got := calls.Load(); got != 1 {
		t.Fatalf("fn ran %d times, want 1", got)
	}

	// The window restarts with the next burst.
	d.Trigger()
	if last := s.waits[len(s.waits)-1]; last != 250*time.Millisecond {
		t.Fatalf("new burst wait = %v", last)
	}
}

func TestFiresWithRealTimers(t *testing.T) {
	done := make(chan struct{})
	var calls atomic.Int32
	d := New(10*time.Millisecond, 0, func() {
		if calls.Add(1) == 1 {
			close(done)
		}
	})
	d.Trigger()
	d.Trigger()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("debouncer never fired")
	}
	time.Sleep(30 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Fatalf("fn ran %d times, want 1", got)
	}
}
