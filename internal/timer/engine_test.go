package timer

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestArmOnceFires(t *testing.T) {
	t.Parallel()
	e := New()
	done := make(chan struct{})
	if err := e.ArmOnce("a", 20*time.Millisecond, func() { close(done) }); err != nil {
		t.Fatalf("ArmOnce: %v", err)
	}
	if !e.Armed("a") {
		t.Fatal("expected a to be armed")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	if e.Armed("a") || e.Len() != 0 {
		t.Fatal("fired timer still armed")
	}
}

func TestArmOnceNotEarly(t *testing.T) {
	t.Parallel()
	e := New()
	start := time.Now()
	fired := make(chan time.Time, 1)
	_ = e.ArmOnce("a", 100*time.Millisecond, func() { fired <- time.Now() })
	select {
	case at := <-fired:
		if at.Sub(start) < 100*time.Millisecond {
			t.Fatalf("fired after %v, before the deadline", at.Sub(start))
		}
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestArmOnceDuplicate(t *testing.T) {
	t.Parallel()
	e := New()
	defer e.Stop()
	_ = e.ArmOnce("a", time.Hour, func() {})
	if err := e.ArmOnce("a", time.Hour, func() {}); !errors.Is(err, ErrDuplicateTimer) {
		t.Fatalf("err = %v, want ErrDuplicateTimer", err)
	}
}

func TestNegativeDelayFiresImmediately(t *testing.T) {
	t.Parallel()
	e := New()
	done := make(chan struct{})
	_ = e.ArmOnce("late", -time.Hour, func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("overdue timer did not fire")
	}
}

func TestCancelPreventsFire(t *testing.T) {
	t.Parallel()
	e := New()
	var fired atomic.Int32
	_ = e.ArmOnce("a", 30*time.Millisecond, func() { fired.Add(1) })
	if !e.Cancel("a") {
		t.Fatal("Cancel reported nothing removed")
	}
	if e.Cancel("a") {
		t.Fatal("second Cancel should report false")
	}
	time.Sleep(80 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatal("cancelled timer fired")
	}
}

func TestCallbackMayRearm(t *testing.T) {
	t.Parallel()
	e := New()
	defer e.Stop()
	var n atomic.Int32
	done := make(chan struct{})
	var fn func()
	fn = func() {
		if n.Add(1) == 2 {
			close(done)
			return
		}
		if err := e.ArmOnce("a", 0, fn); err != nil {
			t.Errorf("re-arm: %v", err)
		}
	}
	_ = e.ArmOnce("a", 0, fn)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("re-armed timer did not fire")
	}
}

func TestStopDisarmsAll(t *testing.T) {
	t.Parallel()
	e := New()
	var fired atomic.Int32
	for _, id := range []string{"a", "b", "c"} {
		_ = e.ArmOnce(id, 30*time.Millisecond, func() { fired.Add(1) })
	}
	if n := e.Stop(); n != 3 {
		t.Fatalf("Stop = %d, want 3", n)
	}
	if err := e.ArmOnce("d", 0, func() {}); !errors.Is(err, ErrStopped) {
		t.Fatalf("ArmOnce after Stop err = %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatal("timers fired after Stop")
	}
}
