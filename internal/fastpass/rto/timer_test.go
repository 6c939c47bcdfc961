package rto

import (
	"sync"
	"testing"
	"time"
)

func TestTimerFiresOnce(t *testing.T) {
	var mu sync.Mutex
	fired := 0
	done := make(chan struct{})

	timer := New(func(now time.Time) {
		mu.Lock()
		fired++
		mu.Unlock()
		close(done)
	})
	timer.ArmAt(time.Now().Add(10 * time.Millisecond))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
}

func TestCancelAndResetStopsPendingTimer(t *testing.T) {
	fired := make(chan struct{}, 1)
	timer := New(func(now time.Time) { fired <- struct{}{} })

	timer.ArmAt(time.Now().Add(50 * time.Millisecond))
	timer.CancelAndReset()

	select {
	case <-fired:
		t.Fatal("timer fired after being canceled")
	case <-time.After(100 * time.Millisecond):
	}
	if timer.Armed() {
		t.Fatal("expected timer to be disarmed after CancelAndReset")
	}
}

func TestArmAtReplacesPreviousDeadline(t *testing.T) {
	var mu sync.Mutex
	var fireCount int
	done := make(chan struct{})

	timer := New(func(now time.Time) {
		mu.Lock()
		fireCount++
		n := fireCount
		mu.Unlock()
		if n == 1 {
			close(done)
		}
	})

	timer.ArmAt(time.Now().Add(200 * time.Millisecond))
	timer.ArmAt(time.Now().Add(10 * time.Millisecond))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("replaced timer never fired")
	}

	time.Sleep(250 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if fireCount != 1 {
		t.Fatalf("fireCount = %d, want 1 (original deadline should have been canceled)", fireCount)
	}
}

func TestDisarmPreventsFire(t *testing.T) {
	fired := make(chan struct{}, 1)
	timer := New(func(now time.Time) { fired <- struct{}{} })

	timer.ArmAt(time.Now().Add(20 * time.Millisecond))
	timer.Disarm()

	select {
	case <-fired:
		t.Fatal("timer fired after Disarm")
	case <-time.After(60 * time.Millisecond):
	}
}
