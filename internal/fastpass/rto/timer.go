// Package rto implements the one-shot retransmission timer: the piece
// that turns "an outstanding packet waited longer than send_timeout"
// into a callback invocation, without ever needing its own lock on
// session state.
package rto

import (
	"sync"
	"time"
)

// Fire is invoked when the timer expires, on its own goroutine (the
// Go analog of the kernel's tasklet running after the hrtimer
// callback schedules it). The callback is expected to take whatever
// external lock guards session state itself, then re-read that state
// live: the outstanding window may have changed completely between
// the moment the timer was scheduled to fire and the moment the
// callback actually acquires the lock, so it must never assume
// anything about *why* it's firing, only act on what it finds.
type Fire func(now time.Time)

// Timer is a one-shot, re-armable deadline timer wrapping time.Timer
// with the "cancel may fail, fire re-arms" contract the retransmission
// timeout needs: Stop racing an in-flight fire is resolved by letting
// the fire run anyway and make its own (correct, because it re-reads
// live state) decision about whether to re-arm, rather than by trying
// to suppress it.
type Timer struct {
	mu    sync.Mutex
	t     *time.Timer
	armed bool
	fire  Fire
}

// New creates a disarmed timer that invokes fire on expiry.
func New(fire Fire) *Timer {
	return &Timer{fire: fire}
}

// ArmAt arms the timer to fire at deadline, canceling any previous
// arm first. Used both when a packet is sent into a previously-empty
// window and when the fire callback finds more unacked packets to
// wait on.
func (t *Timer) ArmAt(deadline time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.t != nil {
		t.t.Stop()
	}
	t.armed = true
	t.t = time.AfterFunc(time.Until(deadline), t.runFire)
}

// CancelAndReset stops the timer if it is currently armed and reports
// whether the stop won the race against an already-firing callback.
// When it returns false, the caller must not re-arm itself --
// hrtimer_try_to_cancel's failure path is "the tasklet will reset the
// timer", and here the in-flight fire plays that role by reading live
// state once it gets the lock the caller is about to release.
func (t *Timer) CancelAndReset() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	stopped := true
	if t.t != nil {
		stopped = t.t.Stop()
	}
	t.armed = false
	return stopped
}

// Disarm stops the timer. Used on session destroy; unlike
// CancelAndReset it's not followed by any decision to re-arm.
func (t *Timer) Disarm() {
	t.CancelAndReset()
}

// Armed reports whether the timer currently believes it has a pending
// deadline. Best-effort: a fire may be in flight and not yet have
// taken the external lock to decide whether to re-arm.
func (t *Timer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

func (t *Timer) runFire() {
	t.mu.Lock()
	t.armed = false
	cb := t.fire
	t.mu.Unlock()
	cb(time.Now())
}
