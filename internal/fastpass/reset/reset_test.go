package reset

import (
	"testing"
	"time"

	"github.com/fastpass-proto/fastpass/internal/fastpass/clock"
)

func newManager(now time.Time) (*Manager, *clock.Fake) {
	fc := clock.NewFake(now)
	return New(fc, DefaultWindow), fc
}

func truncate(full uint64) uint64 {
	return full & ((1 << truncBits) - 1)
}

func TestInitLocalStartsOutOfSync(t *testing.T) {
	m, _ := newManager(time.Unix(1000, 0))
	m.InitLocal()
	if m.InSync() {
		t.Fatal("expected out of sync right after InitLocal")
	}
}

func TestHandleInboundAcceptsMatchingLocalReset(t *testing.T) {
	m, fc := newManager(time.Unix(1000, 0))
	m.InitLocal()
	full := m.LastResetTime()

	fc.Advance(5 * time.Millisecond)
	outcome, _ := m.HandleInbound(truncate(full))
	if outcome != OutcomeInSync {
		t.Fatalf("outcome = %v, want OutcomeInSync", outcome)
	}
	if !m.InSync() {
		t.Fatal("expected in sync after matching reset echoed back")
	}
}

func TestHandleInboundRedundantAfterInSync(t *testing.T) {
	m, fc := newManager(time.Unix(1000, 0))
	m.InitLocal()
	full := m.LastResetTime()

	fc.Advance(5 * time.Millisecond)
	m.HandleInbound(truncate(full))

	fc.Advance(5 * time.Millisecond)
	outcome, _ := m.HandleInbound(truncate(full))
	if outcome != OutcomeRedundant {
		t.Fatalf("outcome = %v, want OutcomeRedundant", outcome)
	}
}

func TestHandleInboundAcceptsNewEpoch(t *testing.T) {
	m, fc := newManager(time.Unix(1000, 0))
	m.InitLocal()

	fc.Advance(10 * time.Millisecond)
	newFull := uint64(fc.Now().UnixNano())
	outcome, base := m.HandleInbound(truncate(newFull))
	if outcome != OutcomeAccepted {
		t.Fatalf("outcome = %v, want OutcomeAccepted", outcome)
	}
	if m.LastResetTime() != newFull {
		t.Fatalf("LastResetTime() = %d, want %d", m.LastResetTime(), newFull)
	}
	if !m.InSync() {
		t.Fatal("expected in sync after accepting a new reset")
	}
	if base < newFull {
		t.Fatalf("derived next_seqno base %d should be >= reset time %d", base, newFull)
	}
}

func TestHandleInboundRejectsOutOfWindow(t *testing.T) {
	m, fc := newManager(time.Unix(1000, 0))
	m.InitLocal()

	farFuture := uint64(fc.Now().Add(time.Hour).UnixNano())
	outcome, _ := m.HandleInbound(truncate(farFuture))
	if outcome != OutcomeOutOfWindow {
		t.Fatalf("outcome = %v, want OutcomeOutOfWindow", outcome)
	}
}

func TestHandleInboundRejectsOutdated(t *testing.T) {
	m, fc := newManager(time.Unix(1000, 0))
	m.InitLocal()

	fc.Advance(10 * time.Millisecond)
	newer := uint64(fc.Now().UnixNano())
	m.HandleInbound(truncate(newer))

	older := newer - uint64(100*time.Millisecond)
	outcome, _ := m.HandleInbound(truncate(older))
	if outcome != OutcomeOutdated {
		t.Fatalf("outcome = %v, want OutcomeOutdated", outcome)
	}
}
