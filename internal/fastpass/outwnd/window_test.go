package outwnd

import (
	"testing"

	"github.com/fastpass-proto/fastpass/internal/fastpass/pool"
)

const testBase = 10007

func mustRecover(t *testing.T, want error) {
	t.Helper()
	r := recover()
	if r == nil {
		t.Fatalf("expected panic %v, got none", want)
	}
	if err, ok := r.(error); !ok || err.Error() != want.Error() {
		t.Fatalf("expected panic %v, got %v", want, r)
	}
}

func newFullDescriptor(pl *pool.Pool, seqno uint64) *pool.Descriptor {
	d := pl.Get()
	d.Seqno = seqno
	d.SentTimestampNS = int64(seqno)
	return d
}

func TestWindowEmptyBeforeBase(t *testing.T) {
	w := New()
	w.SetNextSeqno(testBase)

	for tslot := uint64(testBase - Capacity); tslot < testBase; tslot++ {
		if _, ok := w.AtOrBefore(tslot); ok {
			t.Fatalf("AtOrBefore(%d) on empty window: expected not found", tslot)
		}
		if w.IsUnacked(tslot) {
			t.Fatalf("IsUnacked(%d) on empty window: expected false", tslot)
		}
	}
	if !w.Empty() {
		t.Fatalf("expected empty window")
	}
}

func TestWindowFillAndDrain(t *testing.T) {
	pl := pool.New()
	w := New()
	w.SetNextSeqno(testBase)

	for i := 0; i < Capacity; i++ {
		seqno := w.NextSeqno()
		w.Add(newFullDescriptor(pl, seqno))
		if !w.IsUnacked(seqno) {
			t.Fatalf("seqno %d should be unacked right after add", seqno)
		}
	}
	if w.NumUnacked() != Capacity {
		t.Fatalf("NumUnacked() = %d, want %d", w.NumUnacked(), Capacity)
	}

	// every seqno in [base, base+Capacity) must resolve AtOrBefore to itself
	for i := 0; i < Capacity; i++ {
		seqno := uint64(testBase + i)
		off, ok := w.AtOrBefore(seqno)
		if !ok || off != 0 {
			t.Fatalf("AtOrBefore(%d) = (%d,%v), want (0,true)", seqno, off, ok)
		}
	}

	earliest := w.EarliestUnacked()
	if earliest != testBase {
		t.Fatalf("EarliestUnacked() = %d, want %d", earliest, testBase)
	}

	// drain in order, confirming earliest advances and timestamps match
	for i := 0; i < Capacity; i++ {
		seqno := uint64(testBase + i)
		ts := w.Timestamp(seqno)
		if ts != int64(seqno) {
			t.Fatalf("Timestamp(%d) = %d, want %d", seqno, ts, seqno)
		}
		d := w.Pop(seqno)
		if d.Seqno != seqno {
			t.Fatalf("Pop(%d) returned descriptor for seqno %d", seqno, d.Seqno)
		}
		pl.Put(d)
	}
	if !w.Empty() {
		t.Fatalf("expected window empty after full drain")
	}
}

func TestWindowAtOrBeforeSkipsGaps(t *testing.T) {
	pl := pool.New()
	w := New()
	w.SetNextSeqno(testBase)

	for i := 0; i < Capacity; i++ {
		w.Add(newFullDescriptor(pl, w.NextSeqno()))
	}

	// ack the middle one, out of order, leaving a hole
	mid := uint64(testBase + Capacity/2)
	pl.Put(w.Pop(mid))

	off, ok := w.AtOrBefore(mid)
	if !ok {
		t.Fatalf("AtOrBefore(%d) after popping it: expected to find the one before it", mid)
	}
	if off != 1 {
		t.Fatalf("AtOrBefore(%d) = %d, want 1 (previous seqno)", mid, off)
	}

	if w.IsUnacked(mid) {
		t.Fatalf("seqno %d should no longer be unacked", mid)
	}
}

func TestWindowEarliestUnackedHintSkipsAcked(t *testing.T) {
	pl := pool.New()
	w := New()
	w.SetNextSeqno(testBase)

	for i := 0; i < Capacity; i++ {
		w.Add(newFullDescriptor(pl, w.NextSeqno()))
	}

	// ack the first three seqnos
	for i := 0; i < 3; i++ {
		seqno := uint64(testBase + i)
		pl.Put(w.Pop(seqno))
	}

	// hint at the window's trailing edge (next_seqno - Capacity == testBase)
	got := w.EarliestUnackedHint(w.NextSeqno() - Capacity)
	want := uint64(testBase + 3)
	if got != want {
		t.Fatalf("EarliestUnackedHint() = %d, want %d", got, want)
	}
}

func TestWindowAddIntoOccupiedSlotPanics(t *testing.T) {
	pl := pool.New()
	w := New()
	w.SetNextSeqno(testBase)

	for i := 0; i < Capacity; i++ {
		w.Add(newFullDescriptor(pl, w.NextSeqno()))
	}

	defer mustRecover(t, errSlotOccupied)
	// the oldest slot is still occupied; forcing past it without an
	// evicting pop violates the window's core invariant.
	w.Add(newFullDescriptor(pl, w.NextSeqno()))
}

func TestWindowPopNotUnackedPanics(t *testing.T) {
	w := New()
	w.SetNextSeqno(testBase)

	defer mustRecover(t, errPopNotUnacked)
	w.Pop(testBase - 1)
}

func TestWindowAddSeqnoMismatchPanics(t *testing.T) {
	pl := pool.New()
	w := New()
	w.SetNextSeqno(testBase)

	defer mustRecover(t, errSeqnoMismatch)
	w.Add(newFullDescriptor(pl, testBase+1))
}

func TestWindowReset(t *testing.T) {
	pl := pool.New()
	w := New()
	w.SetNextSeqno(testBase)

	for i := 0; i < Capacity/2; i++ {
		w.Add(newFullDescriptor(pl, w.NextSeqno()))
	}
	if w.Empty() {
		t.Fatalf("expected non-empty window before reset")
	}

	w.Reset(pl)
	if !w.Empty() {
		t.Fatalf("expected empty window after reset")
	}
	if w.NumUnacked() != 0 {
		t.Fatalf("NumUnacked() = %d after reset, want 0", w.NumUnacked())
	}
}
