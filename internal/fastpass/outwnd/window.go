// Package outwnd implements the fixed-capacity outstanding window: the
// set of control packets that have been sent but not yet acked or
// nacked. It is the direct analog of Quantum's reliability.SendBuffer,
// specialized to a 256-slot ring with the kernel's "doubled bitmap"
// trick for wraparound-free bit scanning.
package outwnd

import "github.com/fastpass-proto/fastpass/internal/fastpass/pool"

// ErrWindowInvariant is raised (via panic) when a caller violates an
// invariant the window relies on to stay memory-safe: adding a
// descriptor into a slot that's still occupied, or popping/querying a
// slot that was never added. Both indicate a bug in the caller
// (typically prepare_to_send not having been observed), not a
// transient or recoverable condition, so they are not returned as
// errors -- see the session package's error taxonomy.
type ErrWindowInvariant string

func (e ErrWindowInvariant) Error() string { return string(e) }

const (
	errSlotOccupied   ErrWindowInvariant = "outwnd: add into occupied slot"
	errNilDescriptor  ErrWindowInvariant = "outwnd: add of nil descriptor"
	errSeqnoMismatch  ErrWindowInvariant = "outwnd: descriptor seqno does not match next_seqno"
	errPopNotUnacked  ErrWindowInvariant = "outwnd: pop of slot that is not unacked"
	errTimestampEmpty ErrWindowInvariant = "outwnd: timestamp of slot that is not unacked"
)

// Window is the outstanding window: a ring of Capacity slots indexed
// by position(seqno), plus the doubled bitmap tracking which slots are
// occupied (unacked).
type Window struct {
	bitmap     doubledBitmap
	ring       [Capacity]*pool.Descriptor
	nextSeqno  uint64
	numUnacked int
}

// New returns an empty window. The caller (normally the reset
// manager, during the initial handshake) must call SetNextSeqno
// before the first Add.
func New() *Window {
	return &Window{}
}

// position maps a seqno to its slot in the ring: bucket = (-seqno) mod
// Capacity. Any Capacity consecutive seqnos occupy all Capacity slots
// exactly once.
func position(seqno uint64) uint32 {
	return uint32(-seqno) & (Capacity - 1)
}

// NextSeqno returns the next sequence number that will be assigned to
// a committed descriptor.
func (w *Window) NextSeqno() uint64 { return w.nextSeqno }

// SetNextSeqno sets the next sequence number to assign. Only valid to
// call when the window is empty (immediately after Reset, during
// reset-handshake processing).
func (w *Window) SetNextSeqno(seqno uint64) { w.nextSeqno = seqno }

// NumUnacked returns the count of outstanding (unacked) descriptors.
func (w *Window) NumUnacked() int { return w.numUnacked }

// Empty reports whether the window holds no outstanding descriptors.
func (w *Window) Empty() bool { return w.numUnacked == 0 }

// IsUnacked reports whether seqno currently has an outstanding
// descriptor in the window.
func (w *Window) IsUnacked(seqno uint64) bool {
	pos := position(seqno)
	return w.bitmap.test(pos) && w.ring[pos] != nil && w.ring[pos].Seqno == seqno
}

// Add inserts desc at next_seqno and advances next_seqno. desc.Seqno
// must already equal NextSeqno() (the caller stamps it during
// commit). Panics with ErrWindowInvariant if the slot that is about to
// fall out of the window (next_seqno - Capacity) is still occupied --
// that means the caller sent more than Capacity packets without
// giving prepare_to_send a chance to evict the oldest one first.
func (w *Window) Add(desc *pool.Descriptor) {
	if desc == nil {
		panic(errNilDescriptor)
	}
	if desc.Seqno != w.nextSeqno {
		panic(errSeqnoMismatch)
	}
	if w.IsUnacked(w.nextSeqno - Capacity) {
		panic(errSlotOccupied)
	}

	pos := position(w.nextSeqno)
	w.bitmap.set(pos)
	w.ring[pos] = desc
	w.numUnacked++
	w.nextSeqno++
}

// Pop removes and returns the descriptor at seqno, marking it acked.
// Panics with ErrWindowInvariant if seqno is not currently unacked.
func (w *Window) Pop(seqno uint64) *pool.Descriptor {
	if !w.IsUnacked(seqno) {
		panic(errPopNotUnacked)
	}
	pos := position(seqno)
	d := w.ring[pos]
	w.bitmap.clear(pos)
	w.ring[pos] = nil
	w.numUnacked--
	return d
}

// Timestamp returns the send timestamp of the descriptor at seqno.
// Panics with ErrWindowInvariant if seqno is not currently unacked.
func (w *Window) Timestamp(seqno uint64) int64 {
	if !w.IsUnacked(seqno) {
		panic(errTimestampEmpty)
	}
	return w.ring[position(seqno)].SentTimestampNS
}

// AtOrBefore returns (seqno - s), where s is the seqno of the latest
// unacked packet at or before seqno, and ok is true if such a packet
// exists within the window. If seqno is older than the window's
// trailing edge (next_seqno - Capacity) it returns (0, false) without
// scanning, matching the source's fast-path bound check.
func (w *Window) AtOrBefore(seqno uint64) (offset uint32, ok bool) {
	if seqno+Capacity <= w.nextSeqno-1 {
		return 0, false
	}

	headIndex := position(w.nextSeqno - 1)
	seqnoIndex := headIndex + position(seqno-(w.nextSeqno-1))

	found := w.bitmap.findFirstSet(seqnoIndex, headIndex+Capacity)
	if found < 0 {
		return 0, false
	}
	return uint32(found) - seqnoIndex, true
}

// EarliestUnackedHint returns the seqno of the earliest unacked packet,
// given that it is not before hint. Assumes such a packet exists and
// that hint lies within the window -- callers must check Empty first.
func (w *Window) EarliestUnackedHint(hint uint64) uint64 {
	hintPos := position(hint)
	found := w.bitmap.findLastSet(hintPos, hintPos+Capacity+1)
	return hint + uint64(hintPos+Capacity-uint32(found))
}

// EarliestUnacked returns the seqno of the earliest unacked packet.
// Assumes the window is non-empty.
func (w *Window) EarliestUnacked() uint64 {
	return w.EarliestUnackedHint(w.nextSeqno - Capacity)
}

// Reset pops and discards every occupied slot, returning the freed
// descriptors to pl. It does not touch next_seqno -- the reset
// manager sets that separately via SetNextSeqno once it has derived
// the new epoch's base seqno. No NACK callback is invoked for
// descriptors dropped this way: a protocol reset invalidates the
// entire prior epoch's in-flight packets rather than retrying them.
func (w *Window) Reset(pl *pool.Pool) {
	tslot := w.nextSeqno - 1
	for {
		gap, ok := w.AtOrBefore(tslot)
		if !ok {
			break
		}
		tslot -= uint64(gap)
		pl.Put(w.Pop(tslot))
	}
}
