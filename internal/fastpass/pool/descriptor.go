// Package pool provides a reuse pool for outbound packet descriptors,
// mirroring the sync.Pool-backed transport.PacketPool pattern used for
// Quantum packets. It is backed by sync.Pool, so it is not fixed-size:
// Get allocates a new descriptor whenever none is free, and never fails.
package pool

import "github.com/fastpass-proto/fastpass/internal/fastpass/wire"

// Descriptor is the record kept for every transmitted control packet:
// its sequence number, send timestamp, reset-handshake state at the
// time it was sent, and the allocation-request list it carries.
//
// A Descriptor is created by the upper layer, owned by the outstanding
// window from commit until it is ACKed or NACKed, and then ownership
// passes to whichever callback consumes it (handle_ack/handle_neg_ack),
// which is responsible for returning it to the Pool. If no callback is
// installed, the session frees the descriptor itself.
type Descriptor struct {
	Seqno           uint64
	SentTimestampNS int64
	SendReset       bool
	ResetTimestamp  uint64
	Areq            []wire.AreqEntry
}

// reset clears a descriptor to its zero state before it's reused.
func (d *Descriptor) reset() {
	d.Seqno = 0
	d.SentTimestampNS = 0
	d.SendReset = false
	d.ResetTimestamp = 0
	d.Areq = d.Areq[:0]
}
