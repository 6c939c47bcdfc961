package session

import "github.com/fastpass-proto/fastpass/internal/fastpass/pool"

// Callbacks is the upper-layer collaborator contract. A Session with
// no Callbacks installed still functions correctly -- it just frees
// every descriptor itself instead of handing it off.
type Callbacks interface {
	// HandleReset fires when the peer has signaled (or echoed back) a
	// new epoch. Any in-flight application-level state tied to the
	// previous epoch must be discarded.
	HandleReset()

	// HandleAck is a positive acknowledgement. Ownership of desc
	// passes to the callee, which must return it to the pool it came
	// from once done with it.
	HandleAck(desc *pool.Descriptor)

	// HandleNegAck is a negative acknowledgement, either a timeout
	// expiry or an eviction from the window. Ownership of desc passes
	// to the callee the same way as HandleAck.
	HandleNegAck(desc *pool.Descriptor)

	// HandleAlloc delivers an ALLOC payload. Synchronous, no
	// ownership transfer -- dst and tslotData are only valid for the
	// duration of the call.
	HandleAlloc(baseTslot uint16, dst []uint16, tslotData []byte)
}
