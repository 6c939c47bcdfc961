// Package fphash derives the sequence-number base from a reset-time
// timestamp, mirroring the kernel module's jhash_1word-seeded epoch
// derivation (see original_source/src/kernel-mod/fastpass_proto.c,
// do_proto_reset). The exact bit-mixing function doesn't need to match
// the kernel's jhash byte-for-byte -- both peers need only agree that
// the function is a pure, deterministic mapping of reset_time to a
// 32-bit value, since both sides compute it locally from the same
// accepted reset_time.
package fphash

import "hash/fnv"

// Seqno32 derives a 32-bit hash of a 64-bit reset timestamp. The result
// is used by the reset manager to seed next_seqno as
// reset_time + Seqno32(reset_time)<<32 | Seqno32(reset_time).
func Seqno32(resetTime uint64) uint32 {
	h := fnv.New32a()
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(resetTime >> (8 * i))
	}
	_, _ = h.Write(b[:])
	return h.Sum32()
}

// SeedSeqno computes the epoch-derived initial sequence number:
// reset_time + hash splatted across both halves of a 64-bit word, so
// any peer that has agreed on reset_time derives the identical base.
func SeedSeqno(resetTime uint64) uint64 {
	h := uint64(Seqno32(resetTime))
	return resetTime + (h << 32) + h
}
