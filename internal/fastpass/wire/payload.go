// Package wire implements the Fastpass control-packet wire format: the
// 4-byte frame header and the RESET, ALLOC, ACK and AREQ payload kinds
// described in the protocol specification. Layouts are taken directly
// from original_source/src/kernel-mod/fastpass_proto.c's bitfield
// packing rather than reinvented.
package wire

import (
	"encoding/binary"
	"fmt"
)

// PayloadType is the high nibble of a payload's first byte.
type PayloadType uint8

const (
	PayloadReset PayloadType = 0x0 // RESET / RSTREQ
	PayloadAlloc PayloadType = 0x1
	PayloadAck   PayloadType = 0x2
	PayloadAreq  PayloadType = 0x4
)

// FrameHeaderSize is the fixed 4-byte header: seqno_low16 + checksum.
const FrameHeaderSize = 4

// MinPacketSize is the smallest legal packet: header plus one payload byte.
const MinPacketSize = FrameHeaderSize + 1

// MaxAllocDestinations bounds ALLOC's 4-bit destination count field.
const MaxAllocDestinations = 0xF

// MaxAreqEntries bounds AREQ's 6-bit count field.
const MaxAreqEntries = 0x3F

// ResetPayload carries a 56-bit reset timestamp (RESET in, and RSTREQ
// out use the identical 8-byte layout).
type ResetPayload struct {
	Timestamp56 uint64 // low 56 bits significant
}

// Size implements Payload.
func (ResetPayload) Size() int { return 8 }

// Marshal writes the RESET payload: high nibble=type, then u32 hi (low
// 24 bits = timestamp bits 32..55) + u32 lo (timestamp bits 0..31).
func (p ResetPayload) Marshal(buf []byte) error {
	if len(buf) < 8 {
		return fmt.Errorf("wire: reset payload buffer too small: %d", len(buf))
	}
	hi := uint32(PayloadReset)<<28 | uint32((p.Timestamp56>>32)&0x00FFFFFF)
	lo := uint32(p.Timestamp56)
	binary.BigEndian.PutUint32(buf[0:4], hi)
	binary.BigEndian.PutUint32(buf[4:8], lo)
	return nil
}

// ParseResetPayload decodes a RESET payload from buf[0:8].
func ParseResetPayload(buf []byte) (ResetPayload, error) {
	if len(buf) < 8 {
		return ResetPayload{}, fmt.Errorf("%w: reset needs 8 bytes, got %d", ErrIncompleteReset, len(buf))
	}
	hi := binary.BigEndian.Uint32(buf[0:4])
	lo := binary.BigEndian.Uint32(buf[4:8])
	ts := (uint64(hi&0x00FFFFFF) << 32) | uint64(lo)
	return ResetPayload{Timestamp56: ts}, nil
}

// AllocPayload is an ALLOC grant: a base tslot, the destination list,
// and the raw tslot bytes.
type AllocPayload struct {
	BaseTslot uint16
	Dst       []uint16
	TslotData []byte
}

// Size implements Payload.
func (p AllocPayload) Size() int {
	return 2 + 2 + 2*len(p.Dst) + len(p.TslotData)
}

// Marshal writes the ALLOC payload header (type nibble, N_dst nibble,
// N_tslots/2 in the low 6 bits of the second byte), the base tslot, the
// destination list, and the raw tslot bytes.
func (p AllocPayload) Marshal(buf []byte) error {
	if len(p.Dst) > MaxAllocDestinations {
		return fmt.Errorf("wire: alloc has too many destinations: %d", len(p.Dst))
	}
	if len(p.TslotData)%2 != 0 {
		return fmt.Errorf("wire: alloc tslot data must have even length, got %d", len(p.TslotData))
	}
	halfTslots := len(p.TslotData) / 2
	if halfTslots > 0x3F {
		return fmt.Errorf("wire: alloc tslot count too large: %d", len(p.TslotData))
	}
	need := p.Size()
	if len(buf) < need {
		return fmt.Errorf("wire: alloc payload buffer too small: need %d, got %d", need, len(buf))
	}

	hdr := uint16(PayloadAlloc)<<12 | uint16(len(p.Dst))<<8 | uint16(halfTslots)
	binary.BigEndian.PutUint16(buf[0:2], hdr)
	binary.BigEndian.PutUint16(buf[2:4], p.BaseTslot>>4)

	off := 4
	for _, d := range p.Dst {
		binary.BigEndian.PutUint16(buf[off:off+2], d)
		off += 2
	}
	copy(buf[off:], p.TslotData)
	return nil
}

// ParseAllocPayload decodes an ALLOC payload starting at buf[0].
func ParseAllocPayload(buf []byte) (AllocPayload, int, error) {
	if len(buf) < 2 {
		return AllocPayload{}, 0, fmt.Errorf("%w: alloc needs at least 2 bytes", ErrIncompleteAlloc)
	}
	hdr := binary.BigEndian.Uint16(buf[0:2])
	nDst := int((hdr >> 8) & 0xF)
	nTslots := 2 * int(hdr&0x3F)

	total := 2 + 2 + 2*nDst + nTslots
	if len(buf) < total {
		return AllocPayload{}, 0, fmt.Errorf("%w: alloc needs %d bytes, got %d", ErrIncompleteAlloc, total, len(buf))
	}

	base := binary.BigEndian.Uint16(buf[2:4])
	base <<= 4

	dst := make([]uint16, nDst)
	off := 4
	for i := 0; i < nDst; i++ {
		dst[i] = binary.BigEndian.Uint16(buf[off : off+2])
		off += 2
	}

	tslots := make([]byte, nTslots)
	copy(tslots, buf[off:off+nTslots])

	return AllocPayload{BaseTslot: base, Dst: dst, TslotData: tslots}, total, nil
}

// AckPayload is the compact run-length-encoded acknowledgement.
type AckPayload struct {
	SeqnoLow16 uint16
	RunLength  uint32
}

// Size implements Payload.
func (AckPayload) Size() int { return 6 }

// Marshal writes the ACK payload: u32 runlen + u16 seqno_low16. Note the
// high nibble of the first byte of the run-length word carries the
// payload type.
func (p AckPayload) Marshal(buf []byte) error {
	if len(buf) < 6 {
		return fmt.Errorf("wire: ack payload buffer too small: %d", len(buf))
	}
	runlen := p.RunLength
	runlen = (runlen &^ (0xF << 28)) | (uint32(PayloadAck) << 28)
	binary.BigEndian.PutUint32(buf[0:4], runlen)
	binary.BigEndian.PutUint16(buf[4:6], p.SeqnoLow16)
	return nil
}

// ParseAckPayload decodes an ACK payload from buf[0:6]. The type nibble
// occupies the top 4 bits of RunLength and is masked off by the caller
// when walking runs (see session's ack processor).
func ParseAckPayload(buf []byte) (AckPayload, error) {
	if len(buf) < 6 {
		return AckPayload{}, fmt.Errorf("%w: ack needs 6 bytes, got %d", ErrIncompleteAck, len(buf))
	}
	runlen := binary.BigEndian.Uint32(buf[0:4])
	seq := binary.BigEndian.Uint16(buf[4:6])
	return AckPayload{SeqnoLow16: seq, RunLength: runlen}, nil
}

// AreqEntry is one destination/tslot-count pair in an outbound AREQ.
type AreqEntry struct {
	DstKey     uint16
	TslotCount uint16
}

// AreqPayload is the client->arbiter allocation request list, carried
// in every outbound endpoint packet.
type AreqPayload struct {
	Entries []AreqEntry
}

// Size implements Payload.
func (p AreqPayload) Size() int { return 2 + 4*len(p.Entries) }

// Marshal writes the AREQ payload: u16 header (type<<12 | N&0x3F) then
// N * {u16 dst_key, u16 tslot_count}.
func (p AreqPayload) Marshal(buf []byte) error {
	if len(p.Entries) > MaxAreqEntries {
		return fmt.Errorf("wire: areq has too many entries: %d", len(p.Entries))
	}
	need := p.Size()
	if len(buf) < need {
		return fmt.Errorf("wire: areq payload buffer too small: need %d, got %d", need, len(buf))
	}
	hdr := uint16(PayloadAreq)<<12 | uint16(len(p.Entries))&0x3F
	binary.BigEndian.PutUint16(buf[0:2], hdr)
	off := 2
	for _, e := range p.Entries {
		binary.BigEndian.PutUint16(buf[off:off+2], e.DstKey)
		binary.BigEndian.PutUint16(buf[off+2:off+4], e.TslotCount)
		off += 4
	}
	return nil
}

// ParseAreqPayload decodes an AREQ payload starting at buf[0].
func ParseAreqPayload(buf []byte) (AreqPayload, int, error) {
	if len(buf) < 2 {
		return AreqPayload{}, 0, fmt.Errorf("wire: areq needs at least 2 bytes")
	}
	hdr := binary.BigEndian.Uint16(buf[0:2])
	n := int(hdr & 0x3F)
	total := 2 + 4*n
	if len(buf) < total {
		return AreqPayload{}, 0, fmt.Errorf("wire: areq needs %d bytes, got %d", total, len(buf))
	}
	entries := make([]AreqEntry, n)
	off := 2
	for i := 0; i < n; i++ {
		entries[i] = AreqEntry{
			DstKey:     binary.BigEndian.Uint16(buf[off : off+2]),
			TslotCount: binary.BigEndian.Uint16(buf[off+2 : off+4]),
		}
		off += 4
	}
	return AreqPayload{Entries: entries}, total, nil
}
