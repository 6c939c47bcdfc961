package session

import (
	"github.com/fastpass-proto/fastpass/internal/fastpass/outwnd"
	"github.com/fastpass-proto/fastpass/internal/fastpass/wire"
)

// handleAck processes one ACK payload (§4.4): the carried seqno is
// acknowledged directly, then the run-length field is walked as
// alternating negative (unacked, no action) and positive (acked) runs
// going backward from it. Each pair of nibbles moves the scan boundary
// twice -- once past the unacked gap, once past the acked run -- and
// only the acked run is ever scanned against the window.
func (s *Session) handleAck(p wire.AckPayload) {
	nextSeqno := s.window.NextSeqno()
	base := nextSeqno - (1 << 16)
	curSeqno := base + ((uint64(p.SeqnoLow16) - base) & 0xFFFF)

	if curSeqno < nextSeqno-outwnd.Capacity {
		s.Stats.TooEarlyAck.Add(1)
		return
	}

	nAcked := 0
	if s.window.IsUnacked(curSeqno) {
		s.deliverAck(s.window.Pop(curSeqno))
		nAcked++
	}

	end := curSeqno - 1
	reader := wire.NewRunLengthReader(p.RunLength)

	for reader.More() {
		// Negative run: seqnos in (end-n, end] are unacked, no action.
		end -= uint64(reader.NextNegative())

		if !reader.More() {
			break // trailing run has no positive half
		}

		// Positive run: everything occupied in (end-run, end] is acked.
		run := uint64(reader.NextPositive())
		ackFloor := end - run
		scan := end

		for {
			offset, ok := s.window.AtOrBefore(scan)
			if !ok {
				break
			}
			seq := scan - uint64(offset)
			if seq <= ackFloor {
				break
			}
			s.deliverAck(s.window.Pop(seq))
			nAcked++
			scan = seq - 1
		}
		end = ackFloor
	}

	if nAcked > 0 {
		s.cancelAndReset()
	}
}
