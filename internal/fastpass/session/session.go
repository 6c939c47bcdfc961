// Package session ties the outstanding window, the reset/epoch
// manager, the retransmission timer, and the wire codec into the
// single object the rest of the system talks to: commit a packet,
// send it, feed inbound bytes back in, and get callbacks for
// acknowledgements and allocations.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fastpass-proto/fastpass/internal/fastpass/checksum"
	"github.com/fastpass-proto/fastpass/internal/fastpass/clock"
	"github.com/fastpass-proto/fastpass/internal/fastpass/outwnd"
	"github.com/fastpass-proto/fastpass/internal/fastpass/pool"
	"github.com/fastpass-proto/fastpass/internal/fastpass/reset"
	"github.com/fastpass-proto/fastpass/internal/fastpass/rto"
	"github.com/fastpass-proto/fastpass/internal/fastpass/wire"
)

// DefaultSendTimeout is the retransmission deadline relative to send
// time, used when Config.SendTimeout is zero.
const DefaultSendTimeout = 100 * time.Millisecond

// DefaultResetWindow is the acceptance window around "now" for peer
// reset timestamps, used when Config.ResetWindow is zero.
const DefaultResetWindow = reset.DefaultWindow

// Transport is the datagram collaborator a Session hands serialized
// packets to. It is the only thing outside this package a Session
// touches on the send path; everything else (checksums, framing) is
// the core's job.
type Transport interface {
	Send(data []byte) error
}

// Config configures a new Session. Zero-value fields fall back to the
// package defaults.
type Config struct {
	Clock       clock.Source
	SendTimeout time.Duration
	ResetWindow time.Duration
	Logger      *zap.Logger
}

// Session is the reliability core for one endpoint<->arbiter
// relationship. It owns no internal mutex: every exported method
// assumes the caller already holds whatever lock serializes access to
// this Session (see SPEC_FULL's concurrency section) -- the same way the kernel source reuses the qdisc root
// lock instead of introducing one of its own.
type Session struct {
	clk         clock.Source
	window      *outwnd.Window
	resetMgr    *reset.Manager
	timer       *rto.Timer
	descriptors *pool.Pool
	transport   Transport
	callbacks   Callbacks
	sendTimeout time.Duration
	logger      *zap.Logger

	lock sync.Locker // only used to wrap the timer's fire callback

	earliestUnacked uint64
	destroyed       bool

	Stats Stats
}

// New creates a Session. lock is the externally-owned mutex the
// caller will hold around every other call into this Session; it's
// only retained here so the retransmission timer's deferred callback
// (which runs on its own goroutine) can acquire it before touching
// session state, exactly as the receive-path softirq and the kernel's
// tasklet both do.
func New(lock sync.Locker, descriptors *pool.Pool, transport Transport, cfg Config) *Session {
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.ResetWindow <= 0 {
		cfg.ResetWindow = DefaultResetWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Session{
		clk:         cfg.Clock,
		window:      outwnd.New(),
		resetMgr:    reset.New(cfg.Clock, cfg.ResetWindow),
		descriptors: descriptors,
		transport:   transport,
		sendTimeout: cfg.SendTimeout,
		logger:      cfg.Logger,
		lock:        lock,
	}
	s.timer = rto.New(s.onTimerFire)

	base := s.resetMgr.InitLocal()
	s.window.SetNextSeqno(base)
	return s
}

// SetCallbacks installs (or replaces) the upper-layer collaborator.
func (s *Session) SetCallbacks(cb Callbacks) { s.callbacks = cb }

// NextSeqno returns the sequence number that will be assigned to the
// next committed descriptor.
func (s *Session) NextSeqno() uint64 { return s.window.NextSeqno() }

// InSync reports whether the reset handshake with the peer has
// completed for the current epoch.
func (s *Session) InSync() bool { return s.resetMgr.InSync() }

// LastResetTime returns the full 56-bit-derived reset timestamp of the
// current epoch.
func (s *Session) LastResetTime() uint64 { return s.resetMgr.LastResetTime() }

// NumUnacked returns the count of outstanding (unacked) descriptors.
func (s *Session) NumUnacked() int { return s.window.NumUnacked() }

// Destroy tears the session down: cancels the timer and drains the
// window, freeing every outstanding descriptor. Safe to call more
// than once.
func (s *Session) Destroy() {
	if s.destroyed {
		return
	}
	s.timer.Disarm()
	s.window.Reset(s.descriptors)
	s.destroyed = true
	s.logger.Debug("session destroyed")
}

// PrepareToSend must be called before Commit whenever the caller
// wants to admit a new packet into the window. If the slot about to
// be overwritten is still occupied, the packet there is treated as
// dropped: it's delivered to the upper layer as a NACK and the timer
// is asked to re-arm around whatever is now the new earliest unacked.
func (s *Session) PrepareToSend() {
	evictSeqno := s.window.NextSeqno() - outwnd.Capacity
	if !s.window.IsUnacked(evictSeqno) {
		return
	}
	d := s.window.Pop(evictSeqno)
	s.Stats.FallOffOutwnd.Add(1)
	s.deliverNegAck(d)
	s.cancelAndReset()
}

// Commit stamps desc with the next sequence number, the current
// reset-handshake state, and inserts it into the outstanding window.
// If the window was empty beforehand, the retransmission timer is
// armed around this descriptor.
func (s *Session) Commit(desc *pool.Descriptor, now time.Time) {
	desc.Seqno = s.window.NextSeqno()
	desc.SentTimestampNS = now.UnixNano()
	desc.SendReset = !s.resetMgr.InSync()
	desc.ResetTimestamp = s.resetMgr.LastResetTime()

	wasEmpty := s.window.Empty()
	s.window.Add(desc)

	if wasEmpty {
		s.earliestUnacked = desc.Seqno
		s.timer.ArmAt(now.Add(s.sendTimeout))
	}
}

// Send serializes desc (RESET payload if send_reset is set, then the
// AREQ entries) and hands the datagram to the transport. A transport
// error is counted but never retried here -- the descriptor is
// already committed into the window, so the retransmission timer will
// eventually NACK it if no ACK arrives; that graceful degradation to
// a timeout is intentional, not a gap.
func (s *Session) Send(desc *pool.Descriptor) error {
	var payloads []wire.Payload
	if desc.SendReset {
		payloads = append(payloads, wire.ResetPayload{Timestamp56: desc.ResetTimestamp & ((1 << 56) - 1)})
	}
	payloads = append(payloads, wire.AreqPayload{Entries: desc.Areq})

	checksumVal := frameChecksum(desc.Seqno, payloads)
	frame := wire.BuildFrame(uint16(desc.Seqno), checksumVal, payloads...)

	if err := s.transport.Send(frame); err != nil {
		s.Stats.XmitErrors.Add(1)
		return fmt.Errorf("session: transport send failed: %w", err)
	}
	return nil
}

// Receive parses an inbound datagram and dispatches each payload:
// RESET to the reset manager, ACK to the ack processor, ALLOC to the
// upper layer. Structural parse errors abort parsing of the remainder
// of this packet only; a malformed trailing payload doesn't unwind
// payloads already dispatched earlier in the same packet.
func (s *Session) Receive(data []byte) {
	s.Stats.RxPkts.Add(1)

	frame, err := wire.ParseFrame(data)
	s.countParseError(err)

	for _, p := range frame.Payloads {
		switch p.Kind {
		case wire.PayloadReset:
			s.handleReset(p.Reset.Timestamp56)
		case wire.PayloadAck:
			s.handleAck(p.Ack)
		case wire.PayloadAlloc:
			if s.callbacks != nil {
				s.callbacks.HandleAlloc(p.Alloc.BaseTslot, p.Alloc.Dst, p.Alloc.TslotData)
			}
		}
	}
}

func (s *Session) countParseError(err error) {
	switch {
	case err == nil:
	case errors.Is(err, wire.ErrTooShort):
		s.Stats.RxTooShort.Add(1)
	case errors.Is(err, wire.ErrIncompleteReset):
		s.Stats.RxIncompleteReset.Add(1)
	case errors.Is(err, wire.ErrIncompleteAlloc):
		s.Stats.RxIncompleteAlloc.Add(1)
	case errors.Is(err, wire.ErrIncompleteAck):
		s.Stats.RxIncompleteAck.Add(1)
	case errors.Is(err, wire.ErrUnknownPayload):
		s.Stats.RxUnknownPayload.Add(1)
	}
}

func (s *Session) handleReset(partialTstamp uint64) {
	outcome, base := s.resetMgr.HandleInbound(partialTstamp)
	switch outcome {
	case reset.OutcomeAccepted:
		s.window.Reset(s.descriptors)
		s.window.SetNextSeqno(base)
		s.logger.Debug("accepted reset", zap.Uint64("next_seqno", base))
		if s.callbacks != nil {
			s.callbacks.HandleReset()
		}
	case reset.OutcomeInSync:
		s.logger.Debug("reset handshake complete")
	case reset.OutcomeRedundant:
		s.Stats.RedundantReset.Add(1)
	case reset.OutcomeOutOfWindow:
		s.Stats.ResetOutOfWindow.Add(1)
	case reset.OutcomeOutdated:
		s.Stats.OutdatedReset.Add(1)
	}
}

func (s *Session) deliverAck(d *pool.Descriptor) {
	if s.callbacks != nil {
		s.callbacks.HandleAck(d)
		return
	}
	s.descriptors.Put(d)
}

func (s *Session) deliverNegAck(d *pool.Descriptor) {
	if s.callbacks != nil {
		s.callbacks.HandleNegAck(d)
		return
	}
	s.descriptors.Put(d)
}

// cancelAndReset implements the timer/task race in §4.3: try to
// cancel the pending timer; if the cancel lost the race against an
// already-firing callback, do nothing further and trust that callback
// to re-arm based on whatever it finds once it gets the lock.
func (s *Session) cancelAndReset() {
	if !s.timer.CancelAndReset() {
		return
	}
	if s.window.Empty() {
		return
	}
	earliest := s.window.EarliestUnackedHint(s.earliestUnacked)
	s.earliestUnacked = earliest
	deadline := time.Unix(0, s.window.Timestamp(earliest)).Add(s.sendTimeout)
	s.timer.ArmAt(deadline)
}

// onTimerFire is the retransmission timer's deferred task. It runs on
// the timer's own goroutine; New wires it up so it first takes the
// externally-owned lock, matching the softirq/tasklet locking dance
// in §5.
func (s *Session) onTimerFire(now time.Time) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.destroyed {
		return
	}

	seqno := s.earliestUnacked
	for !s.window.Empty() {
		seqno = s.window.EarliestUnackedHint(seqno)
		deadline := time.Unix(0, s.window.Timestamp(seqno)).Add(s.sendTimeout)
		if deadline.After(now) {
			s.earliestUnacked = seqno
			s.timer.ArmAt(deadline)
			return
		}
		d := s.window.Pop(seqno)
		s.deliverNegAck(d)
	}
}

// frameChecksum computes the packet checksum for a descriptor's
// payloads, seeded from the sequence number hash the way
// fpproto_egress_checksum binds the checksum to the seqno. The IP
// pseudo-header itself is socket-layer glue out of this core's scope
// (§1); the transport fills in real source/destination addresses when
// it owns a real checksum offload path.
func frameChecksum(seqno uint64, payloads []wire.Payload) uint16 {
	size := 0
	for _, p := range payloads {
		size += p.Size()
	}
	body := make([]byte, size)
	off := 0
	for _, p := range payloads {
		n := p.Size()
		_ = p.Marshal(body[off : off+n])
		off += n
	}
	seed := checksum.SeqnoSeed(seqno)
	return checksum.PseudoHeaderSum(seed, [4]byte{}, [4]byte{}, uint16(len(body)), 0, body)
}
