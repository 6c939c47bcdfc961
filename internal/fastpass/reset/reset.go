// Package reset implements the reset-handshake / epoch manager: the
// piece of the protocol that keeps the endpoint and the arbiter
// agreeing on a single base sequence number across restarts of either
// side, without either one needing persistent state.
package reset

import (
	"time"

	"github.com/fastpass-proto/fastpass/internal/fastpass/clock"
	"github.com/fastpass-proto/fastpass/internal/fastpass/fphash"
)

// DefaultWindow is the acceptance window around "now" that an inbound
// RESET's reconstructed timestamp must fall within to be accepted.
const DefaultWindow = 2 * time.Second

// truncBits is the width of the truncated timestamp carried on the
// wire; reconstruction recovers the full value from the nearest
// candidate within +/-2^(truncBits-1) nanoseconds of now.
const truncBits = 56

// Manager owns the current epoch: the last accepted reset time and
// the in_sync flag that gates whether outbound packets must carry a
// RESET payload. It holds no lock of its own -- callers serialize
// access the same way they do for outwnd.Window, via the session's
// externally-owned mutex.
type Manager struct {
	clk    clock.Source
	window time.Duration

	lastResetTimeNS uint64
	inSync          bool
}

// New creates a manager using clk for wall-clock reads and win as the
// acceptance window. A zero win selects DefaultWindow.
func New(clk clock.Source, win time.Duration) *Manager {
	if win <= 0 {
		win = DefaultWindow
	}
	return &Manager{clk: clk, window: win}
}

// InSync reports whether the endpoint currently believes its epoch is
// agreed with the peer. While false, outbound packets must embed a
// RESET payload carrying LastResetTime.
func (m *Manager) InSync() bool { return m.inSync }

// LastResetTime returns the full nanosecond timestamp of the last
// accepted reset, used both to answer redundant resets and to stamp
// outbound RESET payloads.
func (m *Manager) LastResetTime() uint64 { return m.lastResetTimeNS }

// InitLocal performs the local (non-handshake) reset done once at
// startup: pick "now" as the new epoch and mark out of sync, so the
// first packets sent carry a RESET until the peer echoes it back.
// Returns the derived next_seqno base for outwnd.Window.SetNextSeqno.
func (m *Manager) InitLocal() (nextSeqnoBase uint64) {
	now := uint64(m.clk.Now().UnixNano())
	base := m.accept(now)
	m.inSync = false
	return base
}

// Outcome classifies what handling an inbound RESET payload did, for
// the counters the session maintains.
type Outcome int

const (
	// OutcomeAccepted: a new epoch was adopted; outwnd was cleared and
	// next_seqno rebased, and the upper layer should be notified.
	OutcomeAccepted Outcome = iota
	// OutcomeInSync: the reset matched the current epoch and the
	// endpoint was not yet in sync; now it is, no other state changes.
	OutcomeInSync
	// OutcomeRedundant: the reset matched the current epoch and the
	// endpoint was already in sync; a no-op duplicate.
	OutcomeRedundant
	// OutcomeOutOfWindow: the reconstructed timestamp didn't fall
	// within the acceptance window around now; ignored.
	OutcomeOutOfWindow
	// OutcomeOutdated: a newer reset within the window was already
	// processed; this one is stale and ignored.
	OutcomeOutdated
)

// HandleInbound processes a RESET payload's truncated timestamp.
// nextSeqnoBase is only valid (and only needs consulting) when the
// returned outcome is OutcomeAccepted.
func (m *Manager) HandleInbound(partialTstamp uint64) (outcome Outcome, nextSeqnoBase uint64) {
	now := uint64(m.clk.Now().UnixNano())
	full := reconstruct(partialTstamp, now)

	if full == m.lastResetTimeNS {
		if !m.inSync {
			m.inSync = true
			return OutcomeInSync, 0
		}
		return OutcomeRedundant, 0
	}

	if !inWindow(full, now, m.window) {
		return OutcomeOutOfWindow, 0
	}

	if inWindow(m.lastResetTimeNS, now, m.window) && full < m.lastResetTimeNS {
		return OutcomeOutdated, 0
	}

	base := m.accept(full)
	m.inSync = true
	return OutcomeAccepted, base
}

// accept installs full as the new epoch and derives the seqno base
// that outwnd.Window must be rebased to.
func (m *Manager) accept(full uint64) uint64 {
	m.lastResetTimeNS = full
	return fphash.SeedSeqno(full)
}

// reconstruct recovers the full 64-bit timestamp from a truncated
// value by taking the candidate nearest to now among all values
// congruent to partial mod 2^truncBits.
func reconstruct(partial, now uint64) uint64 {
	const mask = (uint64(1) << truncBits) - 1
	base := now - (uint64(1) << (truncBits - 1))
	return base + ((partial - base) & mask)
}

// inWindow reports whether tstamp falls within +/-win/2 of mid,
// rounding the upper half up by one so an odd window still covers
// exactly win nanoseconds total.
func inWindow(tstamp, mid uint64, win time.Duration) bool {
	w := uint64(win)
	lo := mid - w/2
	hi := mid + (w+1)/2
	return tstamp >= lo && tstamp < hi
}
