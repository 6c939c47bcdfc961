package session

import "sync/atomic"

// Stats holds the counters the session exposes, one field per
// external-interfaces counter. All fields are accessed with
// sync/atomic so Snapshot can be called from a metrics scrape
// goroutine without taking the session's external lock.
type Stats struct {
	RxPkts              atomic.Uint64
	RxTooShort          atomic.Uint64
	RxIncompleteReset   atomic.Uint64
	RxIncompleteAlloc   atomic.Uint64
	RxIncompleteAck     atomic.Uint64
	RxUnknownPayload    atomic.Uint64
	RedundantReset      atomic.Uint64
	ResetOutOfWindow    atomic.Uint64
	OutdatedReset       atomic.Uint64
	TooEarlyAck         atomic.Uint64
	FallOffOutwnd       atomic.Uint64
	XmitErrors          atomic.Uint64
	SkbAllocError       atomic.Uint64
}

// Snapshot returns the current counter values, keyed the same way as
// the external-interfaces counter list (§6), suitable for handing to
// a Prometheus collector or a debug endpoint.
func (s *Stats) Snapshot() map[string]uint64 {
	return map[string]uint64{
		"rx_pkts":                s.RxPkts.Load(),
		"rx_too_short":           s.RxTooShort.Load(),
		"rx_incomplete_reset":    s.RxIncompleteReset.Load(),
		"rx_incomplete_alloc":    s.RxIncompleteAlloc.Load(),
		"rx_incomplete_ack":      s.RxIncompleteAck.Load(),
		"rx_unknown_payload":     s.RxUnknownPayload.Load(),
		"redundant_reset":        s.RedundantReset.Load(),
		"reset_out_of_window":    s.ResetOutOfWindow.Load(),
		"outdated_reset":         s.OutdatedReset.Load(),
		"too_early_ack":          s.TooEarlyAck.Load(),
		"fall_off_outwnd":        s.FallOffOutwnd.Load(),
		"xmit_errors":            s.XmitErrors.Load(),
		"skb_alloc_error":        s.SkbAllocError.Load(),
	}
}
