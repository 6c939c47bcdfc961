package wire

import "errors"

// Structural parse errors, one per counter in the external-interfaces
// contract (§6: rx_too_short, rx_incomplete_*, rx_unknown_payload).
var (
	ErrTooShort        = errors.New("wire: packet shorter than minimum frame size")
	ErrIncompleteReset = errors.New("wire: incomplete RESET payload")
	ErrIncompleteAlloc = errors.New("wire: incomplete ALLOC payload")
	ErrIncompleteAck   = errors.New("wire: incomplete ACK payload")
	ErrUnknownPayload  = errors.New("wire: unknown payload type")
)
