// Package store is the multi-endpoint session registry an arbiter
// daemon uses to persist a lightweight, serializable view of every
// session it holds -- the in-process equivalent of the kernel
// module's per-destination fp_sock hash table (out of the reliability
// core's scope, but a natural fit at the daemon layer).
//
// The live *session.Session values themselves never leave the owning
// process (they hold goroutines and a retransmission timer); what
// this package persists is a Snapshot, enough for an operator or a
// failover peer to see what epoch and counters an endpoint is at.
package store

import (
	"context"
	"time"
)

// Snapshot is the persisted view of one endpoint's session state.
type Snapshot struct {
	EndpointAddr    string            `json:"endpoint_addr"`
	NextSeqno       uint64            `json:"next_seqno"`
	LastResetTimeNS uint64            `json:"last_reset_time_ns"`
	InSync          bool              `json:"in_sync"`
	LastSeen        time.Time         `json:"last_seen"`
	Stats           map[string]uint64 `json:"stats"`
}

// Store persists Snapshots keyed by endpoint address.
type Store interface {
	// Save creates or overwrites the snapshot for snap.EndpointAddr.
	Save(ctx context.Context, snap *Snapshot) error

	// Get retrieves the snapshot for endpointAddr.
	Get(ctx context.Context, endpointAddr string) (*Snapshot, error)

	// Delete removes the snapshot for endpointAddr.
	Delete(ctx context.Context, endpointAddr string) error

	// List returns every stored snapshot.
	List(ctx context.Context) ([]*Snapshot, error)

	// DeleteExpired removes snapshots whose LastSeen is older than
	// maxAge, returning the count removed.
	DeleteExpired(ctx context.Context, maxAge time.Duration) (int, error)

	// Count returns the number of stored snapshots.
	Count(ctx context.Context) (int, error)
}
