package pool

import (
	"sync"

	"github.com/fastpass-proto/fastpass/internal/fastpass/wire"
)

// Pool manages a pool of reusable packet descriptors to keep the hot
// commit/send path allocation-free, the same role transport.PacketPool
// plays for Quantum packets.
type Pool struct {
	p sync.Pool
}

// New creates a descriptor pool.
func New() *Pool {
	return &Pool{
		p: sync.Pool{
			New: func() interface{} {
				return &Descriptor{Areq: make([]wire.AreqEntry, 0, 4)}
			},
		},
	}
}

// Get retrieves a zeroed descriptor from the pool.
func (p *Pool) Get() *Descriptor {
	d := p.p.Get().(*Descriptor)
	d.reset()
	return d
}

// Put returns a descriptor to the pool. Put is safe to call on a
// descriptor already released (it just gets reused sooner); it must not
// be called while the window or a callback still holds a live reference.
func (p *Pool) Put(d *Descriptor) {
	if d == nil {
		return
	}
	p.p.Put(d)
}
