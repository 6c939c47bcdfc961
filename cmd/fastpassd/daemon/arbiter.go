package daemon

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fastpass-proto/fastpass/cmd/fastpassd/config"
	"github.com/fastpass-proto/fastpass/internal/fastpass/checksum"
	"github.com/fastpass-proto/fastpass/internal/fastpass/clock"
	"github.com/fastpass-proto/fastpass/internal/fastpass/metrics"
	"github.com/fastpass-proto/fastpass/internal/fastpass/pool"
	"github.com/fastpass-proto/fastpass/internal/fastpass/session"
	"github.com/fastpass-proto/fastpass/internal/fastpass/store"
	"github.com/fastpass-proto/fastpass/internal/fastpass/udptransport"
	"github.com/fastpass-proto/fastpass/internal/fastpass/wire"
	"github.com/fastpass-proto/fastpass/internal/gateway/tracing"
)

// AllocationHandler decides what allocation, if any, to grant in
// response to an inbound AREQ from one endpoint. Returning ok=false
// sends nothing back for this request.
type AllocationHandler func(endpoint string, entries []wire.AreqEntry) (baseTslot uint16, dst []uint16, tslotData []byte, ok bool)

// endpointSession bundles the per-endpoint state the arbiter tracks:
// its own mutex (the one Session requires an external lock from), the
// Session itself, and its descriptor pool.
type endpointSession struct {
	mu        sync.Mutex
	sess      *session.Session
	descs     *pool.Pool
	addr      string
	transport *udptransport.PeerTransport
}

// Arbiter listens on one shared UDP socket and demultiplexes inbound
// datagrams by peer address into one Session per endpoint -- the
// daemon-layer analog of the kernel module's per-destination fp_sock
// hash table.
type Arbiter struct {
	cfg         config.TransportConfig
	resetWindow time.Duration
	logger      *zap.Logger
	tracer      *tracing.Tracer
	metrics     *metrics.SessionCollector
	events      EventSink
	st          store.Store
	onAreq      AllocationHandler

	sock *udptransport.Socket

	mu        sync.Mutex
	endpoints map[string]*endpointSession
}

// NewArbiter opens cfg.ListenAddr and returns an Arbiter ready to Run.
func NewArbiter(cfg config.TransportConfig, resetWindow time.Duration, logger *zap.Logger, tracer *tracing.Tracer, collector *metrics.SessionCollector, events EventSink, st store.Store, onAreq AllocationHandler) (*Arbiter, error) {
	sock, err := udptransport.Listen(cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("daemon: arbiter listen: %w", err)
	}
	if events == nil {
		events = noopSink{}
	}
	if st == nil {
		st = store.NewMemoryStore()
	}
	return &Arbiter{
		cfg:         cfg,
		resetWindow: resetWindow,
		logger:      logger,
		tracer:      tracer,
		metrics:     collector,
		events:      events,
		st:          st,
		onAreq:      onAreq,
		sock:        sock,
		endpoints:   make(map[string]*endpointSession),
	}, nil
}

// Run blocks demultiplexing inbound datagrams until the socket is closed.
func (a *Arbiter) Run() error {
	return a.sock.ReadLoop(func(data []byte, from *net.UDPAddr) {
		ctx, span := a.tracer.Start(context.Background(), "arbiter.receive")
		defer span.End()
		span.SetAttributes(attribute.String("peer", from.String()), attribute.Int("bytes", len(data)))
		_ = ctx

		es := a.endpointFor(from)
		es.mu.Lock()
		es.sess.Receive(data)
		es.mu.Unlock()

		a.dispatchAreq(es.addr, data)
	})
}

// dispatchAreq extracts any AREQ payload from data and hands it to the
// configured AllocationHandler. AREQ is the endpoint's scheduling
// request, not part of the reliability core's own callback set (§4.7
// names only reset/ack/neg_ack/alloc) -- the core's Session.Receive
// intentionally leaves it undispatched, so the daemon parses it
// separately from the same bytes.
func (a *Arbiter) dispatchAreq(endpoint string, data []byte) {
	if a.onAreq == nil {
		return
	}
	frame, err := wire.ParseFrame(data)
	if err != nil {
		return
	}
	for _, p := range frame.Payloads {
		if p.Kind != wire.PayloadAreq {
			continue
		}
		baseTslot, dst, tslotData, ok := a.onAreq(endpoint, p.Areq.Entries)
		if !ok {
			continue
		}
		if err := a.SendAllocation(endpoint, baseTslot, dst, tslotData); err != nil {
			a.logger.Warn("send allocation failed", zap.String("endpoint", endpoint), zap.Error(err))
		}
	}
}

// endpointFor returns the endpointSession for peer, creating and
// tracking a fresh one on first contact.
func (a *Arbiter) endpointFor(peer *net.UDPAddr) *endpointSession {
	addr := peer.String()

	a.mu.Lock()
	es, ok := a.endpoints[addr]
	if ok {
		a.mu.Unlock()
		return es
	}

	transport := udptransport.NewPeerTransport(a.sock, peer)
	es = &endpointSession{descs: pool.New(), addr: addr, transport: transport}
	es.sess = session.New(&es.mu, es.descs, transport, session.Config{
		Clock:       clock.System{},
		SendTimeout: a.cfg.SendTimeout,
		ResetWindow: a.resetWindow,
		Logger:      a.logger.Named("arbiter-session"),
	})
	es.sess.SetCallbacks(&arbiterCallbacks{es: es, a: a})
	a.endpoints[addr] = es
	a.mu.Unlock()

	a.logger.Info("new endpoint session", zap.String("endpoint", addr))
	if a.metrics != nil {
		a.metrics.Track(addr, es.sess)
	}
	return es
}

// SendAllocation sends one ALLOC packet to endpoint, if a session for
// it is currently tracked. ALLOC is a one-way, unacknowledged payload
// (§3, §6): it rides the same socket as RESET/AREQ/ACK but never
// enters the outstanding window, so it's framed and written directly
// rather than through Session.Commit/Send.
func (a *Arbiter) SendAllocation(endpoint string, baseTslot uint16, dst []uint16, tslotData []byte) error {
	a.mu.Lock()
	es, ok := a.endpoints[endpoint]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("daemon: no session tracked for endpoint %s", endpoint)
	}

	payload := wire.AllocPayload{BaseTslot: baseTslot, Dst: dst, TslotData: tslotData}
	seqno := es.sess.NextSeqno()
	body := make([]byte, payload.Size())
	if err := payload.Marshal(body); err != nil {
		return fmt.Errorf("daemon: marshal alloc for %s: %w", endpoint, err)
	}
	seed := checksum.SeqnoSeed(seqno)
	checksumVal := checksum.PseudoHeaderSum(seed, [4]byte{}, [4]byte{}, uint16(len(body)), 0, body)
	frame := wire.BuildFrame(uint16(seqno), checksumVal, payload)
	if err := es.transport.Send(frame); err != nil {
		return fmt.Errorf("daemon: send alloc to %s: %w", endpoint, err)
	}
	return nil
}

// Snapshot persists every tracked endpoint's session state through the
// configured store -- called periodically by the arbiter's main loop.
func (a *Arbiter) Snapshot(ctx context.Context) error {
	a.mu.Lock()
	endpoints := make([]*endpointSession, 0, len(a.endpoints))
	for _, es := range a.endpoints {
		endpoints = append(endpoints, es)
	}
	a.mu.Unlock()

	for _, es := range endpoints {
		es.mu.Lock()
		snap := &store.Snapshot{
			EndpointAddr:    es.addr,
			NextSeqno:       es.sess.NextSeqno(),
			LastResetTimeNS: es.sess.LastResetTime(),
			InSync:          es.sess.InSync(),
			LastSeen:        time.Now(),
			Stats:           es.sess.Stats.Snapshot(),
		}
		es.mu.Unlock()

		if err := a.st.Save(ctx, snap); err != nil {
			a.logger.Warn("snapshot save failed", zap.String("endpoint", es.addr), zap.Error(err))
		}
	}
	return nil
}

// Close tears every tracked session and the shared socket down.
func (a *Arbiter) Close() error {
	a.mu.Lock()
	for addr, es := range a.endpoints {
		es.mu.Lock()
		es.sess.Destroy()
		es.mu.Unlock()
		if a.metrics != nil {
			a.metrics.Untrack(addr)
		}
	}
	a.mu.Unlock()
	return a.sock.Close()
}

// arbiterCallbacks adapts one endpointSession's events to the shared
// EventSink and AllocationHandler, since session.Callbacks has no
// notion of "which endpoint" on its own.
type arbiterCallbacks struct {
	es *endpointSession
	a  *Arbiter
}

func (c *arbiterCallbacks) HandleReset() {
	c.a.events.Publish(Event{Kind: EventReset, Endpoint: c.es.addr, Time: time.Now()})
}

func (c *arbiterCallbacks) HandleAck(d *pool.Descriptor) {
	c.a.events.Publish(Event{Kind: EventAck, Endpoint: c.es.addr, Seqno: d.Seqno, Time: time.Now()})
	c.es.descs.Put(d)
}

func (c *arbiterCallbacks) HandleNegAck(d *pool.Descriptor) {
	c.a.events.Publish(Event{Kind: EventNegAck, Endpoint: c.es.addr, Seqno: d.Seqno, Time: time.Now()})
	c.es.descs.Put(d)
}

func (c *arbiterCallbacks) HandleAlloc(uint16, []uint16, []byte) {
	// An arbiter never receives ALLOC -- it only sends them. Endpoint
	// sessions wire HandleAlloc through Endpoint instead.
}
