// Package daemon wires the reliability core into a runnable process:
// an endpoint dials a single arbiter, an arbiter listens for many
// endpoints. Both share the metrics, tracing and logging setup in
// daemon.go.
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
	"github.com/fastpass-proto/fastpass/internal/fastpass/clock"
	"github.com/fastpass-proto/fastpass/internal/fastpass/metrics"
	"github.com/fastpass-proto/fastpass/internal/fastpass/pool"
	"github.com/fastpass-proto/fastpass/internal/fastpass/session"
	"github.com/fastpass-proto/fastpass/internal/fastpass/udptransport"
	"github.com/fastpass-proto/fastpass/internal/fastpass/wire"
	"github.com/fastpass-proto/fastpass/internal/gateway/tracing"
)

// AllocFunc is invoked whenever an ALLOC payload arrives, with ownership
// of dst/tslotData limited to the call (see session.Callbacks.HandleAlloc).
type AllocFunc func(baseTslot uint16, dst []uint16, tslotData []byte)

// Endpoint runs the client side of the protocol: one Session talking
// to one arbiter address over a dedicated UDP socket.
type Endpoint struct {
	cfg     config.TransportConfig
	logger  *zap.Logger
	tracer  *tracing.Tracer
	metrics *metrics.SessionCollector

	sock *udptransport.Socket

	mu      sync.Mutex
	sess    *session.Session
	descs   *pool.Pool
	onAlloc AllocFunc
	events  EventSink
}

// NewEndpoint dials cfg.ArbiterAddr and builds the session that will
// talk to it. onAlloc is called synchronously from the receive loop
// for every inbound ALLOC. events may be nil, in which case occurrences
// are simply not broadcast anywhere.
func NewEndpoint(cfg config.TransportConfig, resetWindow time.Duration, logger *zap.Logger, tracer *tracing.Tracer, collector *metrics.SessionCollector, events EventSink, onAlloc AllocFunc) (*Endpoint, error) {
	if events == nil {
		events = noopSink{}
	}
	sock, err := udptransport.Listen(cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("daemon: endpoint listen: %w", err)
	}

	arbiterAddr, err := net.ResolveUDPAddr("udp", cfg.ArbiterAddr)
	if err != nil {
		sock.Close()
		return nil, fmt.Errorf("daemon: resolve arbiter addr %q: %w", cfg.ArbiterAddr, err)
	}

	e := &Endpoint{
		cfg:     cfg,
		logger:  logger,
		tracer:  tracer,
		metrics: collector,
		sock:    sock,
		descs:   pool.New(),
		onAlloc: onAlloc,
		events:  events,
	}

	transport := udptransport.NewPeerTransport(sock, arbiterAddr)
	e.sess = session.New(&e.mu, e.descs, transport, session.Config{
		Clock:       clock.System{},
		SendTimeout: cfg.SendTimeout,
		ResetWindow: resetWindow,
		Logger:      logger.Named("endpoint-session"),
	})
	e.sess.SetCallbacks(e)

	if collector != nil {
		collector.Track(cfg.ArbiterAddr, e.sess)
	}

	return e, nil
}

// Run blocks reading inbound datagrams from the arbiter until the
// socket is closed.
func (e *Endpoint) Run() error {
	return e.sock.ReadLoop(func(data []byte, _ *net.UDPAddr) {
		ctx, span := e.tracer.Start(context.Background(), "endpoint.receive")
		defer span.End()
		span.SetAttributes(attribute.Int("bytes", len(data)))

		e.mu.Lock()
		defer e.mu.Unlock()
		_ = ctx
		e.sess.Receive(data)
	})
}

// RequestAllocation commits and sends one AREQ packet carrying entries.
func (e *Endpoint) RequestAllocation(entries []wire.AreqEntry) error {
	ctx, span := e.tracer.Start(context.Background(), "endpoint.request_allocation")
	defer span.End()
	_ = ctx

	e.mu.Lock()
	defer e.mu.Unlock()

	e.sess.PrepareToSend()

	d := e.descs.Get()
	d.Areq = append(d.Areq, entries...)
	e.sess.Commit(d, time.Now())
	return e.sess.Send(d)
}

// Close tears the endpoint's session and socket down.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	e.sess.Destroy()
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.Untrack(e.cfg.ArbiterAddr)
	}
	return e.sock.Close()
}

// HandleReset implements session.Callbacks.
func (e *Endpoint) HandleReset() {
	e.logger.Info("epoch reset accepted")
	e.events.Publish(Event{Kind: EventReset, Endpoint: e.cfg.ArbiterAddr, Time: time.Now()})
}

// HandleAck implements session.Callbacks.
func (e *Endpoint) HandleAck(d *pool.Descriptor) {
	e.events.Publish(Event{Kind: EventAck, Endpoint: e.cfg.ArbiterAddr, Seqno: d.Seqno, Time: time.Now()})
	e.descs.Put(d)
}

// HandleNegAck implements session.Callbacks.
func (e *Endpoint) HandleNegAck(d *pool.Descriptor) {
	e.logger.Debug("packet negatively acknowledged", zap.Uint64("seqno", d.Seqno))
	e.events.Publish(Event{Kind: EventNegAck, Endpoint: e.cfg.ArbiterAddr, Seqno: d.Seqno, Time: time.Now()})
	e.descs.Put(d)
}

// HandleAlloc implements session.Callbacks.
func (e *Endpoint) HandleAlloc(baseTslot uint16, dst []uint16, tslotData []byte) {
	e.events.Publish(Event{Kind: EventAlloc, Endpoint: e.cfg.ArbiterAddr, Seqno: uint64(baseTslot), Time: time.Now()})
	if e.onAlloc != nil {
		e.onAlloc(baseTslot, dst, tslotData)
	}
}
