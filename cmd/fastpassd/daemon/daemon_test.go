package daemon

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/fastpass-proto/fastpass/cmd/fastpassd/config"
	"github.com/fastpass-proto/fastpass/internal/fastpass/wire"
	"github.com/fastpass-proto/fastpass/internal/gateway/tracing"
)

func noopTracer(t *testing.T) *tracing.Tracer {
	t.Helper()
	logger := zap.NewNop()
	tr, err := tracing.NewTracer(&tracing.Config{Enable: false}, logger)
	if err != nil {
		t.Fatalf("NewTracer: %v", err)
	}
	return tr
}

func TestEndpointArbiterRoundTrip(t *testing.T) {
	logger := zap.NewNop()
	tracer := noopTracer(t)

	arbiterCfg := config.TransportConfig{ListenAddr: "127.0.0.1:0", SendTimeout: 50 * time.Millisecond}
	allocCh := make(chan string, 1)

	ar, err := NewArbiter(arbiterCfg, 0, logger, tracer, nil, nil, nil,
		func(endpoint string, entries []wire.AreqEntry) (uint16, []uint16, []byte, bool) {
			allocCh <- endpoint
			dst := make([]uint16, len(entries))
			for i, e := range entries {
				dst[i] = e.DstKey
			}
			return 10, dst, make([]byte, 2*len(entries)), true
		})
	if err != nil {
		t.Fatalf("NewArbiter: %v", err)
	}
	defer ar.Close()
	go ar.Run()

	arbiterAddr := ar.sock.LocalAddr().String()

	allocReceived := make(chan uint16, 1)
	endpointCfg := config.TransportConfig{ListenAddr: "127.0.0.1:0", ArbiterAddr: arbiterAddr, SendTimeout: 50 * time.Millisecond}
	ep, err := NewEndpoint(endpointCfg, 0, logger, tracer, nil, nil,
		func(baseTslot uint16, dst []uint16, tslotData []byte) {
			allocReceived <- baseTslot
		})
	if err != nil {
		t.Fatalf("NewEndpoint: %v", err)
	}
	defer ep.Close()
	go ep.Run()

	if err := ep.RequestAllocation([]wire.AreqEntry{{DstKey: 7, TslotCount: 1}}); err != nil {
		t.Fatalf("RequestAllocation: %v", err)
	}

	select {
	case endpoint := <-allocCh:
		if endpoint == "" {
			t.Fatal("expected non-empty endpoint address")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for arbiter to receive AREQ")
	}

	select {
	case base := <-allocReceived:
		if base != 10 {
			t.Fatalf("got base tslot %d, want 10", base)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for endpoint to receive ALLOC")
	}
}
