package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fastpass-proto/fastpass/internal/fastpass/clock"
	"github.com/fastpass-proto/fastpass/internal/fastpass/pool"
	"github.com/fastpass-proto/fastpass/internal/fastpass/session"
)

type nopTransport struct{}

func (nopTransport) Send([]byte) error { return nil }

func TestSessionCollectorCollectsTrackedSessions(t *testing.T) {
	c := NewSessionCollector("fastpass", "core")

	var mu sync.Mutex
	sess := session.New(&mu, pool.New(), nopTransport{}, session.Config{Clock: clock.NewFake(time.Unix(0, 0))})
	sess.Stats.RxPkts.Add(5)
	c.Track("10.0.0.1:9000", sess)

	ch := make(chan prometheus.Metric, 64)
	c.Collect(ch)
	close(ch)

	count := 0
	for range ch {
		count++
	}
	if count == 0 {
		t.Fatal("expected at least one metric from a tracked session")
	}
}

func TestSessionCollectorUntrack(t *testing.T) {
	c := NewSessionCollector("fastpass", "core")
	var mu sync.Mutex
	sess := session.New(&mu, pool.New(), nopTransport{}, session.Config{Clock: clock.NewFake(time.Unix(0, 0))})
	c.Track("a", sess)
	c.Untrack("a")

	ch := make(chan prometheus.Metric, 64)
	c.Collect(ch)
	close(ch)

	count := 0
	for range ch {
		count++
	}
	if count != 0 {
		t.Fatalf("expected no metrics after Untrack, got %d", count)
	}
}
