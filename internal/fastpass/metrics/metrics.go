// Package metrics exposes the session package's plain atomic counters
// (§6) to Prometheus. Because session.Stats already holds cumulative
// totals, this uses the pull-style prometheus.Collector pattern
// (Describe/Collect emitting ConstMetric) rather than mirroring each
// counter into a second Inc()-driven CounterVec, which would require
// tracking a last-seen delta for no benefit.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fastpass-proto/fastpass/internal/fastpass/session"
)

var statCounterNames = []string{
	"rx_pkts", "rx_too_short", "rx_incomplete_reset", "rx_incomplete_alloc",
	"rx_incomplete_ack", "rx_unknown_payload", "redundant_reset",
	"reset_out_of_window", "outdated_reset", "too_early_ack",
	"fall_off_outwnd", "xmit_errors", "skb_alloc_error",
}

// SessionCollector exposes every tracked endpoint session's Stats
// counters and outstanding-window size under a shared "endpoint"
// label, the Prometheus analog of the arbiter's in-memory
// internal/fastpass/store registry.
type SessionCollector struct {
	mu        sync.RWMutex
	sessions  map[string]*session.Session
	statDescs map[string]*prometheus.Desc
	windowDesc *prometheus.Desc
}

// NewSessionCollector builds a SessionCollector. namespace/subsystem
// follow the teacher's promauto label convention even though this
// collector is registered directly (not via promauto) since its
// metric set is data-driven by whatever endpoints are currently
// tracked.
func NewSessionCollector(namespace, subsystem string) *SessionCollector {
	descs := make(map[string]*prometheus.Desc, len(statCounterNames))
	for _, name := range statCounterNames {
		descs[name] = prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, name+"_total"),
			"Cumulative "+name+" counter from the reliability session.",
			[]string{"endpoint"}, nil,
		)
	}
	return &SessionCollector{
		sessions:  make(map[string]*session.Session),
		statDescs: descs,
		windowDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "outstanding_window_size"),
			"Unacked descriptor count per endpoint.",
			[]string{"endpoint"}, nil,
		),
	}
}

// Track registers sess under endpoint so it's included in future
// scrapes. Untrack removes it. Both are safe to call concurrently with
// Collect.
func (c *SessionCollector) Track(endpoint string, sess *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[endpoint] = sess
}

func (c *SessionCollector) Untrack(endpoint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, endpoint)
}

func (c *SessionCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.statDescs {
		ch <- d
	}
	ch <- c.windowDesc
}

func (c *SessionCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for endpoint, sess := range c.sessions {
		snap := sess.Stats.Snapshot()
		for name, value := range snap {
			desc, ok := c.statDescs[name]
			if !ok {
				continue
			}
			ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(value), endpoint)
		}
		ch <- prometheus.MustNewConstMetric(c.windowDesc, prometheus.GaugeValue, float64(sess.NumUnacked()), endpoint)
	}
}
