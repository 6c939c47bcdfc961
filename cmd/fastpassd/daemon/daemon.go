package daemon

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fastpass-proto/fastpass/cmd/fastpassd/config"
	"github.com/fastpass-proto/fastpass/internal/fastpass/metrics"
	"github.com/fastpass-proto/fastpass/internal/gateway/tracing"
)

// NewLogger builds the zap.Logger fastpassd uses everywhere, console
// or JSON encoded depending on cfg.
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zcfg.Level = level

	return zcfg.Build()
}

// NewTracer builds a tracing.Tracer from fastpassd's own TracingConfig.
func NewTracer(cfg config.TracingConfig, logger *zap.Logger) (*tracing.Tracer, error) {
	return tracing.NewTracer(&tracing.Config{
		Enable:      cfg.Enable,
		ServiceName: cfg.ServiceName,
		Endpoint:    cfg.Endpoint,
		Exporter:    cfg.Exporter,
		SampleRate:  cfg.SampleRate,
	}, logger)
}

// MetricsServer is the /metrics HTTP endpoint plus the collector that
// feeds it session counters.
type MetricsServer struct {
	srv       *http.Server
	Collector *metrics.SessionCollector
}

// NewMetricsServer registers a fresh SessionCollector on its own
// registry and starts serving cfg.Path on cfg.Addr in the background.
// If cfg.Enable is false, no HTTP server is started and the returned
// MetricsServer holds only the collector.
func NewMetricsServer(cfg config.MetricsConfig, logger *zap.Logger) *MetricsServer {
	collector := metrics.NewSessionCollector("fastpass", "core")
	if !cfg.Enable {
		return &MetricsServer{Collector: collector}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collector)

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: cfg.Addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()

	return &MetricsServer{srv: srv, Collector: collector}
}

// Shutdown stops the metrics HTTP server, if one was started.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	if m.srv == nil {
		return nil
	}
	return m.srv.Shutdown(ctx)
}

// ParseSendTimeout applies the documented fallback when a config value
// is unset, mirroring session.DefaultSendTimeout's own zero-means-default rule.
func ParseSendTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 100 * time.Millisecond
	}
	return d
}

// ValidateMode checks cfg.Mode is one fastpassd understands.
func ValidateMode(mode string) error {
	switch mode {
	case "endpoint", "arbiter":
		return nil
	default:
		return fmt.Errorf("daemon: unknown mode %q, want \"endpoint\" or \"arbiter\"", mode)
	}
}
