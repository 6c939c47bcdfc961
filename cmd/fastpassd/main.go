// Command fastpassd runs one side of the Fastpass control protocol:
// in endpoint mode it dials a single arbiter and requests allocations;
// in arbiter mode it listens for many endpoints and grants them.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/fastpass-proto/fastpass/cmd/fastpassd/admin"
	"github.com/fastpass-proto/fastpass/cmd/fastpassd/config"
	"github.com/fastpass-proto/fastpass/cmd/fastpassd/daemon"
	"github.com/fastpass-proto/fastpass/cmd/fastpassd/debughub"
	"github.com/fastpass-proto/fastpass/internal/fastpass/store"
	"github.com/fastpass-proto/fastpass/internal/fastpass/wire"
	"github.com/fastpass-proto/fastpass/internal/gateway/discovery"
	"github.com/fastpass-proto/fastpass/internal/gateway/jwt"

	"github.com/redis/go-redis/v9"
)

var (
	configFile = flag.String("f", "configs/fastpassd.yaml", "path to the YAML config file")
	version    = "0.1.0"
)

func main() {
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	logger, err := daemon.NewLogger(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting fastpassd", zap.String("version", version), zap.String("mode", cfg.Mode))

	if err := daemon.ValidateMode(cfg.Mode); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	tracer, err := daemon.NewTracer(cfg.Tracing, logger)
	if err != nil {
		logger.Fatal("failed to build tracer", zap.Error(err))
	}
	defer tracer.Shutdown(context.Background())

	metricsSrv := daemon.NewMetricsServer(cfg.Metrics, logger)
	defer metricsSrv.Shutdown(context.Background())

	var events daemon.EventSink
	var adminSrv *admin.Server
	if cfg.Admin.Enable {
		hub := debughub.New(jwt.NewJWTManager(cfg.Admin.JWTSecret, 3600, 86400, "fastpassd"), logger)
		events = hub
		adminSrv = admin.New(cfg.Admin, cfg.RateLimit, hub, tracer, logger)
		go func() {
			if err := adminSrv.Run(); err != nil {
				logger.Error("admin server stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	var stop func()

	switch cfg.Mode {
	case "endpoint":
		transportCfg := cfg.Transport
		if cfg.Discovery.Enable {
			resolved, err := resolveArbiterAddr(cfg.Discovery, logger)
			if err != nil {
				logger.Fatal("failed to resolve arbiter address via discovery", zap.Error(err))
			}
			transportCfg.ArbiterAddr = resolved
		}

		ep, err := daemon.NewEndpoint(transportCfg, cfg.Reset.Window, logger, tracer, metricsSrv.Collector, events, nil)
		if err != nil {
			logger.Fatal("failed to start endpoint", zap.Error(err))
		}
		go func() { errCh <- ep.Run() }()
		stop = func() { ep.Close() }

	case "arbiter":
		st, err := buildStore(cfg.Store, logger)
		if err != nil {
			logger.Fatal("failed to build store", zap.Error(err))
		}

		ar, err := daemon.NewArbiter(cfg.Transport, cfg.Reset.Window, logger, tracer, metricsSrv.Collector, events, st, echoAllocationHandler)
		if err != nil {
			logger.Fatal("failed to start arbiter", zap.Error(err))
		}
		go func() { errCh <- ar.Run() }()

		var disc *discovery.EtcdClient
		if cfg.Discovery.Enable {
			disc, err = discovery.NewEtcdClient(&discovery.Config{
				Endpoints:   cfg.Discovery.Endpoints,
				DialTimeout: cfg.Discovery.DialTimeout,
			}, logger)
			if err != nil {
				logger.Fatal("failed to build discovery client", zap.Error(err))
			}
			if err := disc.Register(cfg.Discovery.ServiceKey, cfg.Transport.ListenAddr, cfg.Discovery.LeaseTTL); err != nil {
				logger.Fatal("failed to register with discovery", zap.Error(err))
			}
		}

		snapshotDone := make(chan struct{})
		go runSnapshotLoop(ar, snapshotDone)

		stop = func() {
			close(snapshotDone)
			if disc != nil {
				disc.Unregister()
				disc.Close()
			}
			ar.Close()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("daemon stopped with error", zap.Error(err))
		}
	case sig := <-sigCh:
		logger.Info("received signal", zap.String("signal", sig.String()))
	}

	if adminSrv != nil {
		adminSrv.Shutdown(context.Background())
	}
	if stop != nil {
		stop()
	}
	logger.Info("fastpassd shutdown complete")
}

func loadConfig(filename string) (*config.Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("config file not found, using default config")
			return config.DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := config.DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func buildStore(cfg config.StoreConfig, logger *zap.Logger) (store.Store, error) {
	switch cfg.Type {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		return store.NewRedisStore(&store.RedisStoreConfig{Client: client, Logger: logger})
	default:
		return store.NewMemoryStore(), nil
	}
}

// resolveArbiterAddr looks up the arbiter address registered under
// cfg.ServiceKey (see discovery.EtcdClient.Register, called by the
// arbiter side of this same command). A one-shot lookup rather than a
// watch-based resolver: re-pointing a live Session at a
// new arbiter mid-run would require tearing down its outstanding
// window, which this version doesn't do.
func resolveArbiterAddr(cfg config.DiscoveryConfig, logger *zap.Logger) (string, error) {
	client, err := discovery.NewEtcdClient(&discovery.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	}, logger)
	if err != nil {
		return "", fmt.Errorf("build discovery client: %w", err)
	}
	defer client.Close()

	entries, err := client.GetWithPrefix(cfg.ServiceKey)
	if err != nil {
		return "", fmt.Errorf("lookup %q: %w", cfg.ServiceKey, err)
	}
	for _, addr := range entries {
		return addr, nil
	}
	return "", fmt.Errorf("no arbiter registered under %q", cfg.ServiceKey)
}

func runSnapshotLoop(ar *daemon.Arbiter, done <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ar.Snapshot(context.Background())
		case <-done:
			return
		}
	}
}

// echoAllocationHandler is fastpassd's default AllocationHandler: it
// grants exactly what was requested at a fixed base tslot, with no
// real scheduling (the protocol's allocation policy itself is out of
// the reliability core's scope -- see SPEC_FULL's Non-goals).
func echoAllocationHandler(endpoint string, entries []wire.AreqEntry) (baseTslot uint16, dst []uint16, tslotData []byte, ok bool) {
	if len(entries) == 0 {
		return 0, nil, nil, false
	}
	dst = make([]uint16, len(entries))
	total := uint16(0)
	for i, e := range entries {
		dst[i] = e.DstKey
		total += e.TslotCount
	}
	tslotData = make([]byte, 2*int(total))
	for i := range tslotData {
		if i%2 == 1 {
			tslotData[i] = byte(i / 2 % len(entries))
		}
	}
	return 0, dst, tslotData, true
}
