// Package discovery registers and resolves fastpassd process addresses
// in etcd: an arbiter registers its listen address under a lease it
// keeps alive, and an endpoint looks that address up at startup.
package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// EtcdClient wraps a single service registration (Register/Unregister)
// plus prefix lookups (GetWithPrefix) against an etcd cluster.
type EtcdClient struct {
	client       *clientv3.Client
	logger       *zap.Logger
	leaseID      clientv3.LeaseID
	keepAliveCh  <-chan *clientv3.LeaseKeepAliveResponse
	mu           sync.RWMutex
	serviceKey   string
	serviceValue string
	closed       bool
	ctx          context.Context
	cancel       context.CancelFunc
}

// Config holds the etcd endpoints an EtcdClient dials.
type Config struct {
	Endpoints   []string
	DialTimeout time.Duration
	Username    string
	Password    string
}

// NewEtcdClient dials the etcd cluster described by config.
func NewEtcdClient(config *Config, logger *zap.Logger) (*EtcdClient, error) {
	if config == nil {
		return nil, fmt.Errorf("config is nil")
	}

	clientConfig := clientv3.Config{
		Endpoints:   config.Endpoints,
		DialTimeout: config.DialTimeout,
	}
	if config.Username != "" {
		clientConfig.Username = config.Username
		clientConfig.Password = config.Password
	}

	client, err := clientv3.New(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	etcdClient := &EtcdClient{
		client: client,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	logger.Info("etcd client created", zap.Strings("endpoints", config.Endpoints))
	return etcdClient, nil
}

// Register publishes serviceValue (fastpassd's listen address) under
// serviceKey with a ttl-second lease, and keeps that lease alive in the
// background until Close or Unregister. On keepalive failure it
// re-registers under a fresh lease rather than giving up.
func (c *EtcdClient) Register(serviceKey, serviceValue string, ttl int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("client is closed")
	}

	lease, err := c.client.Grant(c.ctx, ttl)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	c.leaseID = lease.ID
	c.serviceKey = serviceKey
	c.serviceValue = serviceValue

	if _, err := c.client.Put(c.ctx, serviceKey, serviceValue, clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	keepAliveCh, err := c.client.KeepAlive(c.ctx, lease.ID)
	if err != nil {
		return fmt.Errorf("failed to keep alive: %w", err)
	}
	c.keepAliveCh = keepAliveCh
	go c.watchKeepAlive()

	c.logger.Info("registered with discovery",
		zap.String("key", serviceKey),
		zap.String("value", serviceValue),
		zap.Int64("ttl", ttl),
		zap.Int64("lease_id", int64(lease.ID)),
	)
	return nil
}

func (c *EtcdClient) watchKeepAlive() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case resp, ok := <-c.keepAliveCh:
			if !ok {
				c.logger.Warn("keepalive channel closed, attempting to re-register")
				c.mu.Lock()
				if !c.closed && c.serviceKey != "" {
					if err := c.reRegister(); err != nil {
						c.logger.Error("failed to re-register", zap.Error(err))
					}
				}
				c.mu.Unlock()
				return
			}
			if resp != nil {
				c.logger.Debug("keepalive response received", zap.Int64("ttl", resp.TTL))
			}
		}
	}
}

// reRegister is called with c.mu held, from watchKeepAlive.
func (c *EtcdClient) reRegister() error {
	if c.closed {
		return fmt.Errorf("client is closed")
	}

	lease, err := c.client.Grant(c.ctx, 10)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}
	c.leaseID = lease.ID

	if _, err := c.client.Put(c.ctx, c.serviceKey, c.serviceValue, clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	keepAliveCh, err := c.client.KeepAlive(c.ctx, lease.ID)
	if err != nil {
		return fmt.Errorf("failed to keep alive: %w", err)
	}
	c.keepAliveCh = keepAliveCh
	go c.watchKeepAlive()

	c.logger.Info("re-registered with discovery", zap.String("key", c.serviceKey), zap.Int64("lease_id", int64(lease.ID)))
	return nil
}

// Unregister deletes the registered key and revokes its lease, leaving
// the client otherwise usable.
func (c *EtcdClient) Unregister() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	if c.serviceKey != "" {
		if _, err := c.client.Delete(c.ctx, c.serviceKey); err != nil {
			c.logger.Warn("failed to delete service key", zap.Error(err))
		}
	}
	if c.leaseID != 0 {
		if _, err := c.client.Revoke(c.ctx, c.leaseID); err != nil {
			c.logger.Warn("failed to revoke lease", zap.Error(err))
		}
	}

	c.logger.Info("unregistered from discovery", zap.String("key", c.serviceKey))
	c.serviceKey = ""
	c.serviceValue = ""
	return nil
}

// GetWithPrefix resolves every key registered under prefix -- used by
// an endpoint's one-shot arbiter address lookup at startup (see
// resolveArbiterAddr in cmd/fastpassd).
func (c *EtcdClient) GetWithPrefix(prefix string) (map[string]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, fmt.Errorf("client is closed")
	}

	resp, err := c.client.Get(c.ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to get keys: %w", err)
	}

	result := make(map[string]string)
	for _, kv := range resp.Kvs {
		result[string(kv.Key)] = string(kv.Value)
	}
	return result, nil
}

// Close revokes any outstanding registration and closes the underlying
// etcd client. Safe to call more than once.
func (c *EtcdClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.serviceKey != "" {
		_, _ = c.client.Delete(context.Background(), c.serviceKey)
	}
	if c.leaseID != 0 {
		_, _ = c.client.Revoke(context.Background(), c.leaseID)
	}
	c.cancel()

	err := c.client.Close()
	c.logger.Info("etcd client closed")
	return err
}
