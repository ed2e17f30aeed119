package radapter

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/fermiad/redis-adapter/internal/config"
)

// Adapter is the entry point wiring the driver facade, pub/sub listener, stream reader
// engine, reconnect supervisor, and worker pool into one client-side handle (§2).
type Adapter struct {
	driver      Driver
	facade      *Facade
	homeBase    string
	defaultTrim int64

	pool        *WorkerPool
	listener    *Listener
	readers     *ReaderEngine
	reconnector *Reconnector
	logger      *log.Logger

	// Watchdog is nil unless config.WatchdogConfig.Enabled was set.
	Watchdog *Watchdog
}

// NewAdapter connects to Redis per cfg.Connection and wires every engine component
// together, including the reconnect supervisor's restore hook.
func NewAdapter(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Adapter, error) {
	if logger == nil {
		logger = log.Default()
	}

	opts := Options{
		UnixSocket:    cfg.Connection.UnixSocket,
		Host:          cfg.Connection.Host,
		Port:          cfg.Connection.Port,
		ClusterAddrs:  cfg.Connection.ClusterAddrs,
		Username:      cfg.Connection.Username,
		Password:      cfg.Connection.Password,
		Timeout:       time.Duration(cfg.Connection.TimeoutMillis) * time.Millisecond,
		PoolSize:      cfg.Connection.PoolSize,
		PreferCluster: cfg.Connection.PreferCluster,
	}

	facade, err := NewFacade(ctx, opts, logger)
	if err != nil {
		return nil, fmt.Errorf("radapter: connect: %w", err)
	}

	pool := NewWorkerPool(cfg.Workers.PoolSize, cfg.Workers.QueueDepth, logger)
	blockTimeout := time.Duration(cfg.Stream.BlockTimeoutMillis) * time.Millisecond
	readers := NewReaderEngine(facade, pool, blockTimeout, cfg.Connection.HomeBase, logger)
	listener := NewListener(facade, pool, cfg.Connection.HomeBase, logger)
	backoff := time.Duration(cfg.Reconnect.BackoffMillis) * time.Millisecond
	reconnector := NewReconnector(facade, opts, backoff, logger)

	a := &Adapter{
		driver:      facade,
		facade:      facade,
		homeBase:    cfg.Connection.HomeBase,
		defaultTrim: cfg.Stream.DefaultTrim,
		pool:        pool,
		listener:    listener,
		readers:     readers,
		reconnector: reconnector,
		logger:      logger,
	}

	if cfg.Watchdog.Enabled {
		a.Watchdog = NewWatchdog(a, time.Duration(cfg.Watchdog.TTLSeconds)*time.Second)
	}

	reconnector.SetRestoreFunc(func(ctx context.Context) {
		readers.Restore(ctx)
		if err := listener.Restore(ctx); err != nil {
			logger.Error("failed to restore pub/sub subscriptions after reconnect", "error", err)
		}
	})

	return a, nil
}

// HomeBase returns the adapter's configured home base key.
func (a *Adapter) HomeBase() string { return a.homeBase }

// Subscribe registers cb on the exact pub/sub channel for (base, sub).
func (a *Adapter) Subscribe(ctx context.Context, base, sub string, cb ListenerCallback) error {
	return a.listener.Subscribe(ctx, base, sub, cb)
}

// SubscribePattern registers cb on a raw glob channel pattern.
func (a *Adapter) SubscribePattern(ctx context.Context, pattern string, cb ListenerCallback) error {
	return a.listener.SubscribePattern(ctx, pattern, cb)
}

// Unsubscribe removes cb's exact-channel subscription for (base, sub).
func (a *Adapter) Unsubscribe(ctx context.Context, base, sub string) error {
	return a.listener.Unsubscribe(ctx, base, sub)
}

// Publish publishes message on the exact channel for (base, sub).
func (a *Adapter) Publish(ctx context.Context, base, sub, message string) (int64, Status) {
	n, status := a.driver.Publish(ctx, BuildKey(base, StubChannel, sub), message)
	a.reconnector.Trigger(status)
	return n, status
}

// AddReader registers cb on the stream key for (base, sub), grouped by cluster slot.
func (a *Adapter) AddReader(ctx context.Context, base, sub string, cb ReaderCallback) error {
	return a.readers.AddReader(ctx, base, sub, cb)
}

// RemoveReader drops the stream reader registered on (base, sub).
func (a *Adapter) RemoveReader(ctx context.Context, base, sub string) {
	a.readers.RemoveReader(ctx, base, sub)
}

// AddGenericReader registers cb directly on key, bypassing the base/sub/stub schema, per
// §4.7.1. key must not be a recognised schema key under the adapter's home base.
func (a *Adapter) AddGenericReader(ctx context.Context, key string, cb ReaderCallback) error {
	return a.readers.AddGenericReader(ctx, key, cb)
}

// RemoveGenericReader drops the reader registered on key by AddGenericReader.
func (a *Adapter) RemoveGenericReader(ctx context.Context, key string) {
	a.readers.RemoveGenericReader(ctx, key)
}

// Ping reports the current connection status, triggering a reconnect on failure.
func (a *Adapter) Ping(ctx context.Context) Status {
	status := a.driver.Ping(ctx)
	a.reconnector.Trigger(status)
	return status
}

// Close stops every background goroutine and releases the driver connection: readers
// first (they publish a stop-key entry each), then the listener, then the worker pool
// (after all producers have stopped submitting jobs), then the driver handle itself.
func (a *Adapter) Close() error {
	a.readers.Stop()
	a.listener.Close()
	if err := a.pool.Close(); err != nil {
		return err
	}
	return a.facade.Close()
}
