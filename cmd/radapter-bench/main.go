// Command radapter-bench exercises the adapter end-to-end against a real or local Redis:
// it registers a stream reader and a pattern subscription, runs a producer loop publishing
// one sample every 100 ms, and prints summary counters on shutdown.
package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/fermiad/redis-adapter/internal/config"
	"github.com/fermiad/redis-adapter/radapter"
)

func main() {
	std := stdlog.New(os.Stdout, "radapter-bench ", stdlog.LstdFlags|stdlog.LUTC)
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

	cfg, path, err := config.Load(func(updated *config.Config) {
		std.Printf("config reloaded (reconnect/worker-pool sizing takes effect on next restart)")
		_ = updated
	})
	if err != nil {
		std.Fatalf("config error: %v", err)
	}
	std.Printf("loaded config from %s", path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	adapter, err := radapter.NewAdapter(ctx, cfg, logger)
	if err != nil {
		std.Fatalf("adapter setup error: %v", err)
	}

	var sent, received uint64
	consumer := uuid.NewString()

	if err := adapter.AddReader(ctx, cfg.Connection.HomeBase, "bench", func(base, sub string, entries []radapter.Entry) {
		atomic.AddUint64(&received, uint64(len(entries)))
	}); err != nil {
		std.Fatalf("reader setup error: %v", err)
	}

	if err := adapter.SubscribePattern(ctx, cfg.Connection.HomeBase+":*", func(base, sub, payload string) {
		std.Printf("notification on %s/%s: %s", base, sub, payload)
	}); err != nil {
		std.Fatalf("pattern subscription error: %v", err)
	}

	stream := radapter.StreamOf[float32](adapter, "bench")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, status := stream.AddSingle(ctx, radapter.Time{}, 1.0); status == radapter.StatusOK {
					atomic.AddUint64(&sent, 1)
				}
			}
		}
	}()

	std.Printf("bench consumer %s running, publishing to %s", consumer, cfg.Connection.HomeBase)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	std.Printf("shutdown signal received")
	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	done := make(chan struct{})
	go func() {
		if err := adapter.Close(); err != nil {
			std.Printf("shutdown error: %v", err)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		std.Printf("shutdown timed out")
	}

	std.Printf("summary: sent=%d received=%d", atomic.LoadUint64(&sent), atomic.LoadUint64(&received))
}
