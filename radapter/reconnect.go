package radapter

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// Reconnector is the lazy, single-flight reconnect supervisor of §4.8: at most one
// reconnect goroutine runs at a time (guarded by the connecting flag), and on success it
// restores every known reader slot and the pub/sub listener, preserving all subscriptions
// that live in the core rather than in the driver.
type Reconnector struct {
	facade  *Facade
	opts    Options
	logger  *log.Logger
	backoff time.Duration

	connecting atomic.Bool

	restore func(ctx context.Context) // set by the Adapter: restarts readers + listener
}

// NewReconnector constructs a supervisor bound to facade and connection options used to
// rebuild the driver handle on reconnect. backoff throttles a failed attempt before the
// connecting flag is released, so a burst of failing operations doesn't redial in a tight
// loop.
func NewReconnector(facade *Facade, opts Options, backoff time.Duration, logger *log.Logger) *Reconnector {
	if logger == nil {
		logger = log.Default()
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return &Reconnector{facade: facade, opts: opts, logger: logger, backoff: backoff}
}

// SetRestoreFunc installs the callback run after a successful reconnect to restart
// readers and the listener. Must be called before any Trigger.
func (r *Reconnector) SetRestoreFunc(restore func(ctx context.Context)) {
	r.restore = restore
}

// Trigger routes a typed operation's outcome through the reconnect supervisor: when
// status signals a lost connection and the connecting flag flips false -> true, a
// detached goroutine reconnects the facade and restores the listener + every reader.
// No-op if a reconnect is already in flight. The flag is released on every exit path.
func (r *Reconnector) Trigger(status Status) {
	if status != StatusDisconnected {
		return
	}
	if !r.connecting.CompareAndSwap(false, true) {
		return
	}
	go r.run()
}

// InFlight reports whether a reconnect goroutine is currently running (test hook).
func (r *Reconnector) InFlight() bool {
	return r.connecting.Load()
}

// run performs a single reconnect attempt, per §4.8 ("the facade's reconnect routine").
// It does not retry internally: on failure it simply releases the connecting flag, and
// the next operation that observes a disconnected status will trigger another attempt.
func (r *Reconnector) run() {
	defer r.connecting.Store(false)
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("reconnect goroutine panicked", "recovered", rec)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.dialTimeout())
	err := r.facade.Reconnect(ctx, r.opts)
	cancel()
	if err != nil {
		r.logger.Warn("redis reconnect attempt failed", "error", err, "retry_backoff", r.backoff)
		time.Sleep(r.backoff)
		return
	}
	r.logger.Info("redis reconnected")

	if r.restore != nil {
		r.restore(context.Background())
	}
}
