package radapter

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

// rendezvousTimeout bounds how long restart waits for confirmation that the listener
// goroutine has installed its message handlers before reporting startup failure (§4.6).
const rendezvousTimeout = 20 * time.Millisecond

// ListenerCallback receives a decomposed (base, sub) pair and the raw message payload
// delivered on an exact or pattern subscription.
type ListenerCallback func(base, sub, payload string)

type listenerEntry struct {
	pattern string // "" for an exact-channel subscription
	cb      ListenerCallback
}

// Listener multiplexes exact-channel and pattern subscriptions onto one listener goroutine
// (one driver subscription handle for exact channels, one for patterns) and dispatches
// deliveries onto a WorkerPool, per §4.6. Cancelling the running loop's context lets
// Subscribe/Unsubscribe mutations stop the in-progress receive so the subscription set can
// be rebuilt before the read loop restarts.
type Listener struct {
	driver   Driver
	pool     *WorkerPool
	logger   *log.Logger
	homeBase string

	mu      sync.Mutex
	exact   map[string][]ListenerCallback
	pattern map[string][]ListenerCallback

	cancel context.CancelFunc
	done   chan struct{}

	// spawn launches the listener goroutine; a field rather than a direct call to run so
	// tests can substitute a slow stand-in to exercise the rendezvous-timeout path.
	spawn func(ctx context.Context, exactPS, patternPS *redis.PubSub, ready chan struct{})
}

// NewListener constructs a listener bound to driver for channel keys rooted at homeBase.
func NewListener(driver Driver, pool *WorkerPool, homeBase string, logger *log.Logger) *Listener {
	if logger == nil {
		logger = log.Default()
	}
	l := &Listener{
		driver:   driver,
		pool:     pool,
		logger:   logger,
		homeBase: homeBase,
		exact:    make(map[string][]ListenerCallback),
		pattern:  make(map[string][]ListenerCallback),
	}
	l.spawn = l.run
	return l
}

// Subscribe registers cb on the exact channel for (base, sub), built through the same
// schema as stream keys (BuildKey with StubChannel).
func (l *Listener) Subscribe(ctx context.Context, base, sub string, cb ListenerCallback) error {
	if err := ValidateBase(base); err != nil {
		return err
	}
	channel := BuildKey(base, StubChannel, sub)
	l.mu.Lock()
	l.exact[channel] = append(l.exact[channel], cb)
	l.mu.Unlock()
	return l.restart(ctx)
}

// SubscribePattern registers cb on a raw glob pattern (e.g. "TCLK:*"), bypassing the
// base/sub/stub key schema entirely — patterns name a shape of channel, not one channel.
func (l *Listener) SubscribePattern(ctx context.Context, pattern string, cb ListenerCallback) error {
	l.mu.Lock()
	l.pattern[pattern] = append(l.pattern[pattern], cb)
	l.mu.Unlock()
	return l.restart(ctx)
}

// Unsubscribe removes every callback registered on the exact channel for (base, sub).
func (l *Listener) Unsubscribe(ctx context.Context, base, sub string) error {
	channel := BuildKey(base, StubChannel, sub)
	l.mu.Lock()
	delete(l.exact, channel)
	l.mu.Unlock()
	return l.restart(ctx)
}

// UnsubscribePattern removes every callback registered on pattern.
func (l *Listener) UnsubscribePattern(ctx context.Context, pattern string) error {
	l.mu.Lock()
	delete(l.pattern, pattern)
	l.mu.Unlock()
	return l.restart(ctx)
}

// restart quiesces any running Receive loop and starts a fresh one over the current
// subscription set. Called under no lock other than the brief snapshot copy below.
func (l *Listener) restart(ctx context.Context) error {
	l.stop()

	l.mu.Lock()
	channels := make([]string, 0, len(l.exact))
	for ch := range l.exact {
		channels = append(channels, ch)
	}
	patterns := make([]string, 0, len(l.pattern))
	for p := range l.pattern {
		patterns = append(patterns, p)
	}
	l.mu.Unlock()

	if len(channels) == 0 && len(patterns) == 0 {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})

	var exactPS, patternPS *redis.PubSub
	if len(channels) > 0 {
		exactPS = l.driver.Subscribe(runCtx, channels...)
	}
	if len(patterns) > 0 {
		patternPS = l.driver.PSubscribe(runCtx, patterns...)
	}

	ready := make(chan struct{})
	go l.spawn(runCtx, exactPS, patternPS, ready)

	select {
	case <-ready:
		return nil
	case <-time.After(rendezvousTimeout):
		l.logger.Error("pub/sub listener failed to start within rendezvous timeout")
		return errListenerStartTimeout{}
	}
}

type errListenerStartTimeout struct{}

func (errListenerStartTimeout) Error() string {
	return "radapter: pub/sub listener did not confirm startup within the rendezvous timeout"
}

// stop cancels the current Receive loop, if any, and waits for it to exit.
func (l *Listener) stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
	l.cancel = nil
	l.done = nil
}

// Close permanently stops the listener and releases its driver subscriptions.
func (l *Listener) Close() {
	l.stop()
}

// Restore rebuilds every live subscription against the current driver connection. Called
// by the reconnect supervisor after a successful reconnect (§4.8): the facade's underlying
// client has changed, so any in-flight *redis.PubSub handles from before the reconnect are
// no longer usable.
func (l *Listener) Restore(ctx context.Context) error {
	return l.restart(ctx)
}

// run launches a drain goroutine per active subscription, signals ready once both are
// started (the rendezvous restart waits on), then blocks until both exit.
func (l *Listener) run(ctx context.Context, exactPS, patternPS *redis.PubSub, ready chan struct{}) {
	defer close(l.done)

	var wg sync.WaitGroup
	if exactPS != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.drain(ctx, exactPS)
		}()
	}
	if patternPS != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.drain(ctx, patternPS)
		}()
	}
	close(ready)
	wg.Wait()
}

func (l *Listener) drain(ctx context.Context, ps *redis.PubSub) {
	defer ps.Close()
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			l.dispatch(msg)
		}
	}
}

func (l *Listener) dispatch(msg *redis.Message) {
	if msg.Pattern != "" {
		l.mu.Lock()
		cbs := append([]ListenerCallback(nil), l.pattern[msg.Pattern]...)
		l.mu.Unlock()
		base, sub := Split(msg.Channel, l.homeBase)
		for _, cb := range cbs {
			cb := cb
			l.pool.Submit(msg.Channel, func() { cb(base, sub, msg.Payload) })
		}
		return
	}

	l.mu.Lock()
	cbs := append([]ListenerCallback(nil), l.exact[msg.Channel]...)
	l.mu.Unlock()
	base, sub := Split(msg.Channel, l.homeBase)
	for _, cb := range cbs {
		cb := cb
		l.pool.Submit(msg.Channel, func() { cb(base, sub, msg.Payload) })
	}
}
