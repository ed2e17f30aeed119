package radapter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestListenerSubscribeRegistersExactChannel(t *testing.T) {
	driver := newFakeDriver()
	pool := NewWorkerPool(2, 8, nil)
	defer pool.Close()
	l := NewListener(driver, pool, "ADAPTER", nil)

	if err := l.Subscribe(context.Background(), "ADAPTER", "temp", func(base, sub, payload string) {}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	driver.mu.Lock()
	defer driver.mu.Unlock()
	if len(driver.subscribeCalls) != 1 {
		t.Fatalf("expected exactly one Subscribe call, got %d", len(driver.subscribeCalls))
	}
	want := BuildKey("ADAPTER", StubChannel, "temp")
	if driver.subscribeCalls[0][0] != want {
		t.Errorf("Subscribe channel = %q, want %q", driver.subscribeCalls[0][0], want)
	}
}

func TestListenerSubscribeRejectsInvalidBase(t *testing.T) {
	driver := newFakeDriver()
	pool := NewWorkerPool(1, 4, nil)
	defer pool.Close()
	l := NewListener(driver, pool, "ADAPTER", nil)

	err := l.Subscribe(context.Background(), "BAD*BASE", "sub", func(base, sub, payload string) {})
	if err == nil {
		t.Fatal("expected an error for a base containing a glob metacharacter")
	}
}

func TestListenerSubscribePatternUsesRawPattern(t *testing.T) {
	driver := newFakeDriver()
	pool := NewWorkerPool(1, 4, nil)
	defer pool.Close()
	l := NewListener(driver, pool, "ADAPTER", nil)

	if err := l.SubscribePattern(context.Background(), "TCLK:*", func(base, sub, payload string) {}); err != nil {
		t.Fatalf("SubscribePattern: %v", err)
	}

	driver.mu.Lock()
	defer driver.mu.Unlock()
	if len(driver.psubscribeCalls) != 1 || driver.psubscribeCalls[0][0] != "TCLK:*" {
		t.Fatalf("expected a PSubscribe call with pattern TCLK:*, got %v", driver.psubscribeCalls)
	}
}

func TestListenerUnsubscribeRemovesChannel(t *testing.T) {
	driver := newFakeDriver()
	pool := NewWorkerPool(1, 4, nil)
	defer pool.Close()
	l := NewListener(driver, pool, "ADAPTER", nil)

	ctx := context.Background()
	if err := l.Subscribe(ctx, "ADAPTER", "temp", func(base, sub, payload string) {}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := l.Unsubscribe(ctx, "ADAPTER", "temp"); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	channel := BuildKey("ADAPTER", StubChannel, "temp")
	if _, ok := l.exact[channel]; ok {
		t.Error("channel callback table should no longer contain the unsubscribed channel")
	}
}

func TestListenerDispatchExactRoutesToCallback(t *testing.T) {
	driver := newFakeDriver()
	pool := NewWorkerPool(2, 8, nil)
	defer pool.Close()
	l := NewListener(driver, pool, "ADAPTER", nil)

	channel := BuildKey("ADAPTER", StubChannel, "temp")
	var mu sync.Mutex
	var gotBase, gotSub, gotPayload string
	var wg sync.WaitGroup
	wg.Add(1)
	l.exact[channel] = []ListenerCallback{func(base, sub, payload string) {
		defer wg.Done()
		mu.Lock()
		gotBase, gotSub, gotPayload = base, sub, payload
		mu.Unlock()
	}}

	l.dispatch(&redis.Message{Channel: channel, Payload: "hello"})

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never ran")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotBase != "ADAPTER" || gotSub != "temp" || gotPayload != "hello" {
		t.Errorf("dispatch delivered (%q, %q, %q), want (ADAPTER, temp, hello)", gotBase, gotSub, gotPayload)
	}
}

func TestListenerSubscribeTimesOutWhenSpawnNeverSignalsReady(t *testing.T) {
	driver := newFakeDriver()
	pool := NewWorkerPool(1, 4, nil)
	defer pool.Close()
	l := NewListener(driver, pool, "ADAPTER", nil)

	// Replace spawn with a stand-in that never closes ready, simulating a listener
	// goroutine that hangs before installing its handlers.
	l.spawn = func(ctx context.Context, exactPS, patternPS *redis.PubSub, ready chan struct{}) {
		<-ctx.Done()
		close(l.done)
	}

	err := l.Subscribe(context.Background(), "ADAPTER", "temp", func(base, sub, payload string) {})
	if err == nil {
		t.Fatal("expected a rendezvous timeout error")
	}
	if _, ok := err.(errListenerStartTimeout); !ok {
		t.Errorf("err = %T(%v), want errListenerStartTimeout", err, err)
	}
	l.stop()
}

func TestListenerDispatchPatternRoutesToPatternCallback(t *testing.T) {
	driver := newFakeDriver()
	pool := NewWorkerPool(2, 8, nil)
	defer pool.Close()
	l := NewListener(driver, pool, "ADAPTER", nil)

	var wg sync.WaitGroup
	wg.Add(1)
	var gotPayload string
	l.pattern["TCLK:*"] = []ListenerCallback{func(base, sub, payload string) {
		defer wg.Done()
		gotPayload = payload
	}}

	l.dispatch(&redis.Message{Channel: "TCLK:a", Pattern: "TCLK:*", Payload: "tick"})

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pattern callback never ran")
	}
	if gotPayload != "tick" {
		t.Errorf("payload = %q, want tick", gotPayload)
	}
}
