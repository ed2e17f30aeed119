package radapter

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Entry pairs one raw stream entry's ID with its field map, undecoded (the codec layer
// interprets the conventional field).
type Entry struct {
	ID     string
	Fields map[string]string
}

// ReaderCallback receives every entry read for one subscribed key (decomposed into base,
// sub) in a single batch, per read cycle — not one call per entry — per §4.7.
type ReaderCallback func(base, sub string, entries []Entry)

type readerSub struct {
	base, sub string
	cb        ReaderCallback
}

type readerState int

const (
	stateAbsent readerState = iota
	stateStopped
	stateRunning
)

// readerInfo is the per-cluster-slot state: every subscribed key sharing that slot reads
// through one blocking XREAD, per §4.7 ("one blocking multi-key reader per slot").
type readerInfo struct {
	mu      sync.Mutex
	slot    int64
	cursors map[string]string // stream key -> cursor, "$" meaning "only new entries"
	subs    map[string]readerSub
	stopKey string
	state   readerState
	cancel  context.CancelFunc
	done    chan struct{}
}

// ReaderEngine owns one readerInfo per cluster slot currently subscribed, per §4.7.
type ReaderEngine struct {
	driver       Driver
	pool         *WorkerPool
	logger       *log.Logger
	blockTimeout time.Duration
	homeBase     string

	mu    sync.Mutex
	slots map[int64]*readerInfo

	deferred bool
}

// NewReaderEngine constructs an engine reading through driver, dispatching decoded entries
// onto pool, blocking up to blockTimeout per XREAD call. homeBase is used only to recognise
// (and reject) schema keys passed to AddGenericReader.
func NewReaderEngine(driver Driver, pool *WorkerPool, blockTimeout time.Duration, homeBase string, logger *log.Logger) *ReaderEngine {
	if logger == nil {
		logger = log.Default()
	}
	if blockTimeout <= 0 {
		blockTimeout = time.Second
	}
	return &ReaderEngine{driver: driver, pool: pool, blockTimeout: blockTimeout, homeBase: homeBase, logger: logger, slots: make(map[int64]*readerInfo)}
}

// SetDeferred toggles deferred mode. Setting it stops every running slot reader, and while
// it is set AddReader only registers the subscription; clearing it starts every configured
// slot — useful for bulk registration without restarting a reader on every add.
func (e *ReaderEngine) SetDeferred(deferred bool) {
	e.mu.Lock()
	e.deferred = deferred
	e.mu.Unlock()
	if deferred {
		e.Stop()
	} else {
		e.StartAll(context.Background())
	}
}

// StartAll starts every slot reader not already running. Used to release readers
// registered while SetDeferred(true) was in effect.
func (e *ReaderEngine) StartAll(ctx context.Context) {
	e.mu.Lock()
	infos := make([]*readerInfo, 0, len(e.slots))
	for _, info := range e.slots {
		infos = append(infos, info)
	}
	e.mu.Unlock()
	for _, info := range infos {
		e.startSlot(ctx, info)
	}
}

// AddReader subscribes cb to the stream key for (base, sub), grouping it under whichever
// slot that key hashes to and starting (or restarting) that slot's blocking reader unless
// the engine is in deferred mode.
func (e *ReaderEngine) AddReader(ctx context.Context, base, sub string, cb ReaderCallback) error {
	if err := ValidateBase(base); err != nil {
		return err
	}
	key := BuildKey(base, StubStream, sub)
	return e.addReader(ctx, key, BuildKey(base, StubStop, uuid.NewString()), readerSub{base: base, sub: sub, cb: cb})
}

// AddGenericReader registers cb on key directly, bypassing the base/sub/stub schema
// entirely, per §4.7.1. key must not be a recognised schema key under the engine's home
// base; the callback receives key itself as both base and sub, and the raw attribute map
// rather than a decoded payload.
func (e *ReaderEngine) AddGenericReader(ctx context.Context, key string, cb ReaderCallback) error {
	if base, _ := Split(key, e.homeBase); base != "" {
		return errGenericReaderSchemaKey{key: key}
	}
	return e.addReader(ctx, key, BuildKey(key, StubStop, uuid.NewString()), readerSub{base: key, sub: key, cb: cb})
}

// addReader is the shared add path for AddReader and AddGenericReader: it always stops the
// slot's existing reader (if running) before mutating its subscription table, per §4.7 step
// 2, then (re)starts it unless the engine is in deferred mode.
func (e *ReaderEngine) addReader(ctx context.Context, key, newStopKey string, sub readerSub) error {
	slot, status := e.driver.KeySlot(ctx, key)
	if status != StatusOK {
		return errDriverStatus{op: "KEYSLOT", status: status}
	}

	e.mu.Lock()
	info, ok := e.slots[slot]
	if !ok {
		// A random suffix on the stop key avoids colliding with a stale stop entry still
		// in flight from a slot that was just torn down and immediately rebuilt.
		info = &readerInfo{
			slot:    slot,
			cursors: make(map[string]string),
			subs:    make(map[string]readerSub),
			stopKey: newStopKey,
			state:   stateStopped,
		}
		e.slots[slot] = info
	}
	deferred := e.deferred
	e.mu.Unlock()

	e.stopSlot(info)

	info.mu.Lock()
	info.cursors[key] = "$"
	info.subs[key] = sub
	info.mu.Unlock()

	if deferred {
		return nil
	}
	e.startSlot(ctx, info)
	return nil
}

// RemoveReader drops the subscription for (base, sub). If it was the last subscription on
// its slot, the slot's reader is stopped entirely.
func (e *ReaderEngine) RemoveReader(ctx context.Context, base, sub string) {
	e.removeReaderKey(BuildKey(base, StubStream, sub))
}

// RemoveGenericReader drops the subscription registered on the raw key by AddGenericReader.
func (e *ReaderEngine) RemoveGenericReader(ctx context.Context, key string) {
	e.removeReaderKey(key)
}

func (e *ReaderEngine) removeReaderKey(key string) {
	e.mu.Lock()
	var target *readerInfo
	for _, info := range e.slots {
		info.mu.Lock()
		if _, ok := info.subs[key]; ok {
			target = info
		}
		info.mu.Unlock()
		if target != nil {
			break
		}
	}
	e.mu.Unlock()
	if target == nil {
		return
	}

	target.mu.Lock()
	delete(target.subs, key)
	delete(target.cursors, key)
	empty := len(target.subs) == 0
	target.mu.Unlock()

	if empty {
		e.stopSlot(target)
		e.mu.Lock()
		delete(e.slots, target.slot)
		e.mu.Unlock()
	}
}

type errGenericReaderSchemaKey struct{ key string }

func (e errGenericReaderSchemaKey) Error() string {
	return "radapter: generic reader key " + e.key + " is a recognised schema key"
}

func (e *ReaderEngine) startSlot(ctx context.Context, info *readerInfo) {
	info.mu.Lock()
	if info.state == stateRunning {
		info.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(context.Background())
	info.cancel = cancel
	info.done = make(chan struct{})
	info.state = stateRunning
	info.mu.Unlock()

	go e.runSlot(runCtx, info)
}

func (e *ReaderEngine) stopSlot(info *readerInfo) {
	info.mu.Lock()
	if info.state != stateRunning {
		info.mu.Unlock()
		return
	}
	stopKey := info.stopKey
	cancel := info.cancel
	done := info.done
	info.mu.Unlock()

	// Publish a single throwaway entry to the stop key so the blocking XREAD, which is
	// also reading the stop key, returns immediately instead of waiting out the block
	// timeout.
	_, _ = e.driver.XAdd(context.Background(), stopKey, "*", map[string]interface{}{DefaultField: []byte{0}}, 1)
	cancel()
	<-done

	info.mu.Lock()
	info.state = stateStopped
	info.mu.Unlock()
}

// Stop halts every running slot reader.
func (e *ReaderEngine) Stop() {
	e.mu.Lock()
	infos := make([]*readerInfo, 0, len(e.slots))
	for _, info := range e.slots {
		infos = append(infos, info)
	}
	e.mu.Unlock()
	for _, info := range infos {
		e.stopSlot(info)
	}
}

// Restore stops and restarts every slot reader from its last cursor table, called by the
// reconnect supervisor after a successful reconnect (§4.8).
func (e *ReaderEngine) Restore(ctx context.Context) {
	e.mu.Lock()
	infos := make([]*readerInfo, 0, len(e.slots))
	for _, info := range e.slots {
		infos = append(infos, info)
	}
	e.mu.Unlock()
	for _, info := range infos {
		e.stopSlot(info)
		e.startSlot(ctx, info)
	}
}

func (e *ReaderEngine) runSlot(ctx context.Context, info *readerInfo) {
	defer close(info.done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		info.mu.Lock()
		streams := make([]string, 0, len(info.cursors))
		ids := make([]string, 0, len(info.cursors))
		for key, cursor := range info.cursors {
			streams = append(streams, key)
			ids = append(ids, cursor)
		}
		stopKey := info.stopKey
		info.mu.Unlock()

		if len(streams) == 0 {
			return
		}
		streams = append(streams, stopKey)
		ids = append(ids, "$")

		res, status := e.driver.XReadMultiBlock(ctx, streams, ids, e.blockTimeout)
		if status == StatusDisconnected {
			e.logger.Warn("stream reader lost connection", "slot", info.slot)
			return
		}
		if status != StatusOK {
			continue
		}

		e.applyBatch(info, stopKey, res)
	}
}

// applyBatch updates cursors and dispatches decoded entries for one XREAD result,
// including the first-ID synchronisation of §4.7: once any key in the slot resolves its
// "$" sentinel to a real ID, every key still waiting on "$" is rewritten to that same ID so
// no entry added between resolution and the next loop iteration is skipped.
func (e *ReaderEngine) applyBatch(info *readerInfo, stopKey string, res []redis.XStream) {
	var firstNewID string

	info.mu.Lock()
	for _, stream := range res {
		if len(stream.Messages) == 0 {
			continue
		}
		last := stream.Messages[len(stream.Messages)-1]
		info.cursors[stream.Stream] = last.ID
		if firstNewID == "" {
			firstNewID = stream.Messages[0].ID
		}
	}
	if firstNewID != "" {
		for key, cursor := range info.cursors {
			if cursor == "$" {
				info.cursors[key] = firstNewID
			}
		}
	}
	subsSnapshot := make(map[string]readerSub, len(info.subs))
	for k, v := range info.subs {
		subsSnapshot[k] = v
	}
	info.mu.Unlock()

	for _, stream := range res {
		if stream.Stream == stopKey || len(stream.Messages) == 0 {
			continue
		}
		sub, ok := subsSnapshot[stream.Stream]
		if !ok {
			continue
		}
		entries := make([]Entry, len(stream.Messages))
		for i, msg := range stream.Messages {
			entries[i] = Entry{ID: msg.ID, Fields: stringifyFields(msg.Values)}
		}
		sub := sub
		e.pool.Submit(stream.Stream, func() { sub.cb(sub.base, sub.sub, entries) })
	}
}

func stringifyFields(values map[string]interface{}) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		switch tv := v.(type) {
		case string:
			out[k] = tv
		case []byte:
			out[k] = string(tv)
		default:
			out[k] = ""
		}
	}
	return out
}

type errDriverStatus struct {
	op     string
	status Status
}

func (e errDriverStatus) Error() string {
	return "radapter: " + e.op + " returned " + e.status.String()
}
