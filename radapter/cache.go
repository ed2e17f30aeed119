package radapter

import (
	"context"
	"sync"
)

// Cache is the double-buffered latest-vector cache of §4.10: a reader callback fills the
// currently idle buffer and flips which one is "current" under an exclusive lock; reads
// proceed under a shared lock and only ever touch the current buffer, so readers never
// observe a torn write.
type Cache[V Scalar] struct {
	a   *Adapter
	sub string

	mu      sync.RWMutex
	buffers [2][]V
	idx     int
	tw      Time
}

// NewCache constructs a cache over sub and registers a typed reader on it so every new
// entry refreshes the cached value.
func NewCache[V Scalar](ctx context.Context, a *Adapter, sub string) (*Cache[V], error) {
	c := &Cache[V]{a: a, sub: sub}
	if err := a.readers.AddReader(ctx, a.homeBase, sub, c.onEntry); err != nil {
		return nil, err
	}
	return c, nil
}

// onEntry applies every entry in the batch in order, so the cache ends up holding the
// latest one even though the reader delivers a whole read cycle's worth at once (§4.7).
func (c *Cache[V]) onEntry(base, sub string, entries []Entry) {
	if len(entries) == 0 {
		return
	}

	c.mu.Lock()
	for _, entry := range entries {
		values := DecodeVector[V]([]byte(entry.Fields[DefaultField]))
		idle := 1 - c.idx
		c.buffers[idle] = values
		c.idx = idle
		c.tw = ParseID(entry.ID)
	}
	c.mu.Unlock()
}

// ensureInit lazily seeds the cache from a single-at-or-before read the first time it is
// read before any entry has arrived through the reader callback.
func (c *Cache[V]) ensureInit(ctx context.Context) {
	c.mu.RLock()
	seeded := c.tw.Valid()
	c.mu.RUnlock()
	if seeded {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tw.Valid() {
		return // another goroutine won the race to seed it
	}
	stream := VectorStreamOf[V](c.a, c.sub)
	tv, ok, status := stream.GetSingleBefore(ctx, NowTime())
	if status == StatusOK && ok {
		c.buffers[c.idx] = tv.Value
		c.tw = tv.At
	}
}

// CopyNew returns a freshly-allocated copy of the current buffer and the Time it was
// written at.
func (c *Cache[V]) CopyNew(ctx context.Context) ([]V, Time, Status) {
	c.ensureInit(ctx)
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]V, len(c.buffers[c.idx]))
	copy(out, c.buffers[c.idx])
	return out, c.tw, StatusOK
}

// CopyInto copies the current buffer into dest starting at offset, returning the number of
// elements copied and the Time the buffer was written at.
func (c *Cache[V]) CopyInto(ctx context.Context, dest []V, offset int) (int, Time, Status) {
	c.ensureInit(ctx)
	c.mu.RLock()
	defer c.mu.RUnlock()
	if offset >= len(dest) {
		return 0, c.tw, StatusOK
	}
	n := copy(dest[offset:], c.buffers[c.idx])
	return n, c.tw, StatusOK
}

// CopySingle returns the current buffer's first element, for callers that know the
// published vector is always length one.
func (c *Cache[V]) CopySingle(ctx context.Context) (V, Time, bool, Status) {
	vs, tw, status := c.CopyNew(ctx)
	if status != StatusOK || len(vs) == 0 {
		var zero V
		return zero, Time{}, false, status
	}
	return vs[0], tw, true, StatusOK
}
