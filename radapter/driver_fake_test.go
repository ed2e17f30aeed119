package radapter

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// fakeDriver is a bare in-memory stand-in for the Driver interface, letting engine logic
// (listener, reader, stream, watchdog) be exercised without a live Redis server — the same
// narrow-interface testability pattern the facade's Driver type is grounded on.
type fakeDriver struct {
	mu sync.Mutex

	pingStatus Status

	subscribeCalls  [][]string
	psubscribeCalls [][]string

	xreadFunc     func(ctx context.Context, streams, ids []string, block time.Duration) ([]redis.XStream, Status)
	xaddFunc      func(key, id string, values map[string]interface{}, trim int64) (string, Status)
	xrangeFunc    func(key, start, stop string, count int64) ([]redis.XMessage, Status)
	xrevrangeFunc func(key, start, stop string, count int64) ([]redis.XMessage, Status)
	xtrimFunc     func(key string, maxLen int64) (int64, Status)

	keySlots map[string]int64

	hexistsFunc func(key, field string) (bool, Status)
	hsetFunc    func(key string, values map[string]interface{}) (int64, Status)
	hexpireFunc func(key string, ttl time.Duration, fields ...string) ([]int64, Status)
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{keySlots: make(map[string]int64)}
}

var _ Driver = (*fakeDriver)(nil)

func (f *fakeDriver) Ping(ctx context.Context) Status { return f.pingStatus }

func (f *fakeDriver) Del(ctx context.Context, keys ...string) (int64, Status) {
	return int64(len(keys)), StatusOK
}

func (f *fakeDriver) Exists(ctx context.Context, keys ...string) (int64, Status) {
	return 0, StatusOK
}

func (f *fakeDriver) KeySlot(ctx context.Context, key string) (int64, Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keySlots[key], StatusOK
}

func (f *fakeDriver) Copy(ctx context.Context, src, dst string, replace bool) (bool, Status) {
	return true, StatusOK
}

func (f *fakeDriver) Rename(ctx context.Context, src, dst string) Status { return StatusOK }

func (f *fakeDriver) Time(ctx context.Context) (time.Time, Status) { return time.Time{}, StatusOK }

func (f *fakeDriver) XRange(ctx context.Context, key, start, stop string, count int64) ([]redis.XMessage, Status) {
	if f.xrangeFunc != nil {
		return f.xrangeFunc(key, start, stop, count)
	}
	return nil, StatusOK
}

func (f *fakeDriver) XRevRange(ctx context.Context, key, start, stop string, count int64) ([]redis.XMessage, Status) {
	if f.xrevrangeFunc != nil {
		return f.xrevrangeFunc(key, start, stop, count)
	}
	return nil, StatusOK
}

func (f *fakeDriver) XReadMultiBlock(ctx context.Context, streams, ids []string, block time.Duration) ([]redis.XStream, Status) {
	if f.xreadFunc != nil {
		return f.xreadFunc(ctx, streams, ids, block)
	}
	return nil, StatusOK
}

func (f *fakeDriver) XAdd(ctx context.Context, key, id string, values map[string]interface{}, trim int64) (string, Status) {
	if f.xaddFunc != nil {
		return f.xaddFunc(key, id, values, trim)
	}
	return "0-1", StatusOK
}

func (f *fakeDriver) XTrim(ctx context.Context, key string, maxLen int64) (int64, Status) {
	if f.xtrimFunc != nil {
		return f.xtrimFunc(key, maxLen)
	}
	return 0, StatusOK
}

func (f *fakeDriver) HExists(ctx context.Context, key, field string) (bool, Status) {
	if f.hexistsFunc != nil {
		return f.hexistsFunc(key, field)
	}
	return false, StatusOK
}

func (f *fakeDriver) HSet(ctx context.Context, key string, values map[string]interface{}) (int64, Status) {
	if f.hsetFunc != nil {
		return f.hsetFunc(key, values)
	}
	return int64(len(values)), StatusOK
}

func (f *fakeDriver) HExpire(ctx context.Context, key string, ttl time.Duration, fields ...string) ([]int64, Status) {
	if f.hexpireFunc != nil {
		return f.hexpireFunc(key, ttl, fields...)
	}
	res := make([]int64, len(fields))
	for i := range res {
		res[i] = 1
	}
	return res, StatusOK
}

func (f *fakeDriver) HKeys(ctx context.Context, key string) ([]string, Status) { return nil, StatusOK }

func (f *fakeDriver) Publish(ctx context.Context, channel, message string) (int64, Status) {
	return 1, StatusOK
}

func (f *fakeDriver) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	f.mu.Lock()
	f.subscribeCalls = append(f.subscribeCalls, channels)
	f.mu.Unlock()
	return nil
}

func (f *fakeDriver) PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub {
	f.mu.Lock()
	f.psubscribeCalls = append(f.psubscribeCalls, patterns)
	f.mu.Unlock()
	return nil
}

func (f *fakeDriver) Close() error { return nil }
