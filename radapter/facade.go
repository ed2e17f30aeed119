package radapter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

// Options are the external connection options consumed from configuration (spec §6): a
// Unix socket path or host/port, credentials, timeout, and pool size. The Unix socket
// path, when present, takes precedence over host/port/cluster addresses.
type Options struct {
	UnixSocket    string
	Host          string
	Port          int
	ClusterAddrs  []string
	Username      string
	Password      string
	Timeout       time.Duration
	PoolSize      int
	PreferCluster bool
}

func (o Options) dialTimeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return 3 * time.Second
}

// Driver is the narrow contract the stream/subscription engine depends on, rather than on
// *Facade directly — the corpus's own pattern (see the redis-streams transport's `client
// interface`) for making engine logic unit-testable against a fake without a live server.
type Driver interface {
	Ping(ctx context.Context) Status
	Del(ctx context.Context, keys ...string) (int64, Status)
	Exists(ctx context.Context, keys ...string) (int64, Status)
	KeySlot(ctx context.Context, key string) (int64, Status)
	Copy(ctx context.Context, src, dst string, replace bool) (bool, Status)
	Rename(ctx context.Context, src, dst string) Status
	Time(ctx context.Context) (time.Time, Status)
	XRange(ctx context.Context, key, start, stop string, count int64) ([]redis.XMessage, Status)
	XRevRange(ctx context.Context, key, start, stop string, count int64) ([]redis.XMessage, Status)
	XReadMultiBlock(ctx context.Context, streams, ids []string, block time.Duration) ([]redis.XStream, Status)
	XAdd(ctx context.Context, key, id string, values map[string]interface{}, trim int64) (string, Status)
	XTrim(ctx context.Context, key string, maxLen int64) (int64, Status)
	HExists(ctx context.Context, key, field string) (bool, Status)
	HSet(ctx context.Context, key string, values map[string]interface{}) (int64, Status)
	HExpire(ctx context.Context, key string, ttl time.Duration, fields ...string) ([]int64, Status)
	HKeys(ctx context.Context, key string) ([]string, Status)
	Publish(ctx context.Context, channel, message string) (int64, Status)
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
	PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub
	Close() error
}

// Facade is the tagged-union driver façade of §4.3: it holds at most one of a single-node
// or cluster client and dispatches every operation to whichever is non-nil, replacing the
// original's inheritance-based abstract interface with a single concrete type.
type Facade struct {
	mu      sync.RWMutex
	single  *redis.Client
	cluster *redis.ClusterClient
	logger  *log.Logger

	hexpireUnsupported atomic.Bool
}

var _ Driver = (*Facade)(nil)

// NewFacade connects. When cluster mode is requested (PreferCluster or ClusterAddrs) and no
// Unix socket is set, it tries the cluster constructor first and falls back to the
// single-node constructor on any failure (including ping failure); otherwise it connects
// single-node directly without trying the cluster constructor.
func NewFacade(ctx context.Context, opts Options, logger *log.Logger) (*Facade, error) {
	if logger == nil {
		logger = log.Default()
	}
	f := &Facade{logger: logger}
	if err := f.connect(ctx, opts); err != nil {
		return nil, err
	}
	return f, nil
}

// Reconnect tears down the current driver handle and reconnects, using the same
// fallback policy as construction. Invoked by the reconnect supervisor (§4.8).
func (f *Facade) Reconnect(ctx context.Context, opts Options) error {
	f.mu.Lock()
	single, cluster := f.single, f.cluster
	f.mu.Unlock()
	if single != nil {
		_ = single.Close()
	}
	if cluster != nil {
		_ = cluster.Close()
	}
	return f.connect(ctx, opts)
}

func (f *Facade) connect(ctx context.Context, opts Options) error {
	timeout := opts.dialTimeout()

	wantCluster := opts.UnixSocket == "" && (opts.PreferCluster || len(opts.ClusterAddrs) > 0)
	if wantCluster {
		addrs := opts.ClusterAddrs
		if len(addrs) == 0 && opts.Host != "" {
			addrs = []string{fmt.Sprintf("%s:%d", opts.Host, opts.Port)}
		}
		cc := redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:       addrs,
			Username:    opts.Username,
			Password:    opts.Password,
			DialTimeout: timeout,
			PoolSize:    opts.PoolSize,
		})
		pctx, cancel := context.WithTimeout(ctx, timeout)
		err := cc.Ping(pctx).Err()
		cancel()
		if err == nil {
			f.mu.Lock()
			f.cluster, f.single = cc, nil
			f.mu.Unlock()
			return nil
		}
		f.logger.Warn("cluster connect failed, falling back to single-node driver", "error", err)
		_ = cc.Close()
	}

	ro := &redis.Options{
		Username:    opts.Username,
		Password:    opts.Password,
		DialTimeout: timeout,
		PoolSize:    opts.PoolSize,
	}
	if opts.UnixSocket != "" {
		ro.Network = "unix"
		ro.Addr = opts.UnixSocket
	} else {
		ro.Network = "tcp"
		ro.Addr = fmt.Sprintf("%s:%d", opts.Host, opts.Port)
	}
	c := redis.NewClient(ro)
	pctx, cancel := context.WithTimeout(ctx, timeout)
	err := c.Ping(pctx).Err()
	cancel()
	if err != nil {
		_ = c.Close()
		return fmt.Errorf("radapter: redis connect: %w", err)
	}
	f.mu.Lock()
	f.single, f.cluster = c, nil
	f.mu.Unlock()
	return nil
}

func (f *Facade) cmd() redis.Cmdable {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.cluster != nil {
		return f.cluster
	}
	return f.single
}

type subscribable interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
	PSubscribe(ctx context.Context, channels ...string) *redis.PubSub
}

func (f *Facade) subscribable() subscribable {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.cluster != nil {
		return f.cluster
	}
	return f.single
}

// Close releases the underlying driver handle.
func (f *Facade) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cluster != nil {
		return f.cluster.Close()
	}
	if f.single != nil {
		return f.single.Close()
	}
	return nil
}

func isUnsupportedCommand(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unknown command")
}

func isCrossSlotErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "CROSSSLOT")
}

// classify logs driver errors once at the facade boundary and collapses them into the
// three main outcome classes (§4.3, §7). redis.Nil ("key not found" / empty range) is a
// logical failure, not an error; an error reply from the server is logged and reported as
// a logical failure; everything else (network and client-side errors) is treated as a lost
// connection, which lets the reconnect supervisor make forward progress.
func (f *Facade) classify(op string, err error) Status {
	if err == nil {
		return StatusOK
	}
	if errors.Is(err, redis.Nil) {
		return StatusLogicalFailure
	}
	if isUnsupportedCommand(err) {
		return StatusUnsupported
	}
	var replyErr redis.Error
	if errors.As(err, &replyErr) {
		f.logger.Error("redis command failed", "op", op, "error", err)
		return StatusLogicalFailure
	}
	f.logger.Error("redis command failed", "op", op, "error", err)
	return StatusDisconnected
}

func (f *Facade) Ping(ctx context.Context) Status {
	err := f.cmd().Ping(ctx).Err()
	return f.classify("PING", err)
}

func (f *Facade) Del(ctx context.Context, keys ...string) (int64, Status) {
	n, err := f.cmd().Del(ctx, keys...).Result()
	return n, f.classify("DEL", err)
}

func (f *Facade) Exists(ctx context.Context, keys ...string) (int64, Status) {
	n, err := f.cmd().Exists(ctx, keys...).Result()
	return n, f.classify("EXISTS", err)
}

// KeySlot returns 0 for a single-node driver (spec: "slot 0 for single-node is valid").
func (f *Facade) KeySlot(ctx context.Context, key string) (int64, Status) {
	f.mu.RLock()
	cluster := f.cluster
	f.mu.RUnlock()
	if cluster == nil {
		return 0, StatusOK
	}
	slot, err := cluster.ClusterKeySlot(ctx, key).Result()
	return slot, f.classify("CLUSTER KEYSLOT", err)
}

func (f *Facade) Copy(ctx context.Context, src, dst string, replace bool) (bool, Status) {
	n, err := f.cmd().Copy(ctx, src, dst, 0, replace).Result()
	if isCrossSlotErr(err) {
		return false, StatusCrossSlot
	}
	return n == 1, f.classify("COPY", err)
}

func (f *Facade) Rename(ctx context.Context, src, dst string) Status {
	err := f.cmd().Rename(ctx, src, dst).Err()
	return f.classify("RENAME", err)
}

func (f *Facade) Time(ctx context.Context) (time.Time, Status) {
	t, err := f.cmd().Time(ctx).Result()
	return t, f.classify("TIME", err)
}

func (f *Facade) XRange(ctx context.Context, key, start, stop string, count int64) ([]redis.XMessage, Status) {
	var msgs []redis.XMessage
	var err error
	if count > 0 {
		msgs, err = f.cmd().XRangeN(ctx, key, start, stop, count).Result()
	} else {
		msgs, err = f.cmd().XRange(ctx, key, start, stop).Result()
	}
	return msgs, f.classify("XRANGE", err)
}

func (f *Facade) XRevRange(ctx context.Context, key, start, stop string, count int64) ([]redis.XMessage, Status) {
	var msgs []redis.XMessage
	var err error
	if count > 0 {
		msgs, err = f.cmd().XRevRangeN(ctx, key, start, stop, count).Result()
	} else {
		msgs, err = f.cmd().XRevRange(ctx, key, start, stop).Result()
	}
	return msgs, f.classify("XREVRANGE", err)
}

// XReadMultiBlock blocks up to block across multiple (key,id) pairs. A driver timeout
// (redis.Nil) is treated as success with an empty result, per §4.3.
func (f *Facade) XReadMultiBlock(ctx context.Context, streams, ids []string, block time.Duration) ([]redis.XStream, Status) {
	args := make([]string, 0, len(streams)+len(ids))
	args = append(args, streams...)
	args = append(args, ids...)
	res, err := f.cmd().XRead(ctx, &redis.XReadArgs{Streams: args, Block: block}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, StatusOK
		}
		return nil, f.classify("XREAD", err)
	}
	return res, StatusOK
}

func (f *Facade) XAdd(ctx context.Context, key, id string, values map[string]interface{}, trim int64) (string, Status) {
	args := &redis.XAddArgs{Stream: key, ID: id, Values: values}
	if trim > 0 {
		args.MaxLen = trim
		args.Approx = true
	}
	resID, err := f.cmd().XAdd(ctx, args).Result()
	return resID, f.classify("XADD", err)
}

func (f *Facade) XTrim(ctx context.Context, key string, maxLen int64) (int64, Status) {
	n, err := f.cmd().XTrimMaxLenApprox(ctx, key, maxLen, 0).Result()
	return n, f.classify("XTRIM", err)
}

func (f *Facade) HExists(ctx context.Context, key, field string) (bool, Status) {
	ok, err := f.cmd().HExists(ctx, key, field).Result()
	return ok, f.classify("HEXISTS", err)
}

func (f *Facade) HSet(ctx context.Context, key string, values map[string]interface{}) (int64, Status) {
	n, err := f.cmd().HSet(ctx, key, values).Result()
	return n, f.classify("HSET", err)
}

// HExpire returns StatusUnsupported (cached) if the server lacks HEXPIRE (Redis < 7.4).
func (f *Facade) HExpire(ctx context.Context, key string, ttl time.Duration, fields ...string) ([]int64, Status) {
	if f.hexpireUnsupported.Load() {
		return nil, StatusUnsupported
	}
	res, err := f.cmd().HExpire(ctx, key, ttl, fields...).Result()
	if err != nil {
		if isUnsupportedCommand(err) {
			f.hexpireUnsupported.Store(true)
			return nil, StatusUnsupported
		}
		return nil, f.classify("HEXPIRE", err)
	}
	return res, StatusOK
}

func (f *Facade) HKeys(ctx context.Context, key string) ([]string, Status) {
	ks, err := f.cmd().HKeys(ctx, key).Result()
	return ks, f.classify("HKEYS", err)
}

func (f *Facade) Publish(ctx context.Context, channel, message string) (int64, Status) {
	n, err := f.cmd().Publish(ctx, channel, message).Result()
	return n, f.classify("PUBLISH", err)
}

func (f *Facade) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return f.subscribable().Subscribe(ctx, channels...)
}

func (f *Facade) PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub {
	return f.subscribable().PSubscribe(ctx, patterns...)
}
