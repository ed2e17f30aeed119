package radapter

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// TimedValue pairs a decoded stream value with the Time its entry ID round-trips to.
type TimedValue[V any] struct {
	At    Time
	Value V
}

// Stream is the typed scalar stream API of §4.5, bound to one sub-key under the adapter's
// home base. Go forbids parametrized methods on a non-generic receiver, so construction
// goes through the package-level StreamOf rather than a generic Adapter method.
type Stream[V Scalar] struct {
	a   *Adapter
	sub string
}

// StreamOf binds a typed scalar stream to sub under a's home base.
func StreamOf[V Scalar](a *Adapter, sub string) *Stream[V] {
	return &Stream[V]{a: a, sub: sub}
}

func (s *Stream[V]) key() string { return BuildKey(s.a.homeBase, StubStream, s.sub) }

// AddSingle appends one scalar value at at (or "now", if at is the zero Time), returning the
// ID Redis assigned it.
func (s *Stream[V]) AddSingle(ctx context.Context, at Time, v V) (Time, Status) {
	id, status := s.a.driver.XAdd(ctx, s.key(), at.IDOrNow(), map[string]interface{}{DefaultField: EncodeScalar(v)}, s.a.defaultTrim)
	s.a.reconnector.Trigger(status)
	if status != StatusOK {
		return Time{}, status
	}
	return ParseID(id), StatusOK
}

// AddMany appends every entry in order, each at its own Time (or "now", for a zero Time),
// stopping at the first failure. The stream is trimmed once after the whole batch, to
// whichever is greater: the adapter's default trim cap or the batch size, so a batch larger
// than the configured cap is never truncated mid-write.
func (s *Stream[V]) AddMany(ctx context.Context, entries []TimedValue[V]) ([]Time, Status) {
	key := s.key()
	out := make([]Time, 0, len(entries))
	status := StatusOK
	for _, tv := range entries {
		var id string
		id, status = s.a.driver.XAdd(ctx, key, tv.At.IDOrNow(), map[string]interface{}{DefaultField: EncodeScalar(tv.Value)}, 0)
		s.a.reconnector.Trigger(status)
		if status != StatusOK {
			break
		}
		out = append(out, ParseID(id))
	}
	trimBatch(ctx, s.a, key, len(entries))
	return out, status
}

// GetRange returns every entry with an ID in [from, to], oldest first. A zero Time for
// from or to is treated as "-" / "+" respectively (the full range).
func (s *Stream[V]) GetRange(ctx context.Context, from, to Time, count int64) ([]TimedValue[V], Status) {
	msgs, status := s.a.driver.XRange(ctx, s.key(), from.IDOrMin(), to.IDOrMax(), count)
	s.a.reconnector.Trigger(status)
	if status != StatusOK {
		return nil, status
	}
	return decodeScalarMessages[V](msgs), StatusOK
}

// GetRangeBefore returns up to count entries at or before before, oldest first.
func (s *Stream[V]) GetRangeBefore(ctx context.Context, before Time, count int64) ([]TimedValue[V], Status) {
	msgs, status := s.a.driver.XRevRange(ctx, s.key(), before.IDOrMax(), "-", count)
	s.a.reconnector.Trigger(status)
	if status != StatusOK {
		return nil, status
	}
	out := decodeScalarMessages[V](msgs)
	reverseTimedValues(out)
	return out, StatusOK
}

// GetSingleBefore returns the single most recent entry at or before before.
func (s *Stream[V]) GetSingleBefore(ctx context.Context, before Time) (TimedValue[V], bool, Status) {
	out, status := s.GetRangeBefore(ctx, before, 1)
	if status != StatusOK || len(out) == 0 {
		return TimedValue[V]{}, false, status
	}
	return out[0], true, StatusOK
}

func decodeScalarMessages[V Scalar](msgs []redis.XMessage) []TimedValue[V] {
	out := make([]TimedValue[V], 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values[DefaultField]
		if !ok {
			continue
		}
		b, ok := toBytes(raw)
		if !ok {
			continue
		}
		v, ok := DecodeScalar[V](b)
		if !ok {
			continue
		}
		out = append(out, TimedValue[V]{At: ParseID(m.ID), Value: v})
	}
	return out
}

func reverseTimedValues[V any](vs []TimedValue[V]) {
	for i, j := 0, len(vs)-1; i < j; i, j = i+1, j-1 {
		vs[i], vs[j] = vs[j], vs[i]
	}
}

// trimBatch applies the "greater of the configured cap or the batch size" trim rule shared
// by every typed stream's AddMany (§4.5).
func trimBatch(ctx context.Context, a *Adapter, key string, batchSize int) {
	trim := a.defaultTrim
	if n := int64(batchSize); n > trim {
		trim = n
	}
	if trim <= 0 {
		return
	}
	_, status := a.driver.XTrim(ctx, key, trim)
	a.reconnector.Trigger(status)
}

func toBytes(v interface{}) ([]byte, bool) {
	switch tv := v.(type) {
	case string:
		return []byte(tv), true
	case []byte:
		return tv, true
	default:
		return nil, false
	}
}

// VectorStream is the typed vector stream API: each entry's default field holds a
// concatenation of fixed-width elements (§4.4).
type VectorStream[V Scalar] struct {
	a   *Adapter
	sub string
}

// VectorStreamOf binds a typed vector stream to sub under a's home base.
func VectorStreamOf[V Scalar](a *Adapter, sub string) *VectorStream[V] {
	return &VectorStream[V]{a: a, sub: sub}
}

func (s *VectorStream[V]) key() string { return BuildKey(s.a.homeBase, StubStream, s.sub) }

func (s *VectorStream[V]) AddSingle(ctx context.Context, at Time, values []V) (Time, Status) {
	id, status := s.a.driver.XAdd(ctx, s.key(), at.IDOrNow(), map[string]interface{}{DefaultField: EncodeVector(values)}, s.a.defaultTrim)
	s.a.reconnector.Trigger(status)
	if status != StatusOK {
		return Time{}, status
	}
	return ParseID(id), StatusOK
}

// AddMany appends every vector entry in order, each at its own Time, trimming once after the
// whole batch (§4.5).
func (s *VectorStream[V]) AddMany(ctx context.Context, entries []TimedValue[[]V]) ([]Time, Status) {
	key := s.key()
	out := make([]Time, 0, len(entries))
	status := StatusOK
	for _, tv := range entries {
		var id string
		id, status = s.a.driver.XAdd(ctx, key, tv.At.IDOrNow(), map[string]interface{}{DefaultField: EncodeVector(tv.Value)}, 0)
		s.a.reconnector.Trigger(status)
		if status != StatusOK {
			break
		}
		out = append(out, ParseID(id))
	}
	trimBatch(ctx, s.a, key, len(entries))
	return out, status
}

func (s *VectorStream[V]) GetRange(ctx context.Context, from, to Time, count int64) ([]TimedValue[[]V], Status) {
	msgs, status := s.a.driver.XRange(ctx, s.key(), from.IDOrMin(), to.IDOrMax(), count)
	s.a.reconnector.Trigger(status)
	if status != StatusOK {
		return nil, status
	}
	out := make([]TimedValue[[]V], 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values[DefaultField]
		if !ok {
			continue
		}
		b, ok := toBytes(raw)
		if !ok {
			continue
		}
		values := DecodeVector[V](b)
		if len(values) == 0 {
			continue
		}
		out = append(out, TimedValue[[]V]{At: ParseID(m.ID), Value: values})
	}
	return out, StatusOK
}

func (s *VectorStream[V]) GetSingleBefore(ctx context.Context, before Time) (TimedValue[[]V], bool, Status) {
	msgs, status := s.a.driver.XRevRange(ctx, s.key(), before.IDOrMax(), "-", 1)
	s.a.reconnector.Trigger(status)
	if status != StatusOK || len(msgs) == 0 {
		return TimedValue[[]V]{}, false, status
	}
	m := msgs[0]
	raw, ok := m.Values[DefaultField]
	if !ok {
		return TimedValue[[]V]{}, false, StatusLogicalFailure
	}
	b, ok := toBytes(raw)
	if !ok {
		return TimedValue[[]V]{}, false, StatusLogicalFailure
	}
	return TimedValue[[]V]{At: ParseID(m.ID), Value: DecodeVector[V](b)}, true, StatusOK
}

// StringStream is the typed string stream API: not generic, since the codec's string kind
// has no element width to parametrize over (§4.4).
type StringStream struct {
	a   *Adapter
	sub string
}

// StringStreamOf binds a typed string stream to sub under a's home base.
func StringStreamOf(a *Adapter, sub string) *StringStream {
	return &StringStream{a: a, sub: sub}
}

func (s *StringStream) key() string { return BuildKey(s.a.homeBase, StubStream, s.sub) }

func (s *StringStream) AddSingle(ctx context.Context, at Time, v string) (Time, Status) {
	id, status := s.a.driver.XAdd(ctx, s.key(), at.IDOrNow(), map[string]interface{}{DefaultField: EncodeString(v)}, s.a.defaultTrim)
	s.a.reconnector.Trigger(status)
	if status != StatusOK {
		return Time{}, status
	}
	return ParseID(id), StatusOK
}

// AddMany appends every string entry in order, each at its own Time, trimming once after the
// whole batch (§4.5).
func (s *StringStream) AddMany(ctx context.Context, entries []TimedValue[string]) ([]Time, Status) {
	key := s.key()
	out := make([]Time, 0, len(entries))
	status := StatusOK
	for _, tv := range entries {
		var id string
		id, status = s.a.driver.XAdd(ctx, key, tv.At.IDOrNow(), map[string]interface{}{DefaultField: EncodeString(tv.Value)}, 0)
		s.a.reconnector.Trigger(status)
		if status != StatusOK {
			break
		}
		out = append(out, ParseID(id))
	}
	trimBatch(ctx, s.a, key, len(entries))
	return out, status
}

func (s *StringStream) GetRangeBefore(ctx context.Context, before Time, count int64) ([]TimedValue[string], Status) {
	msgs, status := s.a.driver.XRevRange(ctx, s.key(), before.IDOrMax(), "-", count)
	s.a.reconnector.Trigger(status)
	if status != StatusOK {
		return nil, status
	}
	out := make([]TimedValue[string], 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values[DefaultField]
		if !ok {
			continue
		}
		out = append(out, TimedValue[string]{At: ParseID(m.ID), Value: stringifyValue(raw)})
	}
	reverseTimedValues(out)
	return out, StatusOK
}

// AttrStream is the typed attribute-map stream API: every field but the default one is
// part of the payload (§4.4), so entries are written directly rather than through the
// single conventional field.
type AttrStream struct {
	a   *Adapter
	sub string
}

// AttrStreamOf binds a typed attribute-map stream to sub under a's home base.
func AttrStreamOf(a *Adapter, sub string) *AttrStream {
	return &AttrStream{a: a, sub: sub}
}

func (s *AttrStream) key() string { return BuildKey(s.a.homeBase, StubStream, s.sub) }

func (s *AttrStream) AddSingle(ctx context.Context, at Time, attrs map[string]string) (Time, Status) {
	values := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		values[k] = v
	}
	id, status := s.a.driver.XAdd(ctx, s.key(), at.IDOrNow(), values, s.a.defaultTrim)
	s.a.reconnector.Trigger(status)
	if status != StatusOK {
		return Time{}, status
	}
	return ParseID(id), StatusOK
}

// AddMany appends every attribute-map entry in order, each at its own Time, trimming once
// after the whole batch (§4.5).
func (s *AttrStream) AddMany(ctx context.Context, entries []TimedValue[map[string]string]) ([]Time, Status) {
	key := s.key()
	out := make([]Time, 0, len(entries))
	status := StatusOK
	for _, tv := range entries {
		values := make(map[string]interface{}, len(tv.Value))
		for k, v := range tv.Value {
			values[k] = v
		}
		var id string
		id, status = s.a.driver.XAdd(ctx, key, tv.At.IDOrNow(), values, 0)
		s.a.reconnector.Trigger(status)
		if status != StatusOK {
			break
		}
		out = append(out, ParseID(id))
	}
	trimBatch(ctx, s.a, key, len(entries))
	return out, status
}

func (s *AttrStream) GetSingleBefore(ctx context.Context, before Time) (TimedValue[map[string]string], bool, Status) {
	msgs, status := s.a.driver.XRevRange(ctx, s.key(), before.IDOrMax(), "-", 1)
	s.a.reconnector.Trigger(status)
	if status != StatusOK || len(msgs) == 0 {
		return TimedValue[map[string]string]{}, false, status
	}
	m := msgs[0]
	return TimedValue[map[string]string]{At: ParseID(m.ID), Value: AttrsFromValues(m.Values)}, true, StatusOK
}
