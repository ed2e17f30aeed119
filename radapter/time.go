package radapter

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NanosPerMilli converts a millisecond count to nanoseconds.
const NanosPerMilli = uint64(1_000_000)

// RemainderScale is the base used to pack the nanosecond remainder into the high digits
// of a stream ID's right-hand component, leaving the low digits for the sequence number.
const RemainderScale = uint64(10_000_000_000)

// Time is the adapter's time identifier: a pair of (nanoseconds since Unix epoch,
// per-millisecond sequence number) with a round-trip to a Redis stream ID string of the
// form "<ms>-<mixed>", mixed = (nanos mod 1e6)*RemainderScale + seq.
type Time struct {
	Nanos uint64
	Seq   uint64
}

// NewTime constructs a Time from its two components.
func NewTime(nanos, seq uint64) Time {
	return Time{Nanos: nanos, Seq: seq}
}

// NowTime returns the current wall-clock time as a Time with sequence zero.
func NowTime() Time {
	return Time{Nanos: uint64(time.Now().UnixNano()), Seq: 0}
}

// Valid reports whether either field is non-zero.
func (t Time) Valid() bool {
	return t.Nanos != 0 || t.Seq != 0
}

// ID formats t as a Redis stream ID string.
func (t Time) ID() string {
	ms := t.Nanos / NanosPerMilli
	remainder := t.Nanos % NanosPerMilli
	mixed := remainder*RemainderScale + t.Seq
	return fmt.Sprintf("%d-%d", ms, mixed)
}

// IDOrNow formats t, or the current time if t is invalid.
func (t Time) IDOrNow() string {
	if t.Valid() {
		return t.ID()
	}
	return NowTime().ID()
}

// IDOrMin formats t, or "-" (the smallest possible ID) if t is invalid.
func (t Time) IDOrMin() string {
	if t.Valid() {
		return t.ID()
	}
	return "-"
}

// IDOrMax formats t, or "+" (the largest possible ID) if t is invalid.
func (t Time) IDOrMax() string {
	if t.Valid() {
		return t.ID()
	}
	return "+"
}

// ParseID parses a Redis stream ID string of the form "<ms>-<mixed>" into a Time. A
// malformed ID silently becomes the invalid value (0, 0); inspect with Valid.
func ParseID(id string) Time {
	parts := strings.SplitN(id, "-", 2)
	if len(parts) != 2 {
		return Time{}
	}
	ms, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return Time{}
	}
	mixed, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return Time{}
	}
	return Time{
		Nanos: ms*NanosPerMilli + mixed/RemainderScale,
		Seq:   mixed % RemainderScale,
	}
}
