package radapter

import (
	"context"
	"testing"
)

// Scenario: AddSingle with an explicit Time passes that Time's wire ID straight through to
// XAdd, rather than always asking Redis to auto-assign one (§4.5).
func TestStreamAddSingleUsesExplicitID(t *testing.T) {
	driver := newFakeDriver()
	a := newTestAdapter(t, driver)

	var gotID string
	driver.xaddFunc = func(key, id string, values map[string]interface{}, trim int64) (string, Status) {
		gotID = id
		return id, StatusOK
	}

	s := StreamOf[int64](a, "temp")
	explicit := ParseID("42-3")
	if _, status := s.AddSingle(context.Background(), explicit, 7); status != StatusOK {
		t.Fatalf("AddSingle status = %v", status)
	}
	if gotID != "42-3" {
		t.Errorf("XAdd id = %q, want 42-3", gotID)
	}
}

// Scenario: AddSingle with a zero Time writes at the current wall-clock time (IDOrNow)
// rather than leaving the ID to Redis (§4.5).
func TestStreamAddSingleZeroTimeUsesNow(t *testing.T) {
	driver := newFakeDriver()
	a := newTestAdapter(t, driver)

	var gotID string
	driver.xaddFunc = func(key, id string, values map[string]interface{}, trim int64) (string, Status) {
		gotID = id
		return "1-1", StatusOK
	}

	s := StreamOf[int64](a, "temp")
	before := NowTime()
	if _, status := s.AddSingle(context.Background(), Time{}, 7); status != StatusOK {
		t.Fatalf("AddSingle status = %v", status)
	}
	after := NowTime()
	if got := ParseID(gotID); !got.Valid() || got.Nanos < before.Nanos || got.Nanos > after.Nanos {
		t.Errorf("XAdd id = %q, want a current-time ID between %s and %s", gotID, before.ID(), after.ID())
	}
}

// Scenario: AddMany writes every entry in the batch, then trims exactly once to whichever
// is greater: the adapter's configured cap or the batch size (§4.5).
func TestStreamAddManyTrimsOnceToGreaterOfCapOrBatchSize(t *testing.T) {
	driver := newFakeDriver()
	a := newTestAdapter(t, driver)
	a.defaultTrim = 10

	var addCount, trimCount int
	var lastTrim int64
	driver.xaddFunc = func(key, id string, values map[string]interface{}, trim int64) (string, Status) {
		addCount++
		if trim != 0 {
			t.Errorf("per-entry XAdd should not carry its own trim, got %d", trim)
		}
		return id, StatusOK
	}
	driver.xtrimFunc = func(key string, maxLen int64) (int64, Status) {
		trimCount++
		lastTrim = maxLen
		return 0, StatusOK
	}

	s := StreamOf[int64](a, "temp")
	entries := make([]TimedValue[int64], 20)
	for i := range entries {
		entries[i] = TimedValue[int64]{At: Time{}, Value: int64(i)}
	}
	ids, status := s.AddMany(context.Background(), entries)
	if status != StatusOK {
		t.Fatalf("AddMany status = %v", status)
	}
	if len(ids) != 20 {
		t.Fatalf("len(ids) = %d, want 20", len(ids))
	}
	if addCount != 20 {
		t.Errorf("XAdd called %d times, want 20", addCount)
	}
	if trimCount != 1 {
		t.Errorf("XTrim called %d times, want exactly 1", trimCount)
	}
	if lastTrim != 20 {
		t.Errorf("trim cap = %d, want 20 (batch size exceeds the configured cap of 10)", lastTrim)
	}
}

// Scenario: AddMany stops at the first failing write but still issues the batch trim.
func TestStreamAddManyStopsAtFirstFailure(t *testing.T) {
	driver := newFakeDriver()
	a := newTestAdapter(t, driver)

	var addCount int
	driver.xaddFunc = func(key, id string, values map[string]interface{}, trim int64) (string, Status) {
		addCount++
		if addCount == 2 {
			return "", StatusDisconnected
		}
		return id, StatusOK
	}
	var trimmed bool
	driver.xtrimFunc = func(key string, maxLen int64) (int64, Status) {
		trimmed = true
		return 0, StatusOK
	}

	s := StreamOf[int64](a, "temp")
	entries := []TimedValue[int64]{{Value: 1}, {Value: 2}, {Value: 3}}
	ids, status := s.AddMany(context.Background(), entries)
	if status != StatusDisconnected {
		t.Fatalf("status = %v, want StatusDisconnected", status)
	}
	if len(ids) != 1 {
		t.Errorf("len(ids) = %d, want 1 (only the first write succeeded)", len(ids))
	}
	if addCount != 2 {
		t.Errorf("XAdd called %d times, want 2 (stop after the failing write)", addCount)
	}
	if !trimmed {
		t.Error("expected AddMany to still trim after a partial batch")
	}
}

// Scenario: AddMany on VectorStream, StringStream, and AttrStream all trim once to the
// batch size, mirroring the scalar Stream's behavior (§4.5).
func TestVectorStreamAddManyTrimsOnce(t *testing.T) {
	driver := newFakeDriver()
	a := newTestAdapter(t, driver)
	a.defaultTrim = 5

	var trimCount int
	var lastTrim int64
	driver.xtrimFunc = func(key string, maxLen int64) (int64, Status) {
		trimCount++
		lastTrim = maxLen
		return 0, StatusOK
	}

	s := VectorStreamOf[int32](a, "vec")
	entries := []TimedValue[[]int32]{
		{Value: []int32{1, 2}},
		{Value: []int32{3, 4}},
	}
	ids, status := s.AddMany(context.Background(), entries)
	if status != StatusOK || len(ids) != 2 {
		t.Fatalf("AddMany = %v, status %v", ids, status)
	}
	if trimCount != 1 || lastTrim != 5 {
		t.Errorf("trimCount=%d lastTrim=%d, want 1/5 (batch smaller than configured cap)", trimCount, lastTrim)
	}
}

func TestStringStreamAddManyTrimsOnce(t *testing.T) {
	driver := newFakeDriver()
	a := newTestAdapter(t, driver)
	a.defaultTrim = 1

	var trimCount int
	var lastTrim int64
	driver.xtrimFunc = func(key string, maxLen int64) (int64, Status) {
		trimCount++
		lastTrim = maxLen
		return 0, StatusOK
	}

	s := StringStreamOf(a, "str")
	entries := []TimedValue[string]{{Value: "a"}, {Value: "b"}, {Value: "c"}}
	ids, status := s.AddMany(context.Background(), entries)
	if status != StatusOK || len(ids) != 3 {
		t.Fatalf("AddMany = %v, status %v", ids, status)
	}
	if trimCount != 1 || lastTrim != 3 {
		t.Errorf("trimCount=%d lastTrim=%d, want 1/3 (batch exceeds configured cap of 1)", trimCount, lastTrim)
	}
}

func TestAttrStreamAddManyTrimsOnce(t *testing.T) {
	driver := newFakeDriver()
	a := newTestAdapter(t, driver)
	a.defaultTrim = 100

	var trimCount int
	var lastTrim int64
	driver.xtrimFunc = func(key string, maxLen int64) (int64, Status) {
		trimCount++
		lastTrim = maxLen
		return 0, StatusOK
	}

	s := AttrStreamOf(a, "attrs")
	entries := []TimedValue[map[string]string]{
		{Value: map[string]string{"a": "1"}},
		{Value: map[string]string{"b": "2"}},
	}
	ids, status := s.AddMany(context.Background(), entries)
	if status != StatusOK || len(ids) != 2 {
		t.Fatalf("AddMany = %v, status %v", ids, status)
	}
	if trimCount != 1 || lastTrim != 100 {
		t.Errorf("trimCount=%d lastTrim=%d, want 1/100 (batch smaller than configured cap)", trimCount, lastTrim)
	}
}
