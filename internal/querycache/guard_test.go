package querycache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeSlotStore records guard interactions with durable storage.
type fakeSlotStore struct {
	mu      sync.Mutex
	slots   map[string][]byte
	puts    int
	deletes int
	putErr  error
}

func newFakeSlotStore() *fakeSlotStore {
	return &fakeSlotStore{slots: make(map[string][]byte)}
}

func (f *fakeSlotStore) Put(ctx context.Context, slot string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.putErr != nil {
		return f.putErr
	}
	f.slots[slot] = append([]byte(nil), value...)
	return nil
}

func (f *fakeSlotStore) Get(ctx context.Context, slot string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.slots[slot]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), value...), nil
}

func (f *fakeSlotStore) Delete(ctx context.Context, slot string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	delete(f.slots, slot)
	return nil
}

func TestSnapshotExcludesDenylistedKeys(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache()
	store := newFakeSlotStore()
	guard := NewGuard(cache, store, Policy{
		Denylist: []Key{{"recipes"}, {"me"}},
	})

	cache.Set(Key{"recipes"}, json.RawMessage(`{"big":"collection"}`))
	cache.Set(Key{"recipes", "42"}, json.RawMessage(`{"id":"42"}`))
	cache.Set(Key{"me"}, json.RawMessage(`{"user":"session"}`))
	cache.Set(Key{"meal-plan", "2026-03-02"}, json.RawMessage(`{"days":[]}`))

	guard.Snapshot(ctx)

	blob := store.slots[snapshotSlot]
	if blob == nil {
		t.Fatal("Expected a snapshot to be written")
	}

	var entries []Entry
	if err := json.Unmarshal(blob, &entries); err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected only non-denylisted entries in snapshot, got %d", len(entries))
	}
	if entries[0].Key.String() != (Key{"meal-plan", "2026-03-02"}).String() {
		t.Errorf("Expected the meal plan entry, got %v", entries[0].Key)
	}
}

func TestSnapshotSkipsOversizedBlob(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache()
	store := newFakeSlotStore()
	guard := NewGuard(cache, store, Policy{MaxBytes: 64})

	big := make([]byte, 256)
	for i := range big {
		big[i] = 'x'
	}
	payload, _ := json.Marshal(string(big))
	cache.Set(Key{"meal-plan", "2026-03-02"}, payload)

	guard.Snapshot(ctx) // must neither write nor panic

	if store.puts != 0 {
		t.Errorf("Expected no write call for an oversized snapshot, got %d", store.puts)
	}
	if _, ok := store.slots[snapshotSlot]; ok {
		t.Error("Expected no snapshot slot after an oversized snapshot")
	}
}

func TestSnapshotWriteFailureRemovesPreviousSnapshot(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache()
	store := newFakeSlotStore()
	guard := NewGuard(cache, store, Policy{})

	cache.Set(Key{"meal-plan", "2026-03-02"}, json.RawMessage(`{"v":1}`))
	guard.Snapshot(ctx)
	if store.slots[snapshotSlot] == nil {
		t.Fatal("Expected an initial snapshot")
	}

	store.mu.Lock()
	store.putErr = errors.New("quota exceeded")
	store.mu.Unlock()

	cache.Set(Key{"meal-plan", "2026-03-02"}, json.RawMessage(`{"v":2}`))
	guard.Snapshot(ctx) // must not panic or propagate

	if store.deletes == 0 {
		t.Error("Expected the previous snapshot to be deleted after a write failure")
	}
	if _, ok := store.slots[snapshotSlot]; ok {
		t.Error("Expected no stale snapshot to survive a write failure")
	}
}

func TestRestorePreservesOriginalFetchTime(t *testing.T) {
	ctx := context.Background()

	// First session: cache an entry, snapshot it.
	cache, clock := newTestCache()
	store := newFakeSlotStore()
	guard := NewGuard(cache, store, Policy{})
	key := Key{"meal-plan", "2026-03-02"}
	cache.Set(key, json.RawMessage(`{"v":1}`))
	guard.Snapshot(ctx)

	// Second session, ten minutes later: restore into a fresh cache.
	restored, restoredClock := newTestCache()
	restoredClock.mu.Lock()
	restoredClock.t = clock.now().Add(10 * time.Minute)
	restoredClock.mu.Unlock()
	NewGuard(restored, store, Policy{}).Restore(ctx)

	entries := restored.Entries()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 restored entry, got %d", len(entries))
	}
	if !entries[0].FetchedAt.Equal(clock.now()) {
		t.Errorf("Expected original fetch time preserved, got %v", entries[0].FetchedAt)
	}

	// A 10-minute-old entry against a 5-minute window is immediately stale:
	// it is served at once and a background refetch fires.
	fetcher := &fakeFetcher{payload: json.RawMessage(`{"v":2}`)}
	payload, err := restored.Get(ctx, key, nil, fetcher.fetch)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if string(payload) != `{"v":1}` {
		t.Errorf("Expected the restored payload served immediately, got %s", payload)
	}
	waitForCalls(t, fetcher, 1)
}

func TestRestoreWithoutSnapshotIsColdStart(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache()
	store := newFakeSlotStore()

	NewGuard(cache, store, Policy{}).Restore(ctx)

	if got := len(cache.Entries()); got != 0 {
		t.Errorf("Expected a cold cache without a snapshot, got %d entries", got)
	}
}

func TestRestoreCorruptSnapshotStartsCold(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache()
	store := newFakeSlotStore()
	store.slots[snapshotSlot] = []byte(`{not json`)

	NewGuard(cache, store, Policy{}).Restore(ctx)

	if got := len(cache.Entries()); got != 0 {
		t.Errorf("Expected a cold cache after a corrupt snapshot, got %d entries", got)
	}
	if _, ok := store.slots[snapshotSlot]; ok {
		t.Error("Expected the corrupt snapshot to be removed")
	}
}
