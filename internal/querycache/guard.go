package querycache

import (
	"context"
	"encoding/json"
	"log"
)

// snapshotSlot is the mirror slot holding the serialized cache snapshot.
const snapshotSlot = "query_cache_snapshot"

// SlotStore is the durable storage boundary the guard persists snapshots to.
type SlotStore interface {
	Put(ctx context.Context, slot string, value []byte) error
	Get(ctx context.Context, slot string) ([]byte, error)
	Delete(ctx context.Context, slot string) error
}

// Policy controls what the guard persists.
type Policy struct {
	// Denylist holds key prefixes that are never persisted: resources that
	// are cheap to refetch or unsafe to keep on disk.
	Denylist []Key
	// MaxBytes is the snapshot size ceiling. An oversized snapshot is
	// skipped entirely rather than written partially.
	MaxBytes int
}

// DefaultMaxSnapshotBytes bounds the serialized snapshot size.
const DefaultMaxSnapshotBytes = 256 * 1024

// Guard persists a filtered subset of the query cache across restarts.
// Persistence failures never propagate to callers; the worst outcome is a
// cold cache on the next launch.
type Guard struct {
	cache  *Cache
	store  SlotStore
	policy Policy
}

// NewGuard creates a Guard over a cache and a durable slot store.
func NewGuard(cache *Cache, store SlotStore, policy Policy) *Guard {
	if policy.MaxBytes <= 0 {
		policy.MaxBytes = DefaultMaxSnapshotBytes
	}
	return &Guard{cache: cache, store: store, policy: policy}
}

// Snapshot serializes the persistable cache entries to the slot store.
func (g *Guard) Snapshot(ctx context.Context) {
	entries := g.cache.Entries()
	kept := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if g.denied(entry.Key) {
			continue
		}
		kept = append(kept, entry)
	}

	if len(kept) == 0 {
		// Nothing worth persisting; drop any previous snapshot so a
		// restore cannot resurrect entries that were since evicted.
		if err := g.store.Delete(ctx, snapshotSlot); err != nil {
			log.Printf("Warning: failed to remove empty cache snapshot: %v", err)
		}
		return
	}

	blob, err := json.Marshal(kept)
	if err != nil {
		log.Printf("Warning: failed to serialize cache snapshot: %v", err)
		return
	}

	if len(blob) > g.policy.MaxBytes {
		log.Printf("Warning: cache snapshot of %d bytes exceeds ceiling of %d bytes, skipping write", len(blob), g.policy.MaxBytes)
		return
	}

	if err := g.store.Put(ctx, snapshotSlot, blob); err != nil {
		log.Printf("Warning: failed to persist cache snapshot: %v", err)
		// Remove the previous snapshot so the next restore does not load
		// stale or partially-written data.
		if derr := g.store.Delete(ctx, snapshotSlot); derr != nil {
			log.Printf("Warning: failed to remove previous cache snapshot: %v", derr)
		}
	}
}

// Restore seeds the cache from the persisted snapshot, preserving each
// entry's original fetch timestamp: a restored entry can be immediately
// stale and trigger a background refetch on first read.
func (g *Guard) Restore(ctx context.Context) {
	blob, err := g.store.Get(ctx, snapshotSlot)
	if err != nil {
		log.Printf("Warning: failed to read cache snapshot: %v", err)
		return
	}
	if blob == nil {
		return // no snapshot, cold start
	}

	var entries []Entry
	if err := json.Unmarshal(blob, &entries); err != nil {
		log.Printf("Warning: corrupt cache snapshot, starting cold: %v", err)
		if derr := g.store.Delete(ctx, snapshotSlot); derr != nil {
			log.Printf("Warning: failed to remove corrupt cache snapshot: %v", derr)
		}
		return
	}

	for _, entry := range entries {
		g.cache.Seed(entry)
	}
}

func (g *Guard) denied(key Key) bool {
	for _, prefix := range g.policy.Denylist {
		if key.HasPrefix(prefix) {
			return true
		}
	}
	return false
}
