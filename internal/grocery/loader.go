package grocery

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"mealmate/internal/metrics"
	"mealmate/internal/mirror"
)

// LoadState is the bootstrap state machine position.
type LoadState int

const (
	// StateLoading means an initial load attempt is in progress.
	StateLoading LoadState = iota
	// StateRemote means the published state came from the remote store.
	StateRemote
	// StateLocalFallback means the remote fetch failed and the published
	// state came from the durable local mirror.
	StateLocalFallback
)

func (s LoadState) String() string {
	switch s {
	case StateRemote:
		return "remote"
	case StateLocalFallback:
		return "local_fallback"
	default:
		return "loading"
	}
}

// Loader publishes the initial shared list state: remote first, local mirror
// as fallback. The server always wins at load time; on a successful remote
// fetch the mirror is overwritten unconditionally.
type Loader struct {
	remote  RemoteStore
	mirror  Mirror
	sync    *Synchronizer
	journal *metrics.Store

	mu      sync.Mutex
	state   LoadState
	loading bool
}

// NewLoader creates a Loader. The journal may be nil.
func NewLoader(remote RemoteStore, localMirror Mirror, synchronizer *Synchronizer, journal *metrics.Store) *Loader {
	return &Loader{
		remote:  remote,
		mirror:  localMirror,
		sync:    synchronizer,
		journal: journal,
		state:   StateLoading,
	}
}

// State returns the current bootstrap state.
func (l *Loader) State() LoadState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// IsLoading reports whether a load attempt is in progress. It is true only
// for the duration of an explicit Load or Refresh call.
func (l *Loader) IsLoading() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loading
}

// Load attempts a remote fetch of the shared document and publishes the
// result; on failure it publishes the mirror's last-known values instead.
// It never returns an error: total absence of both remote and local data
// yields empty defaults.
func (l *Loader) Load(ctx context.Context) LoadState {
	l.mu.Lock()
	l.loading = true
	l.state = StateLoading
	l.mu.Unlock()

	state := l.load(ctx)

	l.mu.Lock()
	l.state = state
	l.loading = false
	l.mu.Unlock()
	return state
}

// Refresh re-enters the loading state and runs another load attempt.
func (l *Loader) Refresh(ctx context.Context) LoadState {
	return l.Load(ctx)
}

func (l *Loader) load(ctx context.Context) LoadState {
	start := time.Now()
	doc, err := l.remote.FetchState(ctx)
	if err == nil && doc != nil {
		l.sync.Publish(doc.ListState)
		l.overwriteMirror(ctx, doc.ListState)
		l.record(start, metrics.OutcomeOK, "remote")
		return StateRemote
	}

	log.Printf("Warning: remote state fetch failed, falling back to local mirror: %v", err)
	l.sync.Publish(l.readMirror(ctx))
	l.record(start, metrics.OutcomeFailed, "local_fallback")
	return StateLocalFallback
}

// overwriteMirror replaces every mirror slot with the server document.
func (l *Loader) overwriteMirror(ctx context.Context, state ListState) {
	slots := []struct {
		name  string
		value interface{}
	}{
		{mirror.SlotCheckedItems, state.CheckedItems},
		{mirror.SlotCustomItems, state.CustomItems},
		{mirror.SlotSelectedEntries, state.SelectedEntries},
		{mirror.SlotEntryServings, state.EntryServings},
	}
	for _, slot := range slots {
		data, err := json.Marshal(slot.value)
		if err != nil {
			log.Printf("Warning: failed to encode mirror slot %s: %v", slot.name, err)
			continue
		}
		if err := l.mirror.Put(ctx, slot.name, data); err != nil {
			log.Printf("Warning: failed to overwrite mirror slot %s: %v", slot.name, err)
		}
	}
}

// readMirror assembles the last-persisted state from the mirror slots.
// Absent or unreadable slots degrade to empty defaults, never to an error.
func (l *Loader) readMirror(ctx context.Context) ListState {
	state := emptyState()
	readSlot(ctx, l.mirror, mirror.SlotCheckedItems, &state.CheckedItems)
	readSlot(ctx, l.mirror, mirror.SlotCustomItems, &state.CustomItems)
	readSlot(ctx, l.mirror, mirror.SlotSelectedEntries, &state.SelectedEntries)
	readSlot(ctx, l.mirror, mirror.SlotEntryServings, &state.EntryServings)
	return state
}

func readSlot[T any](ctx context.Context, m Mirror, slot string, dst *T) {
	data, err := m.Get(ctx, slot)
	if err != nil {
		log.Printf("Warning: failed to read mirror slot %s: %v", slot, err)
		return
	}
	if data == nil {
		return // never synced
	}
	if err := json.Unmarshal(data, dst); err != nil {
		log.Printf("Warning: failed to decode mirror slot %s: %v", slot, err)
	}
}

func (l *Loader) record(start time.Time, outcome, detail string) {
	event := metrics.SyncEvent{
		Kind:      metrics.KindBootstrap,
		Outcome:   outcome,
		Detail:    detail,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err := l.journal.Record(event); err != nil {
		log.Printf("Warning: failed to record sync event: %v", err)
	}
}
