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

// DefaultQuietPeriod is the debounce window used when none is configured.
const DefaultQuietPeriod = 500 * time.Millisecond

// Synchronizer is the single source of truth for the shared grocery list
// while the app is running. Every mutation updates the in-memory state and
// the local mirror synchronously, then schedules a coalesced remote PATCH
// after a quiet period. Remote failures are logged and swallowed; the state
// reconciles on the next bootstrap load.
type Synchronizer struct {
	remote  RemoteStore
	mirror  Mirror
	journal *metrics.Store
	quiet   time.Duration

	mu      sync.Mutex
	state   ListState
	pending Patch
	timer   *time.Timer
	closed  bool
}

// NewSynchronizer creates a Synchronizer with empty initial state. Callers
// seed the real initial state through a Loader. The journal may be nil.
func NewSynchronizer(remote RemoteStore, localMirror Mirror, journal *metrics.Store, quietPeriod time.Duration) *Synchronizer {
	if quietPeriod <= 0 {
		quietPeriod = DefaultQuietPeriod
	}
	return &Synchronizer{
		remote:  remote,
		mirror:  localMirror,
		journal: journal,
		quiet:   quietPeriod,
		state:   emptyState(),
	}
}

// Snapshot returns an immutable copy of the current state.
func (s *Synchronizer) Snapshot() ListState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Publish replaces the in-memory state without scheduling a remote patch.
// Used by the bootstrap loader to seed the initial state.
func (s *Synchronizer) Publish(state ListState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state.Clone()
	if s.state.SelectedEntries == nil {
		s.state.SelectedEntries = []string{}
	}
	if s.state.EntryServings == nil {
		s.state.EntryServings = map[string]int{}
	}
	if s.state.CheckedItems == nil {
		s.state.CheckedItems = []string{}
	}
	if s.state.CustomItems == nil {
		s.state.CustomItems = []CustomItem{}
	}
}

// SetChecked replaces the set of items marked as acquired.
func (s *Synchronizer) SetChecked(items []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCheckedLocked(normalizeSet(items))
}

// ToggleChecked flips a single item between acquired and not acquired.
func (s *Synchronizer) ToggleChecked(name string) {
	if name == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var next []string
	if containsItem(s.state.CheckedItems, name) {
		next = make([]string, 0, len(s.state.CheckedItems)-1)
		for _, item := range s.state.CheckedItems {
			if item != name {
				next = append(next, item)
			}
		}
	} else {
		next = normalizeSet(append(append([]string(nil), s.state.CheckedItems...), name))
	}
	s.setCheckedLocked(next)
}

// ClearChecked unmarks every item.
func (s *Synchronizer) ClearChecked() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCheckedLocked([]string{})
}

func (s *Synchronizer) setCheckedLocked(items []string) {
	s.state.CheckedItems = items
	s.writeSlotLocked(mirror.SlotCheckedItems, items)

	checked := append([]string(nil), items...)
	s.pending.CheckedItems = &checked
	s.scheduleFlushLocked()
}

// SetCustomItems replaces the ordered list of user-added items.
// Entries are deduplicated by name.
func (s *Synchronizer) SetCustomItems(items []CustomItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCustomItemsLocked(dedupeCustomItems(items))
}

// AddCustomItem appends one user-added item. An existing item with the same
// name keeps its position and takes the new category.
func (s *Synchronizer) AddCustomItem(item CustomItem) {
	if item.Name == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := append(append([]CustomItem(nil), s.state.CustomItems...), item)
	s.setCustomItemsLocked(dedupeCustomItems(next))
}

func (s *Synchronizer) setCustomItemsLocked(items []CustomItem) {
	s.state.CustomItems = items
	s.writeSlotLocked(mirror.SlotCustomItems, items)

	custom := append([]CustomItem(nil), items...)
	s.pending.CustomItems = &custom
	s.scheduleFlushLocked()
}

// SaveSelections replaces the selected planned-meal entries and their serving
// counts together. Selection changes are infrequent and user-confirmed, so in
// addition to the synchronous local writes this sends a direct, non-debounced
// remote patch instead of joining the quiet-period accumulator.
func (s *Synchronizer) SaveSelections(entries []string, servings map[string]int) {
	selected := normalizeSet(entries)

	// Serving counts are positive and only kept for selected entries.
	kept := make(map[string]int, len(servings))
	for key, count := range servings {
		if !containsItem(selected, key) {
			continue
		}
		if count < 1 {
			count = 1
		}
		kept[key] = count
	}

	s.mu.Lock()
	s.state.SelectedEntries = selected
	s.state.EntryServings = kept
	s.writeSlotLocked(mirror.SlotSelectedEntries, selected)
	s.writeSlotLocked(mirror.SlotEntryServings, kept)
	s.mu.Unlock()

	patchEntries := append([]string(nil), selected...)
	patchServings := make(map[string]int, len(kept))
	for k, v := range kept {
		patchServings[k] = v
	}
	patch := Patch{SelectedEntries: &patchEntries, EntryServings: &patchServings}

	// Fire-and-forget: the caller never blocks on network I/O.
	go s.sendPatch(patch, metrics.KindDirectSave)
}

// ResetAll atomically clears every field locally and issues a remote delete.
// Calling it more than once is harmless; each call issues one delete.
func (s *Synchronizer) ResetAll() {
	s.mu.Lock()
	s.state = emptyState()
	s.writeSlotLocked(mirror.SlotCheckedItems, s.state.CheckedItems)
	s.writeSlotLocked(mirror.SlotCustomItems, s.state.CustomItems)
	s.writeSlotLocked(mirror.SlotSelectedEntries, s.state.SelectedEntries)
	s.writeSlotLocked(mirror.SlotEntryServings, s.state.EntryServings)

	// A pending patch would only resurrect pre-reset values.
	s.pending = Patch{}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	go func() {
		start := time.Now()
		err := s.remote.DeleteState(context.Background())
		s.recordOutcome(metrics.KindReset, start, err)
		if err != nil {
			log.Printf("Warning: remote reset failed (will reconcile on next load): %v", err)
		}
	}()
}

// Flush sends any accumulated patch immediately and clears the accumulator.
func (s *Synchronizer) Flush() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	patch := s.pending
	s.pending = Patch{}
	s.mu.Unlock()

	if patch.IsEmpty() {
		return
	}
	s.sendPatch(patch, metrics.KindPatchFlush)
}

// Close cancels the quiet-period timer and synchronously flushes any pending
// patch, so a clean shutdown never silently drops scheduled changes.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.Flush()
}

// writeSlotLocked mirrors one field to durable local storage. Failures are
// logged, never surfaced: the mutation already succeeded in memory.
func (s *Synchronizer) writeSlotLocked(slot string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		log.Printf("Warning: failed to encode mirror slot %s: %v", slot, err)
		return
	}
	if err := s.mirror.Put(context.Background(), slot, data); err != nil {
		log.Printf("Warning: failed to write mirror slot %s: %v", slot, err)
	}
}

// scheduleFlushLocked (re)starts the quiet-period timer. Only one timer is
// ever pending; every new mutation pushes the flush out by a full window.
func (s *Synchronizer) scheduleFlushLocked() {
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.quiet, s.Flush)
}

func (s *Synchronizer) sendPatch(patch Patch, kind string) {
	start := time.Now()
	err := s.remote.PatchState(context.Background(), patch)
	s.recordOutcome(kind, start, err)
	if err != nil {
		log.Printf("Warning: remote patch failed (will reconcile on next load): %v", err)
	}
}

func (s *Synchronizer) recordOutcome(kind string, start time.Time, err error) {
	event := metrics.SyncEvent{
		Kind:      kind,
		Outcome:   metrics.OutcomeOK,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		event.Outcome = metrics.OutcomeFailed
		event.Detail = err.Error()
	}
	if jerr := s.journal.Record(event); jerr != nil {
		log.Printf("Warning: failed to record sync event: %v", jerr)
	}
}
