// Package grocery implements the local-first synchronized state layer for the
// shared household grocery list: the canonical in-memory state, its durable
// local mirror, and the debounced remote synchronization.
package grocery

import (
	"context"
	"sort"
	"time"
)

// CustomItem is a user-added grocery item not derived from any recipe.
type CustomItem struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

// ListState holds the shared grocery document fields. SelectedEntries and
// CheckedItems carry set semantics; CustomItems is ordered and name-unique.
type ListState struct {
	SelectedEntries []string       `json:"selected_entries"`
	EntryServings   map[string]int `json:"entry_servings"`
	CheckedItems    []string       `json:"checked_items"`
	CustomItems     []CustomItem   `json:"custom_items"`
}

// Document is the authoritative shared document as stored remotely,
// including the server-assigned last-write metadata.
type Document struct {
	ListState
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by"`
}

// Patch names only the fields that changed; the server merges it into the
// full document. Pointer fields distinguish an absent field from an explicit
// clear, so an empty set is never confused with "do not touch".
type Patch struct {
	SelectedEntries *[]string       `json:"selected_entries,omitempty"`
	EntryServings   *map[string]int `json:"entry_servings,omitempty"`
	CheckedItems    *[]string       `json:"checked_items,omitempty"`
	CustomItems     *[]CustomItem   `json:"custom_items,omitempty"`
}

// IsEmpty reports whether the patch names no fields at all.
func (p Patch) IsEmpty() bool {
	return p.SelectedEntries == nil && p.EntryServings == nil &&
		p.CheckedItems == nil && p.CustomItems == nil
}

// RemoteStore is the remote authoritative store boundary. All operations act
// on the single per-household grocery document.
type RemoteStore interface {
	FetchState(ctx context.Context) (*Document, error)
	ReplaceState(ctx context.Context, state ListState) error
	PatchState(ctx context.Context, patch Patch) error
	DeleteState(ctx context.Context) error
}

// Mirror is the durable local mirror boundary: independent string-keyed
// slots, each holding one JSON value. An absent slot is a valid
// "never synced" state.
type Mirror interface {
	Put(ctx context.Context, slot string, value []byte) error
	Get(ctx context.Context, slot string) ([]byte, error)
	Delete(ctx context.Context, slot string) error
}

// Clone returns a deep copy, so readers never observe later mutations.
func (s ListState) Clone() ListState {
	out := ListState{
		SelectedEntries: append([]string(nil), s.SelectedEntries...),
		CheckedItems:    append([]string(nil), s.CheckedItems...),
		CustomItems:     append([]CustomItem(nil), s.CustomItems...),
	}
	if s.EntryServings != nil {
		out.EntryServings = make(map[string]int, len(s.EntryServings))
		for k, v := range s.EntryServings {
			out.EntryServings[k] = v
		}
	}
	return out
}

// emptyState returns a ListState with every field set to its zero collection,
// so marshaled mirror values are '[]'/'{}' rather than null.
func emptyState() ListState {
	return ListState{
		SelectedEntries: []string{},
		EntryServings:   map[string]int{},
		CheckedItems:    []string{},
		CustomItems:     []CustomItem{},
	}
}

// normalizeSet deduplicates and sorts a set-valued field.
func normalizeSet(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}

// containsItem reports whether a sorted set contains the given item.
func containsItem(items []string, name string) bool {
	i := sort.SearchStrings(items, name)
	return i < len(items) && items[i] == name
}

// dedupeCustomItems keeps the first occurrence position of each name;
// a later duplicate only updates the category in place.
func dedupeCustomItems(items []CustomItem) []CustomItem {
	index := make(map[string]int, len(items))
	out := make([]CustomItem, 0, len(items))
	for _, item := range items {
		if item.Name == "" {
			continue
		}
		if at, ok := index[item.Name]; ok {
			out[at].Category = item.Category
			continue
		}
		index[item.Name] = len(out)
		out = append(out, item)
	}
	return out
}
