// Package querycache implements a request/response cache keyed by semantic
// query identity, with per-call staleness and retry policy, plus persistence
// of a filtered snapshot across app restarts.
package querycache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

// Key is an ordered tuple identifying a logical query (resource + parameters).
type Key []string

// keySeparator joins key elements into the canonical string form. The unit
// separator cannot appear in resource names or parameters.
const keySeparator = "\x1f"

func (k Key) String() string {
	return strings.Join(k, keySeparator)
}

// HasPrefix reports whether the key starts with the given prefix tuple.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, part := range prefix {
		if k[i] != part {
			return false
		}
	}
	return true
}

// Entry is one cached read result. Entries are immutable once written except
// for full replacement.
type Entry struct {
	Key       Key             `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Options control staleness and retry behavior. Zero values fall back to the
// cache defaults.
type Options struct {
	// StaleAfter is the freshness window; a fresh entry is served without
	// any network call.
	StaleAfter time.Duration
	// RetainFor is the retention window; entries past it are evicted rather
	// than served stale.
	RetainFor time.Duration
	// Retries is the number of additional fetch attempts after an initial
	// failure on a blocking miss.
	Retries int
}

// DefaultOptions are the cache-wide fallbacks.
var DefaultOptions = Options{
	StaleAfter: 5 * time.Minute,
	RetainFor:  24 * time.Hour,
	Retries:    3,
}

// FetchFunc loads the payload for a query from the network.
type FetchFunc func(ctx context.Context) (json.RawMessage, error)

// Cache holds at most one entry per distinct query key and serves reads
// fresh, stale-while-revalidate, or via a blocking fetch on miss.
type Cache struct {
	defaults Options

	mu       sync.Mutex
	entries  map[string]Entry
	inflight map[string]bool
	now      func() time.Time
}

// New creates a Cache. Zero fields of defaults fall back to DefaultOptions.
func New(defaults Options) *Cache {
	if defaults.StaleAfter <= 0 {
		defaults.StaleAfter = DefaultOptions.StaleAfter
	}
	if defaults.RetainFor <= 0 {
		defaults.RetainFor = DefaultOptions.RetainFor
	}
	if defaults.Retries < 0 {
		defaults.Retries = DefaultOptions.Retries
	}
	return &Cache{
		defaults: defaults,
		entries:  make(map[string]Entry),
		inflight: make(map[string]bool),
		now:      time.Now,
	}
}

// resolve fills zeroed option fields from the cache defaults.
func (c *Cache) resolve(opts *Options) Options {
	out := c.defaults
	if opts == nil {
		return out
	}
	if opts.StaleAfter > 0 {
		out.StaleAfter = opts.StaleAfter
	}
	if opts.RetainFor > 0 {
		out.RetainFor = opts.RetainFor
	}
	if opts.Retries > 0 {
		out.Retries = opts.Retries
	}
	return out
}

// Get serves a read query. A fresh entry returns without a network call; a
// stale entry returns immediately and triggers one deduplicated background
// refetch; a miss blocks on the fetch with the configured retries.
func (c *Cache) Get(ctx context.Context, key Key, opts *Options, fetch FetchFunc) (json.RawMessage, error) {
	resolved := c.resolve(opts)
	id := key.String()

	c.mu.Lock()
	entry, ok := c.entries[id]
	if ok {
		age := c.now().Sub(entry.FetchedAt)
		if age > resolved.RetainFor {
			// Past retention: treat as a miss.
			delete(c.entries, id)
			ok = false
		} else if age <= resolved.StaleAfter {
			c.mu.Unlock()
			return entry.Payload, nil
		} else {
			// Stale-while-revalidate: serve the old payload now and
			// refresh in the background, once per key.
			refetch := !c.inflight[id]
			if refetch {
				c.inflight[id] = true
			}
			c.mu.Unlock()
			if refetch {
				go c.revalidate(key, fetch)
			}
			return entry.Payload, nil
		}
	}
	c.mu.Unlock()

	payload, err := c.fetchWithRetries(ctx, resolved.Retries, fetch)
	if err != nil {
		return nil, err
	}
	c.Set(key, payload)
	return payload, nil
}

func (c *Cache) revalidate(key Key, fetch FetchFunc) {
	id := key.String()
	defer func() {
		c.mu.Lock()
		delete(c.inflight, id)
		c.mu.Unlock()
	}()

	// Detached from the triggering request: the caller already returned.
	payload, err := fetch(context.Background())
	if err != nil {
		log.Printf("Warning: background refetch for %q failed: %v", id, err)
		return
	}
	c.Set(key, payload)
}

func (c *Cache) fetchWithRetries(ctx context.Context, retries int, fetch FetchFunc) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		payload, err := fetch(ctx)
		if err == nil {
			return payload, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("fetch failed after %d attempts: %w", retries+1, lastErr)
}

// Set replaces the entry for a key with a freshly fetched payload.
func (c *Cache) Set(key Key, payload json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key.String()] = Entry{
		Key:       append(Key(nil), key...),
		Payload:   append(json.RawMessage(nil), payload...),
		FetchedAt: c.now(),
	}
}

// Seed inserts a restored entry, preserving its original fetch timestamp so
// staleness is computed from the original fetch time.
func (c *Cache) Seed(entry Entry) {
	if len(entry.Key) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.Key.String()] = entry
}

// Invalidate drops the entry for a key, if present.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key.String())
}

// InvalidatePrefix drops every entry whose key starts with the prefix.
func (c *Cache) InvalidatePrefix(prefix Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, entry := range c.entries {
		if entry.Key.HasPrefix(prefix) {
			delete(c.entries, id)
		}
	}
}

// Entries returns a snapshot of all entries still within the retention
// window, for persistence.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	out := make([]Entry, 0, len(c.entries))
	for id, entry := range c.entries {
		if now.Sub(entry.FetchedAt) > c.defaults.RetainFor {
			delete(c.entries, id)
			continue
		}
		out = append(out, entry)
	}
	return out
}
