// Package app wires the sync core together: database, local mirror, remote
// client, synchronizer, loader, query cache and persistence guard. Both the
// CLI and the bot compose their surfaces on top of this.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"mealmate/internal/api"
	"mealmate/internal/config"
	"mealmate/internal/database"
	"mealmate/internal/grocery"
	"mealmate/internal/metrics"
	"mealmate/internal/mirror"
	"mealmate/internal/querycache"

	"github.com/google/uuid"
)

// App holds the application's dependencies.
type App struct {
	cfg     *config.Config
	db      *database.DB
	mirror  *mirror.Store
	client  api.Client
	journal *metrics.Store
	sync    *grocery.Synchronizer
	loader  *grocery.Loader
	cache   *querycache.Cache
	guard   *querycache.Guard
	device  string
}

// New creates and initializes a new App instance.
func New(cfg *config.Config) (*App, error) {
	db, err := database.NewDB(cfg.MirrorDBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize local mirror database: %w", err)
	}

	localMirror := mirror.NewStore(db.SQL)
	journal := metrics.NewStore(db.SQL)
	device := ensureDeviceName(cfg, localMirror)

	client := api.NewClient(cfg, device)
	synchronizer := grocery.NewSynchronizer(client, localMirror, journal, cfg.QuietPeriod)
	loader := grocery.NewLoader(client, localMirror, synchronizer, journal)

	cache := querycache.New(querycache.Options{
		StaleAfter: cfg.CacheStaleAfter,
		RetainFor:  cfg.CacheRetention,
		Retries:    cfg.CacheRetries,
	})
	guard := querycache.NewGuard(cache, localMirror, querycache.Policy{
		// The full recipe collection and the session user record are cheap
		// to refetch and not worth keeping on disk.
		Denylist: []querycache.Key{{"recipes"}, {"me"}},
		MaxBytes: cfg.SnapshotMaxBytes,
	})

	return &App{
		cfg:     cfg,
		db:      db,
		mirror:  localMirror,
		client:  client,
		journal: journal,
		sync:    synchronizer,
		loader:  loader,
		cache:   cache,
		guard:   guard,
		device:  device,
	}, nil
}

// Start restores the persisted query cache and publishes the initial shared
// list state (remote first, mirror fallback).
func (a *App) Start(ctx context.Context) grocery.LoadState {
	a.guard.Restore(ctx)
	return a.loader.Load(ctx)
}

// Shutdown flushes any pending patch, snapshots the query cache and closes
// the database.
func (a *App) Shutdown(ctx context.Context) {
	a.sync.Close()
	a.guard.Snapshot(ctx)
	if err := a.db.Close(); err != nil {
		log.Printf("Warning: failed to close local mirror database: %v", err)
	}
}

// Grocery exposes the synchronizer's operation set to the UI surfaces.
func (a *App) Grocery() *grocery.Synchronizer {
	return a.sync
}

// Loader exposes the bootstrap loader (for IsLoading and explicit refresh).
func (a *App) Loader() *grocery.Loader {
	return a.loader
}

// Journal exposes the sync event journal.
func (a *App) Journal() *metrics.Store {
	return a.journal
}

// DeviceName returns this device's writer identity.
func (a *App) DeviceName() string {
	return a.device
}

// RefreshState re-runs the bootstrap load against the remote store.
func (a *App) RefreshState(ctx context.Context) grocery.LoadState {
	return a.loader.Refresh(ctx)
}

// ForcePush overwrites the remote document with the current local state.
func (a *App) ForcePush(ctx context.Context) error {
	return a.client.ReplaceState(ctx, a.sync.Snapshot())
}

// Recipes returns the household recipe library through the query cache.
func (a *App) Recipes(ctx context.Context) ([]api.Recipe, error) {
	payload, err := a.cache.Get(ctx, querycache.Key{"recipes"}, nil, func(ctx context.Context) (json.RawMessage, error) {
		return a.client.FetchRecipes(ctx)
	})
	if err != nil {
		return nil, err
	}
	return api.DecodeRecipes(payload)
}

// Recipe returns one recipe by ID through the query cache.
func (a *App) Recipe(ctx context.Context, id string) (*api.Recipe, error) {
	payload, err := a.cache.Get(ctx, querycache.Key{"recipes", id}, nil, func(ctx context.Context) (json.RawMessage, error) {
		return a.client.FetchRecipe(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return api.DecodeRecipe(payload)
}

// MealPlan returns the weekly meal plan through the query cache.
func (a *App) MealPlan(ctx context.Context, weekStart string) (*api.MealPlan, error) {
	payload, err := a.cache.Get(ctx, querycache.Key{"meal-plan", weekStart}, nil, func(ctx context.Context) (json.RawMessage, error) {
		return a.client.FetchMealPlan(ctx, weekStart)
	})
	if err != nil {
		return nil, err
	}
	return api.DecodeMealPlan(payload)
}

// CurrentUser returns the session user record through the query cache.
func (a *App) CurrentUser(ctx context.Context) (*api.Me, error) {
	payload, err := a.cache.Get(ctx, querycache.Key{"me"}, nil, func(ctx context.Context) (json.RawMessage, error) {
		return a.client.FetchMe(ctx)
	})
	if err != nil {
		return nil, err
	}
	return api.DecodeMe(payload)
}

// WeekStart returns the Monday of the week containing t, as YYYY-MM-DD.
func WeekStart(t time.Time) string {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday belongs to the preceding Monday's week
	}
	monday := t.AddDate(0, 0, 1-weekday)
	return monday.Format("2006-01-02")
}

// ensureDeviceName resolves the per-device writer identity: the configured
// name if set, otherwise a generated ID persisted in the mirror so it stays
// stable across restarts.
func ensureDeviceName(cfg *config.Config, localMirror *mirror.Store) string {
	if cfg.DeviceName != "" {
		return cfg.DeviceName
	}

	ctx := context.Background()
	if stored, err := localMirror.Get(ctx, mirror.SlotDeviceID); err == nil && len(stored) > 0 {
		return string(stored)
	}

	device := "device-" + uuid.NewString()
	if err := localMirror.Put(ctx, mirror.SlotDeviceID, []byte(device)); err != nil {
		log.Printf("Warning: failed to persist device id: %v", err)
	}
	return device
}
