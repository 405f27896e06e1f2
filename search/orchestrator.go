package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"enviofinder/data"
	"enviofinder/enums"
)

// ErrCreditExhausted gates paid operations; it is surfaced as a
// maintenance-style message, not a hard failure.
var ErrCreditExhausted = errors.New("credit exhausted")

// ErrNoStoreSelected is returned for single-store scope when the user has no
// store selected.
var ErrNoStoreSelected = errors.New("no store selected")

// ResultCache is what the orchestrator needs from the cache.
type ResultCache interface {
	GetOrFetch(ctx context.Context, userID int64, criterion Criterion, storeSlug string) ([]data.Product, bool, error)
}

// StoreDirectory resolves regions to stores.
type StoreDirectory interface {
	ListStoresByRegion(regionCode string) ([]data.Store, error)
	GetStore(slug string) (*data.Store, error)
}

// Quota counts a user's distinct recent searches for the free-quota gate.
type Quota interface {
	CountDistinctSearchesSince(userID int64, since time.Time) (int, error)
}

// SettingsStore loads user settings and charges credit.
type SettingsStore interface {
	GetOrCreate(userID int64) (*data.UserSettings, error)
	DeductCredit(userID int64, amount float64, reason string) (float64, error)
}

// StoreResult is one store's section of a search response. Err carries the
// literal failure for that store; the other sections are unaffected.
type StoreResult struct {
	Store     data.Store
	Products  []data.Product
	FromCache bool
	Err       error
}

type Result struct {
	Criterion Criterion
	Sections  []StoreResult
	// Charged is set when the search went beyond the free quota and cost
	// one credit.
	Charged bool
}

// Empty reports whether the result carries nothing to show: no products and
// no store failures. An errored section is not empty; its literal error must
// reach the user.
func (r *Result) Empty() bool {
	for _, s := range r.Sections {
		if len(s.Products) > 0 || s.Err != nil {
			return false
		}
	}
	return true
}

// HasProducts reports whether at least one store produced a product.
func (r *Result) HasProducts() bool {
	for _, s := range r.Sections {
		if len(s.Products) > 0 {
			return true
		}
	}
	return false
}

type Orchestrator struct {
	cache           ResultCache
	stores          StoreDirectory
	quota           Quota
	settings        SettingsStore
	freePerHour     int
	showEmptyStores bool
	logger          *slog.Logger
	now             func() time.Time
}

func NewOrchestrator(cache ResultCache, stores StoreDirectory, quota Quota, settings SettingsStore, freePerHour int, showEmptyStores bool, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cache:           cache,
		stores:          stores,
		quota:           quota,
		settings:        settings,
		freePerHour:     freePerHour,
		showEmptyStores: showEmptyStores,
		logger:          logger,
		now:             time.Now,
	}
}

// Search runs a criterion against every target store. A failing store does
// not abort the others; its section carries the error instead.
func (o *Orchestrator) Search(ctx context.Context, userID int64, criterion Criterion, scope enums.SearchScope) (*Result, error) {
	settings, err := o.settings.GetOrCreate(userID)
	if err != nil {
		return nil, err
	}

	charged, err := o.chargeBeyondQuota(userID, settings)
	if err != nil {
		return nil, err
	}

	targets, err := o.resolveStores(settings, scope)
	if err != nil {
		return nil, err
	}

	result := &Result{Criterion: criterion, Charged: charged}
	for _, store := range targets {
		products, fromCache, err := o.cache.GetOrFetch(ctx, userID, criterion, store.Slug)
		if err != nil {
			o.logger.Warn("store search failed", "store", store.Slug, "criterion", criterion.String(), "error", err)
			result.Sections = append(result.Sections, StoreResult{Store: store, Err: err})
			continue
		}
		if len(products) == 0 && !o.showEmptyStores {
			continue
		}
		result.Sections = append(result.Sections, StoreResult{
			Store:     store,
			Products:  products,
			FromCache: fromCache,
		})
	}

	return result, nil
}

func (o *Orchestrator) chargeBeyondQuota(userID int64, settings *data.UserSettings) (bool, error) {
	count, err := o.quota.CountDistinctSearchesSince(userID, o.now().Add(-time.Hour))
	if err != nil {
		return false, err
	}
	if count < o.freePerHour {
		return false, nil
	}

	if settings.Credit <= 0 {
		return false, ErrCreditExhausted
	}
	if _, err := o.settings.DeductCredit(userID, 1, "manual search beyond free quota"); err != nil {
		return false, err
	}

	return true, nil
}

func (o *Orchestrator) resolveStores(settings *data.UserSettings, scope enums.SearchScope) ([]data.Store, error) {
	if scope == enums.ScopeStore {
		if settings.StoreSlug == nil {
			return nil, ErrNoStoreSelected
		}
		store, err := o.stores.GetStore(*settings.StoreSlug)
		if err != nil {
			return nil, err
		}
		if store == nil {
			return nil, fmt.Errorf("selected store %q not found", *settings.StoreSlug)
		}
		return []data.Store{*store}, nil
	}

	stores, err := o.stores.ListStoresByRegion(settings.RegionCode)
	if err != nil {
		return nil, err
	}
	return stores, nil
}
