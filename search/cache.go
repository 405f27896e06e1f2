package search

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"enviofinder/data"
	"enviofinder/enums"
	"enviofinder/metrics"
	"enviofinder/vendorsite"
)

// Fetcher is the vendor-scraping boundary.
type Fetcher interface {
	FetchSearch(ctx context.Context, store, term string) ([]vendorsite.Product, error)
	FetchDepartment(ctx context.Context, store, departmentID string) ([]vendorsite.Product, error)
}

// EventStore persists the search-event log that doubles as the cache.
type EventStore interface {
	LatestEvent(kind, criterion, storeSlug string) (*data.SearchEvent, error)
	EventProducts(eventID int64) ([]data.Product, error)
	InsertEvent(event data.SearchEvent, productIDs []string) (int64, error)
}

// ProductStore registers observed products, first-seen-wins.
type ProductStore interface {
	RegisterProducts(products []data.Product) error
}

// Cache answers searches from the event log while an event for the same
// (criterion, store) is younger than the TTL, and fetches otherwise.
// Fetch and parse failures leave the log untouched so the next call retries.
type Cache struct {
	fetcher  Fetcher
	events   EventStore
	products ProductStore
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	inflight map[string]*sync.Mutex
}

func NewCache(fetcher Fetcher, events EventStore, products ProductStore, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{
		fetcher:  fetcher,
		events:   events,
		products: products,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		inflight: make(map[string]*sync.Mutex),
	}
}

// GetOrFetch returns the products for (criterion, store), telling the caller
// whether they came from the cache.
func (c *Cache) GetOrFetch(ctx context.Context, userID int64, criterion Criterion, storeSlug string) ([]data.Product, bool, error) {
	unlock := c.lockKey(criterion, storeSlug)
	defer unlock()

	event, err := c.events.LatestEvent(string(criterion.Kind), criterion.Value, storeSlug)
	if err != nil {
		return nil, false, err
	}

	if event != nil {
		age := c.now().Sub(event.SearchedAt)
		if age <= c.ttl {
			products, err := c.events.EventProducts(event.ID)
			if err != nil {
				return nil, false, err
			}
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			c.logger.Debug("search served from cache", "criterion", criterion.String(), "store", storeSlug, "age_seconds", age.Seconds())
			return products, true, nil
		}
		metrics.CacheLookups.WithLabelValues("stale").Inc()
	} else {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	products, err := c.fetchAndRecord(ctx, userID, criterion, storeSlug)
	if err != nil {
		return nil, false, err
	}

	return products, false, nil
}

// Refresh always fetches, for intentional rescans.
func (c *Cache) Refresh(ctx context.Context, userID int64, criterion Criterion, storeSlug string) ([]data.Product, error) {
	unlock := c.lockKey(criterion, storeSlug)
	defer unlock()

	return c.fetchAndRecord(ctx, userID, criterion, storeSlug)
}

func (c *Cache) fetchAndRecord(ctx context.Context, userID int64, criterion Criterion, storeSlug string) ([]data.Product, error) {
	var scraped []vendorsite.Product
	var err error

	switch criterion.Kind {
	case enums.KindDepartment:
		scraped, err = c.fetcher.FetchDepartment(ctx, storeSlug, criterion.Value)
	default:
		scraped, err = c.fetcher.FetchSearch(ctx, storeSlug, criterion.Value)
	}
	if err != nil {
		return nil, err
	}

	products := make([]data.Product, 0, len(scraped))
	productIDs := make([]string, 0, len(scraped))
	for _, p := range scraped {
		product := data.Product{
			ID:    p.ID,
			Name:  p.Name,
			Price: p.Price,
			Link:  p.Link,
		}
		if p.DepartmentID != "" {
			dep := p.DepartmentID
			product.DepartmentID = &dep
		}
		products = append(products, product)
		productIDs = append(productIDs, p.ID)
	}

	if err := c.products.RegisterProducts(products); err != nil {
		return nil, err
	}

	event := data.SearchEvent{
		UserID:     userID,
		Kind:       string(criterion.Kind),
		Criterion:  criterion.Value,
		StoreSlug:  storeSlug,
		SearchedAt: c.now(),
	}
	if _, err := c.events.InsertEvent(event, productIDs); err != nil {
		return nil, err
	}

	c.logger.Info("search fetched", "criterion", criterion.String(), "store", storeSlug, "products", len(products))
	return products, nil
}

// lockKey serializes fetches per (criterion, store) so concurrent callers
// cannot break the at-most-one-fetch invariant.
func (c *Cache) lockKey(criterion Criterion, storeSlug string) func() {
	key := criterion.String() + "|" + storeSlug

	c.mu.Lock()
	lock, ok := c.inflight[key]
	if !ok {
		lock = &sync.Mutex{}
		c.inflight[key] = lock
	}
	c.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
