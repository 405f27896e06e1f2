package data

import (
	"errors"
	"time"

	"enviofinder/enums"
)

// ErrSubscriptionLimit signals that a user without credit already holds the
// maximum number of active subscriptions.
var ErrSubscriptionLimit = errors.New("active subscription limit reached")

type Region struct {
	Code string `db:"code"`
	Name string `db:"name"`
}

type Store struct {
	Slug       string `db:"slug"`
	RegionCode string `db:"region_code"`
	Name       string `db:"name"`
}

// Product is registered the first time it shows up in a scrape and is never
// updated afterwards; the stored price is the price at first sighting.
type Product struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Price        string    `db:"price"`
	Link         string    `db:"link"`
	DepartmentID *string   `db:"department_id"`
	FirstSeenAt  time.Time `db:"first_seen_at"`
}

type Subscription struct {
	ID                   int64                   `db:"id"`
	UserID               int64                   `db:"user_id"`
	Kind                 enums.CriterionKind     `db:"kind"`
	Criterion            string                  `db:"criterion"`
	RegionCode           string                  `db:"region_code"`
	State                enums.SubscriptionState `db:"state"`
	ScanFrequencySeconds int                     `db:"scan_frequency_seconds"`
	LastScanAt           *time.Time              `db:"last_scan_at"`
	CreatedAt            time.Time               `db:"created_at"`
}

// SearchEvent is the cache/dedup record: a search for (kind, criterion,
// store) is considered cached while an event younger than the TTL exists.
type SearchEvent struct {
	ID         int64     `db:"id"`
	UserID     int64     `db:"user_id"`
	Kind       string    `db:"kind"`
	Criterion  string    `db:"criterion"`
	StoreSlug  string    `db:"store_slug"`
	SearchedAt time.Time `db:"searched_at"`
}

type UserSettings struct {
	UserID            int64      `db:"user_id"`
	RegionCode        string     `db:"region_code"`
	StoreSlug         *string    `db:"store_slug"`
	DepartmentID      *string    `db:"department_id"`
	Credit            float64    `db:"credit"`
	LowCreditNotified bool       `db:"low_credit_notified"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         *time.Time `db:"updated_at"`
}

type CreditEntry struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Delta     float64   `db:"delta"`
	Reason    string    `db:"reason"`
	CreatedAt time.Time `db:"created_at"`
}
