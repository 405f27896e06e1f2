// Package rescan runs the periodic subscription rescans and the aging sweep.
package rescan

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"enviofinder/data"
	"enviofinder/metrics"
	"enviofinder/search"
)

// Searcher performs the forced fetch a rescan needs, bypassing cache
// freshness on purpose.
type Searcher interface {
	Refresh(ctx context.Context, userID int64, criterion search.Criterion, storeSlug string) ([]data.Product, error)
}

// SubscriptionStore is the registry surface the scheduler needs.
type SubscriptionStore interface {
	ListAllActiveScans() ([]data.SubscriptionScan, error)
	UpdateLastScan(ids []int64, at time.Time) error
	MarkProcessed(ids []int64) error
}

// CreditStore charges rescan costs and tracks the one-time low-credit notice.
type CreditStore interface {
	DeductCredit(userID int64, amount float64, reason string) (float64, error)
	SetLowCreditNotified(userID int64) error
}

// StoreDirectory resolves a region to its stores.
type StoreDirectory interface {
	ListStoresByRegion(regionCode string) ([]data.Store, error)
}

// Notifier pushes alerts back through the chat transport.
type Notifier interface {
	NotifyMatch(ctx context.Context, userID int64, criterion search.Criterion, regionCode string, products []data.Product) error
	NotifyLowCredit(ctx context.Context, userID int64) error
}

// Scheduler rescans active subscriptions on a fixed interval. Subscriptions
// sharing a (criterion, region) pair share exactly one vendor search per
// tick, with the credit cost split evenly across the due users.
type Scheduler struct {
	searcher   Searcher
	subs       SubscriptionStore
	credits    CreditStore
	stores     StoreDirectory
	notifier   Notifier
	interval   time.Duration
	deactivate bool
	logger     *slog.Logger
	now        func() time.Time
}

func NewScheduler(searcher Searcher, subs SubscriptionStore, credits CreditStore, stores StoreDirectory, notifier Notifier, interval time.Duration, deactivate bool, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		searcher:   searcher,
		subs:       subs,
		credits:    credits,
		stores:     stores,
		notifier:   notifier,
		interval:   interval,
		deactivate: deactivate,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("rescan tick failed", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping rescan scheduler")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("rescan tick failed", "error", err)
			}
		}
	}
}

// group is one distinct (criterion, region) across all active subscriptions.
type group struct {
	criterion search.Criterion
	region    string
	scans     []data.SubscriptionScan
}

// RunOnce executes a single rescan tick.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := s.now()
	log := s.logger.With("tick", uuid.NewString())

	// One batch read covers subscriptions and credits for the whole tick.
	scans, err := s.subs.ListAllActiveScans()
	if err != nil {
		return errors.Wrap(err, "rescan: list active scans")
	}
	if len(scans) == 0 {
		return nil
	}

	groups := groupScans(scans)
	log.Info("rescan tick", "subscriptions", len(scans), "groups", len(groups))

	for _, g := range groups {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// One failing group must not abort the rest of the tick.
		if err := s.processGroup(ctx, g); err != nil {
			log.Warn("rescan group failed", "criterion", g.criterion.String(), "region", g.region, "error", err)
		}
	}

	metrics.RescanTicks.Inc()
	metrics.RescanDuration.Observe(s.now().Sub(start).Seconds())
	return nil
}

func (s *Scheduler) processGroup(ctx context.Context, g group) error {
	now := s.now()

	due := make([]data.SubscriptionScan, 0, len(g.scans))
	for _, scan := range g.scans {
		if scan.Credit <= 0 {
			continue
		}
		if scan.LastScanAt != nil && now.Sub(*scan.LastScanAt) < time.Duration(scan.ScanFrequencySeconds)*time.Second {
			continue
		}
		due = append(due, scan)
	}
	if len(due) == 0 {
		return nil
	}

	// Duplicate subscriptions by the same user count once for cost and
	// notification purposes.
	dueUsers := distinctUsers(due)

	stores, err := s.stores.ListStoresByRegion(g.region)
	if err != nil {
		return errors.Wrap(err, "list region stores")
	}

	// The shared search: one forced fetch per store in the region.
	var products []data.Product
	fetched := false
	for _, store := range stores {
		found, err := s.searcher.Refresh(ctx, 0, g.criterion, store.Slug)
		if err != nil {
			// Swallowed: background failures never reach the user.
			s.logger.Warn("rescan fetch failed", "store", store.Slug, "criterion", g.criterion.String(), "error", err)
			continue
		}
		fetched = true
		products = append(products, found...)
	}

	// A vendor outage must not drain balances: nobody pays for a tick in
	// which no store fetch succeeded.
	if fetched {
		s.chargeDueUsers(ctx, dueUsers, due)
	}

	// Due users get their clock punched even on an empty result, so a
	// zero-result subscription cannot stay perpetually due.
	dueIDs := make([]int64, 0, len(due))
	for _, scan := range due {
		dueIDs = append(dueIDs, scan.ID)
	}
	if err := s.subs.UpdateLastScan(dueIDs, now); err != nil {
		return errors.Wrap(err, "update last scan")
	}

	if len(products) == 0 {
		return nil
	}

	// Products found: every active subscriber of the group hears about it,
	// not just the due subset.
	allUsers := distinctUsers(g.scans)
	for _, userID := range allUsers {
		if err := s.notifier.NotifyMatch(ctx, userID, g.criterion, g.region, products); err != nil {
			s.logger.Warn("notify failed", "user", userID, "criterion", g.criterion.String(), "error", err)
			continue
		}
		metrics.NotificationsSent.Inc()
	}

	if s.deactivate {
		allIDs := make([]int64, 0, len(g.scans))
		for _, scan := range g.scans {
			allIDs = append(allIDs, scan.ID)
		}
		if err := s.subs.MarkProcessed(allIDs); err != nil {
			return errors.Wrap(err, "mark processed")
		}
	}

	return nil
}

// chargeDueUsers splits one fetch-cost evenly across the due users and fires
// the one-time low-credit notice for balances that just hit zero.
func (s *Scheduler) chargeDueUsers(ctx context.Context, dueUsers []int64, due []data.SubscriptionScan) {
	cost := 1 / float64(len(dueUsers))

	notified := make(map[int64]bool)
	for _, scan := range due {
		notified[scan.UserID] = notified[scan.UserID] || scan.LowCreditNotified
	}

	for _, userID := range dueUsers {
		balance, err := s.credits.DeductCredit(userID, cost, "subscription rescan")
		if err != nil {
			s.logger.Warn("credit deduction failed", "user", userID, "error", err)
			continue
		}
		if balance != 0 || notified[userID] {
			continue
		}
		if err := s.notifier.NotifyLowCredit(ctx, userID); err != nil {
			s.logger.Warn("low-credit notice failed", "user", userID, "error", err)
			continue
		}
		if err := s.credits.SetLowCreditNotified(userID); err != nil {
			s.logger.Warn("low-credit flag update failed", "user", userID, "error", err)
		}
	}
}

func groupScans(scans []data.SubscriptionScan) []group {
	index := make(map[string]int)
	var groups []group

	for _, scan := range scans {
		criterion := search.Criterion{Kind: scan.Kind, Value: scan.Criterion}
		key := criterion.String() + "|" + scan.RegionCode
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, group{criterion: criterion, region: scan.RegionCode})
		}
		groups[i].scans = append(groups[i].scans, scan)
	}

	return groups
}

func distinctUsers(scans []data.SubscriptionScan) []int64 {
	seen := make(map[int64]bool, len(scans))
	var users []int64
	for _, scan := range scans {
		if seen[scan.UserID] {
			continue
		}
		seen[scan.UserID] = true
		users = append(users, scan.UserID)
	}
	return users
}
