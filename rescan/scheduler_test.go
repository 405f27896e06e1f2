package rescan

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enviofinder/data"
	"enviofinder/enums"
	"enviofinder/search"
)

type fakeSearcher struct {
	products map[string][]data.Product // keyed by store slug
	errs     map[string]error
	calls    []string
}

func (f *fakeSearcher) Refresh(_ context.Context, _ int64, _ search.Criterion, storeSlug string) ([]data.Product, error) {
	f.calls = append(f.calls, storeSlug)
	if err := f.errs[storeSlug]; err != nil {
		return nil, err
	}
	return f.products[storeSlug], nil
}

type fakeSubStore struct {
	scans       []data.SubscriptionScan
	lastScanIDs []int64
	processed   []int64
}

func (f *fakeSubStore) ListAllActiveScans() ([]data.SubscriptionScan, error) {
	return f.scans, nil
}

func (f *fakeSubStore) UpdateLastScan(ids []int64, _ time.Time) error {
	f.lastScanIDs = append(f.lastScanIDs, ids...)
	return nil
}

func (f *fakeSubStore) MarkProcessed(ids []int64) error {
	f.processed = append(f.processed, ids...)
	return nil
}

type deduction struct {
	userID int64
	amount float64
}

type fakeCreditStore struct {
	balances   map[int64]float64
	deductions []deduction
	flagged    []int64
}

func (f *fakeCreditStore) DeductCredit(userID int64, amount float64, _ string) (float64, error) {
	f.deductions = append(f.deductions, deduction{userID, amount})
	balance := f.balances[userID] - amount
	if balance < 0 {
		balance = 0
	}
	f.balances[userID] = balance
	return balance, nil
}

func (f *fakeCreditStore) SetLowCreditNotified(userID int64) error {
	f.flagged = append(f.flagged, userID)
	return nil
}

type fakeRegionStores struct {
	stores map[string][]data.Store
	errs   map[string]error
}

func (f *fakeRegionStores) ListStoresByRegion(regionCode string) ([]data.Store, error) {
	if err := f.errs[regionCode]; err != nil {
		return nil, err
	}
	return f.stores[regionCode], nil
}

type fakeNotifier struct {
	matched   []int64
	lowCredit []int64
}

func (f *fakeNotifier) NotifyMatch(_ context.Context, userID int64, _ search.Criterion, _ string, _ []data.Product) error {
	f.matched = append(f.matched, userID)
	return nil
}

func (f *fakeNotifier) NotifyLowCredit(_ context.Context, userID int64) error {
	f.lowCredit = append(f.lowCredit, userID)
	return nil
}

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func activeScan(id, userID int64, criterion, region string, credit float64) data.SubscriptionScan {
	return data.SubscriptionScan{
		ID:                   id,
		UserID:               userID,
		Kind:                 enums.KindTerm,
		Criterion:            criterion,
		RegionCode:           region,
		ScanFrequencySeconds: 1800,
		Credit:               credit,
	}
}

func singleStoreRegion(region, slug string) *fakeRegionStores {
	return &fakeRegionStores{stores: map[string][]data.Store{
		region: {{Slug: slug, RegionCode: region, Name: slug}},
	}}
}

func newTestScheduler(searcher *fakeSearcher, subs *fakeSubStore, credits *fakeCreditStore, stores *fakeRegionStores, notifier *fakeNotifier, deactivate bool) *Scheduler {
	s := NewScheduler(searcher, subs, credits, stores, notifier, time.Minute, deactivate, slog.Default())
	s.now = func() time.Time { return testNow }
	return s
}

func TestRescan_SharedFetchPerGroup(t *testing.T) {
	searcher := &fakeSearcher{products: map[string][]data.Product{
		"granma": {{ID: "1", Name: "Pollo", Price: "2.50 CUC"}},
	}}
	subs := &fakeSubStore{scans: []data.SubscriptionScan{
		activeScan(1, 100, "pollo", "gr", 5),
		activeScan(2, 200, "pollo", "gr", 5),
		activeScan(3, 300, "pollo", "gr", 5),
	}}
	credits := &fakeCreditStore{balances: map[int64]float64{100: 5, 200: 5, 300: 5}}
	notifier := &fakeNotifier{}

	s := newTestScheduler(searcher, subs, credits, singleStoreRegion("gr", "granma"), notifier, false)
	require.NoError(t, s.RunOnce(context.Background()))

	assert.Equal(t, []string{"granma"}, searcher.calls, "one fetch per group regardless of subscriber count")
	assert.ElementsMatch(t, []int64{100, 200, 300}, notifier.matched)
}

func TestRescan_FractionalCreditSplit(t *testing.T) {
	searcher := &fakeSearcher{}
	subs := &fakeSubStore{scans: []data.SubscriptionScan{
		activeScan(1, 100, "pollo", "gr", 5),
		activeScan(2, 200, "pollo", "gr", 5),
	}}
	credits := &fakeCreditStore{balances: map[int64]float64{100: 5, 200: 5}}

	s := newTestScheduler(searcher, subs, credits, singleStoreRegion("gr", "granma"), &fakeNotifier{}, false)
	require.NoError(t, s.RunOnce(context.Background()))

	require.Len(t, credits.deductions, 2)
	var total float64
	for _, d := range credits.deductions {
		assert.InDelta(t, 0.5, d.amount, 1e-9)
		total += d.amount
	}
	assert.InDelta(t, 1.0, total, 1e-9, "deductions sum to one fetch-cost")
}

func TestRescan_LastScanUpdatedEvenWithoutProducts(t *testing.T) {
	searcher := &fakeSearcher{} // finds nothing
	subs := &fakeSubStore{scans: []data.SubscriptionScan{
		activeScan(1, 100, "pollo", "gr", 5),
	}}
	credits := &fakeCreditStore{balances: map[int64]float64{100: 5}}
	notifier := &fakeNotifier{}

	s := newTestScheduler(searcher, subs, credits, singleStoreRegion("gr", "granma"), notifier, false)
	require.NoError(t, s.RunOnce(context.Background()))

	assert.Equal(t, []int64{1}, subs.lastScanIDs)
	assert.Empty(t, notifier.matched)
}

func TestRescan_NotDueUsersStillNotified(t *testing.T) {
	recent := testNow.Add(-time.Minute)
	notDue := activeScan(2, 200, "pollo", "gr", 5)
	notDue.LastScanAt = &recent

	searcher := &fakeSearcher{products: map[string][]data.Product{
		"granma": {{ID: "1", Name: "Pollo", Price: "2.50 CUC"}},
	}}
	subs := &fakeSubStore{scans: []data.SubscriptionScan{
		activeScan(1, 100, "pollo", "gr", 5),
		notDue,
	}}
	credits := &fakeCreditStore{balances: map[int64]float64{100: 5, 200: 5}}
	notifier := &fakeNotifier{}

	s := newTestScheduler(searcher, subs, credits, singleStoreRegion("gr", "granma"), notifier, false)
	require.NoError(t, s.RunOnce(context.Background()))

	// Only the due user pays, but every active subscriber hears about it.
	require.Len(t, credits.deductions, 1)
	assert.Equal(t, int64(100), credits.deductions[0].userID)
	assert.InDelta(t, 1.0, credits.deductions[0].amount, 1e-9)
	assert.ElementsMatch(t, []int64{100, 200}, notifier.matched)
	assert.Equal(t, []int64{1}, subs.lastScanIDs)
}

func TestRescan_ZeroCreditUsersAreNeverDue(t *testing.T) {
	searcher := &fakeSearcher{products: map[string][]data.Product{
		"granma": {{ID: "1", Name: "Pollo", Price: "2.50 CUC"}},
	}}
	subs := &fakeSubStore{scans: []data.SubscriptionScan{
		activeScan(1, 100, "pollo", "gr", 0),
	}}
	credits := &fakeCreditStore{balances: map[int64]float64{100: 0}}
	notifier := &fakeNotifier{}

	s := newTestScheduler(searcher, subs, credits, singleStoreRegion("gr", "granma"), notifier, false)
	require.NoError(t, s.RunOnce(context.Background()))

	assert.Empty(t, searcher.calls)
	assert.Empty(t, notifier.matched)
}

func TestRescan_DeactivatePolicyMarksGroupProcessed(t *testing.T) {
	searcher := &fakeSearcher{products: map[string][]data.Product{
		"granma": {{ID: "1", Name: "Pollo", Price: "2.50 CUC"}},
	}}
	scans := []data.SubscriptionScan{
		activeScan(1, 100, "pollo", "gr", 5),
		activeScan(2, 200, "pollo", "gr", 5),
	}

	deactivating := &fakeSubStore{scans: scans}
	credits := &fakeCreditStore{balances: map[int64]float64{100: 5, 200: 5}}
	s := newTestScheduler(searcher, deactivating, credits, singleStoreRegion("gr", "granma"), &fakeNotifier{}, true)
	require.NoError(t, s.RunOnce(context.Background()))
	assert.ElementsMatch(t, []int64{1, 2}, deactivating.processed)

	staying := &fakeSubStore{scans: scans}
	credits = &fakeCreditStore{balances: map[int64]float64{100: 5, 200: 5}}
	s = newTestScheduler(searcher, staying, credits, singleStoreRegion("gr", "granma"), &fakeNotifier{}, false)
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Empty(t, staying.processed)
}

func TestRescan_LowCreditNoticeFiresOnceAtZero(t *testing.T) {
	searcher := &fakeSearcher{}
	subs := &fakeSubStore{scans: []data.SubscriptionScan{
		activeScan(1, 100, "pollo", "gr", 1),
	}}
	credits := &fakeCreditStore{balances: map[int64]float64{100: 1}}
	notifier := &fakeNotifier{}

	s := newTestScheduler(searcher, subs, credits, singleStoreRegion("gr", "granma"), notifier, false)
	require.NoError(t, s.RunOnce(context.Background()))

	assert.Equal(t, []int64{100}, notifier.lowCredit)
	assert.Equal(t, []int64{100}, credits.flagged)

	// Already-notified users stay quiet.
	already := activeScan(1, 100, "pollo", "gr", 1)
	already.LowCreditNotified = true
	subs = &fakeSubStore{scans: []data.SubscriptionScan{already}}
	credits = &fakeCreditStore{balances: map[int64]float64{100: 1}}
	notifier = &fakeNotifier{}

	s = newTestScheduler(searcher, subs, credits, singleStoreRegion("gr", "granma"), notifier, false)
	require.NoError(t, s.RunOnce(context.Background()))
	assert.Empty(t, notifier.lowCredit)
}

func TestRescan_NoChargeWhenEveryStoreFetchFails(t *testing.T) {
	searcher := &fakeSearcher{errs: map[string]error{
		"granma": errors.New("dial tcp: connection refused"),
	}}
	subs := &fakeSubStore{scans: []data.SubscriptionScan{
		activeScan(1, 100, "pollo", "gr", 5),
	}}
	credits := &fakeCreditStore{balances: map[int64]float64{100: 5}}
	notifier := &fakeNotifier{}

	s := newTestScheduler(searcher, subs, credits, singleStoreRegion("gr", "granma"), notifier, false)
	require.NoError(t, s.RunOnce(context.Background()))

	assert.Empty(t, credits.deductions, "an outage tick is free")
	assert.Empty(t, notifier.lowCredit)
	// The scan clock still advances so the outage is not retried every tick.
	assert.Equal(t, []int64{1}, subs.lastScanIDs)
}

func TestRescan_FailingGroupDoesNotAbortOthers(t *testing.T) {
	searcher := &fakeSearcher{
		products: map[string][]data.Product{
			"granma": {{ID: "1", Name: "Pollo", Price: "2.50 CUC"}},
		},
	}
	subs := &fakeSubStore{scans: []data.SubscriptionScan{
		activeScan(1, 100, "cafe", "st", 5),
		activeScan(2, 200, "pollo", "gr", 5),
	}}
	credits := &fakeCreditStore{balances: map[int64]float64{100: 5, 200: 5}}
	notifier := &fakeNotifier{}
	stores := &fakeRegionStores{
		stores: map[string][]data.Store{"gr": {{Slug: "granma", RegionCode: "gr", Name: "Granma"}}},
		errs:   map[string]error{"st": errors.New("db unavailable")},
	}

	s := newTestScheduler(searcher, subs, credits, stores, notifier, false)
	require.NoError(t, s.RunOnce(context.Background()))

	assert.Equal(t, []string{"granma"}, searcher.calls)
	assert.Equal(t, []int64{200}, notifier.matched)
}

func TestRescan_DuplicateSubscriptionsChargeOnce(t *testing.T) {
	searcher := &fakeSearcher{products: map[string][]data.Product{
		"granma": {{ID: "1", Name: "Pollo", Price: "2.50 CUC"}},
	}}
	subs := &fakeSubStore{scans: []data.SubscriptionScan{
		activeScan(1, 100, "pollo", "gr", 5),
		activeScan(2, 100, "pollo", "gr", 5), // duplicate row, same user
	}}
	credits := &fakeCreditStore{balances: map[int64]float64{100: 5}}
	notifier := &fakeNotifier{}

	s := newTestScheduler(searcher, subs, credits, singleStoreRegion("gr", "granma"), notifier, false)
	require.NoError(t, s.RunOnce(context.Background()))

	require.Len(t, credits.deductions, 1)
	assert.InDelta(t, 1.0, credits.deductions[0].amount, 1e-9)
	assert.Equal(t, []int64{100}, notifier.matched)
	assert.ElementsMatch(t, []int64{1, 2}, subs.lastScanIDs)
}
