package rescan

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"enviofinder/data"
	"enviofinder/enums"
)

type fakeExpiryStore struct {
	subs []data.Subscription
	err  error
}

func (f *fakeExpiryStore) ExpireOlderThan(cutoff time.Time) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	var n int64
	for i, sub := range f.subs {
		if sub.State == enums.StateActive && sub.CreatedAt.Before(cutoff) {
			f.subs[i].State = enums.StateExpired
			n++
		}
	}
	return n, nil
}

func TestSweep_ExpiresOnlyBeyondMaxAge(t *testing.T) {
	store := &fakeExpiryStore{subs: []data.Subscription{
		{ID: 1, State: enums.StateActive, CreatedAt: testNow.Add(-25 * time.Hour)},
		{ID: 2, State: enums.StateActive, CreatedAt: testNow.Add(-23 * time.Hour)},
	}}

	sweeper := NewSweeper(store, 24*time.Hour, slog.Default())
	sweeper.now = func() time.Time { return testNow }
	sweeper.Sweep()

	assert.Equal(t, enums.StateExpired, store.subs[0].State)
	assert.Equal(t, enums.StateActive, store.subs[1].State)
}

func TestSweep_LeavesProcessedAlone(t *testing.T) {
	store := &fakeExpiryStore{subs: []data.Subscription{
		{ID: 1, State: enums.StateProcessed, CreatedAt: testNow.Add(-48 * time.Hour)},
	}}

	sweeper := NewSweeper(store, 24*time.Hour, slog.Default())
	sweeper.now = func() time.Time { return testNow }
	sweeper.Sweep()

	assert.Equal(t, enums.StateProcessed, store.subs[0].State)
}
