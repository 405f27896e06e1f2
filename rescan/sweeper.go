package rescan

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ExpiryStore expires aged-out subscriptions.
type ExpiryStore interface {
	ExpireOlderThan(cutoff time.Time) (int64, error)
}

// Sweeper expires active subscriptions older than the configured maximum age
// on a cron schedule. Expired is terminal.
type Sweeper struct {
	subs   ExpiryStore
	maxAge time.Duration
	logger *slog.Logger
	cron   *cron.Cron
	now    func() time.Time
}

func NewSweeper(subs ExpiryStore, maxAge time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		subs:   subs,
		maxAge: maxAge,
		logger: logger,
		cron:   cron.New(),
		now:    time.Now,
	}
}

func (s *Sweeper) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.Sweep); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("subscription sweeper started", "schedule", schedule, "max_age", s.maxAge.String())
	return nil
}

func (s *Sweeper) Stop() {
	s.cron.Stop()
}

func (s *Sweeper) Sweep() {
	cutoff := s.now().Add(-s.maxAge)
	n, err := s.subs.ExpireOlderThan(cutoff)
	if err != nil {
		s.logger.Error("subscription sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("subscriptions expired", "count", n, "cutoff", cutoff.Format(time.RFC3339))
	}
}
