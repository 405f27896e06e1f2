package repos

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"enviofinder/data"
	"enviofinder/enums"
)

type SubscriptionRepo struct {
	db        *sqlx.DB
	maxActive int
}

func NewSubscriptionRepo(db *sqlx.DB, maxActive int) *SubscriptionRepo {
	return &SubscriptionRepo{db: db, maxActive: maxActive}
}

func (r *SubscriptionRepo) ActiveCount(userID int64) (int, error) {
	var count int
	query := "SELECT COUNT(*) FROM subscriptions WHERE user_id = $1 AND state = $2"

	err := r.db.Get(&count, query, userID, enums.StateActive)
	if err != nil {
		return 0, fmt.Errorf("active subscription count: %w", err)
	}

	return count, nil
}

// Add inserts a new active subscription. Users without credit are capped at
// maxActive rows (data.ErrSubscriptionLimit); positive credit lifts the cap.
// Duplicate (user, criterion, region) rows are allowed; the scheduler
// de-duplicates them at notification time.
func (r *SubscriptionRepo) Add(sub data.Subscription) (int64, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return 0, fmt.Errorf("begin add subscription: %w", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.Get(&count, "SELECT COUNT(*) FROM subscriptions WHERE user_id = $1 AND state = $2", sub.UserID, enums.StateActive)
	if err != nil {
		return 0, fmt.Errorf("add subscription count: %w", err)
	}

	var credit float64
	err = tx.Get(&credit, "SELECT COALESCE((SELECT credit FROM user_settings WHERE user_id = $1), 0)", sub.UserID)
	if err != nil {
		return 0, fmt.Errorf("add subscription credit: %w", err)
	}

	if count >= r.maxActive && credit <= 0 {
		return 0, data.ErrSubscriptionLimit
	}

	var id int64
	query := `
		INSERT INTO subscriptions (user_id, kind, criterion, region_code, state, scan_frequency_seconds)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err = tx.Get(&id, query, sub.UserID, sub.Kind, sub.Criterion, sub.RegionCode, enums.StateActive, sub.ScanFrequencySeconds)
	if err != nil {
		return 0, fmt.Errorf("add subscription: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit add subscription: %w", err)
	}

	return id, nil
}

// Remove deletes outright and is idempotent.
func (r *SubscriptionRepo) Remove(id, userID int64) error {
	query := "DELETE FROM subscriptions WHERE id = $1 AND user_id = $2"
	_, err := r.db.Exec(query, id, userID)
	if err != nil {
		return fmt.Errorf("remove subscription: %w", err)
	}

	return nil
}

func (r *SubscriptionRepo) ListActive(userID int64) ([]data.Subscription, error) {
	var subs []data.Subscription
	query := `
		SELECT id, user_id, kind, criterion, region_code, state, scan_frequency_seconds, last_scan_at, created_at
		FROM subscriptions
		WHERE user_id = $1 AND state = $2
		ORDER BY created_at DESC`

	err := r.db.Select(&subs, query, userID, enums.StateActive)
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}

	return subs, nil
}

// ListAllActiveScans loads every active subscription joined with its owner's
// credit state in one pass, for the rescan scheduler.
func (r *SubscriptionRepo) ListAllActiveScans() ([]data.SubscriptionScan, error) {
	var scans []data.SubscriptionScan
	query := `
		SELECT s.id, s.user_id, s.kind, s.criterion, s.region_code,
		       s.scan_frequency_seconds, s.last_scan_at,
		       COALESCE(u.credit, 0) AS credit,
		       COALESCE(u.low_credit_notified, false) AS low_credit_notified
		FROM subscriptions s
		LEFT JOIN user_settings u ON u.user_id = s.user_id
		WHERE s.state = $1
		ORDER BY s.created_at ASC`

	err := r.db.Select(&scans, query, enums.StateActive)
	if err != nil {
		return nil, fmt.Errorf("list active scans: %w", err)
	}

	return scans, nil
}

func (r *SubscriptionRepo) MarkProcessed(ids []int64) error {
	return r.setState(ids, enums.StateProcessed, enums.StateActive)
}

func (r *SubscriptionRepo) Reactivate(id, userID int64) error {
	query := "UPDATE subscriptions SET state = $1 WHERE id = $2 AND user_id = $3 AND state = $4"
	_, err := r.db.Exec(query, enums.StateActive, id, userID, enums.StateProcessed)
	if err != nil {
		return fmt.Errorf("reactivate subscription: %w", err)
	}

	return nil
}

func (r *SubscriptionRepo) UpdateLastScan(ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In("UPDATE subscriptions SET last_scan_at = ? WHERE id IN (?)", at, ids)
	if err != nil {
		return fmt.Errorf("build update last scan: %w", err)
	}
	query = r.db.Rebind(query)

	_, err = r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("update last scan: %w", err)
	}

	return nil
}

// ExpireOlderThan moves active subscriptions created before the cutoff to the
// terminal expired state and reports how many were swept.
func (r *SubscriptionRepo) ExpireOlderThan(cutoff time.Time) (int64, error) {
	query := "UPDATE subscriptions SET state = $1 WHERE state = $2 AND created_at < $3"

	res, err := r.db.Exec(query, enums.StateExpired, enums.StateActive, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire subscriptions: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire subscriptions rows affected: %w", err)
	}

	return n, nil
}

func (r *SubscriptionRepo) setState(ids []int64, to, from enums.SubscriptionState) error {
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In("UPDATE subscriptions SET state = ? WHERE state = ? AND id IN (?)", to, from, ids)
	if err != nil {
		return fmt.Errorf("build set state: %w", err)
	}
	query = r.db.Rebind(query)

	_, err = r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("set subscription state: %w", err)
	}

	return nil
}
