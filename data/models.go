package data

import (
	"time"

	"enviofinder/enums"
)

// SubscriptionScan is the batch row the rescan scheduler works from:
// one active subscription joined with its owner's credit state, so a tick
// needs a single query instead of per-subscription lookups.
type SubscriptionScan struct {
	ID                   int64               `db:"id"`
	UserID               int64               `db:"user_id"`
	Kind                 enums.CriterionKind `db:"kind"`
	Criterion            string              `db:"criterion"`
	RegionCode           string              `db:"region_code"`
	ScanFrequencySeconds int                 `db:"scan_frequency_seconds"`
	LastScanAt           *time.Time          `db:"last_scan_at"`
	Credit               float64             `db:"credit"`
	LowCreditNotified    bool                `db:"low_credit_notified"`
}
