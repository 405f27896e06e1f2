package repos

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"enviofinder/data"
)

type SettingsRepo struct {
	db            *sqlx.DB
	defaultRegion string
	defaultCredit float64
}

func NewSettingsRepo(db *sqlx.DB, defaultRegion string, defaultCredit float64) *SettingsRepo {
	return &SettingsRepo{db: db, defaultRegion: defaultRegion, defaultCredit: defaultCredit}
}

// GetOrCreate returns the user's settings, creating a row with the default
// region and initial credit grant on first contact.
func (r *SettingsRepo) GetOrCreate(userID int64) (*data.UserSettings, error) {
	var settings data.UserSettings
	query := `
		INSERT INTO user_settings (user_id, region_code, credit)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING user_id, region_code, store_slug, department_id, credit, low_credit_notified, created_at, updated_at`

	err := r.db.Get(&settings, query, userID, r.defaultRegion, r.defaultCredit)
	if err != nil {
		return nil, fmt.Errorf("get or create user settings: %w", err)
	}

	return &settings, nil
}

func (r *SettingsRepo) SetRegion(userID int64, regionCode string) error {
	// Changing region drops the store selection; the old store may not
	// belong to the new region.
	query := `
		UPDATE user_settings
		SET region_code = $2, store_slug = NULL, updated_at = now()
		WHERE user_id = $1`

	_, err := r.db.Exec(query, userID, regionCode)
	if err != nil {
		return fmt.Errorf("set region: %w", err)
	}

	return nil
}

func (r *SettingsRepo) SetStore(userID int64, storeSlug string) error {
	query := "UPDATE user_settings SET store_slug = $2, updated_at = now() WHERE user_id = $1"

	_, err := r.db.Exec(query, userID, storeSlug)
	if err != nil {
		return fmt.Errorf("set store: %w", err)
	}

	return nil
}

func (r *SettingsRepo) SetDepartment(userID int64, departmentID string) error {
	query := "UPDATE user_settings SET department_id = $2, updated_at = now() WHERE user_id = $1"

	_, err := r.db.Exec(query, userID, departmentID)
	if err != nil {
		return fmt.Errorf("set department: %w", err)
	}

	return nil
}

// DeductCredit subtracts amount from the user's balance with a floor of zero,
// appends a ledger entry, and returns the new balance.
func (r *SettingsRepo) DeductCredit(userID int64, amount float64, reason string) (float64, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return 0, fmt.Errorf("begin deduct credit: %w", err)
	}
	defer tx.Rollback()

	var balance float64
	query := `
		UPDATE user_settings
		SET credit = GREATEST(credit - $2, 0), updated_at = now()
		WHERE user_id = $1
		RETURNING credit`

	err = tx.Get(&balance, query, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("deduct credit: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO credit_entries (user_id, delta, reason)
		VALUES ($1, $2, $3)`,
		userID, -amount, reason)
	if err != nil {
		return 0, fmt.Errorf("insert credit entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit deduct credit: %w", err)
	}

	return balance, nil
}

func (r *SettingsRepo) GrantCredit(userID int64, amount float64, reason string) (float64, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return 0, fmt.Errorf("begin grant credit: %w", err)
	}
	defer tx.Rollback()

	var balance float64
	query := `
		UPDATE user_settings
		SET credit = credit + $2, low_credit_notified = false, updated_at = now()
		WHERE user_id = $1
		RETURNING credit`

	err = tx.Get(&balance, query, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("grant credit: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO credit_entries (user_id, delta, reason)
		VALUES ($1, $2, $3)`,
		userID, amount, reason)
	if err != nil {
		return 0, fmt.Errorf("insert credit entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit grant credit: %w", err)
	}

	return balance, nil
}

func (r *SettingsRepo) SetLowCreditNotified(userID int64) error {
	query := "UPDATE user_settings SET low_credit_notified = true, updated_at = now() WHERE user_id = $1"

	_, err := r.db.Exec(query, userID)
	if err != nil {
		return fmt.Errorf("set low credit notified: %w", err)
	}

	return nil
}
