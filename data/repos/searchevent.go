package repos

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"enviofinder/data"
)

type SearchEventRepo struct {
	db *sqlx.DB
}

func NewSearchEventRepo(db *sqlx.DB) *SearchEventRepo {
	return &SearchEventRepo{db}
}

func (r *SearchEventRepo) LatestEvent(kind, criterion, storeSlug string) (*data.SearchEvent, error) {
	var event data.SearchEvent
	query := `
		SELECT id, user_id, kind, criterion, store_slug, searched_at
		FROM search_events
		WHERE kind = $1 AND criterion = $2 AND store_slug = $3
		ORDER BY searched_at DESC
		LIMIT 1`

	err := r.db.Get(&event, query, kind, criterion, storeSlug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest search event: %w", err)
	}

	return &event, nil
}

func (r *SearchEventRepo) EventProducts(eventID int64) ([]data.Product, error) {
	var products []data.Product
	query := `
		SELECT p.id, p.name, p.price, p.link, p.department_id, p.first_seen_at
		FROM search_event_products sep
		JOIN products p ON p.id = sep.product_id
		WHERE sep.event_id = $1
		ORDER BY sep.position`

	err := r.db.Select(&products, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("event products: %w", err)
	}

	return products, nil
}

// InsertEvent appends a search event together with its result rows as one
// logical write.
func (r *SearchEventRepo) InsertEvent(event data.SearchEvent, productIDs []string) (int64, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return 0, fmt.Errorf("begin insert event: %w", err)
	}
	defer tx.Rollback()

	var id int64
	query := `
		INSERT INTO search_events (user_id, kind, criterion, store_slug, searched_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err = tx.Get(&id, query, event.UserID, event.Kind, event.Criterion, event.StoreSlug, event.SearchedAt)
	if err != nil {
		return 0, fmt.Errorf("insert search event: %w", err)
	}

	for i, productID := range productIDs {
		_, err = tx.Exec(`
			INSERT INTO search_event_products (event_id, product_id, position)
			VALUES ($1, $2, $3)
			ON CONFLICT (event_id, product_id) DO NOTHING`,
			id, productID, i)
		if err != nil {
			return 0, fmt.Errorf("insert event product: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert event: %w", err)
	}

	return id, nil
}

// CountDistinctSearchesSince counts the user's distinct search criteria in
// the window. A region-wide search writes one event per store; counting
// distinct (kind, criterion) makes the fan-out cost one quota unit, and fully
// cached searches cost none.
func (r *SearchEventRepo) CountDistinctSearchesSince(userID int64, since time.Time) (int, error) {
	var count int
	query := `
		SELECT COUNT(DISTINCT (kind, criterion))
		FROM search_events
		WHERE user_id = $1 AND searched_at >= $2`

	err := r.db.Get(&count, query, userID, since)
	if err != nil {
		return 0, fmt.Errorf("count user searches: %w", err)
	}

	return count, nil
}
