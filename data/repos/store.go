package repos

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"enviofinder/data"
)

type StoreRepo struct {
	db *sqlx.DB
}

func NewStoreRepo(db *sqlx.DB) *StoreRepo {
	return &StoreRepo{db}
}

func (r *StoreRepo) ListRegions() ([]data.Region, error) {
	var regions []data.Region
	query := "SELECT code, name FROM regions ORDER BY name"

	err := r.db.Select(&regions, query)
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}

	return regions, nil
}

func (r *StoreRepo) GetRegion(code string) (*data.Region, error) {
	var region data.Region
	query := "SELECT code, name FROM regions WHERE code = $1"

	err := r.db.Get(&region, query, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get region: %w", err)
	}

	return &region, nil
}

func (r *StoreRepo) ListStoresByRegion(regionCode string) ([]data.Store, error) {
	var stores []data.Store
	query := "SELECT slug, region_code, name FROM stores WHERE region_code = $1 ORDER BY slug"

	err := r.db.Select(&stores, query, regionCode)
	if err != nil {
		return nil, fmt.Errorf("list stores by region: %w", err)
	}

	return stores, nil
}

func (r *StoreRepo) GetStore(slug string) (*data.Store, error) {
	var store data.Store
	query := "SELECT slug, region_code, name FROM stores WHERE slug = $1"

	err := r.db.Get(&store, query, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get store: %w", err)
	}

	return &store, nil
}
