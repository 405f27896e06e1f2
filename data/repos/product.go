package repos

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"enviofinder/data"
)

type ProductRepo struct {
	db *sqlx.DB
}

func NewProductRepo(db *sqlx.DB) *ProductRepo {
	return &ProductRepo{db}
}

// RegisterProducts inserts every product not seen before. Re-registering an
// existing id is a no-op, so the first observed name and price stick.
func (r *ProductRepo) RegisterProducts(products []data.Product) error {
	if len(products) == 0 {
		return nil
	}

	query := `
		INSERT INTO products (id, name, price, link, department_id, first_seen_at)
		VALUES (:id, :name, :price, :link, :department_id, now())
		ON CONFLICT (id) DO NOTHING`

	_, err := r.db.NamedExec(query, products)
	if err != nil {
		return fmt.Errorf("register products: %w", err)
	}

	return nil
}

func (r *ProductRepo) GetProduct(id string) (*data.Product, error) {
	var product data.Product
	query := "SELECT * FROM products WHERE id = $1"

	err := r.db.Get(&product, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return &product, nil
}
