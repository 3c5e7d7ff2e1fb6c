package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chainshopapp/chainshop/internal/models"
)

var ErrProductNotFound = errors.New("product not found")

type ProductStore struct {
	pool *pgxpool.Pool
}

func NewProductStore(pool *pgxpool.Pool) *ProductStore {
	return &ProductStore{pool: pool}
}

func (s *ProductStore) GetByID(ctx context.Context, productID int64) (*models.Product, error) {
	product := &models.Product{}
	err := s.pool.QueryRow(ctx,
		`SELECT p.id, p.name, p.price_cents,
		        COALESCE(ARRAY_AGG(c.name ORDER BY c.name) FILTER (WHERE c.name IS NOT NULL), '{}')
		 FROM products p
		 LEFT JOIN product_categories pc ON pc.product_id = p.id
		 LEFT JOIN categories c ON c.id = pc.category_id
		 WHERE p.id = $1
		 GROUP BY p.id`, productID,
	).Scan(&product.ID, &product.Name, &product.PriceCents, &product.Categories)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return product, nil
}

func (s *ProductStore) ExistsByName(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE name = $1)`, name).Scan(&exists)
	return exists, err
}

func (s *ProductStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&count)
	return count, err
}

// Create inserts a product and links it to its categories, creating any
// category that does not exist yet. Single transaction per product.
func (s *ProductStore) Create(ctx context.Context, name string, priceCents int64, categories []string) (*models.Product, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	product := &models.Product{Name: name, PriceCents: priceCents, Categories: categories}
	err = tx.QueryRow(ctx,
		`INSERT INTO products (name, price_cents) VALUES ($1, $2) RETURNING id`,
		name, priceCents).Scan(&product.ID)
	if err != nil {
		return nil, err
	}

	for _, category := range categories {
		var categoryID int64
		err = tx.QueryRow(ctx,
			`INSERT INTO categories (name) VALUES ($1)
			 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			 RETURNING id`, category).Scan(&categoryID)
		if err != nil {
			return nil, err
		}
		if _, err = tx.Exec(ctx,
			`INSERT INTO product_categories (product_id, category_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`, product.ID, categoryID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return product, nil
}

// Search returns products whose name contains name and that belong to a
// category whose name contains category, plus the union of category names
// across the matched products.
func (s *ProductStore) Search(ctx context.Context, name, category string) ([]*models.Product, []string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.name, p.price_cents,
		        COALESCE(ARRAY_AGG(DISTINCT c2.name) FILTER (WHERE c2.name IS NOT NULL), '{}')
		 FROM products p
		 JOIN product_categories pc ON pc.product_id = p.id
		 JOIN categories c ON c.id = pc.category_id
		 LEFT JOIN product_categories pc2 ON pc2.product_id = p.id
		 LEFT JOIN categories c2 ON c2.id = pc2.category_id
		 WHERE p.name LIKE '%' || $1 || '%' AND c.name LIKE '%' || $2 || '%'
		 GROUP BY p.id
		 ORDER BY p.id`, name, category)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var products []*models.Product
	seen := make(map[string]bool)
	var categories []string
	for rows.Next() {
		product := &models.Product{}
		if err := rows.Scan(&product.ID, &product.Name, &product.PriceCents, &product.Categories); err != nil {
			return nil, nil, err
		}
		products = append(products, product)
		for _, categoryName := range product.Categories {
			if !seen[categoryName] {
				seen[categoryName] = true
				categories = append(categories, categoryName)
			}
		}
	}
	return products, categories, rows.Err()
}

type ProductStatistic struct {
	Name    string `json:"name"`
	Sold    int64  `json:"sold"`
	Waiting int64  `json:"waiting"`
}

// ProductStatistics reports, per product that appears in at least one
// order, the quantity delivered (COMPLETE orders) and the quantity still
// waiting (all other orders).
func (s *ProductStore) ProductStatistics(ctx context.Context) ([]ProductStatistic, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.name,
		        COALESCE(SUM(oi.quantity) FILTER (WHERE o.status = 'COMPLETE'), 0),
		        COALESCE(SUM(oi.quantity) FILTER (WHERE o.status <> 'COMPLETE'), 0)
		 FROM products p
		 JOIN order_items oi ON oi.product_id = p.id
		 JOIN orders o ON o.id = oi.order_id
		 GROUP BY p.id
		 ORDER BY p.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []ProductStatistic
	for rows.Next() {
		var stat ProductStatistic
		if err := rows.Scan(&stat.Name, &stat.Sold, &stat.Waiting); err != nil {
			return nil, err
		}
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}

// CategoryStatistics returns all category names ordered by delivered
// quantity descending, then by name.
func (s *ProductStore) CategoryStatistics(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.name
		 FROM categories c
		 LEFT JOIN product_categories pc ON pc.category_id = c.id
		 LEFT JOIN products p ON p.id = pc.product_id
		 LEFT JOIN order_items oi ON oi.product_id = p.id
		 LEFT JOIN orders o ON o.id = oi.order_id
		 GROUP BY c.id
		 ORDER BY COALESCE(SUM(oi.quantity) FILTER (WHERE o.status = 'COMPLETE'), 0) DESC, c.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
