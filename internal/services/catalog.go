package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chainshopapp/chainshop/internal/catalog"
	"github.com/chainshopapp/chainshop/internal/db"
	"github.com/chainshopapp/chainshop/internal/logging"
	"github.com/chainshopapp/chainshop/internal/models"
	"github.com/chainshopapp/chainshop/internal/observability"
)

type catalogStore interface {
	ExistsByName(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, name string, priceCents int64, categories []string) (*models.Product, error)
	Search(ctx context.Context, name, category string) ([]*models.Product, []string, error)
	ProductStatistics(ctx context.Context) ([]db.ProductStatistic, error)
	CategoryStatistics(ctx context.Context) ([]string, error)
}

// CatalogService covers the owner-facing catalog management and the
// customer-facing search.
type CatalogService struct {
	products catalogStore
	logger   *slog.Logger
}

func NewCatalogService(products catalogStore, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		products: products,
		logger:   logger,
	}
}

func (s *CatalogService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

type SearchProduct struct {
	Categories []string `json:"categories"`
	ID         int64    `json:"id"`
	Name       string   `json:"name"`
	Price      float64  `json:"price"`
}

// Search matches products by name and category substring.
func (s *CatalogService) Search(ctx context.Context, identity Identity, name, category string) ([]SearchProduct, []string, error) {
	if !identity.HasRole(models.RoleCustomer) {
		return nil, nil, ErrUnauthorized
	}

	products, categories, err := s.products.Search(ctx, name, category)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to search products: %w", err)
	}

	results := make([]SearchProduct, 0, len(products))
	for _, product := range products {
		results = append(results, SearchProduct{
			Categories: product.Categories,
			ID:         product.ID,
			Name:       product.Name,
			Price:      product.Price(),
		})
	}
	return results, categories, nil
}

// ImportProducts loads a CSV payload of "categories,name,price" lines.
// The whole payload is validated before anything is written.
func (s *CatalogService) ImportProducts(ctx context.Context, identity Identity, content string) error {
	if !identity.HasRole(models.RoleOwner) {
		return ErrUnauthorized
	}

	meter := observability.MeterFromContext(ctx)

	products, err := catalog.ParseImport(content)
	if err != nil {
		var importErr *catalog.ImportError
		if errors.As(err, &importErr) {
			if errors.Is(importErr, catalog.ErrFieldCount) {
				return validationError("Incorrect number of values on line %d.", importErr.Line)
			}
			return validationError("Incorrect price on line %d.", importErr.Line)
		}
		return fmt.Errorf("failed to parse import: %w", err)
	}

	for _, product := range products {
		exists, err := s.products.ExistsByName(ctx, product.Name)
		if err != nil {
			return fmt.Errorf("failed to check product %s: %w", product.Name, err)
		}
		if exists {
			return validationError("Product %s already exists.", product.Name)
		}
	}

	for _, product := range products {
		if _, err := s.products.Create(ctx, product.Name, product.PriceCents, product.Categories); err != nil {
			return fmt.Errorf("failed to create product %s: %w", product.Name, err)
		}
	}

	meter.Count("catalog.products.imported", int64(len(products)))
	s.loggerFromContext(ctx).Info("products imported", "count", len(products))
	return nil
}

// ProductStatistics reports delivered and waiting quantities per product.
func (s *CatalogService) ProductStatistics(ctx context.Context, identity Identity) ([]db.ProductStatistic, error) {
	if !identity.HasRole(models.RoleOwner) {
		return nil, ErrUnauthorized
	}

	stats, err := s.products.ProductStatistics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute product statistics: %w", err)
	}
	return stats, nil
}

// CategoryStatistics lists category names by delivered volume.
func (s *CatalogService) CategoryStatistics(ctx context.Context, identity Identity) ([]string, error) {
	if !identity.HasRole(models.RoleOwner) {
		return nil, ErrUnauthorized
	}

	stats, err := s.products.CategoryStatistics(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compute category statistics: %w", err)
	}
	return stats, nil
}

// SeedCatalog imports the boot-time catalog file when the table is empty.
func SeedCatalog(ctx context.Context, store interface {
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, name string, priceCents int64, categories []string) (*models.Product, error)
}, seed *catalog.Seed, logger *slog.Logger) error {
	count, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count products: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, product := range seed.Products {
		if _, err := store.Create(ctx, product.Name, product.PriceCents, product.Categories); err != nil {
			return fmt.Errorf("failed to seed product %s: %w", product.Name, err)
		}
	}
	logger.Info("catalog seeded", "products", len(seed.Products))
	return nil
}
