package catalog

// Package catalog resolves product data for order placement and search.

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/chainshopapp/chainshop/internal/cache"
	"github.com/chainshopapp/chainshop/internal/db"
	"github.com/chainshopapp/chainshop/internal/models"
)

var ErrProductNotFound = errors.New("product not found")

type productStore interface {
	GetByID(ctx context.Context, productID int64) (*models.Product, error)
}

// Reader is a read-through cached view over the product store. Order
// placement resolves every requested item through it.
type Reader struct {
	store  productStore
	cache  cache.Provider
	ttl    time.Duration
	logger *slog.Logger
}

func NewReader(store productStore, cacheProvider cache.Provider, ttl time.Duration, logger *slog.Logger) *Reader {
	return &Reader{
		store:  store,
		cache:  cacheProvider,
		ttl:    ttl,
		logger: logger,
	}
}

// Resolve returns the product for the given id or ErrProductNotFound.
// Cache failures degrade to direct store reads.
func (r *Reader) Resolve(ctx context.Context, productID int64) (*models.Product, error) {
	key := cache.ProductKey(productID)
	if cached, err := r.cache.Get(ctx, key); err == nil {
		var product models.Product
		if err := json.Unmarshal([]byte(cached), &product); err == nil {
			return &product, nil
		}
	}

	product, err := r.store.GetByID(ctx, productID)
	if errors.Is(err, db.ErrProductNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(product); err == nil {
		if err := r.cache.Set(ctx, key, string(encoded), r.ttl); err != nil {
			r.logger.Warn("failed to cache product", "product_id", productID, "error", err)
		}
	}
	return product, nil
}
