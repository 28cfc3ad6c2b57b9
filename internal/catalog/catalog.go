// Package catalog serves cached product and collection reads to the UI.
package catalog

import (
	"context"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/thomas/storefront-terminal-go/internal/cache"
	"github.com/thomas/storefront-terminal-go/internal/shop"
)

// DefaultCollectionLimit caps collection listings.
const DefaultCollectionLimit = 50

// Source is the storefront read API. *shop.Client implements it.
type Source interface {
	GetProduct(ctx context.Context, handle string) (*shop.Product, error)
	GetCollectionProducts(ctx context.Context, handle string, limit int) ([]shop.CollectionProduct, error)
}

// Catalog wraps a Source with per-handle TTL caches.
type Catalog struct {
	src         Source
	logger      *log.Logger
	limit       int
	products    *cache.Cache[string, *shop.Product]
	collections *cache.Cache[string, []shop.CollectionProduct]
	shuffle     func(n int, swap func(i, j int))
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger for cache misses.
func WithLogger(l *log.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCollectionLimit sets how many products a collection read asks for.
func WithCollectionLimit(n int) Option {
	return func(c *Catalog) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithRand makes Deals deterministic.
func WithRand(r *rand.Rand) Option {
	return func(c *Catalog) {
		c.shuffle = r.Shuffle
	}
}

// New creates a catalog whose entries live for ttl.
func New(src Source, ttl time.Duration, opts ...Option) *Catalog {
	c := &Catalog{
		src:         src,
		logger:      log.Default(),
		limit:       DefaultCollectionLimit,
		products:    cache.New[string, *shop.Product](ttl),
		collections: cache.New[string, []shop.CollectionProduct](ttl),
		shuffle:     rand.Shuffle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Product returns a product by handle.
func (c *Catalog) Product(ctx context.Context, handle string) (*shop.Product, error) {
	handle = strings.TrimSpace(handle)
	return c.products.GetOrLoad(ctx, handle, func(ctx context.Context) (*shop.Product, error) {
		c.logger.Debug("catalog miss", "product", handle)
		return c.src.GetProduct(ctx, handle)
	})
}

// Collection returns the products of a collection. Callers must not modify
// the returned slice.
func (c *Catalog) Collection(ctx context.Context, handle string) ([]shop.CollectionProduct, error) {
	handle = strings.TrimSpace(handle)
	return c.collections.GetOrLoad(ctx, handle, func(ctx context.Context) ([]shop.CollectionProduct, error) {
		c.logger.Debug("catalog miss", "collection", handle)
		return c.src.GetCollectionProducts(ctx, handle, c.limit)
	})
}

// Deals returns up to n available products of a collection in random order.
// n <= 0 returns all of them.
func (c *Catalog) Deals(ctx context.Context, handle string, n int) ([]shop.CollectionProduct, error) {
	products, err := c.Collection(ctx, handle)
	if err != nil {
		return nil, err
	}

	deals := slices.DeleteFunc(slices.Clone(products), func(p shop.CollectionProduct) bool {
		v := p.DefaultVariant()
		return v == nil || !v.Available
	})
	c.shuffle(len(deals), func(i, j int) {
		deals[i], deals[j] = deals[j], deals[i]
	})
	if n > 0 && len(deals) > n {
		deals = deals[:n]
	}
	return deals, nil
}

// Invalidate forgets a cached product and collection with the given handle.
func (c *Catalog) Invalidate(handle string) {
	c.products.Invalidate(handle)
	c.collections.Invalidate(handle)
}
