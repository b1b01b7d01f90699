// Package cache holds the read-through cache for catalog products.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/storefront/internal/server/models"
)

// ErrMiss is returned by Get when the product is not cached.
var ErrMiss = errors.New("cache miss")

type ProductCache interface {
	Get(ctx context.Context, productID string) (*models.Product, error)
	Set(ctx context.Context, p *models.Product, ttl time.Duration) error
	Delete(ctx context.Context, productID string) error
}

// Noop never stores anything; every Get is a miss.
type Noop struct{}

func (Noop) Get(context.Context, string) (*models.Product, error)       { return nil, ErrMiss }
func (Noop) Set(context.Context, *models.Product, time.Duration) error { return nil }
func (Noop) Delete(context.Context, string) error                      { return nil }
