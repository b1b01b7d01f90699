package products

import (
	"context"

	"github.com/dmitrijs2005/storefront/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, p *models.Product) (*models.Product, error)
	GetByID(ctx context.Context, id string) (*models.Product, error)
	// GetForCart reads the product row with a share lock; it must run
	// inside a transaction.
	GetForCart(ctx context.Context, id string) (*models.Product, error)
	ListActive(ctx context.Context) ([]models.Product, error)
	ListActiveByCategory(ctx context.Context, categoryID string) ([]models.Product, error)
	Update(ctx context.Context, p *models.Product) error
	SetActive(ctx context.Context, id string, active bool) error
	SetImageKey(ctx context.Context, id, key string) error
	CountByCategory(ctx context.Context, categoryID string) (int, error)
}
