package categories

import (
	"context"

	"github.com/dmitrijs2005/storefront/internal/server/models"
)

// Repository persists catalog categories. Names are unique regardless of case.
type Repository interface {
	Create(ctx context.Context, c *models.Category) (*models.Category, error)
	GetByID(ctx context.Context, id string) (*models.Category, error)
	// NameTaken reports whether another category (other than exceptID) uses name.
	NameTaken(ctx context.Context, name, exceptID string) (bool, error)
	List(ctx context.Context, includeInactive bool) ([]models.Category, error)
	Update(ctx context.Context, c *models.Category) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
}
