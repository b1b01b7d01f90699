package carts

import (
	"context"

	"github.com/dmitrijs2005/storefront/internal/server/models"
)

// Repository persists carts and their lines. Lines are unique per
// (cart, product).
type Repository interface {
	// GetOrCreate returns the id of userID's cart, creating it if needed.
	GetOrCreate(ctx context.Context, userID string) (string, error)
	// FindID returns the id of userID's cart or common.ErrorNotFound.
	FindID(ctx context.Context, userID string) (string, error)
	GetLine(ctx context.Context, cartID, productID string) (*models.CartLine, error)
	// MergeLine adds quantity to the line (inserting it if absent) and
	// refreshes its price, provided the resulting quantity does not exceed
	// stock. ok is false when the stock bound rejected the merge.
	MergeLine(ctx context.Context, cartID, productID string, quantity int, unitPriceCents int64, stock int) (merged int, ok bool, err error)
	SetLine(ctx context.Context, cartID, productID string, quantity int, unitPriceCents int64) error
	DeleteLine(ctx context.Context, cartID, productID string) (bool, error)
	DeleteLines(ctx context.Context, cartID string) (int64, error)
	Lines(ctx context.Context, cartID string) ([]models.CartLine, error)
	Touch(ctx context.Context, cartID string) error
}
