// Package carts provides PostgreSQL-backed storage for shopping carts.
package carts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/dbx"
	"github.com/dmitrijs2005/storefront/internal/server/models"
)

// PostgresRepository implements cart storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetOrCreate relies on the unique user_id constraint so concurrent first
// adds converge on one row.
func (r *PostgresRepository) GetOrCreate(ctx context.Context, userID string) (string, error) {
	query := `
		INSERT INTO carts (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = now()
		RETURNING id`

	var id string
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&id); err != nil {
		return "", fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) FindID(ctx context.Context, userID string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM carts WHERE user_id = $1`, userID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrorNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) GetLine(ctx context.Context, cartID, productID string) (*models.CartLine, error) {
	query := `
		SELECT id, cart_id, product_id, quantity, unit_price_cents, added_at
		FROM cart_items WHERE cart_id = $1 AND product_id = $2`

	var l models.CartLine
	err := r.db.QueryRowContext(ctx, query, cartID, productID).
		Scan(&l.ID, &l.CartID, &l.ProductID, &l.Quantity, &l.UnitPriceCents, &l.AddedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &l, nil
}

// MergeLine is a single conditional upsert: the row lock taken by ON CONFLICT
// DO UPDATE serialises concurrent merges on the same line, and the WHERE
// clause turns an over-stock merge into "no row returned".
func (r *PostgresRepository) MergeLine(ctx context.Context, cartID, productID string, quantity int, unitPriceCents int64, stock int) (int, bool, error) {
	query := `
		INSERT INTO cart_items (cart_id, product_id, quantity, unit_price_cents)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET
			quantity = cart_items.quantity + EXCLUDED.quantity,
			unit_price_cents = EXCLUDED.unit_price_cents,
			updated_at = now()
			WHERE cart_items.quantity + EXCLUDED.quantity <= $5
		RETURNING quantity`

	var merged int
	err := r.db.QueryRowContext(ctx, query, cartID, productID, quantity, unitPriceCents, stock).Scan(&merged)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("db error: %w", err)
	}
	return merged, true, nil
}

func (r *PostgresRepository) SetLine(ctx context.Context, cartID, productID string, quantity int, unitPriceCents int64) error {
	query := `
		UPDATE cart_items SET quantity = $3, unit_price_cents = $4, updated_at = now()
		WHERE cart_id = $1 AND product_id = $2`

	res, err := r.db.ExecContext(ctx, query, cartID, productID, quantity, unitPriceCents)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteLine(ctx context.Context, cartID, productID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`, cartID, productID)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresRepository) DeleteLines(ctx context.Context, cartID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

// Lines returns the cart's lines in insertion order with product names.
func (r *PostgresRepository) Lines(ctx context.Context, cartID string) ([]models.CartLine, error) {
	query := `
		SELECT ci.id, ci.cart_id, ci.product_id, p.name, ci.quantity, ci.unit_price_cents, ci.added_at
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.added_at, ci.id`

	rows, err := r.db.QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to select cart items: %w", err)
	}
	defer rows.Close()

	var result []models.CartLine
	for rows.Next() {
		var l models.CartLine
		if err := rows.Scan(&l.ID, &l.CartID, &l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPriceCents, &l.AddedAt); err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Touch(ctx context.Context, cartID string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE carts SET updated_at = now() WHERE id = $1`, cartID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
