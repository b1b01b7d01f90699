// Package products provides PostgreSQL-backed catalog product storage.
package products

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/dbx"
	"github.com/dmitrijs2005/storefront/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectProduct = `
	SELECT p.id, p.name, p.description, p.price_cents, p.stock_quantity, p.category_id, c.name,
		p.image_key, p.is_active, p.rate, p.created_at, p.updated_at
	FROM products p
	JOIN categories c ON c.id = p.category_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (*models.Product, error) {
	var p models.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.StockQuantity, &p.CategoryID, &p.CategoryName,
		&p.ImageKey, &p.IsActive, &p.Rate, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresRepository) Create(ctx context.Context, p *models.Product) (*models.Product, error) {
	query := `
		INSERT INTO products (name, description, price_cents, stock_quantity, category_id, image_key, is_active, rate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(ctx, query,
		p.Name, p.Description, p.PriceCents, p.StockQuantity, p.CategoryID, p.ImageKey, p.IsActive, p.Rate,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, selectProduct+` WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) GetForCart(ctx context.Context, id string) (*models.Product, error) {
	query := `
		SELECT id, name, price_cents, stock_quantity, is_active
		FROM products WHERE id = $1
		FOR SHARE`

	var p models.Product
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.PriceCents, &p.StockQuantity, &p.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &p, nil
}

func (r *PostgresRepository) ListActive(ctx context.Context) ([]models.Product, error) {
	return r.list(ctx, selectProduct+` WHERE p.is_active ORDER BY p.name, p.id`)
}

func (r *PostgresRepository) ListActiveByCategory(ctx context.Context, categoryID string) ([]models.Product, error) {
	return r.list(ctx, selectProduct+` WHERE p.is_active AND p.category_id = $1 ORDER BY p.name, p.id`, categoryID)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]models.Product, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select products: %w", err)
	}
	defer rows.Close()

	var result []models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Update(ctx context.Context, p *models.Product) error {
	query := `
		UPDATE products SET name = $2, description = $3, price_cents = $4, stock_quantity = $5,
			category_id = $6, is_active = $7, rate = $8, updated_at = now()
		WHERE id = $1`

	return r.exec(ctx, query, p.ID, p.Name, p.Description, p.PriceCents, p.StockQuantity, p.CategoryID, p.IsActive, p.Rate)
}

func (r *PostgresRepository) SetActive(ctx context.Context, id string, active bool) error {
	return r.exec(ctx, `UPDATE products SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
}

func (r *PostgresRepository) SetImageKey(ctx context.Context, id, key string) error {
	return r.exec(ctx, `UPDATE products SET image_key = $2, updated_at = now() WHERE id = $1`, id, key)
}

func (r *PostgresRepository) CountByCategory(ctx context.Context, categoryID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM products WHERE category_id = $1`, categoryID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
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
