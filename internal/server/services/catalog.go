package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/dbx"
	"github.com/dmitrijs2005/storefront/internal/logging"
	"github.com/dmitrijs2005/storefront/internal/server/cache"
	"github.com/dmitrijs2005/storefront/internal/server/models"
	"github.com/dmitrijs2005/storefront/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/storefront/internal/server/storage"
)

// ImageStore presigns product image transfers.
type ImageStore interface {
	PresignPut(ctx context.Context, key, contentType string) (string, error)
	PresignGet(ctx context.Context, key string) (string, error)
}

// ProductInput carries the writable product fields.
type ProductInput struct {
	Name          string
	Description   string
	PriceCents    int64
	StockQuantity int
	CategoryID    string
	IsActive      bool
	// Rate of zero picks a default between 3 and 5.
	Rate int
}

func (in ProductInput) validate() error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return fmt.Errorf("%w: name is required", common.ErrorValidation)
	case in.PriceCents < 0:
		return fmt.Errorf("%w: price must not be negative", common.ErrorValidation)
	case in.StockQuantity < 0:
		return fmt.Errorf("%w: stock must not be negative", common.ErrorValidation)
	case in.CategoryID == "":
		return fmt.Errorf("%w: category is required", common.ErrorValidation)
	case in.Rate < 0 || in.Rate > 5:
		return fmt.Errorf("%w: rate must be between 1 and 5", common.ErrorValidation)
	}
	return nil
}

func defaultRate() int {
	return 3 + rand.Intn(3)
}

type ProductService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	cache       cache.ProductCache
	cacheTTL    time.Duration
	images      ImageStore
	log         logging.Logger
}

func NewProductService(db *sql.DB, m repomanager.RepositoryManager, c cache.ProductCache, ttl time.Duration, images ImageStore, log logging.Logger) *ProductService {
	if c == nil {
		c = cache.Noop{}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &ProductService{db: db, repomanager: m, cache: c, cacheTTL: ttl, images: images, log: log}
}

func (s *ProductService) Create(ctx context.Context, in ProductInput) (*models.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := s.requireActiveCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}

	rate := in.Rate
	if rate == 0 {
		rate = defaultRate()
	}

	p, err := s.repomanager.Products(s.db).Create(ctx, &models.Product{
		Name:          strings.TrimSpace(in.Name),
		Description:   in.Description,
		PriceCents:    in.PriceCents,
		StockQuantity: in.StockQuantity,
		CategoryID:    in.CategoryID,
		IsActive:      in.IsActive,
		Rate:          rate,
	})
	if err != nil {
		return nil, s.fail(ctx, "create product", err)
	}
	return p, nil
}

// Get returns an active product, reading through the cache. The image URL
// is presigned on every read and never cached.
func (s *ProductService) Get(ctx context.Context, id string) (*models.Product, error) {
	p, err := s.cache.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.log.Warn(ctx, "product cache read", "product_id", id, "error", err)
		}

		p, err = s.repomanager.Products(s.db).GetByID(ctx, id)
		if err != nil {
			return nil, s.fail(ctx, "get product", err)
		}
		if !p.IsActive {
			return nil, common.ErrorNotFound
		}
		if err := s.cache.Set(ctx, p, s.cacheTTL); err != nil {
			s.log.Warn(ctx, "product cache write", "product_id", id, "error", err)
		}
	}

	s.attachImage(ctx, p)
	return p, nil
}

func (s *ProductService) List(ctx context.Context) ([]models.Product, error) {
	list, err := s.repomanager.Products(s.db).ListActive(ctx)
	if err != nil {
		return nil, s.fail(ctx, "list products", err)
	}
	return s.withImages(ctx, list), nil
}

// ListByCategory lists active products of an existing category.
func (s *ProductService) ListByCategory(ctx context.Context, categoryID string) ([]models.Product, error) {
	if _, err := s.repomanager.Categories(s.db).GetByID(ctx, categoryID); err != nil {
		return nil, s.fail(ctx, "list products", err)
	}
	list, err := s.repomanager.Products(s.db).ListActiveByCategory(ctx, categoryID)
	if err != nil {
		return nil, s.fail(ctx, "list products", err)
	}
	return s.withImages(ctx, list), nil
}

func (s *ProductService) Update(ctx context.Context, id string, in ProductInput) (*models.Product, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	repo := s.repomanager.Products(s.db)
	p, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "update product", err)
	}
	if in.CategoryID != p.CategoryID {
		if err := s.requireActiveCategory(ctx, in.CategoryID); err != nil {
			return nil, err
		}
	}

	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.PriceCents = in.PriceCents
	p.StockQuantity = in.StockQuantity
	p.CategoryID = in.CategoryID
	p.IsActive = in.IsActive
	if in.Rate != 0 {
		p.Rate = in.Rate
	}

	if err := repo.Update(ctx, p); err != nil {
		return nil, s.fail(ctx, "update product", err)
	}
	s.evict(ctx, id)

	updated, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "update product", err)
	}
	s.attachImage(ctx, updated)
	return updated, nil
}

// Delete deactivates a product. Cart lines referencing it stay but can no
// longer be added to or updated.
func (s *ProductService) Delete(ctx context.Context, id string) error {
	if err := s.repomanager.Products(s.db).SetActive(ctx, id, false); err != nil {
		return s.fail(ctx, "delete product", err)
	}
	s.evict(ctx, id)
	return nil
}

// ImageUploadURL records a fresh image key for the product and returns a
// presigned PUT URL for it.
func (s *ProductService) ImageUploadURL(ctx context.Context, id, filename, contentType string) (*models.ImageUpload, error) {
	if s.images == nil {
		return nil, s.fail(ctx, "image upload", errors.New("image storage is not configured"))
	}
	repo := s.repomanager.Products(s.db)
	if _, err := repo.GetByID(ctx, id); err != nil {
		return nil, s.fail(ctx, "image upload", err)
	}

	key := storage.ProductImageKey(id, filename)
	url, err := s.images.PresignPut(ctx, key, contentType)
	if err != nil {
		return nil, s.fail(ctx, "image upload", err)
	}

	if err := repo.SetImageKey(ctx, id, key); err != nil {
		return nil, s.fail(ctx, "image upload", err)
	}
	s.evict(ctx, id)

	return &models.ImageUpload{ProductID: id, Key: key, URL: url}, nil
}

func (s *ProductService) requireActiveCategory(ctx context.Context, id string) error {
	c, err := s.repomanager.Categories(s.db).GetByID(ctx, id)
	if err != nil {
		return s.fail(ctx, "category lookup", err)
	}
	if !c.IsActive {
		return fmt.Errorf("%w: category is inactive", common.ErrorValidation)
	}
	return nil
}

func (s *ProductService) attachImage(ctx context.Context, p *models.Product) {
	if p.ImageKey == "" || s.images == nil {
		return
	}
	url, err := s.images.PresignGet(ctx, p.ImageKey)
	if err != nil {
		s.log.Warn(ctx, "presign product image", "product_id", p.ID, "error", err)
		return
	}
	p.ImageURL = url
}

func (s *ProductService) withImages(ctx context.Context, list []models.Product) []models.Product {
	if list == nil {
		return []models.Product{}
	}
	for i := range list {
		s.attachImage(ctx, &list[i])
	}
	return list
}

func (s *ProductService) evict(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, id); err != nil {
		s.log.Warn(ctx, "product cache evict", "product_id", id, "error", err)
	}
}

func (s *ProductService) fail(ctx context.Context, op string, err error) error {
	return translate(ctx, s.log, op, err, common.ErrorNotFound, common.ErrorValidation)
}

// CategoryInput carries the writable category fields.
type CategoryInput struct {
	Name         string
	Description  string
	IsActive     bool
	ImageURL     string
	DisplayOrder int
}

type CategoryService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
}

func NewCategoryService(db *sql.DB, m repomanager.RepositoryManager, log logging.Logger) *CategoryService {
	if log == nil {
		log = logging.Nop()
	}
	return &CategoryService{db: db, repomanager: m, log: log}
}

// Create adds a category. Names are unique regardless of case.
func (s *CategoryService) Create(ctx context.Context, in CategoryInput) (*models.Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", common.ErrorValidation)
	}

	repo := s.repomanager.Categories(s.db)
	taken, err := repo.NameTaken(ctx, name, "")
	if err != nil {
		return nil, s.fail(ctx, "create category", err)
	}
	if taken {
		return nil, fmt.Errorf("%w: category %q", common.ErrorConflict, name)
	}

	c, err := repo.Create(ctx, &models.Category{
		Name:         name,
		Description:  in.Description,
		IsActive:     in.IsActive,
		ImageURL:     in.ImageURL,
		DisplayOrder: in.DisplayOrder,
	})
	if err != nil {
		return nil, s.fail(ctx, "create category", err)
	}
	return c, nil
}

// Get returns a category with its product count. Inactive categories are
// hidden unless includeInactive is set.
func (s *CategoryService) Get(ctx context.Context, id string, includeInactive bool) (*models.Category, error) {
	c, err := s.repomanager.Categories(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "get category", err)
	}
	if !c.IsActive && !includeInactive {
		return nil, common.ErrorNotFound
	}
	return c, nil
}

func (s *CategoryService) List(ctx context.Context, includeInactive bool) ([]models.Category, error) {
	list, err := s.repomanager.Categories(s.db).List(ctx, includeInactive)
	if err != nil {
		return nil, s.fail(ctx, "list categories", err)
	}
	if list == nil {
		list = []models.Category{}
	}
	return list, nil
}

func (s *CategoryService) Update(ctx context.Context, id string, in CategoryInput) (*models.Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", common.ErrorValidation)
	}

	repo := s.repomanager.Categories(s.db)
	c, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "update category", err)
	}

	taken, err := repo.NameTaken(ctx, name, id)
	if err != nil {
		return nil, s.fail(ctx, "update category", err)
	}
	if taken {
		return nil, fmt.Errorf("%w: category %q", common.ErrorConflict, name)
	}

	c.Name = name
	c.Description = in.Description
	c.IsActive = in.IsActive
	c.ImageURL = in.ImageURL
	c.DisplayOrder = in.DisplayOrder

	if err := repo.Update(ctx, c); err != nil {
		return nil, s.fail(ctx, "update category", err)
	}
	return c, nil
}

// SoftDelete deactivates a category that no product references.
func (s *CategoryService) SoftDelete(ctx context.Context, id string) error {
	return s.remove(ctx, "soft delete category", id, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repomanager.Categories(tx).SetActive(ctx, id, false)
	})
}

// HardDelete removes a category that no product references.
func (s *CategoryService) HardDelete(ctx context.Context, id string) error {
	return s.remove(ctx, "hard delete category", id, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repomanager.Categories(tx).Delete(ctx, id)
	})
}

func (s *CategoryService) remove(ctx context.Context, op, id string, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Categories(tx).GetByID(ctx, id); err != nil {
			return err
		}
		n, err := s.repomanager.Products(tx).CountByCategory(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: category has %d product(s)", common.ErrorConflict, n)
		}
		return fn(ctx, tx)
	})
	if err != nil {
		return s.fail(ctx, op, err)
	}
	return nil
}

func (s *CategoryService) fail(ctx context.Context, op string, err error) error {
	return translate(ctx, s.log, op, err, common.ErrorNotFound, common.ErrorConflict, common.ErrorValidation)
}
