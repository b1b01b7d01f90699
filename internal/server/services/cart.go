package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/dbx"
	"github.com/dmitrijs2005/storefront/internal/logging"
	"github.com/dmitrijs2005/storefront/internal/server/events"
	"github.com/dmitrijs2005/storefront/internal/server/models"
	"github.com/dmitrijs2005/storefront/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/storefront/internal/timex"
)

// Cart actions reported in cart.updated events.
const (
	CartActionAdd    = "add"
	CartActionUpdate = "update"
	CartActionRemove = "remove"
	CartActionClear  = "clear"
)

// CartService runs every cart mutation in a single transaction; stock is
// read from the products table under a share lock.
type CartService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	events      events.Publisher
	log         logging.Logger
	now         timex.Clock
}

func NewCartService(db *sql.DB, m repomanager.RepositoryManager, pub events.Publisher, log logging.Logger) *CartService {
	if pub == nil {
		pub = events.Noop{}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &CartService{db: db, repomanager: m, events: pub, log: log, now: timex.UTCNow}
}

// AddToCart adds quantity of productID to the user's cart, merging with an
// existing line. The merged quantity must not exceed stock.
func (s *CartService) AddToCart(ctx context.Context, userID, productID string, quantity int) (*models.CartView, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", common.ErrorValidation)
	}

	var view models.CartView

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		product, err := s.activeProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		if product.StockQuantity < quantity {
			return common.ErrInsufficientStock
		}

		carts := s.repomanager.Carts(tx)
		cartID, err := carts.GetOrCreate(ctx, userID)
		if err != nil {
			return err
		}

		_, ok, err := carts.MergeLine(ctx, cartID, productID, quantity, product.PriceCents, product.StockQuantity)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w for requested quantity", common.ErrInsufficientStock)
		}

		view, err = s.view(ctx, tx, userID, cartID)
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, "add to cart", err)
	}

	s.publish(ctx, view, CartActionAdd, productID)
	return &view, nil
}

// UpdateCartItem sets the absolute quantity of an existing line. A
// quantity of zero or less removes the line.
func (s *CartService) UpdateCartItem(ctx context.Context, userID, productID string, quantity int) (*models.CartView, error) {
	var view models.CartView

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		carts := s.repomanager.Carts(tx)

		cartID, err := carts.FindID(ctx, userID)
		if err != nil {
			return err
		}
		if _, err := carts.GetLine(ctx, cartID, productID); err != nil {
			return err
		}

		if quantity <= 0 {
			if _, err := carts.DeleteLine(ctx, cartID, productID); err != nil {
				return err
			}
		} else {
			product, err := s.activeProduct(ctx, tx, productID)
			if err != nil {
				return err
			}
			if product.StockQuantity < quantity {
				return common.ErrInsufficientStock
			}
			if err := carts.SetLine(ctx, cartID, productID, quantity, product.PriceCents); err != nil {
				return err
			}
		}

		if err := carts.Touch(ctx, cartID); err != nil {
			return err
		}
		view, err = s.view(ctx, tx, userID, cartID)
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, "update cart item", err)
	}

	s.publish(ctx, view, CartActionUpdate, productID)
	return &view, nil
}

// RemoveFromCart deletes one line. It reports false when the cart or the
// line does not exist.
func (s *CartService) RemoveFromCart(ctx context.Context, userID, productID string) (bool, error) {
	var (
		removed bool
		view    models.CartView
	)

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		carts := s.repomanager.Carts(tx)

		cartID, err := carts.FindID(ctx, userID)
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		removed, err = carts.DeleteLine(ctx, cartID, productID)
		if err != nil || !removed {
			return err
		}
		if err := carts.Touch(ctx, cartID); err != nil {
			return err
		}
		view, err = s.view(ctx, tx, userID, cartID)
		return err
	})
	if err != nil {
		return false, s.fail(ctx, "remove from cart", err)
	}

	if removed {
		s.publish(ctx, view, CartActionRemove, productID)
	}
	return removed, nil
}

// ClearCart deletes all lines. It reports false when there was nothing to
// delete.
func (s *CartService) ClearCart(ctx context.Context, userID string) (bool, error) {
	var (
		cleared bool
		cartID  string
	)

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		carts := s.repomanager.Carts(tx)

		var err error
		cartID, err = carts.FindID(ctx, userID)
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		n, err := carts.DeleteLines(ctx, cartID)
		if err != nil || n == 0 {
			return err
		}
		cleared = true
		return carts.Touch(ctx, cartID)
	})
	if err != nil {
		return false, s.fail(ctx, "clear cart", err)
	}

	if cleared {
		s.publish(ctx, models.CartView{CartID: cartID, UserID: userID}, CartActionClear, "")
	}
	return cleared, nil
}

// GetCart returns the user's cart with totals recomputed from its lines.
// A user without a cart gets an empty view.
func (s *CartService) GetCart(ctx context.Context, userID string) (*models.CartView, error) {
	cartID, err := s.repomanager.Carts(s.db).FindID(ctx, userID)
	if errors.Is(err, common.ErrorNotFound) {
		v := models.NewCartView(userID, nil, nil)
		return &v, nil
	}
	if err != nil {
		return nil, s.fail(ctx, "get cart", err)
	}

	v, err := s.view(ctx, s.db, userID, cartID)
	if err != nil {
		return nil, s.fail(ctx, "get cart", err)
	}
	return &v, nil
}

func (s *CartService) activeProduct(ctx context.Context, db dbx.DBTX, productID string) (*models.Product, error) {
	p, err := s.repomanager.Products(db).GetForCart(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, common.ErrorNotFound
	}
	return p, nil
}

func (s *CartService) view(ctx context.Context, db dbx.DBTX, userID, cartID string) (models.CartView, error) {
	lines, err := s.repomanager.Carts(db).Lines(ctx, cartID)
	if err != nil {
		return models.CartView{}, err
	}
	return models.NewCartView(userID, &models.Cart{ID: cartID, UserID: userID}, lines), nil
}

func (s *CartService) publish(ctx context.Context, view models.CartView, action, productID string) {
	err := s.events.Publish(ctx, events.SubjectCartUpdated, events.CartEvent{
		UserID:     view.UserID,
		CartID:     view.CartID,
		Action:     action,
		ProductID:  productID,
		TotalItems: view.TotalItems,
		Timestamp:  s.now(),
	})
	if err != nil {
		s.log.Warn(ctx, "publish event", "subject", events.SubjectCartUpdated, "error", err)
	}
}

func (s *CartService) fail(ctx context.Context, op string, err error) error {
	return translate(ctx, s.log, op, err, common.ErrorNotFound, common.ErrInsufficientStock, common.ErrorValidation)
}
