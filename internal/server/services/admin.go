package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/storefront/internal/common"
	"github.com/dmitrijs2005/storefront/internal/logging"
	"github.com/dmitrijs2005/storefront/internal/server/models"
	"github.com/dmitrijs2005/storefront/internal/server/repositories/repomanager"
)

// AdminService exposes account and role management to administrators.
type AdminService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	carts       *CartService
	log         logging.Logger
}

func NewAdminService(db *sql.DB, m repomanager.RepositoryManager, carts *CartService, log logging.Logger) *AdminService {
	if log == nil {
		log = logging.Nop()
	}
	return &AdminService{db: db, repomanager: m, carts: carts, log: log}
}

func (s *AdminService) ListUsers(ctx context.Context) ([]models.UserView, error) {
	list, err := s.repomanager.Users(s.db).List(ctx)
	if err != nil {
		return nil, s.fail(ctx, "list users", err)
	}

	views := make([]models.UserView, 0, len(list))
	for i := range list {
		views = append(views, list[i].View())
	}
	return views, nil
}

func (s *AdminService) GetUser(ctx context.Context, userID string) (*models.UserView, error) {
	u, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return nil, s.fail(ctx, "get user", err)
	}
	v := u.View()
	return &v, nil
}

func (s *AdminService) ListRoles(ctx context.Context, userID string) ([]string, error) {
	repo := s.repomanager.Users(s.db)
	if _, err := repo.GetByID(ctx, userID); err != nil {
		return nil, s.fail(ctx, "list roles", err)
	}
	roles, err := repo.GetRoles(ctx, userID)
	if err != nil {
		return nil, s.fail(ctx, "list roles", err)
	}
	return models.RoleNames(roles), nil
}

// AssignRole grants role to the user. Granting a held role is a no-op.
func (s *AdminService) AssignRole(ctx context.Context, userID, role string) error {
	r, err := models.ParseRole(role)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrorValidation, err)
	}

	repo := s.repomanager.Users(s.db)
	if _, err := repo.GetByID(ctx, userID); err != nil {
		return s.fail(ctx, "assign role", err)
	}
	if err := repo.AddRole(ctx, userID, r); err != nil {
		return s.fail(ctx, "assign role", err)
	}
	s.log.Info(ctx, "role assigned", "user_id", userID, "role", r)
	return nil
}

// RemoveRole revokes role. It reports false when the user did not hold it.
func (s *AdminService) RemoveRole(ctx context.Context, userID, role string) (bool, error) {
	r, err := models.ParseRole(role)
	if err != nil {
		return false, fmt.Errorf("%w: %w", common.ErrorValidation, err)
	}

	repo := s.repomanager.Users(s.db)
	if _, err := repo.GetByID(ctx, userID); err != nil {
		return false, s.fail(ctx, "remove role", err)
	}
	removed, err := repo.RemoveRole(ctx, userID, r)
	if err != nil {
		return false, s.fail(ctx, "remove role", err)
	}
	if removed {
		s.log.Info(ctx, "role removed", "user_id", userID, "role", r)
	}
	return removed, nil
}

// UserCart returns the cart of an existing user.
func (s *AdminService) UserCart(ctx context.Context, userID string) (*models.CartView, error) {
	if _, err := s.repomanager.Users(s.db).GetByID(ctx, userID); err != nil {
		return nil, s.fail(ctx, "user cart", err)
	}
	return s.carts.GetCart(ctx, userID)
}

func (s *AdminService) fail(ctx context.Context, op string, err error) error {
	return translate(ctx, s.log, op, err, common.ErrorNotFound, common.ErrorValidation)
}
