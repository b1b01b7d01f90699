// Package httpapi exposes the storefront services over REST using chi.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/storefront/internal/logging"
	"github.com/dmitrijs2005/storefront/internal/server/auth"
	"github.com/dmitrijs2005/storefront/internal/server/models"
	"github.com/dmitrijs2005/storefront/internal/server/services"
)

type AuthService interface {
	Register(ctx context.Context, email, password, firstName, lastName string) (string, error)
	VerifyEmail(ctx context.Context, email, code string) (bool, error)
	ResendVerificationCode(ctx context.Context, email string) (bool, error)
	Login(ctx context.Context, email, password string) (*services.AuthResult, error)
	Logout(ctx context.Context) string
	RefreshToken(ctx context.Context, token string) (*services.AuthResult, error)
	ForgotPassword(ctx context.Context, email string) (bool, error)
	VerifyOtp(ctx context.Context, email, code string) (bool, error)
	ResetPassword(ctx context.Context, email, code, newPassword string) (bool, error)
	Profile(ctx context.Context, userID string) (*models.UserView, error)
}

type CartService interface {
	AddToCart(ctx context.Context, userID, productID string, quantity int) (*models.CartView, error)
	UpdateCartItem(ctx context.Context, userID, productID string, quantity int) (*models.CartView, error)
	RemoveFromCart(ctx context.Context, userID, productID string) (bool, error)
	ClearCart(ctx context.Context, userID string) (bool, error)
	GetCart(ctx context.Context, userID string) (*models.CartView, error)
}

type ProductService interface {
	Create(ctx context.Context, in services.ProductInput) (*models.Product, error)
	Get(ctx context.Context, id string) (*models.Product, error)
	List(ctx context.Context) ([]models.Product, error)
	ListByCategory(ctx context.Context, categoryID string) ([]models.Product, error)
	Update(ctx context.Context, id string, in services.ProductInput) (*models.Product, error)
	Delete(ctx context.Context, id string) error
	ImageUploadURL(ctx context.Context, id, filename, contentType string) (*models.ImageUpload, error)
}

type CategoryService interface {
	Create(ctx context.Context, in services.CategoryInput) (*models.Category, error)
	Get(ctx context.Context, id string, includeInactive bool) (*models.Category, error)
	List(ctx context.Context, includeInactive bool) ([]models.Category, error)
	Update(ctx context.Context, id string, in services.CategoryInput) (*models.Category, error)
	SoftDelete(ctx context.Context, id string) error
	HardDelete(ctx context.Context, id string) error
}

type AdminService interface {
	ListUsers(ctx context.Context) ([]models.UserView, error)
	GetUser(ctx context.Context, userID string) (*models.UserView, error)
	ListRoles(ctx context.Context, userID string) ([]string, error)
	AssignRole(ctx context.Context, userID, role string) error
	RemoveRole(ctx context.Context, userID, role string) (bool, error)
	UserCart(ctx context.Context, userID string) (*models.CartView, error)
}

// Pinger reports storage health for /healthz.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators of the REST API.
type Deps struct {
	Auth       AuthService
	Cart       CartService
	Products   ProductService
	Categories CategoryService
	Admin      AdminService
	Tokens     *auth.TokenManager
	DB         Pinger
	Metrics    *Metrics
	Logger     logging.Logger
	// Development exposes internal error detail in 500 responses.
	Development bool
}

type API struct {
	auth        AuthService
	cart        CartService
	products    ProductService
	categories  CategoryService
	admin       AdminService
	tokens      *auth.TokenManager
	db          Pinger
	metrics     *Metrics
	logger      logging.Logger
	development bool
}

func NewAPI(d Deps) *API {
	a := &API{
		auth:        d.Auth,
		cart:        d.Cart,
		products:    d.Products,
		categories:  d.Categories,
		admin:       d.Admin,
		tokens:      d.Tokens,
		db:          d.DB,
		metrics:     d.Metrics,
		logger:      d.Logger,
		development: d.Development,
	}
	if a.logger == nil {
		a.logger = logging.Nop()
	}
	if a.metrics == nil {
		a.metrics = NewMetrics("storefront")
	}
	a.logger = a.logger.With("module", "http_api")
	return a
}

// Router builds the chi route tree.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.accessLog)
	r.Use(a.recoverer)

	r.Get("/healthz", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", a.handleRegister)
			r.Post("/verify-email", a.handleVerifyEmail)
			r.Post("/resend-verification", a.handleResendVerification)
			r.Post("/login", a.handleLogin)
			r.Post("/logout", a.handleLogout)
			r.Post("/refresh", a.handleRefresh)
			r.Post("/forgot-password", a.handleForgotPassword)
			r.Post("/verify-otp", a.handleVerifyOtp)
			r.Post("/reset-password", a.handleResetPassword)

			r.With(a.authenticate, requireRole(models.AllRoles...)).Get("/me", a.handleMe)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", a.handleListProducts)
			r.Get("/{id}", a.handleGetProduct)
			r.Get("/category/{categoryId}", a.handleListProductsByCategory)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", a.handleListCategories)
			r.Get("/{id}", a.handleGetCategory)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Use(a.authenticate, requireRole(models.AllRoles...))
			r.Get("/", a.handleGetCart)
			r.Delete("/", a.handleClearCart)
			r.Post("/items", a.handleAddCartItem)
			r.Put("/items/{productId}", a.handleUpdateCartItem)
			r.Delete("/items/{productId}", a.handleRemoveCartItem)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(a.authenticate, requireRole(models.RoleAdmin))

			r.Post("/products", a.handleCreateProduct)
			r.Put("/products/{id}", a.handleUpdateProduct)
			r.Delete("/products/{id}", a.handleDeleteProduct)
			r.Post("/products/{id}/image-upload", a.handleImageUpload)

			r.Get("/categories", a.handleAdminListCategories)
			r.Post("/categories", a.handleCreateCategory)
			r.Put("/categories/{id}", a.handleUpdateCategory)
			r.Delete("/categories/{id}", a.handleSoftDeleteCategory)
			r.Delete("/categories/{id}/hard", a.handleHardDeleteCategory)

			r.Get("/users", a.handleListUsers)
			r.Get("/users/{userId}", a.handleGetUser)
			r.Get("/users/{userId}/roles", a.handleListRoles)
			r.Post("/users/{userId}/roles", a.handleAssignRole)
			r.Delete("/users/{userId}/roles/{role}", a.handleRemoveRole)
			r.Get("/users/{userId}/cart", a.handleUserCart)
		})
	})

	return r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.db != nil {
		if err := a.db.PingContext(r.Context()); err != nil {
			a.logger.Warn(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
