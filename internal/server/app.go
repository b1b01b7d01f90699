// Package server initializes and runs the storefront application server.
// It opens the database, applies migrations, selects the optional cache,
// event and mail backends, and serves the REST API until a shutdown signal.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/storefront/internal/logging"
	"github.com/dmitrijs2005/storefront/internal/server/auth"
	"github.com/dmitrijs2005/storefront/internal/server/cache"
	"github.com/dmitrijs2005/storefront/internal/server/config"
	"github.com/dmitrijs2005/storefront/internal/server/events"
	"github.com/dmitrijs2005/storefront/internal/server/httpapi"
	"github.com/dmitrijs2005/storefront/internal/server/mailer"
	"github.com/dmitrijs2005/storefront/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/storefront/internal/server/services"
	"github.com/dmitrijs2005/storefront/internal/server/storage"
)

const pingTimeout = 5 * time.Second

// sqlOpen is a seam for tests.
var sqlOpen = sql.Open

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	closers []func() error

	auth       *services.AuthService
	carts      *services.CartService
	products   *services.ProductService
	categories *services.CategoryService
	admin      *services.AdminService
	tokens     *auth.TokenManager
}

// NewApp connects every backend named in c and builds the services.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := logging.New(c.LogFormat, c.LogLevel, os.Stdout)
	if err != nil {
		return nil, err
	}

	app := &App{config: c, logger: logger}
	if err := app.init(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (app *App) init(ctx context.Context) error {
	db, err := OpenDB(ctx, app.config.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	app.db = db
	app.closers = append(app.closers, db.Close)

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	mail, err := app.mailSender()
	if err != nil {
		return err
	}
	productCache, err := app.productCache(ctx)
	if err != nil {
		return err
	}
	publisher, err := app.publisher()
	if err != nil {
		return err
	}
	images, err := storage.NewS3Presigner(ctx, storage.S3Config{
		User:         app.config.S3RootUser,
		Password:     app.config.S3RootPassword,
		Bucket:       app.config.S3Bucket,
		Region:       app.config.S3Region,
		BaseEndpoint: app.config.S3BaseEndpoint,
	})
	if err != nil {
		return fmt.Errorf("s3 init error: %w", err)
	}

	app.tokens = auth.NewTokenManager(app.config.SecretKey, app.config.TokenIssuer, app.config.TokenAudience)

	app.auth = services.NewAuthService(db, rm, services.AuthDeps{
		Tokens:    app.tokens,
		Mail:      mail,
		Publisher: publisher,
		Log:       app.logger,
	}, app.config)
	app.carts = services.NewCartService(db, rm, publisher, app.logger)
	app.products = services.NewProductService(db, rm, productCache, app.config.ProductCacheTTL, images, app.logger)
	app.categories = services.NewCategoryService(db, rm, app.logger)
	app.admin = services.NewAdminService(db, rm, app.carts, app.logger)
	return nil
}

// OpenDB opens a pgx-backed pool and verifies it answers.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sqlOpen("pgx", dsn)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (app *App) mailSender() (mailer.EmailSender, error) {
	if app.config.SMTPHost == "" {
		app.logger.Warn(context.Background(), "SMTP host not set, e-mails will be logged only")
		return mailer.NewLogSender(app.logger), nil
	}
	s, err := mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:        app.config.SMTPHost,
		Port:        app.config.SMTPPort,
		Username:    app.config.SMTPUsername,
		Password:    app.config.SMTPPassword,
		SenderEmail: app.config.SMTPSenderEmail,
		SenderName:  app.config.SMTPSenderName,
		Encryption:  app.config.SMTPEncryption,
	}, app.logger)
	if err != nil {
		return nil, fmt.Errorf("smtp init error: %w", err)
	}
	return s, nil
}

func (app *App) productCache(ctx context.Context) (cache.ProductCache, error) {
	if app.config.RedisAddr == "" {
		return cache.Noop{}, nil
	}
	client, err := cache.NewRedisClient(ctx, app.config.RedisAddr, app.config.RedisPassword, app.config.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("redis init error: %w", err)
	}
	app.closers = append(app.closers, client.Close)
	return cache.NewRedisProductCache(client), nil
}

func (app *App) publisher() (events.Publisher, error) {
	if app.config.NATSURL == "" {
		return events.Noop{}, nil
	}
	nc, err := events.Connect(app.config.NATSURL, app.logger)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, func() error { return nc.Drain() })
	return events.NewNATSPublisher(nc)
}

func (app *App) Auth() *services.AuthService        { return app.auth }
func (app *App) Products() *services.ProductService { return app.products }

// Close releases backends in reverse order of acquisition.
func (app *App) Close() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	app.closers = nil
	return errors.Join(errs...)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Handler builds the REST router over the app services.
func (app *App) Handler() *httpapi.API {
	return httpapi.NewAPI(httpapi.Deps{
		Auth:        app.auth,
		Cart:        app.carts,
		Products:    app.products,
		Categories:  app.categories,
		Admin:       app.admin,
		Tokens:      app.tokens,
		DB:          app.db,
		Metrics:     httpapi.NewMetrics("storefront"),
		Logger:      app.logger,
		Development: app.config.IsDevelopment(),
	})
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewHTTPServer(app.config, app.logger, app.Handler().Router())
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until SIGINT, SIGTERM or SIGQUIT, then closes the backends.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "environment", app.config.Environment)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.logger.Info(context.Background(), "Shutting down...")
	return app.Close()
}
