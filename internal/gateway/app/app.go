package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awnumar/memguard"

	"github.com/aussiebroadwan/gatekeeper/internal/gateway/email"
	httpapi "github.com/aussiebroadwan/gatekeeper/internal/gateway/http"
	"github.com/aussiebroadwan/gatekeeper/internal/gateway/metrics"
	"github.com/aussiebroadwan/gatekeeper/internal/gateway/service"
	"github.com/aussiebroadwan/gatekeeper/internal/gateway/store"
	"github.com/aussiebroadwan/gatekeeper/internal/gateway/store/drivers/postgres"
	"github.com/aussiebroadwan/gatekeeper/internal/gateway/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeeper/pkg/kv"
	"github.com/aussiebroadwan/gatekeeper/pkg/kv/drivers/memory"
	"github.com/aussiebroadwan/gatekeeper/pkg/kv/drivers/redis"
	"github.com/aussiebroadwan/gatekeeper/pkg/otpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

// BuildVersion is overridden at build time via -ldflags "-X ...".
var BuildVersion = "v0.1.0"

// Application encapsulates the gateway with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db      store.Store
	kv      kv.Store
	issuer  *jwtx.Issuer
	cipher  *cryptox.Cipher
	hasher  cryptox.PasswordHasher
	mailer  *email.Dispatcher
	metrics *metrics.Metrics

	// Services
	sessionService *service.SessionService
	mfaService     *service.MFAService
	accountService *service.AccountService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg:    cfg,
		logger: NewLogger(cfg),
	}

	if err := app.initSecrets(); err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}
	if err := app.initKV(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg Config) *slog.Logger {
	return slogx.New(slogx.Config{
		Service: "gatekeeper",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
}

// Handler exposes the router, used by tests that drive a fully wired app.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.logger.Info("gatekeeper starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"store", app.cfg.StoreDriver,
		"kv", app.cfg.KVDriver,
		"refresh_keying", app.cfg.RefreshKeying,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.Shutdown()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down gatekeeper...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Drain queued mail before the process goes away.
	app.mailer.Stop()

	var errs []error
	if err := app.kv.Close(); err != nil {
		app.logger.Error("error closing kv store", "error", err)
		errs = append(errs, err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		errs = append(errs, err)
	}

	memguard.Purge()

	app.logger.Info("gatekeeper stopped")
	return errors.Join(errs...)
}

// initSecrets loads the pepper and derives the cipher key.
func (app *Application) initSecrets() error {
	pepper, err := cryptox.LoadOrCreatePepper(app.cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("failed to load pepper: %w", err)
	}
	app.hasher = cryptox.NewArgon2Hasher(pepper)

	cipher, err := cryptox.NewCipher(app.cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize cipher: %w", err)
	}
	app.cipher = cipher

	issuer, err := jwtx.NewIssuer(jwtx.IssuerConfig{
		Issuer:    app.cfg.Issuer,
		Access:    jwtx.KindConfig{Secret: app.cfg.AccessSecret, TTL: app.cfg.AccessTTL},
		TwoFactor: jwtx.KindConfig{Secret: app.cfg.TwoFactorSecret, TTL: app.cfg.TwoFactorTTL},
		Refresh:   jwtx.KindConfig{Secret: app.cfg.RefreshSecret, TTL: app.cfg.RefreshTTL},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token issuer: %w", err)
	}
	app.issuer = issuer
	return nil
}

// OpenStore connects the configured user store without migrating it.
func OpenStore(ctx context.Context, cfg Config) (store.Store, error) {
	if cfg.StoreDriver == StorePostgres {
		db, err := postgres.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return db, nil
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase(ctx context.Context) error {
	db, err := OpenStore(ctx, app.cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.StoreDriver)
	return nil
}

// initKV connects the token ledger.
func (app *Application) initKV(ctx context.Context) error {
	if app.cfg.KVDriver == KVRedis {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		s, err := redis.Open(dialCtx, app.cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect kv store: %w", err)
		}
		app.kv = s
		return nil
	}

	app.logger.Warn("using in-memory kv store, sessions do not survive restarts")
	app.kv = memory.New(memory.Options{Logger: app.logger})
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.metrics = metrics.New()
	app.mailer = email.NewDispatcher(email.LogTransport{Logger: app.logger}, app.logger, app.cfg.EmailQueueSize)
	app.mailer.Start()

	app.sessionService = &service.SessionService{
		Store:   app.db,
		KV:      app.kv,
		Issuer:  app.issuer,
		Cipher:  app.cipher,
		Hasher:  app.hasher,
		Keying:  app.cfg.RefreshKeying,
		Metrics: app.metrics,
	}
	app.mfaService = &service.MFAService{
		Store:    app.db,
		Sessions: app.sessionService,
		Cipher:   app.cipher,
		OTP:      otpx.NewTOTP(app.cfg.Issuer),
		Metrics:  app.metrics,
	}
	app.accountService = &service.AccountService{
		Store:            app.db,
		Hasher:           app.hasher,
		Actions:          &service.ActionTokenService{KV: app.kv, Metrics: app.metrics},
		Sessions:         app.sessionService,
		Mailer:           app.mailer,
		VerifyEmailURL:   app.cfg.VerifyEmailURL,
		ResetPasswordURL: app.cfg.ResetPasswordURL,
	}
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.kv, app.logger)

	router.SessionService = app.sessionService
	router.MFAService = app.mfaService
	router.AccountService = app.accountService
	router.Metrics = app.metrics
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
