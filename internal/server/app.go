// Package server assembles the auth server from its configuration: it opens
// the database, applies migrations, builds the services and runs the HTTP
// API alongside the gRPC health endpoint until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/tinyauth/internal/cryptox"
	"github.com/dmitrijs2005/tinyauth/internal/logging"
	"github.com/dmitrijs2005/tinyauth/internal/otel"
	"github.com/dmitrijs2005/tinyauth/internal/server/auth"
	"github.com/dmitrijs2005/tinyauth/internal/server/config"
	"github.com/dmitrijs2005/tinyauth/internal/server/httpapi"
	"github.com/dmitrijs2005/tinyauth/internal/server/mailer"
	"github.com/dmitrijs2005/tinyauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tinyauth/internal/server/services"
	"github.com/dmitrijs2005/tinyauth/internal/server/throttle"

	gs "github.com/dmitrijs2005/tinyauth/internal/server/grpc"
)

const healthCheckInterval = 15 * time.Second

// App owns every long-lived component of a running server.
type App struct {
	config *config.Config
	logger logging.Logger

	db         *sql.DB
	http       *httpapi.Server
	health     *gs.HealthServer
	dispatcher *mailer.Dispatcher
	limiter    services.Limiter

	closers []func() error
	tracing func(context.Context) error
}

// NewApp builds the application graph. Resources opened before a failing
// step are released before the error is returned.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (app *App, err error) {
	app = &App{config: c, logger: logger}
	defer func() {
		if err != nil {
			_ = app.close(ctx)
			app = nil
		}
	}()

	app.tracing, err = otel.Setup(ctx, "tinyauth", c.OTLPEndpoint)
	if err != nil {
		return nil, fmt.Errorf("tracing init error: %w", err)
	}

	app.db, err = repomanager.OpenPostgres(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, app.db.Close)

	rm, err := repomanager.NewPostgresRepositoryManager(app.db)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	if c.AutoMigrate {
		if err = rm.RunMigrations(ctx, app.db); err != nil {
			return nil, fmt.Errorf("migration error: %w", err)
		}
		logger.Info(ctx, "Database migrations applied")
	}

	codec, err := auth.NewCodec([]byte(c.SecretKey), c.AccessTokenValidityDuration, c.RefreshTokenValidityDuration)
	if err != nil {
		return nil, fmt.Errorf("token codec init error: %w", err)
	}
	hasher := cryptox.NewPasswordHasher(c.BcryptCost)

	notifier, err := app.initMailer(ctx)
	if err != nil {
		return nil, err
	}

	if err = app.initLimiter(ctx); err != nil {
		return nil, err
	}

	sessions := services.NewSessionService(app.db, rm, codec, hasher, logger)
	accounts := services.NewAccountService(app.db, rm, hasher, notifier, app.limiter, logger, c)
	invites := services.NewInviteService(app.db, rm, hasher, notifier, logger, c)

	app.http = httpapi.NewServer(c, sessions, accounts, invites, logger)

	if c.GRPCHealthAddr != "" {
		app.health = gs.NewHealthServer(c.GRPCHealthAddr, logger, app.db, healthCheckInterval)
	}

	return app, nil
}

func (app *App) initMailer(ctx context.Context) (*mailer.Notifier, error) {
	src, err := mailer.NewSource(ctx, app.config)
	if err != nil {
		return nil, fmt.Errorf("email template source error: %w", err)
	}
	templates, err := mailer.LoadTemplates(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("email templates error: %w", err)
	}

	sender := mailer.NewSender(app.config, app.logger)
	app.dispatcher = mailer.NewDispatcher(sender, app.config.MailQueueSize, app.logger)

	return mailer.NewNotifier(templates, app.dispatcher, app.config.ProjectName, app.logger), nil
}

func (app *App) initLimiter(ctx context.Context) error {
	if app.config.RedisURL == "" {
		app.limiter = throttle.Nop{}
		return nil
	}
	l, err := throttle.NewFromURL(ctx, app.config.RedisURL, app.config.ThrottleLimit, app.config.ThrottleWindow)
	if err != nil {
		return fmt.Errorf("throttle init error: %w", err)
	}
	app.limiter = l
	app.closers = append(app.closers, l.Close)
	return nil
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.http.Listen(app.config.HTTPAddr); err != nil {
		app.logger.Error(ctx, "HTTP server error", "error", err)
		cancelFunc()
	}
}

func (app *App) startHealthServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.health.Run(ctx); err != nil {
		app.logger.Error(ctx, "gRPC health server error", "error", err)
		cancelFunc()
	}
}

// Run serves until ctx is cancelled, SIGINT/SIGTERM/SIGQUIT is received or
// a listener fails, then shuts everything down within ShutdownTimeout.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	var wg sync.WaitGroup

	// the mail worker outlives ctx so queued emails can drain on shutdown
	mailCtx, stopMail := context.WithCancel(context.WithoutCancel(ctx))
	defer stopMail()
	wg.Add(1)
	go func() {
		defer wg.Done()
		app.dispatcher.Run(mailCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	if app.health != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startHealthServer(ctx, cancelFunc)
		}()
	}

	<-ctx.Done()
	app.logger.Info(ctx, "Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := app.http.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	app.dispatcher.Close()
	if err := app.dispatcher.Wait(shutdownCtx); err != nil {
		app.logger.Warn(shutdownCtx, "mail queue not drained before timeout", "error", err)
		stopMail()
	}

	wg.Wait()

	if err := app.close(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	app.logger.Info(shutdownCtx, "Server stopped")
	return errors.Join(errs...)
}

// close releases resources in reverse order of acquisition.
func (app *App) close(ctx context.Context) error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	app.closers = nil

	if app.tracing != nil {
		if err := app.tracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
		}
		app.tracing = nil
	}
	return errors.Join(errs...)
}
