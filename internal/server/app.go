// Package server wires the dlogr API together: it opens the database and the
// token cache, builds the services and runs the HTTP API next to the gRPC
// health endpoint until a signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/dlogr/internal/logging"
	"github.com/dmitrijs2005/dlogr/internal/server/config"
	"github.com/dmitrijs2005/dlogr/internal/server/mailer"
	"github.com/dmitrijs2005/dlogr/internal/server/passwords"
	"github.com/dmitrijs2005/dlogr/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/dlogr/internal/server/rest"
	"github.com/dmitrijs2005/dlogr/internal/server/services"
	"github.com/dmitrijs2005/dlogr/internal/server/tokens"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/dlogr/internal/server/grpc"
)

// seams for tests
var (
	openDB               = repomanager.Open
	newRepositoryManager = func() repomanager.RepositoryManager { return repomanager.NewPostgresRepositoryManager() }
	signalsToShutdownOn  = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT}
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	redis  *redis.Client

	repomanager repomanager.RepositoryManager
	accounts    *services.AccountService

	httpServer   *rest.Server
	healthServer *gs.HealthServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(os.Stdout, c.LogBackend, c.LogLevel)
	return newApp(ctx, c, logger)
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	db, err := openDB(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := newRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	rc, err := tokens.NewRedisClient(c.RedisURL, c.RedisMaxConnections, c.RedisTimeout)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	store := tokens.NewRedisStore(rc)
	tm := tokens.NewManager(store, tokens.NewGenerator(c.SecretKey), c.TokenValidityDuration, logger,
		tokens.WithDebugKeys(c.TokenDebugKeys))

	sender, err := mailer.NewSender(c, logger)
	if err != nil {
		_ = db.Close()
		_ = rc.Close()
		return nil, fmt.Errorf("mailer init error: %w", err)
	}

	as := services.NewAccountService(db, rm, tm, sender, passwords.NewHasher(), c, logger)
	es := services.NewEventService(db, rm, c, logger)
	xs := services.NewExportService(db, rm, c, logger)

	router := rest.NewRouter(as, es, xs, logger)

	return &App{
		config:     c,
		logger:     logger,
		db:         db,
		redis:      rc,

		repomanager: rm,
		accounts:    as,

		httpServer: rest.NewServer(c.HTTPAddr, router, c.ShutdownTimeout, logger),
		healthServer: gs.NewHealthServer(c.HealthAddrGRPC, logger, map[string]gs.Check{
			"database": db.PingContext,
			"cache":    store.Ping,
		}),
	}, nil
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, signalsToShutdownOn...)

	go func() {
		defer signal.Stop(sigs)
		select {
		case s := <-sigs:
			app.logger.Info(ctx, "Received signal", "signal", s.String())
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

type runner interface {
	Run(ctx context.Context) error
}

// start runs r and stops the whole app if it fails.
func (app *App) start(ctx context.Context, cancelFunc context.CancelFunc, name string, r runner) {
	if err := r.Run(ctx); err != nil {
		app.logger.Error(ctx, "server failed", "server", name, "error", err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is cancelled, a shutdown signal arrives or one of the
// servers fails, then releases the database and cache connections.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(ctx, cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.start(ctx, cancelFunc, "http", app.httpServer)
	}()
	go func() {
		defer wg.Done()
		app.start(ctx, cancelFunc, "grpc", app.healthServer)
	}()

	wg.Wait()

	app.close(ctx)
	app.logger.Info(ctx, "App stopped")
}

// Migrate applies pending schema migrations. NewApp already does this, so a
// second run only confirms the schema is current.
func (app *App) Migrate(ctx context.Context) error {
	return app.repomanager.RunMigrations(ctx, app.db)
}

// CreateSuperuser creates a staff account with full rights.
func (app *App) CreateSuperuser(ctx context.Context, in services.SignupInput) (*services.AuthenticatedAccount, error) {
	return app.accounts.CreateSuperuser(ctx, in)
}

// Close releases the database and cache connections of an app that was
// built but not run.
func (app *App) Close(ctx context.Context) {
	app.close(ctx)
}

func (app *App) close(ctx context.Context) {
	if err := app.redis.Close(); err != nil {
		app.logger.Warn(ctx, "redis close error", "error", err.Error())
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn(ctx, "db close error", "error", err.Error())
	}
}
