// Package server wires the kajix components together and runs the HTTP
// server until the process is told to stop.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/kajix/internal/logging"
	"github.com/dmitrijs2005/kajix/internal/server/archive"
	"github.com/dmitrijs2005/kajix/internal/server/config"
	"github.com/dmitrijs2005/kajix/internal/server/crawler"
	"github.com/dmitrijs2005/kajix/internal/server/htmlmd"
	"github.com/dmitrijs2005/kajix/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/kajix/internal/server/rest"
	"github.com/dmitrijs2005/kajix/internal/server/services"
	"github.com/dmitrijs2005/kajix/internal/server/tokenstore"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	server  *rest.Server
	closers []io.Closer
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	app := &App{config: c, logger: logger}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app.closers = append(app.closers, db)
	if err := db.PingContext(ctx); err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	store, closer, err := newTokenStore(ctx, c, db, rm)
	if err != nil {
		app.close(ctx)
		return nil, err
	}
	if closer != nil {
		app.closers = append(app.closers, closer)
	}

	snapshots, err := newSnapshotStore(ctx, c)
	if err != nil {
		app.close(ctx)
		return nil, err
	}

	browser := crawler.NewChromeBrowser(crawler.ChromeOptions{ExecPath: c.BrowserExecPath, UserAgent: c.UserAgent})
	app.closers = append(app.closers, browser)
	cr := crawler.New(browser, crawler.Options{
		Timeout:         c.ScrapeTimeout,
		MaxLinks:        c.MaxLinksPerPage,
		MaxPages:        c.MaxPagesPerCrawl,
		IncludeExternal: c.IncludeExternalLinks,
	}, logger)

	as := services.NewAuthService(db, rm, store, c, logger)
	ss := services.NewScrapeService(db, rm, cr, htmlmd.New(), snapshots, logger)
	app.server = rest.NewServer(c.EndpointAddrHTTP, logger, as, ss, c.LoginRateLimitPerMinute)

	logger.Info(ctx, "app initialized", "token_store", c.TokenStore, "snapshots", snapshots != nil)
	return app, nil
}

// newTokenStore builds the configured backend. The returned closer, if
// any, owns a connection the store depends on.
func newTokenStore(ctx context.Context, c *config.Config, db *sql.DB, rm repomanager.RepositoryManager) (tokenstore.Store, io.Closer, error) {
	switch c.TokenStore {
	case config.TokenStorePostgres:
		return tokenstore.NewPostgresStore(db, rm), nil, nil
	case config.TokenStoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping error: %w", err)
		}
		indexTTL := max(c.RefreshTokenValidityDuration, c.EmailConfirmationValidityDuration)
		return tokenstore.NewRedisStore(client, indexTTL), client, nil
	default:
		return nil, nil, fmt.Errorf("unknown token store %q", c.TokenStore)
	}
}

// newSnapshotStore returns nil when archiving is off.
func newSnapshotStore(ctx context.Context, c *config.Config) (services.SnapshotStore, error) {
	if !c.ArchiveSnapshots {
		return nil, nil
	}
	a, err := archive.New(ctx, archive.Options{
		Region:    c.S3Region,
		AccessKey: c.S3RootUser,
		SecretKey: c.S3RootPassword,
		Endpoint:  c.S3BaseEndpoint,
		Bucket:    c.S3Bucket,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 init error: %w", err)
	}
	return a, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until a termination signal arrives or the server fails, then
// releases the browser, the cache client and the database.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.server.Run(gctx)
	})

	err := g.Wait()
	app.close(context.WithoutCancel(ctx))
	app.logger.Info(ctx, "App stopped")
	return err
}

func (app *App) close(ctx context.Context) {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			app.logger.Error(ctx, "close failed", "error", err)
		}
	}
	app.closers = nil
}
