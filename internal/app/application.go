// Package app wires the marketplace services, their store and the HTTP
// surface into one lifecycle-managed application.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/gorilla/mux"

	"github.com/auctionhouse/marketplace/internal/app/auction"
	"github.com/auctionhouse/marketplace/internal/app/bidding"
	"github.com/auctionhouse/marketplace/internal/app/expiry"
	"github.com/auctionhouse/marketplace/internal/app/funds"
	"github.com/auctionhouse/marketplace/internal/app/settlement"
	"github.com/auctionhouse/marketplace/internal/broadcast"
	"github.com/auctionhouse/marketplace/internal/cache"
	"github.com/auctionhouse/marketplace/internal/config"
	"github.com/auctionhouse/marketplace/internal/httpapi"
	"github.com/auctionhouse/marketplace/internal/logging"
	"github.com/auctionhouse/marketplace/internal/middleware"
	"github.com/auctionhouse/marketplace/internal/storage"
	"github.com/auctionhouse/marketplace/internal/storage/memory"
	"github.com/auctionhouse/marketplace/internal/storage/postgres"
)

// Application ties the marketplace services together and manages their
// lifecycle.
type Application struct {
	cfg *config.Config
	log *logging.Logger

	store   storage.Store
	cache   *cache.Client
	hub     *broadcast.Hub
	sweeper *expiry.Sweeper
	server  *http.Server
	done    chan struct{}

	Funds      *funds.Service
	Auction    *auction.Service
	Bidding    *bidding.Service
	Settlement *settlement.Service
}

// New builds a fully initialised application from cfg.
func New(cfg *config.Config, log *logging.Logger) (*Application, error) {
	if log == nil {
		log = logging.New("app")
	}

	store, err := buildStore(cfg, log)
	if err != nil {
		return nil, err
	}

	a := &Application{cfg: cfg, log: log, store: store, done: make(chan struct{})}

	var (
		listingCache auction.ListingCache
		events       bidding.EventPublisher
	)
	if cfg.Redis.Enabled {
		c, err := cache.New(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.CacheTTL, logging.New("cache"))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.cache = c
		listingCache = c
		events = c
		a.hub = broadcast.NewHub(c, logging.New("broadcast"))
	}

	a.Funds = funds.New(store, logging.New("funds"))
	a.Auction = auction.New(store, listingCache, logging.New("auction"))
	a.Bidding = bidding.New(store, a.Funds, events, logging.New("bidding"))
	a.Settlement = settlement.New(store, a.Funds, logging.New("settlement"))

	if cfg.Expiry.Enabled {
		a.sweeper = expiry.NewSweeper(store, cfg.Expiry.Interval, logging.New("expiry"))
	}

	a.server = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      a.buildRouter(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return a, nil
}

func (a *Application) buildRouter() http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.RequestLogging(logging.New("http")))
	r.Use(middleware.Metrics())

	auth := middleware.NewAuth(
		[]byte(a.cfg.Auth.JWTSecret),
		a.cfg.Auth.Audience,
		logging.New("auth"),
		[]string{"/healthz", "/metrics", "/v1/item/*"},
	)
	r.Use(auth.Handler)

	if a.cfg.RateLimit.Enabled {
		rl := middleware.NewRateLimiter(int(a.cfg.RateLimit.RPS), a.cfg.RateLimit.Burst, logging.New("ratelimit"))
		rl.StartCleanup(10*time.Minute, a.done)
		r.Use(rl.Handler)
	}

	cors := middleware.NewCORS([]string{"*"})
	r.Use(cors.Handler)

	handler := httpapi.New(a.Auction, a.Bidding, a.Funds, a.Settlement, a.hub, logging.New("httpapi"))
	handler.Routes(r)
	return r
}

// Run starts the background workers and the HTTP server, blocking until the
// context is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if a.sweeper != nil {
		if err := a.sweeper.Start(); err != nil {
			return fmt.Errorf("failed to start expiry sweeper: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("listening on %s", a.cfg.Server.Address)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the HTTP server, workers and connections.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	err := a.server.Shutdown(shutdownCtx)

	if a.sweeper != nil {
		a.sweeper.Stop()
	}
	if a.hub != nil {
		a.hub.Close()
	}
	close(a.done)
	if a.cache != nil {
		if cerr := a.cache.Close(); cerr != nil {
			a.log.WithError(cerr).Warn("error closing redis connection")
		}
	}
	if closer, ok := a.store.(interface{ Close() error }); ok {
		if cerr := closer.Close(); cerr != nil {
			a.log.WithError(cerr).Warn("error closing store")
		}
	}
	return err
}

func buildStore(cfg *config.Config, log *logging.Logger) (storage.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return memory.New(), nil
	case "postgres":
		if err := runMigrations(cfg.Store); err != nil {
			return nil, err
		}
		store, err := postgres.Open(cfg.Store.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func runMigrations(cfg config.StoreConfig) error {
	m, err := migrate.New("file://"+cfg.MigrationsPath, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
