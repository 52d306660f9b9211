package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/spotthespy/game-engine/internal/auth"
	"github.com/spotthespy/game-engine/internal/catalog"
	"github.com/spotthespy/game-engine/internal/config"
	"github.com/spotthespy/game-engine/internal/game"
	httphandler "github.com/spotthespy/game-engine/internal/http"
	"github.com/spotthespy/game-engine/internal/invite"
	"github.com/spotthespy/game-engine/internal/metrics"
	"github.com/spotthespy/game-engine/internal/notify"
	"github.com/spotthespy/game-engine/internal/scheduler"
	"github.com/spotthespy/game-engine/internal/store"
	"github.com/spotthespy/game-engine/internal/store/cassandra"
	"github.com/spotthespy/game-engine/pkg/logger"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Error("Failed to load configuration", logger.Err(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize storage", logger.F("backend", cfg.StoreBackend), logger.Err(err))
		os.Exit(1)
	}
	defer be.Close()
	log.Info("Storage ready", logger.F("backend", cfg.StoreBackend))

	cat, closeCatalog, err := openCatalog(ctx, cfg)
	if err != nil {
		log.Error("Failed to initialize catalog", logger.F("source", cfg.CatalogSource), logger.Err(err))
		os.Exit(1)
	}
	defer closeCatalog()

	var objects invite.ObjectStore
	if cfg.Invite.S3Enabled() {
		s3Store, err := invite.NewS3Store(ctx, cfg.Invite)
		if err != nil {
			log.Error("Failed to initialize QR code storage", logger.Err(err))
			os.Exit(1)
		}
		objects = s3Store
	}
	invites := invite.NewService(cfg.Invite.BotURL, objects, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	sched := scheduler.New(be.queue, log)
	games := game.NewService(game.Deps{
		Store:     be.sessions,
		Devices:   be.devices,
		Players:   be.players,
		History:   be.history,
		Catalog:   cat,
		Scheduler: sched,
		Notifier:  notify.NewPublisher(be.broker, log, m),
		Metrics:   m,
	}, cfg.Game, log, game.WithCloseHook(invites.Remove))

	dispatcher := scheduler.NewDispatcher(be.queue, games, cfg.Scheduler.PollInterval, log, m)
	sweeper := scheduler.NewSweeper(be.sessions, games, sched, cfg.Scheduler, log)
	limiter := httphandler.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)

	var workers sync.WaitGroup
	for _, run := range []func(context.Context){dispatcher.Run, sweeper.Run, limiter.Run} {
		workers.Add(1)
		go func(run func(context.Context)) {
			defer workers.Done()
			run(ctx)
		}(run)
	}

	handler := httphandler.NewHandler(httphandler.Deps{
		Games:   games,
		Catalog: cat,
		Invites: invites,
		Broker:  be.broker,
		Metrics: m,
		Tokens:  auth.NewTokens(cfg.PlayerTokenSecret, cfg.PlayerTokenTTL),
		APIKey:  cfg.APIKey,
	}, log)

	// Setup router
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RealIP)
	router.Use(httphandler.RequestIDMiddleware)
	router.Use(httphandler.LoggingMiddleware(log))
	router.Use(m.Instrument)
	router.Use(middleware.Recoverer)
	router.Use(limiter.Middleware)

	// Routes
	router.Mount("/", handler.Routes())

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info("Server starting", logger.F("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", logger.Err(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Err(err))
	}
	workers.Wait()

	log.Info("Server exited")
}

// backend bundles the storage primitives the engine runs on.
type backend struct {
	sessions store.Store
	broker   store.Broker
	devices  store.DeviceGames
	players  store.PlayerIndex
	history  store.History
	queue    scheduler.Queue
	closers  []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackend wires the configured session store. Cassandra holds sessions
// only; the broker, device games, player index, history and trigger queue
// stay on Redis.
func openBackend(ctx context.Context, cfg *config.Config, log *logger.Logger) (*backend, error) {
	opts := store.Options{TTL: cfg.SessionTTL, ClosedRetention: cfg.ClosedRetention}

	if cfg.StoreBackend == "memory" {
		ms := store.NewMemoryStore(opts)
		return &backend{
			sessions: ms,
			broker:   ms,
			devices:  ms,
			players:  ms,
			history:  ms,
			queue:    scheduler.NewMemoryQueue(),
		}, nil
	}

	client, err := store.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}
	rs := store.NewRedisStore(client, opts)
	be := &backend{
		sessions: rs,
		broker:   rs,
		devices:  rs,
		players:  rs,
		history:  rs,
		queue:    scheduler.NewRedisQueue(client),
		closers:  []func(){func() { client.Close() }},
	}

	if cfg.StoreBackend == "cassandra" {
		cc, err := cassandra.NewClient(cfg.Cassandra, log)
		if err != nil {
			be.Close()
			return nil, err
		}
		be.sessions = cassandra.NewStore(cc, log, cfg.Cassandra.Timeout, opts)
		be.closers = append(be.closers, cc.Close)
	}
	return be, nil
}

func openCatalog(ctx context.Context, cfg *config.Config) (catalog.Catalog, func(), error) {
	if cfg.CatalogSource != "postgres" {
		cat, err := catalog.Builtin()
		return cat, func() {}, err
	}
	pg, err := catalog.OpenPostgres(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}
	return catalog.NewCached(pg, cfg.CatalogCache), func() { pg.Close() }, nil
}
