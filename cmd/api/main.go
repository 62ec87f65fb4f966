package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/crewboard/crewboard-backend/config"
	"github.com/crewboard/crewboard-backend/internal/api/http/middleware"
	"github.com/crewboard/crewboard-backend/internal/auth"
	authservice "github.com/crewboard/crewboard-backend/internal/auth/service"
	"github.com/crewboard/crewboard-backend/internal/bootstrap"
	"github.com/crewboard/crewboard-backend/internal/jobs"
	"github.com/crewboard/crewboard-backend/internal/logging"
	projectservice "github.com/crewboard/crewboard-backend/internal/projects/service"
	"github.com/crewboard/crewboard-backend/internal/realtime"
	"github.com/crewboard/crewboard-backend/internal/storage"
	"github.com/crewboard/crewboard-backend/internal/storage/memory"
	"github.com/crewboard/crewboard-backend/internal/storage/postgres"
	taskservice "github.com/crewboard/crewboard-backend/internal/tasks/service"
)

const serviceName = "crewboard-api"

// entityStore is what the services need from either store.
type entityStore interface {
	projectservice.Store
	taskservice.Store
	authservice.PrincipalStore
	storage.Pinger
	storage.Sweeper
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}

	log := logging.Init(logging.Options{
		Service:     serviceName,
		Environment: cfg.App.Environment,
		Level:       cfg.App.LogLevel,
		File:        cfg.App.LogFile,
	})
	bootstrap.SetGinMode(cfg.App.Environment)

	if err := run(cfg); err != nil {
		log.WithError(err).Fatal("server exited")
	}
	log.Info("server stopped")
}

func run(cfg *config.Config) error {
	log := logging.L()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, storeKind, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		return err
	}

	hub := realtime.NewHub(cfg.Realtime.SubscriberBuffer)
	var events realtime.Broadcaster = hub

	var rdb *redis.Client
	var bus *realtime.RedisBus
	if cfg.Redis.Addr != "" {
		rdb, err = bootstrap.OpenRedis(ctx, bootstrap.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		bus = realtime.NewRedisBus(hub, rdb, realtime.BusOptions{})
		events = bus
		log.WithField("addr", cfg.Redis.Addr).Info("realtime fan-out relayed through redis")
	}

	authn := authservice.NewAuthService(verifier, store)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)

	router := bootstrap.BuildRouter(bootstrap.RouterDeps{
		ServiceName:   serviceName,
		Version:       cfg.App.Version,
		AllowedOrigin: cfg.Realtime.AllowedOrigin,
		KeepAlive:     cfg.Realtime.KeepAlive,
		Store:         store,
		StoreKind:     storeKind,
		Redis:         rdb,
		Hub:           hub,
		Projects:      store,
		Auth:          authn,
		Registry:      projectservice.NewRegistry(store, events),
		Tasks:         taskservice.NewService(store, store, events),
		RateLimiter:   limiter,
	})

	scheduler := jobs.NewScheduler(jobs.Deps{
		Metrics: hub.Metrics(),
		Sweeper: store,
		Limiter: limiter,
	})
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	if bus != nil {
		g.Go(func() error { return bus.Run(gctx) })
	}
	g.Go(func() error {
		log.WithFields(logrus.Fields{
			"port":  cfg.Server.Port,
			"store": storeKind,
		}).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		scheduler.Stop(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// openStore picks postgres when DB_DSN is set and the in-memory store
// otherwise.
func openStore(ctx context.Context, cfg *config.Config) (entityStore, string, func(), error) {
	if cfg.Database.DSN == "" {
		logging.L().Warn("DB_DSN not set, using in-memory store")
		return memory.New(), "memory", func() {}, nil
	}

	pool, err := bootstrap.OpenDB(ctx, bootstrap.DBOptions{
		DSN:      cfg.Database.DSN,
		MaxConns: int32(cfg.Database.MaxConns),
		MinConns: int32(cfg.Database.MinConns),
	})
	if err != nil {
		return nil, "", nil, err
	}
	return postgres.New(pool), "postgres", pool.Close, nil
}

func newVerifier(ctx context.Context, cfg *config.Config) (auth.Verifier, error) {
	if cfg.Firebase.CredentialsPath != "" {
		client, err := auth.InitializeFirebase(ctx, &cfg.Firebase)
		if err != nil {
			return nil, fmt.Errorf("init firebase: %w", err)
		}
		return auth.NewFirebaseVerifier(client), nil
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("no token verifier configured")
	}
	return auth.NewJWTVerifier(cfg.Auth.JWTSecret), nil
}
