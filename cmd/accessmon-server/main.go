package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/BrandonDHaskell/accessmon/internal/accessmon/service"
	"github.com/BrandonDHaskell/accessmon/internal/accessmon/store"
	"github.com/BrandonDHaskell/accessmon/internal/accessmon/store/memory"
	sqlitestore "github.com/BrandonDHaskell/accessmon/internal/accessmon/store/sqlite"
	"github.com/BrandonDHaskell/accessmon/internal/config"
	"github.com/BrandonDHaskell/accessmon/internal/db"
	"github.com/BrandonDHaskell/accessmon/internal/grpcapi"
	"github.com/BrandonDHaskell/accessmon/internal/httpapi"
	"github.com/BrandonDHaskell/accessmon/internal/metrics"
)

func main() {
	logger := log.New(os.Stdout, "accessmon-server ", log.LstdFlags|log.LUTC)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	promReg := metrics.NewRegistry()
	m := metrics.New(promReg)

	// Registry
	policy, _ := service.ParsePolicy(cfg.RegistrationPolicy)
	registry := service.NewUserRegistry(memory.NewAccessList(cfg.RegistryCapacity), service.RegistryOptions{
		Policy:  policy,
		Clock:   clock,
		Logger:  logger,
		Metrics: m,
	})
	m.ObserveRegistry(registry.Size, registry.Capacity)

	if ids := cfg.SeedUserIDs(); len(ids) > 0 {
		if _, err := registry.Seed(ctx, ids); err != nil {
			logger.Fatalf("seed users: %v", err)
		}
	}

	// Session store
	var (
		sessions store.SessionStore
		conn     *sql.DB
		writer   *db.Worker
	)
	switch cfg.SessionBackend {
	case config.BackendMemory:
		sessions = memory.NewSessionStore()
	default:
		conn, err = db.Open(ctx, db.Config{Path: cfg.DBPath})
		if err != nil {
			logger.Fatalf("db open: %v", err)
		}
		writer = db.NewWorker(conn)
		sessions = sqlitestore.NewSessionStore(conn, writer)
	}
	logger.Printf("session backend=%s policy=%s require_registration=%t",
		cfg.SessionBackend, policy, cfg.RequireRegistration)

	// Ledger
	ledger := service.NewSessionLedger(sessions, registry, service.LedgerOptions{
		RequireRegistration: cfg.RequireRegistration,
		Clock:               clock,
		Logger:              logger,
		Metrics:             m,
	})

	retrier := service.NewPurgeRetrier(ledger, service.RetrierConfig{
		Interval: cfg.PurgeRetryInterval,
	}, clock, logger, m)
	registry.OnRemove(retrier)
	retrier.Start(ctx)

	// Transports
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:         logger,
		Addr:           cfg.HTTPAddr,
		SystemName:     cfg.SystemName,
		Clock:          clock,
		Registry:       registry,
		Ledger:         ledger,
		Metrics:        metrics.NewHTTPMetrics(promReg),
		MetricsHandler: metrics.Handler(promReg),
	})

	health := grpcapi.NewHealthServer(cfg.GRPCAddr, logger)
	if err := health.Start(); err != nil {
		logger.Fatalf("grpc listen: %v", err)
	}

	go func() {
		logger.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.Start(); err != nil {
			logger.Printf("server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Printf("shutting down")

	health.SetServing(false)

	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	if err := srv.Shutdown(httpCtx); err != nil {
		logger.Printf("http shutdown: %v", err)
	}
	cancelHTTP()

	// Each shutdown step gets its own deadline once HTTP has drained.
	if _, err := ledger.CloseActive(context.Background(), clock.Now(), cfg.ShutdownTimeout); err != nil {
		logger.Printf("active sessions left open at exit: %v", err)
	}

	if left := retrier.StopAndFlush(context.Background(), cfg.ShutdownTimeout); len(left) > 0 {
		logger.Printf("removed users still holding sessions at exit user_ids=%v", left)
	}

	grpcCtx, cancelGRPC := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	health.Stop(grpcCtx)
	cancelGRPC()

	if writer != nil {
		writer.Close()
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Printf("db close: %v", err)
		}
	}
}
