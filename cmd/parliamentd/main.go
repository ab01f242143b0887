package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"parliament/internal/app"
	"parliament/internal/audit"
	"parliament/internal/config"
	"parliament/internal/events"
	"parliament/internal/guard"
	"parliament/internal/ident"
	"parliament/internal/ledger"
	"parliament/internal/motion"
	"parliament/internal/oracle"
	"parliament/internal/refstore/gitstore"
	"parliament/internal/tally"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("failed to create data dir: %v", err)
	}

	registry := prometheus.NewRegistry()
	bus := events.NewBus(registry, logger)

	manager := gitstore.NewManager(cfg.DataDir)
	parliamentStore, err := manager.Open(ctx, cfg.ParliamentStore)
	if err != nil {
		log.Fatalf("failed to open parliament store: %v", err)
	}

	ids := ident.UUID{}
	motions := motion.NewStore(parliamentStore, ids, bus)
	debates := ledger.NewDebateLog(parliamentStore, ids, logger)

	mode := ledger.Permissive
	if cfg.StrictBallots {
		mode = ledger.Strict
	}
	votes := ledger.NewVoteLedger(manager, mode, ids, bus, logger)
	delegations := ledger.NewDelegationGraph(manager, bus, logger)

	engine := tally.NewEngine(votes, delegations, tally.Options{
		Fanin:             tally.FaninPolicy(cfg.FaninPolicy),
		Resolution:        tally.ResolutionPolicy(cfg.ResolutionPolicy),
		MaxDepth:          cfg.MaxDelegationDepth,
		FetchTimeout:      cfg.FetchTimeout,
		DedupLatestBallot: cfg.DedupLatestBallot,
	}, bus, logger)

	var locker guard.Locker
	if strings.TrimSpace(cfg.RedisURL) != "" {
		logger.Info("using redis enactment lease")
		lease, err := guard.NewRedisLease(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer lease.Close()
		locker = lease
	} else {
		logger.Info("using in-process enactment lock")
		locker = guard.NewLocal()
	}

	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		logger.Info("audit trail enabled")
		auditStore, err := audit.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer auditStore.Close()
		if err := auditStore.EnsureSchema(ctx); err != nil {
			log.Fatalf("audit schema failed: %v", err)
		}
		audit.Attach(bus, auditStore, logger)
	}

	orc := oracle.New(motions, engine, locker, bus, logger)
	service := app.New(cfg, motions, debates, votes, delegations, engine, orc, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/", app.NewHTTPServer(service).Handler())

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("parliament API listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
}
