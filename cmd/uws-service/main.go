// Copyright 2025 James Ross
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/lsst-uws/go-uws-engine/internal/backendadapter"
	"github.com/lsst-uws/go-uws-engine/internal/config"
	"github.com/lsst-uws/go-uws-engine/internal/cutout"
	"github.com/lsst-uws/go-uws-engine/internal/jobqueue"
	"github.com/lsst-uws/go-uws-engine/internal/jobservice"
	"github.com/lsst-uws/go-uws-engine/internal/jobstore"
	"github.com/lsst-uws/go-uws-engine/internal/obs"
	"github.com/lsst-uws/go-uws-engine/internal/policy"
	"github.com/lsst-uws/go-uws-engine/internal/resultsigner"
	"github.com/lsst-uws/go-uws-engine/internal/tracker"
	"github.com/lsst-uws/go-uws-engine/internal/uwshttp"
)

var version = "dev"

func main() {
	var role string
	var configPath string
	var httpAddr string
	var showVersion bool
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&role, "role", "frontend", "Role to run: frontend|backend|tracker|expirer|all")
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.StringVar(&httpAddr, "http-addr", ":8080", "Address the frontend's UWS HTTP surface listens on")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	_ = fs.Parse(os.Args[1:])

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := obs.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("signal received, shutting down", obs.String("signal", sig.String()))
		cancel()
		select {
		case sig2 := <-sigCh:
			logger.Warn("second signal received, exiting immediately", obs.String("signal", sig2.String()))
			os.Exit(1)
		case <-time.After(5 * time.Second):
		}
	}()

	store, err := jobstore.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open job store", obs.Err(err))
	}
	defer store.Close()

	queue := jobqueue.New(cfg, logger)

	readyCheck := func(c context.Context) error {
		avail := store.Availability(c)
		if !avail.Available {
			return fmt.Errorf("job store unavailable: %s", avail.Note)
		}
		return nil
	}
	metricsSrv := obs.StartHTTPServer(cfg, readyCheck)
	defer func() { _ = metricsSrv.Shutdown(context.Background()) }()

	if rdb := queue.RawClient(); rdb != nil {
		obs.StartQueueDepthUpdater(ctx, cfg, rdb, logger)
	}

	switch role {
	case "frontend":
		runFrontend(ctx, cfg, store, queue, logger, httpAddr)
	case "backend":
		runBackend(ctx, cfg, queue, logger)
	case "tracker":
		runTracker(ctx, cfg, store, queue, logger)
	case "expirer":
		runExpirer(ctx, cfg, store, logger)
	case "all":
		go runBackend(ctx, cfg, queue, logger)
		go runTracker(ctx, cfg, store, queue, logger)
		go runExpirer(ctx, cfg, store, logger)
		runFrontend(ctx, cfg, store, queue, logger, httpAddr)
	default:
		logger.Fatal("unknown role", obs.String("role", role))
	}
}

// buildPolicy wires the cutout backend's Dispatcher into a cutout.Policy,
// the only Policy implementation this binary ships. cutout.Policy
// test-parses parameters at create time, unlike the bare
// policy.DefaultPolicy it embeds.
func buildPolicy(cfg *config.Config, queue *jobqueue.Queue, logger *zap.Logger) policy.Policy {
	dispatcher := cutout.NewDispatcher(queue, logger)
	return cutout.NewPolicy(dispatcher, cfg.Policy.MaxExecutionDuration, cfg.Policy.MaxDestructionDelay)
}

func runFrontend(ctx context.Context, cfg *config.Config, store jobstore.JobStore, queue *jobqueue.Queue, logger *zap.Logger, addr string) {
	pol := buildPolicy(cfg, queue, logger)
	svc := jobservice.New(cfg, store, pol, logger)

	var sign *resultsigner.Signer
	signer, err := resultsigner.New(cfg, logger)
	if err != nil {
		logger.Warn("result signer unavailable, result URLs will be unsigned", obs.Err(err))
	} else {
		sign = signer
	}

	var handler *uwshttp.Handler
	if sign != nil {
		handler = uwshttp.New(cfg, svc, sign, logger)
	} else {
		handler = uwshttp.New(cfg, svc, nil, logger)
	}
	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	srv := &http.Server{Addr: addr, Handler: router}
	go func() {
		logger.Info("uws frontend listening", obs.String("addr", addr), obs.String("path_prefix", cfg.UWS.PathPrefix))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("frontend http server error", obs.Err(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("frontend http server shutdown error", obs.Err(err))
	}
}

func runBackend(ctx context.Context, cfg *config.Config, queue *jobqueue.Queue, logger *zap.Logger) {
	compute := cutout.Compute(cfg)
	adapter := backendadapter.New(compute, queue, logger)
	pool := backendadapter.NewPool(queue, adapter, logger)
	logger.Info("cutout backend worker starting")
	if err := pool.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("backend worker exited", obs.Err(err))
	}
}

func runTracker(ctx context.Context, cfg *config.Config, store jobstore.JobStore, queue *jobqueue.Queue, logger *zap.Logger) {
	w := tracker.New(cfg, store, queue, logger)
	logger.Info("tracker worker starting")
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("tracker worker exited", obs.Err(err))
	}
}

func runExpirer(ctx context.Context, cfg *config.Config, store jobstore.JobStore, logger *zap.Logger) {
	e := tracker.NewExpirer(cfg, store, logger)
	logger.Info("expiration sweeper starting", obs.String("schedule", cfg.UWS.ExpirationCheckSchedule))
	if err := e.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("expirer exited", obs.Err(err))
	}
}
