package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/studentportal/internal/auth"
	"github.com/geocoder89/studentportal/internal/config"
	"github.com/geocoder89/studentportal/internal/db"
	httpx "github.com/geocoder89/studentportal/internal/http"
	"github.com/geocoder89/studentportal/internal/http/handlers"
	"github.com/geocoder89/studentportal/internal/jobs"
	"github.com/geocoder89/studentportal/internal/observability"
	"github.com/geocoder89/studentportal/internal/queue/redisclient"
	"github.com/geocoder89/studentportal/internal/security"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	// Load the config set up
	cfg := config.Load()

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	shutdownTracer, err := observability.InitTracer(context.Background(), "studentportal-api", cfg.OTLPEndpoint)
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	store, closeStore, err := openStore(cfg, prom, log)
	if err != nil {
		log.Error("store connect failed", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	hasher := security.NewHasher(bcrypt.DefaultCost)

	seedCtx, cancelSeed := config.WithTimeout(cfg.StoreTimeout)
	err = db.EnsureAdminUser(seedCtx, store, hasher, cfg)
	cancelSeed()
	if err != nil {
		log.Error("admin seed failed", "err", err)
		os.Exit(1)
	}

	tokens, err := auth.NewManager(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		log.Error("jwt manager init failed", "err", err)
		os.Exit(1)
	}

	deps := httpx.Deps{
		Log:      log,
		Config:   cfg,
		Store:    store,
		Hasher:   hasher,
		Tokens:   tokens,
		Prom:     prom,
		Gatherer: reg,
	}

	// redis backs session revocation and the welcome queue; without it
	// logout only clears the cookie and no welcome jobs are queued
	if cfg.RedisEnabled() {
		rc := redisclient.New(redisclient.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rc.Close()

		pingCtx, cancelPing := config.WithTimeout(2 * time.Second)
		err := rc.Ping(pingCtx)
		cancelPing()
		if err != nil {
			log.Error("redis connect failed", "addr", cfg.RedisAddr, "err", err)
			os.Exit(1)
		}

		deps.Denylist = auth.NewRedisDenylist(rc.Raw())
		deps.Publisher = jobs.NewPublisher(redisclient.NewQueue(rc, redisclient.DefaultPrefix))
		deps.Checks = append(deps.Checks, handlers.ReadinessCheck{Name: "redis", Ping: rc.Ping})
	} else {
		log.Warn("REDIS_ADDR not set: sessions cannot be revoked before expiry")
	}

	// set up routers with the log
	router := httpx.NewRouter(deps)

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// start server using a concurrent go-routine driven anonymous function.

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.StoreDriver)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)

		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}

		if err := shutdownTracer(ctx); err != nil {
			log.Error("tracer shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}
