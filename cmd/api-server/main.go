package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/healthlink/appointment-lifecycle/internal/api"
	"github.com/healthlink/appointment-lifecycle/internal/appointment"
	"github.com/healthlink/appointment-lifecycle/internal/clock"
	"github.com/healthlink/appointment-lifecycle/internal/config"
	"github.com/healthlink/appointment-lifecycle/internal/db"
	"github.com/healthlink/appointment-lifecycle/internal/prescription"
	redisclient "github.com/healthlink/appointment-lifecycle/internal/redis"
)

const version = "0.1.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s", cfg.Env, cfg.HTTPPort)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	apptRepo := appointment.NewPgRepository(pgPool)
	rxRepo := prescription.NewPgRepository(pgPool)
	locker := redisclient.NewRedisAppointmentLocker(rdb, cfg.LockTTL)
	screener := prescription.NewScreener(
		prescription.NewCachedSource(rdb, prescription.NewStaticSource(), cfg.ScreeningTTL),
	)

	rxSvc := prescription.NewService(rxRepo, apptRepo, screener)
	apptSvc := appointment.NewService(apptRepo, locker, rxSvc, clock.System(), cfg)

	router := api.NewRouter(api.RouterConfig{
		Appointments:  apptSvc,
		Prescriptions: rxSvc,
		PgPool:        pgPool,
		Redis:         rdb,
		Env:           cfg.Env,
		Version:       version,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  time.Minute,
	}

	go func() {
		log.Printf("listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()
	log.Println("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown error: %v", err)
	}
}
