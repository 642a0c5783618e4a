package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/healthlink/appointment-lifecycle/internal/appointment"
	"github.com/healthlink/appointment-lifecycle/internal/clock"
	"github.com/healthlink/appointment-lifecycle/internal/config"
	"github.com/healthlink/appointment-lifecycle/internal/db"
	"github.com/healthlink/appointment-lifecycle/internal/prescription"
	redisclient "github.com/healthlink/appointment-lifecycle/internal/redis"
)

// The worker flags appointments whose end window has elapsed while still
// confirmed or in progress. It records eligibility events only; marking the
// actual no-show stays a clinician decision.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("noshow-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running no-show sweep in env=%s interval=%s", cfg.Env, cfg.WorkerInterval)

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
	screener := prescription.NewScreener(prescription.NewStaticSource())
	rxSvc := prescription.NewService(rxRepo, apptRepo, screener)
	svc := appointment.NewService(apptRepo, locker, rxSvc, clock.System(), cfg)

	// Run once at startup
	runOnce(rootCtx, svc)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Println("shutdown signal received, stopping no-show worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	flagged, err := svc.FlagNoShowEligible(runCtx)
	if err != nil {
		log.Printf("no-show sweep error: %v", err)
		return
	}
	log.Printf("no-show sweep complete in %s, flagged=%d", time.Since(start), flagged)
}
