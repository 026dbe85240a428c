package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clinicore/scheduling/internal/appointment"
	"github.com/clinicore/scheduling/internal/config"
	"github.com/clinicore/scheduling/internal/db"
	"github.com/clinicore/scheduling/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("dev").Fatalf("config load error: %v", err)
	}

	log := logging.New(cfg.Env)
	log.WithFields(logrus.Fields{
		"env":      cfg.Env,
		"interval": cfg.WorkerInterval.String(),
	}).Info("reminder-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Info("connected to Postgres")

	repo := appointment.NewPgRepository(pgPool)

	dispatcher := appointment.NewDispatcher(log)
	appointment.RegisterDefaultObservers(dispatcher, repo, log)

	svc := appointment.NewService(repo, nil, dispatcher, log)

	// Run once at startup
	runOnce(rootCtx, svc, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, log)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, log *logrus.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := svc.DispatchDueReminders(runCtx); err != nil {
		log.WithError(err).Error("reminder run failed")
		return
	}
	log.WithField("duration", time.Since(start).String()).Info("reminder run complete")
}
