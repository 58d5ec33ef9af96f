// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Shivanand-hulikatti/community-events/internal/config"
	"github.com/Shivanand-hulikatti/community-events/internal/database"
	"github.com/Shivanand-hulikatti/community-events/internal/handler"
	"github.com/Shivanand-hulikatti/community-events/internal/logging"
	"github.com/Shivanand-hulikatti/community-events/internal/notify"
	"github.com/Shivanand-hulikatti/community-events/internal/reminder"
	"github.com/Shivanand-hulikatti/community-events/internal/repository"
	"github.com/Shivanand-hulikatti/community-events/internal/service"
	"github.com/sirupsen/logrus"
)

func main() {
	config.SetupCommon()
	logging.Init()

	cfg, err := config.New()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	logrus.WithFields(configFields(cfg)).Debug("config loaded")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// ── 1. Open storage ───────────────────────────────────────────────────
	store, err := openStore(ctx, cfg)
	if err != nil {
		logrus.Fatalf("storage: %v", err)
	}
	defer store.Close()

	// ── 2. Wire up layers ────────────────────────────────────────────────
	sink := notify.NewStoreSink(store.Repos().Notifications, nil)
	eventSvc := service.NewEventService(store, nil)
	userSvc := service.NewUserService(store, sink, nil)
	regSvc := service.NewRegistrationService(store, sink, nil)

	router := handler.NewRouter(handler.RouterConfig{
		Store:          store,
		Events:         handler.NewEventHandler(eventSvc, regSvc),
		Users:          handler.NewUserHandler(userSvc),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
	})

	sweeper := reminder.NewSweeper(
		store.Repos().Registrations, sink,
		cfg.ReminderInterval, cfg.ReminderLeadTime, nil,
	)

	// ── 3. Start background work and the server ───────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()

	go func() {
		logrus.Infof("server listening on :%s (storage=%s)", cfg.Port, cfg.Storage)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("server error: %v", err)
			cancel()
		}
	}()

	// Block until SIGINT or SIGTERM.
	<-ctx.Done()

	logrus.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("graceful shutdown failed: %v", err)
	}

	logrus.Info("waiting for background work to finish")
	wg.Wait()
	logrus.Info("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	if cfg.Storage == config.StorageMemory {
		logrus.Warn("using in-memory storage; data is lost on restart")
		return repository.NewMemoryStore(), nil
	}

	pool, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	migrateCtx, migrateCancel := context.WithTimeout(ctx, 10*time.Second)
	defer migrateCancel()
	if err := database.Migrate(migrateCtx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	logrus.Info("connected to PostgreSQL")
	return repository.NewPostgresStore(pool), nil
}

// configFields lists the settings worth logging at startup. Credentials are left out.
func configFields(cfg *config.Config) logrus.Fields {
	return logrus.Fields{
		"port":               cfg.Port,
		"storage":            cfg.Storage,
		"db_host":            cfg.Database.Host,
		"db_port":            cfg.Database.Port,
		"db_name":            cfg.Database.Name,
		"db_user":            cfg.Database.User,
		"reminder_interval":  cfg.ReminderInterval.String(),
		"reminder_lead_time": cfg.ReminderLeadTime.String(),
	}
}
