package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"apotek/m/internal/api"
	"apotek/m/internal/config"
	"apotek/m/internal/database"
	"apotek/m/internal/events"
	"apotek/m/internal/imagestore"
	"apotek/m/internal/logging"
	"apotek/m/internal/migrations"
	"apotek/m/internal/seed"
	"apotek/m/internal/store"
)

const shutdownTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	zlog.Logger = log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	db, err := database.Connect(ctx, cfg.DBDriver, cfg.DatabaseDSN, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrations.Run(ctx, db); err != nil {
		return err
	}
	if err := seed.EnsureAdmin(ctx, store.NewAccounts(db, cfg.BcryptCost), cfg.AdminUsername, cfg.AdminPassword, log); err != nil {
		return err
	}
	if cfg.MedicineCSV != "" {
		if _, err := seed.LoadMedicinesFile(ctx, store.NewMedicines(db), cfg.MedicineCSV, log); err != nil {
			log.Warn().Err(err).Str("path", cfg.MedicineCSV).Msg("medicine catalog not loaded")
		}
	}

	images, err := imagestore.New(cfg.UploadDir, api.StaticPrefix)
	if err != nil {
		return err
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing sale events")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("closing event publisher")
		}
	}()

	handler := api.New(db, cfg, images, publisher, log)
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.HTTPPort).Str("driver", cfg.DBDriver).Msg("apotek POS server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
