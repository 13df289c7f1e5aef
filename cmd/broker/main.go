package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/esdx-scion/esdx/buildinfo"
	"github.com/esdx-scion/esdx/internal/router"
	"github.com/esdx-scion/esdx/pkg/database"
	"github.com/esdx-scion/esdx/pkg/logging"
	"github.com/esdx-scion/esdx/pkg/metrics"
	storeimpl "github.com/esdx-scion/esdx/pkg/store/impl"
)

func main() {
	config := setupConfig()
	logging.SetupLogger(buildinfo.GitCommit, config.Log.Debug, config.Log.Human)

	if err := metrics.SetupInstrumentation(":"+config.Metrics.Port, "esdx-broker"); err != nil {
		log.Fatal().
			Err(err).
			Str("port", config.Metrics.Port).
			Msg("could not setup instrumentation")
	}

	db, err := database.Open(config.DB.Path)
	if err != nil {
		log.Fatal().
			Err(err).
			Str("path", config.DB.Path).
			Msg("failed to open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("closing database")
		}
	}()
	store := storeimpl.New(db)

	rateLimInterval, err := time.ParseDuration(config.HTTP.RateLimInterval)
	if err != nil {
		log.Fatal().
			Err(err).
			Str("rateLimInterval", config.HTTP.RateLimInterval).
			Msg("parsing rate limit interval")
	}
	r, err := router.ConfiguredRouter(store, config.HTTP.MaxRequestPerInterval, rateLimInterval)
	if err != nil {
		log.Fatal().Err(err).Msg("configuring router")
	}

	server := &http.Server{
		Addr:              ":" + config.HTTP.Port,
		Handler:           r.Handler(),
		ReadHeaderTimeout: time.Second * 5,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", config.HTTP.Port).Msg("broker listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("broker terminated")
	}
	log.Info().Msg("broker stopped")
}
