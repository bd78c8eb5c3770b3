package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	osignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/iftarcode/sfu-server/internal/adapters/http"
	"github.com/iftarcode/sfu-server/internal/adapters/ws"
	"github.com/iftarcode/sfu-server/internal/app"
	"github.com/iftarcode/sfu-server/internal/config"
	"github.com/iftarcode/sfu-server/internal/media"
	"github.com/iftarcode/sfu-server/internal/media/pion"
	"github.com/iftarcode/sfu-server/internal/signal"
	"github.com/iftarcode/sfu-server/internal/store"
)

func main() {
	ctx, cancel := osignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	st, err := newStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Store.Backend).Msg("failed to connect store")
	}
	log.Info().Str("backend", cfg.Store.Backend).Msg("state store ready")

	workers, err := pion.NewWorkers(pion.Config{
		ListenIP:       cfg.Media.ListenIP,
		AnnouncedIP:    cfg.Media.AnnouncedIP,
		RTCMinPort:     cfg.Media.RTCMinPort,
		RTCMaxPort:     cfg.Media.RTCMaxPort,
		InitialBitrate: cfg.Media.InitialBitrate,
		MinimumBitrate: cfg.Media.MinimumBitrate,
	}, cfg.Media.NumWorkers)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start media workers")
	}
	pool := media.NewPool(workers, media.WithTerminate(func() {
		log.Error().Msg("terminating after media worker death")
		os.Exit(1)
	}))

	push := signal.NewPush()
	registry := app.NewRegistry(pool, push)
	relay := signal.NewRelay(st, cfg.Rooms.SignalTTL)
	directory := app.NewDirectory(st, cfg.Rooms.RoomTTL, cfg.Rooms.ChatRateInterval, cfg.Rooms.ChatHistoryLimit)

	api := router.NewAPI(directory, relay, cfg.Secret, cfg.TURN)
	wsCtl := ws.NewController(registry, push)
	r := router.SetupRouter(ctx, cfg, api, wsCtl)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Int("workers", pool.Size()).Msg("iftar server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	pool.Close()
	log.Info().Msg("Server exited gracefully")
}

func newStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "", "memory":
		return store.NewMemory(), nil
	case "redis":
		return store.NewRedis(ctx, cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB)
	case "mongo":
		return store.NewMongo(ctx, cfg.Store.Mongo.URI, cfg.Store.Mongo.Database)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
