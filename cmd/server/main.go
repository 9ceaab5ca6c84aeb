package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/natlachat/natla/internal/adapters/http"
	"github.com/natlachat/natla/internal/app"
	"github.com/natlachat/natla/internal/app/orch"
	"github.com/natlachat/natla/internal/config"
	"github.com/natlachat/natla/internal/media"
	"github.com/natlachat/natla/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	st.SessionTTL = time.Duration(cfg.SessionTTLHours) * time.Hour

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.UploadDir).Msg("failed to create upload dir")
	}

	limiter := app.NewFixedWindowLimiter()
	limiter.StartSweeper(time.Hour)
	defer limiter.Stop()

	// A dead worker leaves every room pinned to it without media; the
	// policy is a full process restart, not per-room recovery.
	pool, err := media.NewPool(ctx, media.NewLoopbackEngine(), cfg.Workers, media.WorkerSettings{
		RTCMinPort:  cfg.RTCMinPort,
		RTCMaxPort:  cfg.RTCMaxPort,
		AnnouncedIP: cfg.AnnouncedIP,
	}, func(i int) {
		log.Fatal().Int("worker", i).Msg("media worker died, exiting")
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start media workers")
	}
	defer pool.Close()

	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRooms(pool),
		Store:    st,
		Limiter:  limiter,
		Ghosts:   app.DisplayNameGhostPolicy{},
		Settings: orch.Settings{
			ChatLimit:             cfg.ChatLimit,
			TextRetentionHours:    cfg.TextRetentionHours,
			FileMsgRetentionHours: cfg.FileMsgRetentionHours,
			HistoryLimit:          cfg.HistoryLimit,
		},
	}

	stop := make(chan struct{})
	go st.RunSweeper(time.Hour, stop)
	go router.RunFileSweeper(cfg.UploadDir, cfg.FileRetention, time.Hour, stop)
	defer close(stop)

	r := router.SetupRouter(ctx, cfg, o, st, limiter)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Int("workers", pool.Size()).Msg("Natla server started")
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
	log.Info().Msg("Server exited gracefully")
}
