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

	"github.com/dkeye/Mirage/internal/adapters/genapi"
	router "github.com/dkeye/Mirage/internal/adapters/http"
	"github.com/dkeye/Mirage/internal/adapters/whep"
	"github.com/dkeye/Mirage/internal/app/hub"
	"github.com/dkeye/Mirage/internal/app/orch"
	"github.com/dkeye/Mirage/internal/app/prompts"
	"github.com/dkeye/Mirage/internal/app/relay"
	"github.com/dkeye/Mirage/internal/app/scheduler"
	"github.com/dkeye/Mirage/internal/config"
	"github.com/dkeye/Mirage/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	h := hub.New()
	rel := relay.New(h, cfg.StaleThreshold)
	api := genapi.New(cfg.VideoAPIBase)

	dial := core.SignalingFactory(func() core.SignalingClient {
		return whep.NewClient(whep.NewRTPAssembler(cfg.FrameWidth, cfg.FrameHeight))
	})

	o := orch.New(h, rel, api, dial, orch.Options{
		Timeout:  cfg.GenerationTimeout,
		Quality:  cfg.Quality,
		Duration: cfg.Duration,
	})
	h.SetStateFunc(o.State)

	sched := scheduler.New(h, rel, o, prompts.NewGenerator(0), scheduler.Options{
		Interval:        cfg.CycleInterval,
		WaitingInterval: cfg.WaitingInterval,
	})
	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	r := router.SetupRouter(ctx, cfg, h, o, rel)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Mirage server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	sched.Stop()
	o.StopCurrentGeneration()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
