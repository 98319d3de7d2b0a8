package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/voicerelay/internal/adapters/http"
	sig "github.com/dkeye/voicerelay/internal/adapters/signal"
	"github.com/dkeye/voicerelay/internal/app"
	"github.com/dkeye/voicerelay/internal/app/orch"
	"github.com/dkeye/voicerelay/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := run(ctx); err != nil {
		log.Error().Err(err).Msg("server failed")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	zerolog.SetGlobalLevel(cfg.Level())

	rooms, err := cfg.DomainRooms()
	if err != nil {
		return err
	}
	manager, err := app.NewRoomManager(rooms)
	if err != nil {
		return err
	}

	o := orch.New(app.NewRegistry(), manager, app.SimplePolicy{}, cfg.EventBuffer)
	limiter := sig.NewRoomRateLimiter(cfg.JoinRate.Limit, cfg.JoinRate.Interval)
	ctrl := sig.NewSignalWSController(o, limiter, sig.OptionsFromConfig(cfg))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router.SetupRouter(ctx, cfg, o, ctrl),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return o.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Voice server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				limiter.Prune()
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})
	return g.Wait()
}
