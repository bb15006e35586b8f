package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/hydrocam/hydrocam/internal/archive"
	"codeberg.org/hydrocam/hydrocam/internal/camera"
	"codeberg.org/hydrocam/hydrocam/internal/config"
	"codeberg.org/hydrocam/hydrocam/internal/errors"
	"codeberg.org/hydrocam/hydrocam/internal/history"
	"codeberg.org/hydrocam/hydrocam/internal/logger"
	"codeberg.org/hydrocam/hydrocam/internal/overlay"
	"codeberg.org/hydrocam/hydrocam/internal/pid"
	"codeberg.org/hydrocam/hydrocam/internal/pipeline"
	"codeberg.org/hydrocam/hydrocam/internal/publish"
	"codeberg.org/hydrocam/hydrocam/internal/scheduler"
	"codeberg.org/hydrocam/hydrocam/internal/sensor"
	"codeberg.org/hydrocam/hydrocam/internal/server"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		logger.Fatal().Err(err).Msg("Failed to load config")
	}

	closer, err := logger.Init(logger.Options{
		Level:     cfg.LogLevel,
		IsService: logger.IsService(),
		File:      cfg.LogFile,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize logger")
	}
	defer closer.Close()

	if err := run(cfg); err != nil {
		logger.FatalWithCode(err).Msg("Exiting with error")
	}
}

func run(cfg *config.Config) error {
	log := logger.Default()

	if err := pid.Write(cfg.PIDFile); err != nil {
		return err
	}
	defer func() {
		if err := pid.Remove(cfg.PIDFile); err != nil {
			log.ErrorWithCode(err).Msg("Failed to remove PID file")
		}
	}()

	log.Debug().
		Int("width", cfg.Width).
		Int("height", cfg.Height).
		Str("output_dir", cfg.OutputDir).
		Str("resources_dir", cfg.ResourcesDir).
		Msg("Config loaded")

	settings := overlay.DefaultSettings()
	orchestrator := pipeline.New(
		camera.NewCommandSource(cfg.CaptureCommand, cfg.CaptureArgs, log),
		overlay.NewCache(os.DirFS(cfg.ResourcesDir), settings, log),
		sensor.NewReader(sensor.NewIIOSource(cfg.SensorIIODir, cfg.SensorModel, cfg.SensorPin), log),
		overlay.NewCompositor(settings),
		log,
	)

	store := archive.NewStore(afero.NewOsFs(), cfg.OutputDir, log)

	recorder, err := history.NewService(history.Config{
		DBPath:  cfg.HistoryDB,
		Enabled: cfg.HistoryEnabled,
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			log.ErrorWithCode(err).Msg("Failed to close capture history")
		}
	}()

	publisher, err := publish.New(publish.Config{
		Broker:   cfg.MQTTBroker,
		Topic:    cfg.MQTTTopic,
		ClientID: "hydrocam-" + uuid.NewString()[:8],
	}, log)
	if err != nil {
		return err
	}
	defer publisher.Close()

	sched := scheduler.New(scheduler.Config{
		Width:             cfg.Width,
		Height:            cfg.Height,
		CaptureInterval:   cfg.CaptureInterval,
		SaveInterval:      cfg.SaveInterval,
		SaveOffset:        cfg.SaveOffset,
		MinimumBrightness: cfg.MinimumBrightness,
	}, orchestrator, &pipeline.Latest{}, store, recorder, publisher, log)

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.New(sched, recorder, store.FS(), log).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sched.Run(gctx)
	})

	g.Go(func() error {
		log.Info().Str("listen", cfg.Listen).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.New().Wrap(errors.ErrInitFailed, err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return errors.New().Wrap(errors.ErrShutdownFailed, err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info().Msg("Exiting...")
	return nil
}
