package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"cancer-predictor/internal/cfg"
	"cancer-predictor/internal/common"
	"cancer-predictor/internal/features"
	"cancer-predictor/internal/logging"
	"cancer-predictor/internal/metrics"
	"cancer-predictor/internal/ml"
	"cancer-predictor/internal/server"
	"cancer-predictor/internal/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Error().Err(err).Msg("predictd exited with error")
		os.Exit(1)
	}
}

func run() error {
	c, err := cfg.Load()
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	logCloser := logging.Setup(logging.Options{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		File:       c.LogFile,
		MaxSizeMB:  c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
		MaxAgeDays: c.LogMaxAgeDays,
		Service:    common.ServiceName,
	})
	defer logCloser.Close()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	registry, err := loadRegistry(c)
	if err != nil {
		return err
	}

	store := ml.NewStore(c.ArtifactPaths(), registry, mw)
	if err := store.Initialize(); err != nil {
		if !c.AllowUnready {
			log.Error().Str("model_dir", c.ModelDir).Msg("application initialization failed, ensure the model artifacts exist")
			return err
		}
		log.Warn().Err(err).Msg("serving without a model; prediction routes will answer 503")
	}

	opts := serverOptions(c, store, mw)
	if audit := initializeStorage(c, mw); audit != nil {
		defer audit.Close()
		opts.Audit = audit
	}

	srv, err := server.New(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().
			Dur("timeout", c.ShutdownTimeout).
			Float64("error_rate", mw.ErrorRate()).
			Msg("shutting down prediction server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Float64("error_rate", mw.ErrorRate()).Msg("prediction server stopped")
	return nil
}

func serverOptions(c cfg.Settings, store *ml.Store, mw *metrics.MetricsWrapper) server.Options {
	opts := server.Options{
		Addr:           c.Addr(),
		ReadTimeout:    c.ReadTimeout,
		WriteTimeout:   c.WriteTimeout,
		IdleTimeout:    c.IdleTimeout,
		MaxBodyBytes:   c.MaxBodyBytes,
		WSEnabled:      c.WSEnabled,
		WSPingInterval: c.WSPingInterval,
		AuditLimit:     c.AuditLimit,
		Store:          store,
		Metrics:        mw,
		Gatherer:       prometheus.DefaultGatherer,
	}
	if c.DriftEnabled() {
		opts.DriftWindow = c.DriftWindow
		opts.DriftThreshold = c.DriftThreshold
	} else {
		log.Info().Msg("input drift monitoring disabled")
	}
	return opts
}

// loadRegistry returns the built-in feature catalogue unless FEATURES_FILE points elsewhere.
func loadRegistry(c cfg.Settings) (*features.Registry, error) {
	if c.FeaturesFile == "" {
		return features.Default(), nil
	}
	registry, err := features.LoadFile(c.FeaturesFile)
	if err != nil {
		return nil, err
	}
	log.Info().Str("path", c.FeaturesFile).Int("features", registry.Len()).Msg("loaded feature catalogue")
	return registry, nil
}

// initializeStorage opens the prediction audit log if DATA_PATH is configured.
func initializeStorage(c cfg.Settings, mw *metrics.MetricsWrapper) *storage.Store {
	if !c.AuditEnabled() {
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without prediction audit log")
		return nil
	}
	store.SetMetrics(mw)
	return store
}
