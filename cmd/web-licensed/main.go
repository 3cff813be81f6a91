package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"pvcli/internal/config"
	"pvcli/internal/infrastructure"
	"pvcli/internal/license"
	"pvcli/internal/security"
	transport "pvcli/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := infrastructure.MustInitializeLogger(cfg.Logging)

	providers, err := infrastructure.InitializeOTel(nil, logger)
	if err != nil {
		return err
	}

	keys := security.NewKeyring(&security.FileKeySource{
		PublicKeyPath:  cfg.Keys.PublicKeyFile,
		PrivateKeyPath: cfg.Keys.PrivateKeyFile,
	})
	if passphrase := os.Getenv(cfg.Keys.PassphraseEnv); passphrase != "" {
		keys.SetPassphrase([]byte(passphrase))
	}

	var metrics *license.Metrics
	if providers.Meter != nil {
		metrics, err = license.NewMetrics(providers.Meter)
		if err != nil {
			return err
		}
	}

	codec := license.NewCodec(keys,
		license.WithLabel(cfg.License.Label),
		license.WithLogger(logger),
		license.WithMetrics(metrics),
	)

	cache := license.NewResultCache(cfg.License.CacheTTL, cfg.License.CacheSize, metrics)
	defer cache.Stop()

	handler := transport.NewLicenseHandler(codec, cache, logger)
	router := transport.NewRouter(cfg, transport.RouterDeps{
		License: handler,
		Metrics: providers.PrometheusHTTP,
		Logger:  logger,
	})
	server := transport.NewServer(cfg, router, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(server.ListenAndServe)
	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return providers.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	logger.Info("server stopped")
	return nil
}
