package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"blobd/internal/blobstore"
	"blobd/internal/config"
	"blobd/internal/server"
	"blobd/internal/store"
)

func newSrvCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "srv",
		Short: "Run the blobd API server",
		Args:  requireExactlyArgs(0, "srv takes no arguments"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			if cfg.DBPath == "" {
				return fmt.Errorf("db path is required")
			}
			if cfg.DataDir == "" {
				return fmt.Errorf("data dir is required")
			}

			logger := slog.Default().With("component", "server")

			addr, err := server.ListenAddr(cfg.APIURL)
			if err != nil {
				return err
			}

			logger.Info("opening database", "path", cfg.DBPath)
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			logger.Info("opening content store", "path", cfg.DataDir)
			bs, err := blobstore.NewLocalStore(cfg.DataDir)
			if err != nil {
				return err
			}

			srv, err := buildServer(cfg, addr, st, bs, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.ListenAndServe(ctx)
		},
	}
}

func buildServer(cfg *config.Config, addr string, st store.BlobIndex, bs blobstore.BlobStore, logger *slog.Logger) (*server.Server, error) {
	algo, err := cfg.CompressionAlgorithm()
	if err != nil {
		return nil, err
	}

	service := server.NewBlobService(st, bs, server.ServiceOptions{
		Compression:        algo,
		CompressionLevel:   cfg.Storage.CompressionLevel,
		MaxUploadBytes:     cfg.Storage.MaxUploadBytes,
		MaxTotalBytes:      cfg.Storage.MaxTotalBytes,
		DefaultCacheMaxAge: cfg.Retention.DefaultCacheMaxAge(),
		FetchTimeout:       cfg.Fetch.Timeout(),
		Metrics:            server.NewMetrics(),
		Logger:             logger,
	})
	sweeper := server.NewRetentionSweeper(service, server.SweepPolicy{
		ExpiryInterval:         cfg.Retention.SweepInterval(),
		OrphanInterval:         cfg.Retention.OrphanInterval(),
		BackfillInterval:       cfg.Retention.BackfillInterval(),
		Inactivity:             cfg.Retention.InactivityWindow(),
		BatchSize:              cfg.Retention.BatchSize,
		LimiterCleanupInterval: cfg.RateLimit.CleanupInterval(),
	})

	return server.New(addr, service, sweeper, server.Options{
		RateLimitMaxRequests: cfg.RateLimit.MaxRequests,
		RateLimitWindow:      cfg.RateLimit.Window(),
	}, logger), nil
}
