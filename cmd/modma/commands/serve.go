package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ekisa-team/modma/internal/classifier"
	"github.com/ekisa-team/modma/internal/config"
	"github.com/ekisa-team/modma/internal/model"
	"github.com/ekisa-team/modma/internal/preprocess"
	servergrpc "github.com/ekisa-team/modma/internal/server/grpc"
	serverhttp "github.com/ekisa-team/modma/internal/server/http"
	"github.com/ekisa-team/modma/internal/service"
	"github.com/ekisa-team/modma/internal/storage"
	"github.com/ekisa-team/modma/internal/telemetry"
	"github.com/ekisa-team/modma/internal/xfs"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, flags)
		},
	}
}

func serve(ctx context.Context, flags *globalFlags) error {
	configPath := flags.resolveConfigPath()
	if _, err := xfs.EnsureDir(filepath.Dir(configPath)); err != nil {
		return err
	}

	manager := model.NewManager()
	var grpcRef atomic.Pointer[servergrpc.Server]

	watcher, err := config.NewWatcher(configPath, flags.schemaPath, func(cfg *config.Config, err error) {
		if err != nil {
			slog.Error("Failed to reload config", "error", err)
			return
		}
		if err := manager.LoadFromConfig(ctx, cfg); err != nil {
			slog.Error("Failed to reload model artifacts", "error", err)
		}
		if srv := grpcRef.Load(); srv != nil {
			srv.SetServing(manager.Loaded())
		}
	})
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	cfg := watcher.Snapshot()
	slog.Info("Config loaded", "config", configPath, "models_dir", cfg.Storage.ModelsDir)

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.OTELEndpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     Version,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	if err := manager.Bootstrap(ctx, cfg); err != nil {
		return fmt.Errorf("failed to bootstrap model artifacts: %w", err)
	}

	uploads, err := storage.NewLocal(xfs.ExpandTilde(cfg.Storage.UploadsDir))
	if err != nil {
		return fmt.Errorf("failed to open uploads directory: %w", err)
	}
	processed, err := storage.NewLocal(xfs.ExpandTilde(cfg.Storage.ProcessedDir))
	if err != nil {
		return fmt.Errorf("failed to open processed directory: %w", err)
	}

	pipeline := service.NewPipeline(uploads,
		preprocess.New(cfg.Pipeline.Preprocess, processed),
		classifier.NewPredictor(cfg.Pipeline.Inference),
		manager)

	httpSrv := serverhttp.New(serverhttp.Config{
		Port:            cfg.Server.HTTPPort,
		MaxUploadBytes:  cfg.Server.MaxUploadBytes,
		BodyReadTimeout: cfg.Server.BodyReadTimeout,
		FrontendDir:     xfs.ExpandTilde(cfg.Storage.FrontendDir),
		Version:         Version,
	}, pipeline, manager)

	var grpcSrv *servergrpc.Server
	if cfg.Server.GRPCPort != 0 {
		grpcSrv = servergrpc.New(cfg.Server.GRPCPort, cfg.Server.MaxUploadBytes, pipeline)
		grpcSrv.SetServing(manager.Loaded())
		grpcRef.Store(grpcSrv)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(httpSrv.Start)
	if grpcSrv != nil {
		g.Go(grpcSrv.Start)
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("modma shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP shutdown error", "error", err)
		}
		if grpcSrv != nil {
			grpcSrv.Shutdown(shutdownCtx)
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("modma stopped")
	return nil
}
