package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/janisto/hello-server/internal/config"
	applog "github.com/janisto/hello-server/internal/platform/logging"
	"github.com/janisto/hello-server/internal/routes"
	"github.com/janisto/hello-server/internal/server"
)

// Version can be overridden at build time: -ldflags "-X main.Version=1.2.3"
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "hello-server",
		Short:         "Serve a plaintext greeting on GET /",
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				applog.LogError(cmd.Context(), "config error", err)
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("host", "", "interface to listen on (empty for all)")
	flags.Int("port", 8080, "TCP port to listen on (0 picks a free port)")
	flags.String("content-type", "text/plain; charset=utf-8", "Content-Type of the greeting")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-file", "", "also write logs to this rotating file")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	applog.Configure(applog.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer func() {
		if err := applog.Close(); err != nil {
			applog.LogError(context.Background(), "logger close error", err)
		}
	}()
	if err := applog.Err(); err != nil {
		applog.LogError(ctx, "logger init error", err)
	}

	srv := newServer(cfg)
	if err := srv.Run(ctx); err != nil {
		applog.LogError(ctx, "server failed", err, zap.String("addr", cfg.Addr()))
		return err
	}
	applog.LogInfo(ctx, "server exited", zap.String("environment", cfg.Environment))
	return nil
}

func newServer(cfg *config.Config) *server.Server {
	router := routes.NewRouter(routes.Options{
		Title:       "Hello Server",
		Version:     Version,
		ContentType: cfg.ContentType,
	})
	return server.New(server.Options{
		Addr:              cfg.Addr(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
		ShutdownTimeout:   cfg.ShutdownTimeout,
	}, router)
}
