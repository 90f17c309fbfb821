package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kitalumni/alumnichat/internal/app"
	"github.com/kitalumni/alumnichat/internal/config"
	applog "github.com/kitalumni/alumnichat/internal/log"
)

type flags struct {
	configPath string
	logLevel   string
	addr       string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:           "alumnichat",
		Short:         "Realtime chat and presence server",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), f)
		},
	}
	root.PersistentFlags().StringVar(&f.configPath, "config", "", "path to config.yaml (created with defaults when missing)")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&f.addr, "addr", "", "HTTP listen address")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), f)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig(f)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", path, out)
			return nil
		},
	})

	return root
}

func loadConfig(f *flags) (config.Config, string, error) {
	// A missing .env file is normal outside development.
	_ = godotenv.Load()

	bootLogger := applog.New(f.logLevel)
	cfg, path, err := config.Load(bootLogger, f.configPath)
	if err != nil {
		return cfg, path, err
	}
	cfg.UpdateFrom(config.Config{
		Server:   config.ServerConfig{Addr: f.addr},
		LogLevel: f.logLevel,
	})
	return cfg, path, nil
}

func serve(parent context.Context, f *flags) error {
	cfg, path, err := loadConfig(f)
	if err != nil {
		return err
	}

	logger := applog.New(cfg.LogLevel)
	logger.Info().Str("config", path).Str("addr", cfg.Server.Addr).Msg("starting alumnichat server")

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize app")
		return err
	}

	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
