package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"autosocioly/internal/bus"
	"autosocioly/internal/config"
	"autosocioly/internal/drafting"
	"autosocioly/internal/exposure"
	"autosocioly/internal/getlate"
	"autosocioly/internal/metrics"
	"autosocioly/internal/notify"
	"autosocioly/internal/poster"
	"autosocioly/internal/server"
	"autosocioly/internal/workflow"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	// Local .env values feed the ${VAR} placeholders in config.json.
	_ = godotenv.Load()

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "autosocioly",
		Short:   "AutoSocioly: draft, revise, and publish marketing posts",
		Long:    "AutoSocioly turns one natural-language instruction into per-platform social posts, with an operator confirmation loop before anything is published.",
		Version: version,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.autosocioly/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	return config.Load(resolveConfigPath())
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and working directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(config.DefaultConfigDir(), 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			for _, dir := range []string{cfg.Drafting.ImageDir, cfg.Exposure.StaticDir} {
				if err := os.MkdirAll(config.ExpandPath(dir), 0o755); err != nil {
					return err
				}
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the workflow API server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.General.LogLevel),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := bus.New(logger)

	client := getlate.NewClient(getlate.ClientConfig{
		APIKey:     cfg.GetLate.APIKey,
		BaseURL:    cfg.GetLate.BaseURL,
		Timeout:    time.Duration(cfg.GetLate.TimeoutSeconds) * time.Second,
		MaxRetries: cfg.GetLate.MaxRetries,
		Policy:     getlate.PolicyFor(cfg.GetLate.SimulateUnsupported),
		Logger:     logger,
	})

	registry, err := poster.NewDefaultRegistry(client, logger)
	if err != nil {
		return fmt.Errorf("poster registry: %w", err)
	}

	provider := drafting.NewGeminiProvider(drafting.GeminiConfig{
		APIKey:   cfg.Drafting.APIKey,
		APIBase:  cfg.Drafting.APIBase,
		Model:    cfg.Drafting.Model,
		ImageDir: cfg.Drafting.ImageDir,
		Timeout:  time.Duration(cfg.Drafting.TimeoutSeconds) * time.Second,
		Logger:   logger,
	})
	drafter := drafting.NewService(provider, logger)

	bridge := exposure.NewBridge(exposure.BridgeConfig{
		Tunnels:    exposure.NewAgentTunnelService(cfg.Exposure.TunnelAPIURL),
		StaticDir:  cfg.Exposure.StaticDir,
		PublicBase: cfg.Exposure.PublicBase,
		Logger:     logger,
	})

	orchestrator := workflow.New(workflow.Config{
		Drafter:     drafter,
		Exposer:     bridge,
		Dispatcher:  registry,
		Events:      events,
		Logger:      logger,
		PostTimeout: time.Duration(cfg.GetLate.PostTimeoutSeconds) * time.Second,
	})

	var registryMetrics *metrics.Registry
	if cfg.Metrics.Enabled {
		registryMetrics = metrics.NewRegistry()
		registryMetrics.ObserveBus(events)
	}

	if cfg.Notify.Enabled {
		chatID, err := strconv.ParseInt(cfg.Notify.ChatID, 10, 64)
		if err != nil {
			return fmt.Errorf("notify.chatId: %w", err)
		}
		notifier, err := notify.New(notify.Config{
			Token:  cfg.Notify.Token,
			ChatID: chatID,
			Logger: logger,
		})
		if err != nil {
			logger.Warn("telegram notifier disabled", "err", err)
		} else {
			notifier.SubscribeTo(events)
		}
	}

	api := server.New(server.Config{
		Orchestrator: orchestrator,
		Registry:     registry,
		Accounts:     client,
		Metrics:      registryMetrics,
		StaticDir:    cfg.Exposure.StaticDir,
		Logger:       logger,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown timed out, forcing exit")
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show system status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false)
				return nil
			}
			logger.Info("config", "path", cfgPath, "loaded", true)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			client := getlate.NewClient(getlate.ClientConfig{
				APIKey:  cfg.GetLate.APIKey,
				BaseURL: cfg.GetLate.BaseURL,
				Timeout: time.Duration(cfg.GetLate.TimeoutSeconds) * time.Second,
				Logger:  logger,
			})
			if accounts, err := client.GetAccounts(ctx); err != nil {
				logger.Info("posting api", "healthy", false, "err", err)
			} else {
				logger.Info("posting api", "healthy", true, "accounts", len(accounts))
			}

			tunnels := exposure.NewAgentTunnelService(cfg.Exposure.TunnelAPIURL)
			if eps, err := tunnels.ListActiveEndpoints(ctx); err != nil {
				logger.Info("tunnel agent", "reachable", false)
			} else {
				logger.Info("tunnel agent", "reachable", true, "endpoints", len(eps))
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. getlate.baseUrl)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. general.defaultTone professional)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
