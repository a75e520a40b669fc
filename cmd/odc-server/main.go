package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/odcproject/odc/internal/config"
	"github.com/odcproject/odc/internal/controller"
	"github.com/odcproject/odc/internal/fabric"
	"github.com/odcproject/odc/internal/logging"
	"github.com/odcproject/odc/internal/persistence"
	"github.com/odcproject/odc/internal/plugin"
	"github.com/odcproject/odc/internal/statusapi"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath    string
		restoreDir    string
		historyDir    string
		statusListen  string
		operatorToken string
	)

	root := &cobra.Command{
		Use:     "odc-server",
		Short:   "Online Device Controller",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, restoreDir, historyDir, statusListen, operatorToken)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to a YAML config file overlaying the defaults")
	root.Flags().StringVar(&restoreDir, "restore-dir", "", "override the restore file directory")
	root.Flags().StringVar(&historyDir, "history-dir", "", "override the history log directory")
	root.Flags().StringVar(&statusListen, "status-listen", "", "override the status surface listen address")
	root.Flags().StringVar(&operatorToken, "status-token", "", "operator bearer token for the status surface (defaults to status.token from the config; with neither set the surface runs without authentication)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(configPath, restoreDir, historyDir, statusListen, operatorToken string) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if restoreDir != "" {
		cfg.Persistence.RestoreDir = restoreDir
	}
	if historyDir != "" {
		cfg.Persistence.HistoryDir = historyDir
	}
	if statusListen != "" {
		cfg.Status.Listen = statusListen
	}

	logger := logging.Init(logging.Config{Level: cfg.LogLevel, JSON: true})
	logger.Info("starting odc-server", "version", version)

	restoreStore, err := persistence.NewFileRestoreStore(cfg.Persistence.RestoreDir)
	if err != nil {
		return fmt.Errorf("open restore store: %w", err)
	}
	historyLog, err := persistence.NewFileHistoryLog(cfg.Persistence.HistoryDir)
	if err != nil {
		return fmt.Errorf("open history log: %w", err)
	}

	adapter := fabric.NewInMemoryAdapter()
	plugins := plugin.NewRegistry(plugin.NewRunner())
	for name, command := range cfg.Plugins {
		if err := plugins.Register(name, command); err != nil {
			return fmt.Errorf("register plugin %q: %w", name, err)
		}
	}

	ctrl := controller.New(cfg, adapter, plugins, restoreStore, historyLog, logger)

	restoreCtx, cancelRestore := context.WithTimeout(context.Background(), 30*time.Second)
	ctrl.RestoreOnStartup(restoreCtx)
	cancelRestore()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalChan
		logger.Info("shutdown signal received")
		cancel()
	}()

	var statusServer *statusapi.Server
	if cfg.Status.Enabled {
		var issuer *statusapi.TokenIssuer
		token := operatorToken
		if token == "" {
			token = cfg.Status.Token
		}
		if token != "" {
			issuer, err = statusapi.NewTokenIssuer(token, []byte(cfg.Status.SignKey), time.Hour)
			if err != nil {
				return fmt.Errorf("init status token issuer: %w", err)
			}
		}
		cache := statusapi.NewStatusCache(cfg.Status.RedisAddr, cfg.Status.CacheTTL)
		statusServer = statusapi.NewServer(ctrl, issuer, cache, cfg.Status.CorsOrigins, logger)
		go func() {
			if err := statusServer.Start(cfg.Status.Listen); err != nil {
				logger.Error("status surface stopped", "err", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if statusServer != nil {
		if err := statusServer.Stop(shutdownCtx); err != nil {
			logger.Warn("status surface shutdown error", "err", err)
		}
	}
	return nil
}
