package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yinkev/studyin/internal/content"
	"github.com/yinkev/studyin/internal/httpapi"
	"github.com/yinkev/studyin/internal/services"
)

// serveCmd starts the HTTP surface
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the study engine HTTP surface",
	Long: `Loads the item bank, wires the engine runtime (bus, services, telemetry
sink, rate limiter) and serves the /api routes. The bank hot-reloads when
item files under the scope directories change.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	catalog := content.NewCatalog(cfg.ScopeDirs, cfg.LosPath)
	issues, err := catalog.Reload(ctx)
	if err != nil {
		return fmt.Errorf("failed to load item bank: %w", err)
	}
	for _, issue := range issues {
		logger.Warn("item file rejected", zap.String("detail", issue.String()))
	}
	bank := catalog.Bank()
	logger.Info("item bank loaded",
		zap.Int("items", len(bank.Items)),
		zap.Int("published", len(bank.Published())),
		zap.Int("rejected", len(issues)),
	)

	if err := catalog.Watch(context.Background()); err != nil {
		// Hot reload is a convenience; serving without it is fine.
		logger.Warn("bank watcher unavailable", zap.Error(err))
	}
	defer catalog.Stop()

	rt, err := services.EnsureRuntime(cfg)
	if err != nil {
		return fmt.Errorf("failed to wire runtime: %w", err)
	}
	defer rt.Close()

	srv, err := httpapi.New(cfg, rt, catalog, logger)
	if err != nil {
		return fmt.Errorf("failed to build http surface: %w", err)
	}

	logger.Info("studyin serving",
		zap.String("addr", cfg.Addr),
		zap.String("version", cfg.Version),
		zap.Bool("supabase", cfg.Supabase.Enabled),
	)
	return srv.Run()
}
