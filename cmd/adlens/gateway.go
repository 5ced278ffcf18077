package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/adlens-ai/adlens/pkg/audit"
	"github.com/adlens-ai/adlens/pkg/backend"
	storepkg "github.com/adlens-ai/adlens/pkg/cache/sqlite"
	"github.com/adlens-ai/adlens/pkg/config"
	"github.com/adlens-ai/adlens/pkg/gateway"
	"github.com/adlens-ai/adlens/pkg/history"
	"github.com/adlens-ai/adlens/pkg/qa"
	"github.com/adlens-ai/adlens/pkg/quota"
	"github.com/spf13/cobra"
)

func newGatewayCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Start the insights gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			hist, err := history.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("init history: %w", err)
			}
			defer func() { _ = hist.Close() }()

			var store *storepkg.Store
			if cfg.Cache.Enabled {
				store, err = storepkg.New(cfg.DBPath, cfg.Cache.TTL)
				if err != nil {
					return fmt.Errorf("init answer store: %w", err)
				}
				defer func() { _ = store.Close() }()
			}

			var checker qa.QuotaChecker
			if cfg.Quota.Enabled {
				checker = quota.New(cfg.Quota.Policies, hist)
			}

			var auditor *audit.Logger
			if cfg.Audit.Enabled {
				auditor, err = audit.New(cfg.Audit)
				if err != nil {
					return fmt.Errorf("init audit log: %w", err)
				}
				defer func() { _ = auditor.Close() }()
			}

			svc := qa.NewService(backend.New(cfg.Backends), nil, storeOrNil(store), hist, checker, cfg.Cache.MemoryTTL)
			srv := gateway.New(cfg, svc, store, auditor)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Printf("starting adlens gateway with config: %s", configPath)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "adlens.yaml", "path to config file")
	return cmd
}

// storeOrNil keeps a disabled store out of the service as a nil interface
// rather than a typed nil.
func storeOrNil(s *storepkg.Store) qa.Store {
	if s == nil {
		return nil
	}
	return s
}
