package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/adlens-ai/adlens/pkg/backend"
	storepkg "github.com/adlens-ai/adlens/pkg/cache/sqlite"
	"github.com/adlens-ai/adlens/pkg/config"
	"github.com/adlens-ai/adlens/pkg/history"
	"github.com/adlens-ai/adlens/pkg/qa"
	"github.com/adlens-ai/adlens/pkg/quota"
	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	var (
		configPath string
		workspace  string
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question through the caching stack",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if workspace == "" {
				return fmt.Errorf("--workspace is required")
			}
			question := strings.Join(args, " ")

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

			svc := qa.NewService(backend.New(cfg.Backends), nil, storeOrNil(store), hist, checker, cfg.Cache.MemoryTTL)

			answer, source, err := svc.Ask(context.Background(), workspace, question)
			if err != nil {
				return err
			}

			fmt.Printf("[%s] %s\n", source, answer.Text)
			if answer.Confidence > 0 {
				fmt.Printf("confidence: %.2f\n", answer.Confidence)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "adlens.yaml", "path to config file")
	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "workspace scope for the question")
	return cmd
}
