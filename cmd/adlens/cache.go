package main

import (
	"fmt"

	storepkg "github.com/adlens-ai/adlens/pkg/cache/sqlite"
	"github.com/adlens-ai/adlens/pkg/config"
	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the persistent answer store",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show answer store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			s, err := storepkg.New(cfg.DBPath, cfg.Cache.TTL)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			stats, err := s.Stats()
			if err != nil {
				return err
			}
			fmt.Printf("Entries: %d\nHits:    %d\nMisses:  %d\n", stats.Entries, stats.Hits, stats.Misses)
			return nil
		},
	}

	var expiredOnly bool
	var scope string
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear stored answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			s, err := storepkg.New(cfg.DBPath, cfg.Cache.TTL)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			if scope != "" {
				if err := s.InvalidateScope(scope); err != nil {
					return err
				}
				fmt.Printf("Answers for workspace %s cleared.\n", scope)
				return nil
			}

			if err := s.Clear(expiredOnly); err != nil {
				return err
			}
			if expiredOnly {
				fmt.Println("Expired answers cleared.")
			} else {
				fmt.Println("All answers cleared.")
			}
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&expiredOnly, "expired", false, "only clear expired answers")
	clearCmd.Flags().StringVar(&scope, "workspace", "", "only clear answers for one workspace")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "adlens.yaml", "path to config file")
	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}
