package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/adlens-ai/adlens/pkg/config"
	"github.com/adlens-ai/adlens/pkg/history"
	"github.com/adlens-ai/adlens/pkg/quota"
	"github.com/spf13/cobra"
)

func newQuotaCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Manage question quotas",
	}

	var workspace string
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show quota usage vs limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if !cfg.Quota.Enabled {
				fmt.Println("Quota enforcement is disabled.")
				return nil
			}

			hist, err := history.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = hist.Close() }()

			enforcer := quota.New(cfg.Quota.Policies, hist)

			ws := workspace
			if ws == "" {
				ws = "*"
			}

			statuses, err := enforcer.Status(context.Background(), ws)
			if err != nil {
				return err
			}

			if len(statuses) == 0 {
				fmt.Println("No quota policies found for this workspace.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "WORKSPACE\tPERIOD\tMAX QUESTIONS\tUSED\tREMAINING")
			for _, s := range statuses {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n",
					s.Policy.Scope, s.Policy.Period, s.Policy.MaxQuestions, s.Used, s.Remaining)
			}
			return w.Flush()
		},
	}
	statusCmd.Flags().StringVar(&workspace, "workspace", "", "filter by workspace")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "adlens.yaml", "path to config file")
	cmd.AddCommand(statusCmd)
	return cmd
}
