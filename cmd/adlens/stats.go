package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/adlens-ai/adlens/pkg/config"
	"github.com/adlens-ai/adlens/pkg/history"
	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var (
		configPath string
		workspace  string
		recent     int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show question history and cache effectiveness",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			hist, err := history.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = hist.Close() }()

			ctx := context.Background()

			// Recent question view
			if recent > 0 {
				recs, err := hist.Recent(ctx, workspace, recent)
				if err != nil {
					return err
				}
				if len(recs) == 0 {
					fmt.Println("No questions found.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tWORKSPACE\tSOURCE\tLATENCY\tQUESTION")
				for _, r := range recs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%dms\t%s\n",
						r.CreatedAt.Format("2006-01-02T15:04:05"), r.Scope, r.Source, r.LatencyMs, r.Question)
				}
				return w.Flush()
			}

			// Default: per-workspace summary
			summaries, err := hist.Summary(ctx, workspace)
			if err != nil {
				return err
			}

			if len(summaries) == 0 {
				fmt.Println("No usage data found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "WORKSPACE\tQUESTIONS\tBACKEND CALLS\tHIT RATE\tAVG LATENCY")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%d\t%d\t%.0f%%\t%.0fms\n",
					s.Scope, s.Questions, s.BackendCalls, s.HitRate*100, s.AvgLatencyMs)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "adlens.yaml", "path to config file")
	cmd.Flags().StringVar(&workspace, "workspace", "", "filter by workspace")
	cmd.Flags().IntVar(&recent, "recent", 0, "list the N most recent questions instead of the summary")
	return cmd
}
