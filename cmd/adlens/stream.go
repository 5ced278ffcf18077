package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/adlens-ai/adlens/pkg/config"
	"github.com/adlens-ai/adlens/pkg/models"
	"github.com/adlens-ai/adlens/pkg/stream"
	"github.com/spf13/cobra"
)

func newStreamCmd() *cobra.Command {
	var (
		configPath string
		agentID    string
		workspace  string
		token      string
	)

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Tail agent events until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if agentID == "" {
				agentID = cfg.Stream.AgentID
			}
			if workspace == "" {
				workspace = cfg.Stream.WorkspaceID
			}

			client := stream.New(stream.Config{
				URL:            cfg.Stream.URL,
				AgentID:        agentID,
				WorkspaceID:    workspace,
				Heartbeat:      cfg.Stream.Heartbeat,
				ReconnectDelay: cfg.Stream.ReconnectDelay,
				MaxReconnects:  cfg.Stream.MaxReconnects,
				Buffer:         cfg.Stream.Buffer,
			})
			if err := client.Connect(token); err != nil {
				return err
			}
			defer client.Disconnect()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Println("Streaming agent events (Ctrl-C to stop)...")

			ticker := time.NewTicker(250 * time.Millisecond)
			defer ticker.Stop()

			var lastSeen time.Time
			lastState := client.State()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if st := client.State(); st != lastState {
						fmt.Printf("-- connection: %s\n", st)
						lastState = st
						if st == models.StateDisconnected || st == models.StateError {
							if err := client.Err(); err != nil {
								return err
							}
							return nil
						}
					}
					lastSeen = printNewEvents(client.Events(), lastSeen)
				}
			}
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "adlens.yaml", "path to config file")
	cmd.Flags().StringVar(&agentID, "agent", "", "agent ID to stream (overrides config)")
	cmd.Flags().StringVar(&workspace, "workspace", "", "workspace ID to stream (overrides config)")
	cmd.Flags().StringVar(&token, "token", "", "stream auth token")
	return cmd
}

// printNewEvents prints buffered events newer than since, oldest first, and
// returns the newest timestamp printed. The buffer is most-recent-first.
func printNewEvents(events []models.StreamEvent, since time.Time) time.Time {
	newest := since
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		if !e.ReceivedAt.After(since) {
			continue
		}
		fmt.Printf("%s  %-14s %s\n", e.ReceivedAt.Format("15:04:05"), e.Type, string(e.Payload))
		if e.ReceivedAt.After(newest) {
			newest = e.ReceivedAt
		}
	}
	return newest
}
