package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "adlens",
		Short:   "AdLens — caching insights gateway for ad-analytics agents",
		Version: version,
	}

	root.AddCommand(
		newGatewayCmd(),
		newAskCmd(),
		newStreamCmd(),
		newCacheCmd(),
		newStatsCmd(),
		newQuotaCmd(),
		newAuditCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
