// Command rezervator runs the reservation engine: an HTTP API by default,
// plus a few maintenance commands that work directly on the configured
// backend.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "rezervator",
		Short:         "Temporal capacity reservation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default: rezervator.yaml in the working directory)")

	root.AddCommand(
		newServeCommand(&configPath),
		newMigrateCommand(&configPath),
		newCheckCommand(&configPath),
		newSnapshotCommand(&configPath),
		newTokenCommand(&configPath),
	)
	return root
}
