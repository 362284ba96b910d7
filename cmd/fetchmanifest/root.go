package main

import (
	"github.com/spf13/cobra"
)

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "fetchmanifest",
		Short: "Resolve and normalize web app manifests.",
		Long: `fetchmanifest finds the web app manifest for a URL, following
<link rel="manifest"> from HTML documents, and returns it normalized with
absolute URLs and ranked icons. It runs as an HTTP service or as a one-off
command.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env vars use the FETCH_MANIFEST_ prefix")

	cmd.AddCommand(newServeCmd(&cfgFile))
	cmd.AddCommand(newResolveCmd(&cfgFile))
	return cmd
}
