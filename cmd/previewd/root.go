package main

import (
	"github.com/samiralibabic/previewd/internal/config"
	"github.com/samiralibabic/previewd/internal/server"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "/etc/previewd/config.toml"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "previewd",
		Short: "Typst live preview session daemon",
		Long: `previewd starts and reuses tinymist live previews for editors, keeping
at most a fixed number alive and routing documents of a project to its
pinned main file.`,
		Version:       server.ServerVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", defaultConfigPath, "path to previewd config")

	root.AddCommand(newServeCmd(), newPinCmd())
	return root
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, err
	}
	return config.Load(path)
}
