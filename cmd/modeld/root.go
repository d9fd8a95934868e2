package main

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "modeld",
	Short: "Model acquisition daemon for the on-device chat application",
	Long: `modeld obtains the local language model artifact, keeps track of its
readiness, and serves download state and controls to the chat UI over a
local HTTP API.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(flushCmd)
	rootCmd.AddCommand(statusCmd)
}
