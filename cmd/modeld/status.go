package main

import (
	"fmt"
	"os"

	"github.com/allenai/olmoe-modeld/internal/infra/config"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the model artifact is present on disk",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		fi, err := os.Stat(cfg.Model.Path)
		if err != nil {
			fmt.Printf("not ready\t%s\n", cfg.Model.Path)
			return nil
		}

		fmt.Printf("ready\t%s\t%d MB\n", cfg.Model.Path, fi.Size()/1024/1024)
		return nil
	},
}
