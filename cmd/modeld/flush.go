package main

import (
	"fmt"

	"github.com/allenai/olmoe-modeld/internal/acquire"
	"github.com/allenai/olmoe-modeld/internal/infra/config"
	"github.com/allenai/olmoe-modeld/internal/infra/logger"
	"github.com/spf13/cobra"
)

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Delete the downloaded model artifact",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		mgr := acquire.NewManager(cfg, logger.Discard(), nil, nil)
		if !mgr.Reconcile() {
			fmt.Println("No model present.")
			return nil
		}

		if err := mgr.Flush(); err != nil {
			return err
		}

		fmt.Printf("Removed %s\n", cfg.Model.Path)
		return nil
	},
}
