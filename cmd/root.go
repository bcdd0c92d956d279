package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shoplens/cartdetect/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "cartdetect",
	Short: "Shopify cart subtotal selector discovery",
	Long:  "Fetches a storefront's cart page, fans it out over multiple chat models and reconciles their querySelector answers into one consensus selector.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
