package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sprawl-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:          "sprawl-cli",
	Short:        "Urban sprawl analysis from Sentinel-2 imagery",
	Long:         "Looks up a district boundary, mosaics Sentinel-2 red, NIR and SWIR bands from a STAC catalog, and computes NDVI, NDBI and a sprawl mask over the district.",
	SilenceUsage: true,
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
