package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/spreadwatch/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "spreadwatch",
	Short: "BTP and Bund yield acquisition pipeline",
	Long:  "Collects Italian BTP and German Bund benchmark yields from a priority chain of public sources, fills gaps from a versioned baseline, derives the BTP-Bund spread and keeps a rolling daily history.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
