package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "voitrader",
	Short: "Order-book imbalance signal engine and position ledger",
	Long: `voitrader watches top-of-book snapshots for one instrument, computes
spread, volume order imbalance (VOI), order imbalance ratio (OIR) and
mid-price basis (MPB), enters on bid-side imbalance and exits on
take-profit or stop-loss, keeping an auditable cash and position ledger.

Commands:
  run      - Evaluate a replay file or a live websocket feed
  config   - Generate or validate configuration files
  journal  - Query the SQLite audit journal
  version  - Print the version`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is normal; only an explicit one must exist.
		if envFile != "" {
			return godotenv.Load(envFile)
		}
		_ = godotenv.Load()
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "dotenv file with VOITRADER_* overrides (default ./.env if present)")
}
