// Package cmd implements the claimsctl command tree.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/farhad-zada/holders-collaborators-claims/internal/config"
)

var (
	cfgFile  string
	envFile  string
	logLevel string
	jsonOut  bool

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "claimsctl",
	Short: "Deploy the Claims contract to EVM networks",
	Long: `claimsctl deploys the Claims contract from compiled Hardhat artifacts.

Networks, compiler versions and explorer keys come from claimsctl.yaml (optional),
a .env file and the process environment. The built-in networks read the same
variables as the contracts project:

  bsc, tbsc, pol, tpol, eth, sep   <PREFIX>_RPC, <PREFIX>_CID, PKEY
  explorers                        ETH_APIKEY, BSC_APIKEY, POL_APIKEY

Examples:
  # Deploy to the local development chain (127.0.0.1:8545, chain id 31337)
  claimsctl deploy

  # Deploy to BSC testnet and verify the source on BscScan
  claimsctl deploy --network tbsc --verify

  # List networks and whether they are fully configured
  claimsctl networks`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = newLogger(cmd.ErrOrStderr(), logLevel)
		slog.SetDefault(logger)

		loaded, err := config.Load(config.LoadOptions{ConfigFile: cfgFile, EnvFile: envFile})
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./claimsctl.yaml or ./config/claimsctl.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file merged into the environment (ignored when missing)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output JSON")
}

// ExecuteContext runs the root command.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// printLine writes a line to the command's stdout.
func printLine(cmd *cobra.Command, format string, a ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format+"\n", a...)
}
