package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/uhyunpark/hypercredit/params"
)

var (
	configPath string
	envPath    string
	dataDir    string
)

func main() {
	root := &cobra.Command{
		Use:           "node",
		Short:         "Single-node ledger for assets, markets, pools and credit",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML, TOML or JSON config file (default: .env and environment)")
	root.PersistentFlags().StringVar(&envPath, "env", "", ".env file to load when no --config is given")
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override node.data_dir")

	root.AddCommand(startCmd(), replayCmd(), balancesCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads --config when given, else .env and the environment
func loadConfig() (params.Config, error) {
	var (
		cfg params.Config
		err error
	)
	if configPath != "" {
		cfg, err = params.LoadFile(configPath)
		if err != nil {
			return params.Config{}, err
		}
	} else {
		cfg = params.LoadFromEnv(envPath)
		if err := cfg.Engine.Validate(); err != nil {
			return params.Config{}, err
		}
	}
	if dataDir != "" {
		cfg.Node.DataDir = dataDir
	}
	return cfg, nil
}
