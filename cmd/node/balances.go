package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
	"github.com/uhyunpark/hypercredit/pkg/storage"
)

func balancesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balances <address>",
		Short: "Print an account's balances at the stored head block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !common.IsHexAddress(args[0]) {
				return fmt.Errorf("invalid address: %s", args[0])
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Node.DataDir == "" {
				return fmt.Errorf("no data dir configured")
			}
			store, err := storage.Open(filepath.Join(cfg.Node.DataDir, "db"))
			if err != nil {
				return err
			}
			defer store.Close()

			head, ok, err := store.Head()
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("store at %s is empty", cfg.Node.DataDir)
			}
			bals, err := store.Balances(common.HexToAddress(args[0]))
			if err != nil {
				return err
			}

			type row struct {
				Symbol  asset.Symbol `json:"symbol"`
				Liquid  string       `json:"liquid"`
				Staked  string       `json:"staked"`
				Savings string       `json:"savings"`
				Reward  string       `json:"reward"`
			}
			out := struct {
				Height   int64 `json:"height"`
				Balances []row `json:"balances"`
			}{Height: head.Height, Balances: []row{}}
			for _, b := range bals {
				out.Balances = append(out.Balances, row{
					Symbol:  b.Symbol,
					Liquid:  asset.New(b.Liquid, b.Symbol).Decimal().StringFixed(asset.Decimals),
					Staked:  asset.New(b.Staked, b.Symbol).Decimal().StringFixed(asset.Decimals),
					Savings: asset.New(b.Savings, b.Symbol).Decimal().StringFixed(asset.Decimals),
					Reward:  asset.New(b.Reward, b.Symbol).Decimal().StringFixed(asset.Decimals),
				})
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}
