package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/uhyunpark/hypercredit/pkg/abci"
	"github.com/uhyunpark/hypercredit/pkg/app/dex"
	"github.com/uhyunpark/hypercredit/pkg/storage"
	"github.com/uhyunpark/hypercredit/pkg/util"
)

type replayResult struct {
	Height   int64  `json:"height"`
	AppHash  string `json:"app_hash"`
	Rejected int    `json:"rejected"`
}

func replayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <blocks.jsonl>",
		Short: "Re-execute a block journal in memory and print the final state hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := util.NewLogger(cfg.Node.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			blocks, err := storage.ReadJournal(f)
			if err != nil {
				return err
			}

			app := dex.New(cfg.Engine, dex.WithLogger(logger))
			var res replayResult
			for _, b := range blocks {
				if b.Height != app.Height()+1 {
					return fmt.Errorf("journal skips from %d to %d", app.Height(), b.Height)
				}
				resp := app.FinalizeBlock(abci.RequestFinalizeBlock{Height: b.Height, Timestamp: b.Time, Txs: b.Txs})
				for _, r := range resp.TxResults {
					if r.Code != 0 {
						res.Rejected++
					}
				}
			}
			hash := app.AppHash()
			res.Height = app.Height()
			res.AppHash = fmt.Sprintf("0x%x", hash[:])
			logger.Info("replay done", zap.Int("blocks", len(blocks)), zap.Int64("height", res.Height))

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}
