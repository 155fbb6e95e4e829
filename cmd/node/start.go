package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/uhyunpark/hypercredit/pkg/abci"
	"github.com/uhyunpark/hypercredit/pkg/api"
	"github.com/uhyunpark/hypercredit/pkg/app/dex"
	"github.com/uhyunpark/hypercredit/pkg/metrics"
	"github.com/uhyunpark/hypercredit/pkg/storage"
	"github.com/uhyunpark/hypercredit/pkg/util"
)

// logInterval spaces the progress lines of empty chains
const logInterval = 100

func startCmd() *cobra.Command {
	var txgen bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the node: produce blocks and serve the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			logger, err := util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.LogLevel)
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			defer logger.Sync()
			sugar := logger.Sugar()
			sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile, "level", cfg.Node.LogLevel)

			m := metrics.New()
			opts := []dex.Option{dex.WithLogger(logger), dex.WithMetrics(m)}

			// ---- App ----
			var app *dex.App
			if cfg.Node.DataDir == "" {
				sugar.Warn("no data dir: state lives in memory only")
				app = dex.New(cfg.Engine, opts...)
			} else {
				if err := os.MkdirAll(cfg.Node.DataDir, 0o755); err != nil {
					return err
				}
				store, err := storage.Open(filepath.Join(cfg.Node.DataDir, "db"))
				if err != nil {
					return err
				}
				defer store.Close()
				journal, err := storage.NewFileJournal(filepath.Join(cfg.Node.DataDir, "blocks.jsonl"))
				if err != nil {
					return err
				}
				defer journal.Close()
				app, err = dex.Open(cfg.Engine, store, append(opts, dex.WithJournal(journal))...)
				if err != nil {
					return err
				}
			}

			if app.Height() == 0 && cfg.Node.Genesis != "" {
				f, err := os.Open(cfg.Node.Genesis)
				if err != nil {
					return fmt.Errorf("genesis: %w", err)
				}
				txs, err := dex.ReadGenesis(f)
				f.Close()
				if err != nil {
					return err
				}
				if _, err := app.InitChain(txs, time.Now().Unix()); err != nil {
					return err
				}
				sugar.Infow("genesis_applied", "file", cfg.Node.Genesis, "txs", len(txs))
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// ---- Transaction Feeder (optional) ----
			if txgen {
				cancelFeeder := dex.StartTxFeeder(ctx, app, dex.DefaultFeederConfig(), logger)
				defer cancelFeeder()
			}

			// ---- API Server ----
			apiServer := api.NewServer(app, m, logger)
			go func() {
				if err := apiServer.Start(ctx, cfg.Node.APIAddr); err != nil {
					sugar.Errorw("api_server_failed", "err", err)
					stop()
				}
			}()

			bridge := &abci.Bridge{
				App:           app,
				Clock:         util.RealClock{},
				Logger:        logger,
				BlockTime:     cfg.Node.BlockTime,
				MaxBlockBytes: cfg.Node.MaxBlockBytes,
				OnCommit: func(height int64, resp abci.ResponseFinalizeBlock) {
					apiServer.BroadcastBlock(height, resp)
					if height%logInterval == 0 {
						sugar.Infow("chain_progress", "height", height, "mempool", app.Pending())
					}
				},
			}

			sugar.Infow("node_starting",
				"height", app.Height(),
				"block_time_ms", cfg.Node.BlockTime.Milliseconds(),
				"data_dir", cfg.Node.DataDir,
				"txgen", txgen)
			if err := bridge.Run(ctx, app.Height()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("node stopped", zap.Int64("height", app.Height()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&txgen, "txgen", false, "feed generated trading traffic into the mempool")
	return cmd
}
