package dex

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
)

// TxFeederConfig controls transaction generation rate
type TxFeederConfig struct {
	BatchSize   int           // Number of txs to generate per batch
	Interval    time.Duration // How often to generate batches
	NumAccounts int           // Number of simulated traders
	Base, Quote asset.Symbol  // Pair to trade
	Seed        int64
}

// DefaultFeederConfig returns reasonable defaults for testing
func DefaultFeederConfig() TxFeederConfig {
	return TxFeederConfig{
		BatchSize:   10,
		Interval:    100 * time.Millisecond,
		NumAccounts: 50,
		Base:        "BASE",
		Quote:       "QUOTE",
	}
}

// StartTxFeeder pushes generated batches into the app's mempool until ctx
// is done. The generator's genesis transactions go first. Returns a cancel
// function to stop the feeder.
func StartTxFeeder(ctx context.Context, app *App, cfg TxFeederConfig, log *zap.Logger) context.CancelFunc {
	gen := NewTxGenerator(cfg.NumAccounts, cfg.Base, cfg.Quote, cfg.Seed)
	feedCtx, cancel := context.WithCancel(ctx)

	push := func(txs [][]byte) {
		for _, tx := range txs {
			if err := app.PushTx(tx); err != nil {
				log.Warn("feeder tx refused", zap.Error(err))
			}
		}
	}

	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		startTime := time.Now()
		push(gen.Genesis(1_000_000))
		log.Info("tx feeder started",
			zap.Int("batch", cfg.BatchSize),
			zap.Duration("interval", cfg.Interval),
			zap.Int("accounts", cfg.NumAccounts))

		for {
			select {
			case <-feedCtx.Done():
				elapsed := time.Since(startTime)
				log.Info("tx feeder stopped",
					zap.Int("orders", gen.Generated()),
					zap.Duration("elapsed", elapsed.Round(time.Second)))
				return
			case <-ticker.C:
				push(gen.GenerateBatch(cfg.BatchSize))
			}
		}
	}()

	return cancel
}
