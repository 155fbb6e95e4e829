package params

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultEngine_Valid(t *testing.T) {
	require.NoError(t, DefaultEngine().Validate())
}

func TestEngineValidate(t *testing.T) {
	p := DefaultEngine()
	p.PoolFeePercent = 10_001
	require.ErrorContains(t, p.Validate(), "pool_fee_percent")

	p = DefaultEngine()
	p.CreditOpenRatio = p.CreditLiquidationRatio - 1
	require.ErrorContains(t, p.Validate(), "credit_open_ratio")

	p = DefaultEngine()
	p.MedianInterval = 0
	require.ErrorContains(t, p.Validate(), "median_interval")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("NODE_BLOCK_TIME_MS", "250")
	t.Setenv("API_ADDR", ":9090")
	t.Setenv("VALIDATE_INVARIANTS", "true")

	cfg := LoadFromEnv(filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, 250*time.Millisecond, cfg.Node.BlockTime)
	assert.Equal(t, ":9090", cfg.Node.APIAddr)
	assert.True(t, cfg.Engine.ValidateInvariants)
	assert.Equal(t, Default().Node.DataDir, cfg.Node.DataDir)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
node:
  block_time: 500ms
  data_dir: /var/lib/hypercredit
engine:
  trading_fee_percent: 20
  force_settle_delay: 12h
  validate_invariants: true
`), 0o644))
	t.Setenv("HYPERCREDIT_NODE_API_ADDR", ":7070")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.Node.BlockTime)
	assert.Equal(t, "/var/lib/hypercredit", cfg.Node.DataDir)
	assert.Equal(t, ":7070", cfg.Node.APIAddr)
	assert.Equal(t, int64(20), cfg.Engine.TradingFeePercent)
	assert.Equal(t, 12*time.Hour, cfg.Engine.ForceSettleDelay)
	assert.True(t, cfg.Engine.ValidateInvariants)
	assert.Equal(t, DefaultEngine().PoolFeePercent, cfg.Engine.PoolFeePercent, "unset keys keep defaults")
}

func TestLoadFile_RejectsInvalidEngine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  max_credit_ratio: 20000\n"), 0o644))
	_, err := LoadFile(path)
	require.ErrorContains(t, err, "max_credit_ratio")
}
