package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/uhyunpark/hypercredit/params"
	"github.com/uhyunpark/hypercredit/pkg/abci"
	"github.com/uhyunpark/hypercredit/pkg/app/dex"
	"github.com/uhyunpark/hypercredit/pkg/storage"
)

// runChain writes a store and a journal for a few generated blocks under
// dir and returns the final app hash
func runChain(t *testing.T, dir string) (*dex.TxGenerator, abci.Hash) {
	t.Helper()
	store, err := storage.Open(filepath.Join(dir, "db"))
	require.NoError(t, err)
	defer store.Close()
	journal, err := storage.NewFileJournal(filepath.Join(dir, "blocks.jsonl"))
	require.NoError(t, err)
	defer journal.Close()

	app, err := dex.Open(params.DefaultEngine(), store, dex.WithJournal(journal), dex.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	gen := dex.NewTxGenerator(3, "BASE", "QUOTE", 9)
	_, err = app.InitChain(gen.Genesis(50), 1_700_000_000)
	require.NoError(t, err)
	for h := int64(2); h <= 4; h++ {
		app.FinalizeBlock(abci.RequestFinalizeBlock{Height: h, Timestamp: 1_700_000_000 + h, Txs: gen.GenerateBatch(10)})
	}
	return gen, app.AppHash()
}

func TestReplay_ReachesJournaledState(t *testing.T) {
	dir := t.TempDir()
	_, want := runChain(t, dir)

	cmd := replayCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{filepath.Join(dir, "blocks.jsonl")})
	require.NoError(t, cmd.Execute())

	var res replayResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, int64(4), res.Height)
	assert.Equal(t, fmt.Sprintf("0x%x", want[:]), res.AppHash)
}

func TestBalances_ReadsStoredHead(t *testing.T) {
	dir := t.TempDir()
	gen, _ := runChain(t, dir)

	dataDir = dir
	t.Cleanup(func() { dataDir = "" })

	cmd := balancesCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{gen.Issuer.Hex()})
	require.NoError(t, cmd.Execute())

	var res struct {
		Height   int64 `json:"height"`
		Balances []struct {
			Symbol string `json:"symbol"`
			Liquid string `json:"liquid"`
		} `json:"balances"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, int64(4), res.Height)
	require.NotEmpty(t, res.Balances)

	cmd = balancesCmd()
	cmd.SetArgs([]string{"nope"})
	cmd.SetOut(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}
