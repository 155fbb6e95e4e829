package dex

import (
	"fmt"
	"math/big"
	"math/rand"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
	"github.com/uhyunpark/hypercredit/pkg/app/core/market"
	"github.com/uhyunpark/hypercredit/pkg/app/core/transaction"
)

// TxGenerator creates random trading transactions on one pair for load
// testing
type TxGenerator struct {
	Issuer  common.Address
	traders []common.Address
	base    asset.Symbol
	quote   asset.Symbol
	orderID int
	open    []placed // orders that may still rest on the book
	rng     *rand.Rand
}

type placed struct {
	owner common.Address
	id    string
}

// NewTxGenerator creates a generator for numAccounts traders; seed 0 picks
// a time-based seed
func NewTxGenerator(numAccounts int, base, quote asset.Symbol, seed int64) *TxGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	traders := make([]common.Address, numAccounts)
	for i := range traders {
		traders[i] = common.BigToAddress(big.NewInt(int64(0x7000 + i)))
	}
	return &TxGenerator{
		Issuer:  common.BigToAddress(big.NewInt(0x6000)),
		traders: traders,
		base:    base,
		quote:   quote,
		orderID: 1,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

func (g *TxGenerator) Traders() []common.Address { return g.traders }

// Genesis registers both assets, funds every trader and seeds a pool at
// one quote per base
func (g *TxGenerator) Genesis(unitsPerTrader int64) [][]byte {
	out := [][]byte{
		g.must(transaction.TxCreateAsset, g.Issuer, transaction.CreateAsset{Asset: market.AssetObject{Symbol: g.base, Type: market.Standard}}),
		g.must(transaction.TxCreateAsset, g.Issuer, transaction.CreateAsset{Asset: market.AssetObject{Symbol: g.quote, Type: market.Standard}}),
	}
	for _, to := range append([]common.Address{g.Issuer}, g.traders...) {
		for _, sym := range []asset.Symbol{g.base, g.quote} {
			out = append(out, g.must(transaction.TxIssue, g.Issuer, transaction.Movement{To: to, Amount: asset.Units(unitsPerTrader, sym)}))
		}
	}
	out = append(out, g.must(transaction.TxPoolCreate, g.Issuer, transaction.PoolCreate{
		A: asset.Units(unitsPerTrader, g.base),
		B: asset.Units(unitsPerTrader, g.quote),
	}))
	return out
}

// GenerateOrder creates a limit order priced within 5% of one quote per
// base, for 0.01 to 1 base unit
func (g *TxGenerator) GenerateOrder() []byte {
	owner := g.traders[g.rng.Intn(len(g.traders))]
	lots := int64(g.rng.Intn(100) + 1)
	bps := int64(9500 + g.rng.Intn(1001)) // quote per base, in basis points
	baseAmt := asset.New(lots*asset.Precision/100, g.base)
	quoteAmt := asset.New(baseAmt.Amount*bps/10000, g.quote)

	sell, receive := baseAmt, quoteAmt
	if g.rng.Intn(2) == 1 {
		sell, receive = quoteAmt, baseAmt
	}

	id := fmt.Sprintf("o%d", g.orderID)
	g.orderID++
	g.open = append(g.open, placed{owner: owner, id: id})
	return g.must(transaction.TxLimitOrder, owner, transaction.LimitOrder{
		OrderID:      id,
		AmountToSell: sell,
		MinToReceive: receive,
	})
}

// GenerateCancel cancels one of the generated orders; it may already have
// filled, in which case the block rejects it
func (g *TxGenerator) GenerateCancel() []byte {
	if len(g.open) == 0 {
		return g.GenerateOrder()
	}
	i := g.rng.Intn(len(g.open))
	o := g.open[i]
	g.open = append(g.open[:i], g.open[i+1:]...)
	return g.must(transaction.TxCancelLimit, o.owner, transaction.CancelOrder{OrderID: o.id})
}

// GenerateMix creates a random transaction (90% orders, 10% cancels)
func (g *TxGenerator) GenerateMix() []byte {
	if g.rng.Intn(100) < 90 {
		return g.GenerateOrder()
	}
	return g.GenerateCancel()
}

// GenerateBatch creates multiple random transactions
func (g *TxGenerator) GenerateBatch(count int) [][]byte {
	batch := make([][]byte, count)
	for i := range batch {
		batch[i] = g.GenerateMix()
	}
	return batch
}

// Generated is the number of orders created so far
func (g *TxGenerator) Generated() int { return g.orderID - 1 }

func (g *TxGenerator) must(typ transaction.TxType, sender common.Address, payload any) []byte {
	tx, err := transaction.New(typ, sender, payload)
	if err != nil {
		panic(err)
	}
	b, err := tx.Serialize()
	if err != nil {
		panic(err)
	}
	return b
}
