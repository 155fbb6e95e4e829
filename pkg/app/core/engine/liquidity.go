package engine

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/hypercredit/pkg/app/core/account"
	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
	"github.com/uhyunpark/hypercredit/pkg/app/core/market"
	"github.com/uhyunpark/hypercredit/pkg/app/core/pool"
	"github.com/uhyunpark/hypercredit/pkg/app/core/state"
)

// ============================================================================
// Pool lifecycle
// ============================================================================

// LiquidityPoolCreate seeds a new pool from both sides of the creator's
// balance and mints √(a×b) share tokens to the creator
func (e *Engine) LiquidityPoolCreate(creator common.Address, a, b asset.Asset) error {
	if err := positive("create pool", a, b); err != nil {
		return err
	}
	for _, sym := range []asset.Symbol{a.Symbol, b.Symbol} {
		obj, ok := e.st.Registry.Get(sym)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownAsset, sym)
		}
		if !obj.Type.Tradable() {
			return invalidf("%s assets cannot be pooled", obj.Type)
		}
	}
	if _, ok := e.st.Pools.Liquidity(a.Symbol, b.Symbol); ok {
		return fmt.Errorf("%w: %s/%s", pool.ErrPoolExists, a.Symbol, b.Symbol)
	}
	p, err := pool.NewLiquidityPool(e.st.NewID(), a, b)
	if err != nil {
		return err
	}
	if p.BalanceLiquid == 0 {
		return fmt.Errorf("%w: pool seed too small", pool.ErrInvalidAmount)
	}
	if err := e.registerInternal(p.SymbolLiquid, market.LiquidityPool); err != nil {
		return err
	}
	if err := e.lock(creator, a); err != nil {
		return err
	}
	if err := e.lock(creator, b); err != nil {
		return err
	}
	if err := e.st.Pools.InsertLiquidity(p); err != nil {
		return err
	}
	if err := e.st.Ledger.Issue(creator, p.Liquid()); err != nil {
		return err
	}
	e.st.Emit(state.EventLiquidityFund, state.PoolMovement{Account: creator, Pool: p.Name(), Input: a, Output: p.Liquid()})
	e.st.Emit(state.EventLiquidityFund, state.PoolMovement{Account: creator, Pool: p.Name(), Input: b, Output: asset.Zero(p.SymbolLiquid)})
	return nil
}

// LiquidityFund deposits one side of a pool and mints shares
func (e *Engine) LiquidityFund(owner common.Address, in asset.Asset, pair asset.Symbol) error {
	if err := positive("fund pool", in); err != nil {
		return err
	}
	p, ok := e.st.Pools.Liquidity(in.Symbol, pair)
	if !ok {
		return fmt.Errorf("%w: %s/%s", pool.ErrPoolNotFound, in.Symbol, pair)
	}
	shares, err := p.FundShares(in)
	if err != nil {
		return err
	}
	if shares.IsZero() {
		return fmt.Errorf("%w: %s mints no shares", pool.ErrInvalidAmount, in)
	}
	if err := e.lock(owner, in); err != nil {
		return err
	}
	if err := p.Add(in); err != nil {
		return err
	}
	p.BalanceLiquid += shares.Amount
	if err := e.st.Pools.UpdateLiquidity(p); err != nil {
		return err
	}
	if err := e.st.Ledger.Issue(owner, shares); err != nil {
		return err
	}
	e.st.Emit(state.EventLiquidityFund, state.PoolMovement{Account: owner, Pool: p.Name(), Input: in, Output: shares})
	return nil
}

// LiquidityWithdraw burns shares for one side of the pool. Burning the
// whole share supply returns both sides and removes the pool.
func (e *Engine) LiquidityWithdraw(owner common.Address, liquid asset.Asset, receive asset.Symbol) error {
	if err := positive("withdraw pool", liquid); err != nil {
		return err
	}
	p, ok := e.st.Pools.LiquidityByShare(liquid.Symbol)
	if !ok {
		return fmt.Errorf("%w: %s", pool.ErrPoolNotFound, liquid.Symbol)
	}
	if liquid.Amount == p.BalanceLiquid {
		if err := e.st.Ledger.Burn(owner, liquid); err != nil {
			return err
		}
		for _, out := range []asset.Asset{p.Balance(p.SymbolA), p.Balance(p.SymbolB)} {
			if err := e.release(owner, out); err != nil {
				return err
			}
			e.st.Emit(state.EventLiquidityWithdraw, state.PoolMovement{Account: owner, Pool: p.Name(), Input: liquid, Output: out})
		}
		e.st.Pools.RemoveLiquidity(p.ID)
		return nil
	}
	out, err := p.WithdrawOutput(liquid, receive)
	if err != nil {
		return err
	}
	if out.IsZero() {
		return fmt.Errorf("%w: %s redeems nothing", pool.ErrInvalidAmount, liquid)
	}
	if err := e.st.Ledger.Burn(owner, liquid); err != nil {
		return err
	}
	if err := p.Add(out.Neg()); err != nil {
		return err
	}
	p.BalanceLiquid -= liquid.Amount
	if err := e.st.Pools.UpdateLiquidity(p); err != nil {
		return err
	}
	if err := e.release(owner, out); err != nil {
		return err
	}
	e.st.Emit(state.EventLiquidityWithdraw, state.PoolMovement{Account: owner, Pool: p.Name(), Input: liquid, Output: out})
	return nil
}

// ============================================================================
// Exchanges
// ============================================================================

// LiquidityExchange sells in through the pools for receive, directly or
// through COIN. Returns the amount received.
func (e *Engine) LiquidityExchange(owner common.Address, in asset.Asset, receive asset.Symbol, iface common.Address) (asset.Asset, error) {
	if err := positive("exchange", in); err != nil {
		return asset.Asset{}, err
	}
	if err := e.lock(owner, in); err != nil {
		return asset.Asset{}, err
	}
	out, err := e.swap(owner, iface, in, receive)
	if err != nil {
		return asset.Asset{}, err
	}
	return out, e.release(owner, out)
}

// LiquidityAcquire buys exactly out through the pools, paying in symbol.
// Returns the amount paid.
func (e *Engine) LiquidityAcquire(owner common.Address, out asset.Asset, pay asset.Symbol, iface common.Address) (asset.Asset, error) {
	if err := positive("acquire", out); err != nil {
		return asset.Asset{}, err
	}
	in, err := e.quoteInput(out, pay)
	if err != nil {
		return asset.Asset{}, err
	}
	if err := e.lock(owner, in); err != nil {
		return asset.Asset{}, err
	}
	got, err := e.swap(owner, iface, in, out.Symbol)
	if err != nil {
		return asset.Asset{}, err
	}
	asset.Assert(out.LessEq(got), "liquidity_acquire", "acquired %s, wanted %s", got, out)
	return in, e.release(owner, got)
}

// LiquidityLimitExchange sells up to in through the direct pool while its
// price stays above limit (receive/in)
func (e *Engine) LiquidityLimitExchange(owner common.Address, in asset.Asset, limit asset.Price, iface common.Address) (asset.Asset, error) {
	if err := positive("limit exchange", in); err != nil {
		return asset.Asset{}, err
	}
	p, ok := e.st.Pools.Liquidity(in.Symbol, limit.Base.Symbol)
	if !ok {
		return asset.Asset{}, fmt.Errorf("%w: %s/%s", pool.ErrPoolNotFound, in.Symbol, limit.Base.Symbol)
	}
	net, err := p.LimitInput(in.Symbol, limit)
	if err != nil {
		return asset.Asset{}, err
	}
	gross := asset.Min(in, e.grossInput(net))
	if gross.IsZero() {
		return asset.Asset{}, pool.ErrPriceBelowLimit
	}
	if err := e.lock(owner, gross); err != nil {
		return asset.Asset{}, err
	}
	out, err := e.exchange(owner, iface, gross, p)
	if err != nil {
		return asset.Asset{}, err
	}
	return out, e.release(owner, out)
}

// UpdateMedianLiquidity samples every pool price into its median history
func (e *Engine) UpdateMedianLiquidity() error {
	for _, p := range e.st.Pools.LiquidityPools() {
		p.RecordPrice(e.params.PriceHistoryLength, e.params.HourSamples)
		if err := e.st.Pools.UpdateLiquidity(p); err != nil {
			return err
		}
	}
	return nil
}

// exchange runs one pool hop. The input is already held outside account
// balances; the output stays there for the caller to pay out.
func (e *Engine) exchange(owner, iface common.Address, in asset.Asset, p pool.LiquidityPool) (asset.Asset, error) {
	f := e.computePoolFees(in, iface)
	net := in.Sub(f.total())
	out, err := p.Output(net)
	if err != nil {
		return asset.Asset{}, err
	}
	if out.IsZero() {
		return asset.Asset{}, fmt.Errorf("%w: %s into %s buys nothing", pool.ErrInvalidAmount, in, p.Name())
	}
	if err := p.Add(net.Add(f.Pool)); err != nil {
		return asset.Asset{}, err
	}
	if err := p.Add(out.Neg()); err != nil {
		return asset.Asset{}, err
	}
	if err := e.st.Pools.UpdateLiquidity(p); err != nil {
		return asset.Asset{}, err
	}
	if err := e.release(iface, f.Interface); err != nil {
		return asset.Asset{}, err
	}
	if err := e.release(account.NullAccount, f.Network); err != nil {
		return asset.Asset{}, err
	}
	e.st.Emit(state.EventLiquidityExchange, state.LiquidityExchange{
		Account:      owner,
		Pool:         p.Name(),
		Input:        in,
		Output:       out,
		NetworkFee:   f.Network,
		PoolFee:      f.Pool,
		InterfaceFee: f.Interface,
	})
	e.metrics.PoolExchange(p.Name())
	e.log.Debug("pool exchange",
		zap.String("pool", p.Name()),
		zap.Stringer("in", in),
		zap.Stringer("out", out))
	return out, nil
}

// swap exchanges a held input along the route to receive
func (e *Engine) swap(owner, iface common.Address, in asset.Asset, receive asset.Symbol) (asset.Asset, error) {
	path, err := e.route(in.Symbol, receive)
	if err != nil {
		return asset.Asset{}, err
	}
	if err := e.walkRoute(iface, in, path); err != nil {
		return asset.Asset{}, err
	}
	for i := 0; i+1 < len(path); i++ {
		p, _ := e.st.Pools.Liquidity(path[i], path[i+1])
		if in, err = e.exchange(owner, iface, in, p); err != nil {
			return asset.Asset{}, err
		}
	}
	return in, nil
}

// walkRoute checks every hop of path buys something before any pool is
// touched. Each hop of a route uses a different pool.
func (e *Engine) walkRoute(iface common.Address, in asset.Asset, path []asset.Symbol) error {
	for i := 0; i+1 < len(path); i++ {
		p, _ := e.st.Pools.Liquidity(path[i], path[i+1])
		out, err := p.Output(in.Sub(e.computePoolFees(in, iface).total()))
		if err != nil {
			return err
		}
		if out.IsZero() {
			return fmt.Errorf("%w: %s into %s buys nothing", pool.ErrInvalidAmount, in, p.Name())
		}
		in = out
	}
	return nil
}

// route returns the symbols a trade passes through: the direct pool when
// there is one, otherwise two hops through COIN
func (e *Engine) route(from, to asset.Symbol) ([]asset.Symbol, error) {
	if from == to {
		return nil, invalidf("route from %s to itself", from)
	}
	if _, ok := e.st.Pools.Liquidity(from, to); ok {
		return []asset.Symbol{from, to}, nil
	}
	if from != asset.CoinSymbol && to != asset.CoinSymbol {
		_, first := e.st.Pools.Liquidity(from, asset.CoinSymbol)
		_, second := e.st.Pools.Liquidity(asset.CoinSymbol, to)
		if first && second {
			return []asset.Symbol{from, asset.CoinSymbol, to}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s to %s", ErrNoRoute, from, to)
}

// ============================================================================
// Quotes (no state change)
// ============================================================================

// quoteInput is the gross input of pay needed to receive out through the
// pools, fees included
func (e *Engine) quoteInput(out asset.Asset, pay asset.Symbol) (asset.Asset, error) {
	return e.backward(out, pay, true)
}

// simInput is quoteInput without fees
func (e *Engine) simInput(out asset.Asset, pay asset.Symbol) (asset.Asset, error) {
	if out.Symbol == pay {
		return out, nil
	}
	return e.backward(out, pay, false)
}

func (e *Engine) backward(out asset.Asset, pay asset.Symbol, fees bool) (asset.Asset, error) {
	path, err := e.route(pay, out.Symbol)
	if err != nil {
		return asset.Asset{}, err
	}
	for i := len(path) - 1; i > 0; i-- {
		p, _ := e.st.Pools.Liquidity(path[i-1], path[i])
		if out, err = p.Input(out, path[i-1]); err != nil {
			return asset.Asset{}, err
		}
		if fees {
			out = e.grossUp(out)
		}
	}
	return out, nil
}

// simOutput is what in would buy through the pools without fees
func (e *Engine) simOutput(in asset.Asset, receive asset.Symbol) (asset.Asset, error) {
	if in.Symbol == receive {
		return in, nil
	}
	if in.IsZero() {
		return asset.Zero(receive), nil
	}
	path, err := e.route(in.Symbol, receive)
	if err != nil {
		return asset.Asset{}, err
	}
	for i := 0; i+1 < len(path); i++ {
		p, _ := e.st.Pools.Liquidity(path[i], path[i+1])
		if in, err = p.Output(in); err != nil {
			return asset.Asset{}, err
		}
	}
	return in, nil
}

// convert values a in another symbol at current pool prices
func (e *Engine) convert(a asset.Asset, to asset.Symbol) (asset.Asset, error) {
	if a.Symbol == to {
		return a, nil
	}
	if a.IsZero() {
		return asset.Zero(to), nil
	}
	p, err := e.marketPrice(to, a.Symbol)
	if err != nil {
		return asset.Asset{}, err
	}
	return a.Mul(p), nil
}

// marketPrice is the current base/quote price read from the pools,
// composed through COIN when there is no direct pool
func (e *Engine) marketPrice(base, quote asset.Symbol) (asset.Price, error) {
	path, err := e.route(quote, base)
	if err != nil {
		return asset.Price{}, err
	}
	num, den := uint256.NewInt(1), uint256.NewInt(1)
	for i := 0; i+1 < len(path); i++ {
		p, _ := e.st.Pools.Liquidity(path[i], path[i+1])
		hop := p.ExchangePrice(path[i])
		num.Mul(num, uint256.NewInt(uint64(hop.Base.Amount)))
		den.Mul(den, uint256.NewInt(uint64(hop.Quote.Amount)))
	}
	return asset.NewPriceRatio(base, quote, num, den), nil
}

func isNoRoute(err error) bool {
	return errors.Is(err, ErrNoRoute) || errors.Is(err, pool.ErrInsufficientLiquidity) || errors.Is(err, pool.ErrInvalidAmount)
}
