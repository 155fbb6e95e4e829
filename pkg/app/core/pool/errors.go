package pool

import (
	"errors"
	"fmt"

	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
)

var (
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrPriceBelowLimit       = errors.New("pool price is not above the limit")
	ErrPoolNotFound          = errors.New("pool not found")
	ErrPoolExists            = errors.New("pool already exists")
	ErrInvalidAmount         = errors.New("invalid amount")
)

// LiquidityError reports a pool that cannot cover a request
type LiquidityError struct {
	Pool      string
	Requested asset.Asset
	Available asset.Asset
}

func (e *LiquidityError) Error() string {
	return fmt.Sprintf("pool %s: requested %s, available %s", e.Pool, e.Requested, e.Available)
}

func (e *LiquidityError) Unwrap() error { return ErrInsufficientLiquidity }
