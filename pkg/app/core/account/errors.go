package account

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hypercredit/pkg/app/core/asset"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnknownAsset        = errors.New("unknown asset")
	ErrNullAccount         = errors.New("null account cannot be debited")
	ErrSupply              = errors.New("supply invariant violated")
	ErrNotFound            = errors.New("not found")
)

// BalanceError reports a debit larger than the bucket holds
type BalanceError struct {
	Owner     common.Address
	Field     Field
	Requested asset.Asset
	Available asset.Asset
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance for %s: requested %s, available %s",
		e.Field, e.Owner.Hex(), e.Requested, e.Available)
}

func (e *BalanceError) Unwrap() error { return ErrInsufficientBalance }

// SupplyError reports a broken supply counter
type SupplyError struct {
	Symbol asset.Symbol
	Msg    string
}

func (e *SupplyError) Error() string {
	return fmt.Sprintf("%s supply: %s", e.Symbol, e.Msg)
}

func (e *SupplyError) Unwrap() error { return ErrSupply }
