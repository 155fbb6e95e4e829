package engine

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownAsset           = errors.New("unknown asset")
	ErrUnknownOrder           = errors.New("unknown order")
	ErrOrderExists            = errors.New("order id already in use")
	ErrFillOrKill             = errors.New("fill-or-kill order not filled")
	ErrSettled                = errors.New("asset is globally settled")
	ErrNotSettled             = errors.New("asset is not globally settled")
	ErrNoFeed                 = errors.New("no valid price feed")
	ErrLoanDefault            = errors.New("account has an outstanding loan default")
	ErrInsufficientCollateral = errors.New("insufficient collateral")
	ErrUnexpectedBlackSwan    = errors.New("operation would trigger a black swan")
	ErrNotIssuer              = errors.New("not the asset issuer")
	ErrMaxSupply              = errors.New("issue exceeds max supply")
	ErrCreditCheck            = errors.New("credit check failed")
	ErrNoRoute                = errors.New("no liquidity route")
	ErrExpired                = errors.New("expired")
	ErrInvalidOperation       = errors.New("invalid operation")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOperation, fmt.Sprintf(format, args...))
}
