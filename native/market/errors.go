package market

import "errors"

var (
	ErrInvalidPrice          = errors.New("market: price must be positive")
	ErrNotListed             = errors.New("market: no active listing for asset")
	ErrNotOwner              = errors.New("market: caller does not hold asset")
	ErrNotSeller             = errors.New("market: caller is not the listing seller")
	ErrNotAuthorized         = errors.New("market: module not authorized to move asset")
	ErrCustodyTransfer       = errors.New("market: custody transfer rejected")
	ErrProceedsTransfer      = errors.New("market: seller proceeds transfer rejected")
	ErrFeeTransfer           = errors.New("market: fee transfer rejected")
	ErrInsufficientBalance   = errors.New("market: buyer balance below price")
	ErrInsufficientAllowance = errors.New("market: buyer allowance below price")
	ErrNotOperator           = errors.New("market: caller is not the operator")
	ErrInvalidConfig         = errors.New("market: invalid configuration")
	ErrReentrantCall         = errors.New("market: operation already in flight")
)
