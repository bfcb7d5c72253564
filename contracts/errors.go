package contracts

import "errors"

// Stable failure reasons. Every rejected operation wraps one of these so
// clients can match the exact precondition that failed; a rejection never
// leaves partial state behind.
var (
	// Authorization
	ErrNotAuthorized = errors.New("not authorized")
	ErrNotBatchOwner = errors.New("not batch owner")
	ErrNotShipper    = errors.New("not shipper")
	ErrNotBuyer      = errors.New("not buyer")
	ErrSelfTrade     = errors.New("buyer and seller must differ")

	// State preconditions
	ErrNotForSale          = errors.New("not for sale")
	ErrNotDelivered        = errors.New("not delivered")
	ErrInvalidLegState     = errors.New("invalid leg state")
	ErrDisputePeriodActive = errors.New("dispute period active")
	ErrPendingTransfer     = errors.New("batch has a pending transfer")

	// Quantities and funds
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrNotEnoughAvailable = errors.New("not enough available")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrAmountOverflow     = errors.New("amount overflow")

	// Lookups
	ErrBatchNotFound       = errors.New("batch not found")
	ErrTransactionNotFound = errors.New("transaction not found")
)
