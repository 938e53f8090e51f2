package services

import "errors"

var (
	// ErrDuplicateKey reports a uniqueness violation, typically a reused
	// receipt number or SKU.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrTransactionAborted wraps any failure inside a sale transaction;
	// the transaction has been rolled back and nothing was persisted.
	ErrTransactionAborted = errors.New("transaction aborted")

	// ErrServiceProduct is returned when a stock operation targets a
	// service item, which carries no stock.
	ErrServiceProduct = errors.New("product is a service and has no stock")

	// ErrQuantityExceedsSold is returned when a credit note line returns
	// more units than the referenced sale originally sold.
	ErrQuantityExceedsSold = errors.New("returned quantity exceeds quantity sold")
)
