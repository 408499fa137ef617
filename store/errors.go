package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an item doesn't exist or has an expired TTL.
	ErrNotFound = errors.New("store: item not found")

	// ErrConditionFailed is returned when a conditional write's precondition did not hold.
	ErrConditionFailed = errors.New("store: condition check failed")

	// ErrTransactionConflict is returned when another transaction held one of the items.
	// The transaction is all-or-nothing, so retrying is safe.
	ErrTransactionConflict = errors.New("store: transaction conflict")

	// ErrEmptyTransaction is returned when a transaction has no items.
	ErrEmptyTransaction = errors.New("store: transaction has no items")

	// ErrTooManyItems is returned when a transaction exceeds Config.MaxTransactItems.
	ErrTooManyItems = errors.New("store: transaction exceeds item limit")

	// ErrDuplicateItem is returned when two items of one transaction address the same record.
	ErrDuplicateItem = errors.New("store: transaction touches the same item twice")
)

// TxError identifies the transaction item that caused a cancellation.
type TxError struct {
	// Index is the position of the failed item in Tx.Ops.
	Index int

	// Op is the kind of the failed item.
	Op OpKind

	// Err is ErrConditionFailed or ErrTransactionConflict.
	Err error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("store: transaction item %d (%s): %v", e.Index, e.Op, e.Err)
}

func (e *TxError) Unwrap() error {
	return e.Err
}

// FailedOp reports the index of the item that failed its condition, or -1.
func FailedOp(err error) int {
	var txErr *TxError
	if errors.As(err, &txErr) && errors.Is(txErr.Err, ErrConditionFailed) {
		return txErr.Index
	}
	return -1
}
