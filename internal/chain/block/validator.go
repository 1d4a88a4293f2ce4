package block

import (
	"errors"
	"fmt"

	"github.com/go-edu/blockchat/internal/chain/transaction"
	"github.com/go-edu/blockchat/internal/cryptoutil"
)

// Structural errors.
var (
	ErrMissingValidator = errors.New("block: validator should be present but is missing")
	// ErrInvalidTimestamp is never returned: timestamp validation is
	// intentionally left unenforced (see the design notes), but the
	// sentinel is kept so the structural error set mirrors the one in
	// the reference implementation.
	ErrInvalidTimestamp = errors.New("block: timestamp contains a future date")
	ErrInvalidHash      = errors.New("block: stored hash does not match the computed hash")
)

// PartiallyFilledError reports a block with fewer than Capacity
// transactions.
type PartiallyFilledError struct{ Short int }

func (e *PartiallyFilledError) Error() string {
	return fmt.Sprintf("block: %d transactions short of the required %d", e.Short, Capacity)
}

// OverfilledError reports a block with more than Capacity transactions.
type OverfilledError struct{ Extra int }

func (e *OverfilledError) Error() string {
	return fmt.Sprintf("block: %d transactions over the required %d", e.Extra, Capacity)
}

// InvalidTransactionError reports that the transaction at Index failed
// validation; Err is the transaction package's own error. Used for both
// structural and semantic block validation failures.
type InvalidTransactionError struct {
	Index int
	Err   error
}

func (e *InvalidTransactionError) Error() string {
	return fmt.Sprintf("block: transaction at index %d is invalid: %v", e.Index, e.Err)
}

func (e *InvalidTransactionError) Unwrap() error { return e.Err }

// ValidateStructure checks everything about b that can be checked
// without consulting account or chain state: exactly Capacity
// structurally valid transactions, and a self-consistent hash.
func ValidateStructure(b *Block) error {
	switch {
	case len(b.tsxs) < Capacity:
		return &PartiallyFilledError{Short: Capacity - len(b.tsxs)}
	case len(b.tsxs) > Capacity:
		return &OverfilledError{Extra: len(b.tsxs) - Capacity}
	}

	if b.validator == nil {
		return ErrMissingValidator
	}

	for i := range b.tsxs {
		if err := transaction.ValidateStructure(&b.tsxs[i]); err != nil {
			return &InvalidTransactionError{Index: i, Err: err}
		}
	}

	if b.computeHash() != b.hash {
		return ErrInvalidHash
	}

	return nil
}

// Semantic errors.
var (
	ErrNonExistentValidator = errors.New("block: validator does not exist in the accounts catalog")
	ErrInvalidPrevHash      = errors.New("block: previous hash does not match the chain's last block")
)

// MismatchedValidatorError reports that the block's validator is not
// the one the PoS election predicted.
type MismatchedValidatorError struct {
	Expected uint32
	Actual   uint32
}

func (e *MismatchedValidatorError) Error() string {
	return fmt.Sprintf("block: validator id mismatch: expected %d, found %d", e.Expected, e.Actual)
}

// AccountsView is the minimal read-only accounts lookup ValidateSemantics
// needs; account.Catalog and transaction.AccountsView are both
// satisfied structurally by the same concrete type.
type AccountsView interface {
	transaction.AccountsView
	LookupByPublicKey(pub cryptoutil.PublicKey) (id uint32, ok bool)
}

// ChainView is the minimal read-only chain state ValidateSemantics
// needs; chain.Blockchain satisfies this structurally.
type ChainView interface {
	LastHash() [32]byte
}

// ValidateSemantics checks b against the given account and chain state:
// that its validator exists and matches the predicted id, that every
// transaction is semantically valid against accounts, and that its
// prevHash chains onto chain's last block. Callers must have already
// confirmed ValidateStructure succeeds.
func ValidateSemantics(b *Block, predictedValidatorID uint32, accounts AccountsView, chain ChainView) error {
	if b.validator == nil {
		return ErrMissingValidator
	}

	actualID, ok := accounts.LookupByPublicKey(*b.validator)
	if !ok {
		return ErrNonExistentValidator
	}
	if actualID != predictedValidatorID {
		return &MismatchedValidatorError{Expected: predictedValidatorID, Actual: actualID}
	}

	for i := range b.tsxs {
		if err := transaction.ValidateSemantics(&b.tsxs[i], accounts); err != nil {
			return &InvalidTransactionError{Index: i, Err: err}
		}
	}

	if b.prevHash != chain.LastHash() {
		return ErrInvalidPrevHash
	}

	return nil
}
