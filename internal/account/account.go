// Package account implements Account (a peer's held and staked balance,
// plus its nonce pool) and Catalog (the id-indexed collection of every
// account, and the transaction/block application logic that keeps it
// consistent).
package account

import (
	"fmt"
	"math"

	"github.com/go-edu/blockchat/internal/noncepool"
)

// InsufficientFundsError reports that a debit would take a balance
// negative. Required and Actual let callers reconstruct the original's
// "missing N cents" style message.
type InsufficientFundsError struct {
	Required uint32
	Actual   uint32
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("account: insufficient funds: required %d cents, has %d cents", e.Required, e.Actual)
}

// Account is one peer's balance sheet: spendable (held) cents, staked
// cents locked toward validator elections, and the nonce pool guarding
// against replayed transactions.
type Account struct {
	id          uint32
	nonces      noncepool.Pool
	heldCents   uint32
	stakedCents uint32
}

// newAccount creates an empty account for peer id.
func newAccount(id uint32) Account {
	return Account{id: id}
}

func (a *Account) ID() uint32           { return a.id }
func (a *Account) HeldCents() uint32    { return a.heldCents }
func (a *Account) StakedCents() uint32  { return a.stakedCents }

// NonceUsed reports whether nonce has already been spent by this
// account.
func (a *Account) NonceUsed(nonce uint64) bool {
	return a.nonces.IsUsed(nonce)
}

// NextNonce returns the next nonce a transaction signed by this account
// should use.
func (a *Account) NextNonce() uint64 {
	return a.nonces.Next()
}

// MarkNonceUsed records nonce as spent.
func (a *Account) MarkNonceUsed(nonce uint64) {
	a.nonces.MarkUsed(nonce)
}

// AddHeld credits amount to the held balance. Panics on overflow: total
// issuance is bounded at genesis and by transaction fee formulas, so an
// overflow here means the caller built a transaction that should never
// have validated.
func (a *Account) AddHeld(amount uint32) {
	if amount > math.MaxUint32-a.heldCents {
		panic("account: held balance overflow")
	}
	a.heldCents += amount
}

// SubHeld debits amount from the held balance, returning
// *InsufficientFundsError if the account cannot cover it.
func (a *Account) SubHeld(amount uint32) error {
	if amount > a.heldCents {
		return &InsufficientFundsError{Required: amount, Actual: a.heldCents}
	}
	a.heldCents -= amount
	return nil
}

// AddStaked credits amount to the staked balance. See AddHeld for the
// overflow-panic rationale.
func (a *Account) AddStaked(amount uint32) {
	if amount > math.MaxUint32-a.stakedCents {
		panic("account: staked balance overflow")
	}
	a.stakedCents += amount
}

// SubStaked debits amount from the staked balance, returning
// *InsufficientFundsError if the account cannot cover it.
func (a *Account) SubStaked(amount uint32) error {
	if amount > a.stakedCents {
		return &InsufficientFundsError{Required: amount, Actual: a.stakedCents}
	}
	a.stakedCents -= amount
	return nil
}
