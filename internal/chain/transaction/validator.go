package transaction

import (
	"errors"
	"fmt"

	"github.com/go-edu/blockchat/internal/cryptoutil"
)

// Structural validation errors, checked in this exact order: a
// transaction must be well-formed independent of any ledger state
// before it is worth checking against one.
var (
	ErrMissingSenderAddr      = errors.New("transaction: missing sender address")
	ErrMissingRecipientAddr   = errors.New("transaction: missing recipient address")
	ErrMissingSignature       = errors.New("transaction: missing signature")
	ErrUnexpectedRecipientAddr = errors.New("transaction: stake transactions must not carry a recipient address")
	ErrIdenticalAddrs         = errors.New("transaction: sender and recipient addresses are identical")
	ErrInvalidHash            = errors.New("transaction: stored hash does not match the computed hash")
	ErrInvalidSignature       = errors.New("transaction: signature does not verify against the sender's key")
)

// ValidateStructure checks everything about t that can be checked
// without consulting account state: presence of the right addresses for
// its payload kind, a signature, a self-consistent hash, and a
// signature that verifies under it.
func ValidateStructure(t *Transaction) error {
	if t.senderAddr == nil {
		return ErrMissingSenderAddr
	}
	switch t.payload.Kind() {
	case KindTransfer, KindMessage:
		if t.recipientAddr == nil {
			return ErrMissingRecipientAddr
		}
	}
	if t.signature == nil {
		return ErrMissingSignature
	}
	if t.payload.Kind() == KindStake && t.recipientAddr != nil {
		return ErrUnexpectedRecipientAddr
	}
	if t.recipientAddr != nil && t.senderAddr.Equal(*t.recipientAddr) {
		return ErrIdenticalAddrs
	}
	if t.computeHash() != t.hash {
		return ErrInvalidHash
	}
	if !t.senderAddr.Verify(t.hash[:], t.signature) {
		return ErrInvalidSignature
	}
	return nil
}

// AccountView is the minimal read-only view ValidateSemantics needs
// from an account. account.Account satisfies this structurally.
type AccountView interface {
	HeldCents() uint32
	NonceUsed(nonce uint64) bool
}

// AccountsView looks accounts up by public key. account.Catalog
// satisfies this structurally.
type AccountsView interface {
	Lookup(pub cryptoutil.PublicKey) (AccountView, bool)
}

// ErrUnknownSender and ErrUnknownRecipient fire when an address does
// not resolve to any account in the catalog being validated against.
var (
	ErrUnknownSender    = errors.New("transaction: sender address is not a known account")
	ErrUnknownRecipient = errors.New("transaction: recipient address is not a known account")
)

// InsufficientFundsError reports that the sender's held balance falls
// short of the transaction's total cost.
type InsufficientFundsError struct {
	Required uint32
	Actual   uint32
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("transaction: insufficient funds: required %d cents, has %d cents", e.Required, e.Actual)
}

// RepeatedNonceError reports that the sender has already used this
// nonce.
type RepeatedNonceError struct {
	Nonce uint64
}

func (e *RepeatedNonceError) Error() string {
	return fmt.Sprintf("transaction: nonce %d has already been used", e.Nonce)
}

// ValidateSemantics checks t against the given account state: that the
// sender (and recipient, for Transfer/Message) exist, that the sender
// can afford the total cost, and that the nonce has not been used
// before. Call only after ValidateStructure succeeds.
func ValidateSemantics(t *Transaction, accounts AccountsView) error {
	sender, ok := accounts.Lookup(*t.senderAddr)
	if !ok {
		return ErrUnknownSender
	}

	switch t.payload.Kind() {
	case KindTransfer, KindMessage:
		if _, ok := accounts.Lookup(*t.recipientAddr); !ok {
			return ErrUnknownRecipient
		}
	}

	cost := t.TotalCost()
	if cost > sender.HeldCents() {
		return &InsufficientFundsError{Required: cost, Actual: sender.HeldCents()}
	}

	if sender.NonceUsed(t.nonce) {
		return &RepeatedNonceError{Nonce: t.nonce}
	}

	return nil
}
