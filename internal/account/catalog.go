package account

import (
	"fmt"

	"github.com/go-edu/blockchat/internal/chain/block"
	"github.com/go-edu/blockchat/internal/chain/transaction"
	"github.com/go-edu/blockchat/internal/cryptoutil"
	"github.com/go-edu/blockchat/internal/peer"
)

// CatalogError wraps an *InsufficientFundsError with the account id it
// happened against, mirroring AccountsCatalogError in the reference
// implementation.
type CatalogError struct {
	AccountID uint32
	Err       error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("account: account %d: %v", e.AccountID, e.Err)
}

func (e *CatalogError) Unwrap() error { return e.Err }

// Catalog is the id-indexed collection of every account in the
// network, backed by a shared peer roster so multiple catalogs (a hard
// one and a soft one) can reference the same peers without duplicating
// the roster.
type Catalog struct {
	peers    *peer.Catalog
	accounts []Account
}

// NewCatalog builds a catalog with one empty account per peer.
func NewCatalog(peers *peer.Catalog) *Catalog {
	accounts := make([]Account, peers.Len())
	for i := range accounts {
		accounts[i] = newAccount(uint32(i))
	}
	return &Catalog{peers: peers, accounts: accounts}
}

// Clone deep-copies the catalog so speculative changes (e.g. applying a
// block) can be rolled back by discarding the clone.
func (c *Catalog) Clone() *Catalog {
	accounts := make([]Account, len(c.accounts))
	copy(accounts, c.accounts)
	return &Catalog{peers: c.peers, accounts: accounts}
}

// GetByID returns the account for peer id.
func (c *Catalog) GetByID(id uint32) (*Account, bool) {
	if int(id) >= len(c.accounts) {
		return nil, false
	}
	return &c.accounts[id], true
}

// GetByPublicKey returns the account belonging to pub.
func (c *Catalog) GetByPublicKey(pub cryptoutil.PublicKey) (*Account, bool) {
	p, ok := c.peers.GetByPublicKey(pub)
	if !ok {
		return nil, false
	}
	return c.GetByID(p.ID)
}

// Lookup satisfies transaction.AccountsView.
func (c *Catalog) Lookup(pub cryptoutil.PublicKey) (transaction.AccountView, bool) {
	acc, ok := c.GetByPublicKey(pub)
	if !ok {
		return nil, false
	}
	return acc, true
}

// LookupByPublicKey satisfies block.AccountsView.
func (c *Catalog) LookupByPublicKey(pub cryptoutil.PublicKey) (uint32, bool) {
	acc, ok := c.GetByPublicKey(pub)
	if !ok {
		return 0, false
	}
	return acc.ID(), true
}

// Accounts returns every account, ordered by id. Callers must not
// mutate the returned slice.
func (c *Catalog) Accounts() []Account {
	return c.accounts
}

// Len reports how many accounts the catalog holds.
func (c *Catalog) Len() int {
	return len(c.accounts)
}

// ProcessTransaction applies tsx to the catalog: it debits the sender
// the total cost (skipped for genesis transactions, which have no
// sender), credits a Stake payload's coins to the sender's staked
// balance, marks the sender's nonce used, and credits the recipient
// the net amount (skipped for Stake, which has no recipient). The
// catalog is left unchanged if the debit fails.
func (c *Catalog) ProcessTransaction(tsx *transaction.Transaction) error {
	if sender := tsx.SenderAddr(); sender != nil {
		acc, ok := c.GetByPublicKey(*sender)
		if !ok {
			panic("account: process_transaction called with an unknown sender — validate first")
		}
		if err := acc.SubHeld(tsx.TotalCost()); err != nil {
			return &CatalogError{AccountID: acc.ID(), Err: err}
		}
		if tsx.Payload().Kind() == transaction.KindStake {
			acc.AddStaked(tsx.TotalCost() - tsx.Fees())
		}
		acc.MarkNonceUsed(tsx.Nonce())
	}

	if recipient := tsx.RecipientAddr(); recipient != nil {
		acc, ok := c.GetByPublicKey(*recipient)
		if !ok {
			panic("account: process_transaction called with an unknown recipient — validate first")
		}
		acc.AddHeld(tsx.TotalCost() - tsx.Fees())
	}

	return nil
}

// ProcessBlock applies every transaction in blk to the catalog in
// order, crediting the block's validator tsx.Fees() on each applied
// transaction (genesis blocks have no validator, so no fee is
// credited). The whole block is applied atomically: work happens
// against a clone, and the clone only replaces the catalog's own state
// once every transaction succeeds.
func (c *Catalog) ProcessBlock(blk *block.Block) error {
	clone := c.Clone()

	for i := range blk.Transactions() {
		tsx := &blk.Transactions()[i]
		if err := clone.ProcessTransaction(tsx); err != nil {
			return err
		}
		if validator := blk.Validator(); validator != nil {
			acc, ok := clone.GetByPublicKey(*validator)
			if !ok {
				panic("account: process_block called with an unknown validator — validate first")
			}
			acc.AddHeld(tsx.Fees())
		}
	}

	*c = *clone
	return nil
}
