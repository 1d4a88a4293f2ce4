// Package eventsink replaces the reference implementation's global
// mutable History/Stats singleton with an injected collaborator: the
// protocol engine calls one Sink method at each state transition, and
// callers choose whether that turns into nothing, a log line, or (for
// the debug history/stats commands) an in-memory record.
package eventsink

import (
	"github.com/go-edu/blockchat/internal/chain"
	"github.com/go-edu/blockchat/internal/chain/block"
	"github.com/go-edu/blockchat/internal/chain/transaction"
	"github.com/go-edu/blockchat/internal/peer"
)

// Sink receives one call per state transition the protocol engine makes.
// Implementations must be safe to call only from the engine's own
// goroutine — by construction, nothing else ever calls them.
type Sink interface {
	NetworkTransaction(tsx transaction.Transaction, peers *peer.Catalog)
	LocalTransaction(tsx transaction.Transaction, peers *peer.Catalog)
	InvalidTransaction(tsx transaction.Transaction, peers *peer.Catalog, err error)
	NetworkBlock(blk block.Block, peers *peer.Catalog)
	LocalBlock(blk block.Block, peers *peer.Catalog)
	InvalidBlock(blk block.Block, peers *peer.Catalog, err error)
	NewValidator(selfID, winnerID uint32, chain *chain.Blockchain)
}

// NoopSink discards every event. This is what a production daemon uses
// when the debug history/stats commands are disabled.
type NoopSink struct{}

func (NoopSink) NetworkTransaction(transaction.Transaction, *peer.Catalog)      {}
func (NoopSink) LocalTransaction(transaction.Transaction, *peer.Catalog)       {}
func (NoopSink) InvalidTransaction(transaction.Transaction, *peer.Catalog, error) {}
func (NoopSink) NetworkBlock(block.Block, *peer.Catalog)                      {}
func (NoopSink) LocalBlock(block.Block, *peer.Catalog)                        {}
func (NoopSink) InvalidBlock(block.Block, *peer.Catalog, error)               {}
func (NoopSink) NewValidator(uint32, uint32, *chain.Blockchain)               {}

var _ Sink = NoopSink{}
