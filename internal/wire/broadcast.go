// Package wire defines the frames exchanged over the network: the
// Broadcast tagged union relayed between peers, and the Command enum a
// client sends to a daemon's command port.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/go-edu/blockchat/internal/chain/block"
	"github.com/go-edu/blockchat/internal/chain/transaction"
)

// Broadcast is the tagged union of everything that can arrive on the
// network port: a transaction, a minted block, or a client command.
// A client sends a Command frame directly to the daemon it wants to
// serve it; nothing here routes a command between peers.
type Broadcast struct {
	Transaction *transaction.Transaction
	Block       *block.Block
	Command     *Command
}

func NewTransactionBroadcast(tsx transaction.Transaction) Broadcast {
	return Broadcast{Transaction: &tsx}
}

func NewBlockBroadcast(blk block.Block) Broadcast {
	return Broadcast{Block: &blk}
}

func NewCommandBroadcast(cmd Command) Broadcast {
	return Broadcast{Command: &cmd}
}

type wireBroadcast struct {
	Transaction *transaction.Transaction `json:"Transaction,omitempty"`
	Block       *block.Block             `json:"Block,omitempty"`
	Command     *Command                 `json:"Command,omitempty"`
}

func (b Broadcast) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireBroadcast{
		Transaction: b.Transaction,
		Block:       b.Block,
		Command:     b.Command,
	})
}

func (b *Broadcast) UnmarshalJSON(data []byte) error {
	var w wireBroadcast
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("wire: decode broadcast: %w", err)
	}
	if w.Transaction == nil && w.Block == nil && w.Command == nil {
		return fmt.Errorf("wire: broadcast frame has no recognized tag")
	}
	b.Transaction = w.Transaction
	b.Block = w.Block
	b.Command = w.Command
	return nil
}
