// Package chain implements Blockchain, the append-only log of accepted
// blocks.
package chain

import "github.com/go-edu/blockchat/internal/chain/block"

// Blockchain is an append-only sequence of blocks. It always holds at
// least one block: the genesis block supplied to New.
type Blockchain struct {
	blocks []block.Block
}

// New creates a chain starting from the genesis block.
func New(genesis block.Block) *Blockchain {
	return &Blockchain{blocks: []block.Block{genesis.WithIndex(0)}}
}

// AddBlock appends b to the chain, assigning it the next sequential
// index.
func (c *Blockchain) AddBlock(b block.Block) {
	c.blocks = append(c.blocks, b.WithIndex(uint32(len(c.blocks))))
}

// LastBlock returns the most recently appended block. Safe to call
// unconditionally: the chain always holds at least the genesis block.
func (c *Blockchain) LastBlock() block.Block {
	return c.blocks[len(c.blocks)-1]
}

// LastHash returns the hash of the most recently appended block.
func (c *Blockchain) LastHash() [32]byte {
	return c.LastBlock().Hash()
}

// Blocks returns the full chain, oldest first. Callers must not mutate
// the returned slice.
func (c *Blockchain) Blocks() []block.Block {
	return c.blocks
}

// Len reports how many blocks the chain holds, including genesis.
func (c *Blockchain) Len() int {
	return len(c.blocks)
}
