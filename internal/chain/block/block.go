// Package block implements Block, the fixed-capacity batch of
// transactions a validator proposes, along with its hashing and
// structural/semantic validation rules.
package block

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-edu/blockchat/internal/chain/transaction"
	"github.com/go-edu/blockchat/internal/cryptoutil"
)

// Capacity is the exact number of transactions every non-genesis block
// must contain.
const Capacity = 5

// Block is a batch of Capacity transactions proposed by a validator,
// chained to the previous block's hash. Genesis has no validator and a
// zero prevHash.
type Block struct {
	index       uint32
	timestampMs uint64
	tsxs        []transaction.Transaction
	validator   *cryptoutil.PublicKey
	prevHash    [32]byte
	hash        [32]byte
}

// New builds a block proposing tsxs (exactly Capacity of them) under
// validator, chained after prevHash. The block's index is assigned
// later, by the chain it is appended to.
func New(tsxs []transaction.Transaction, validator cryptoutil.PublicKey, prevHash [32]byte) Block {
	b := Block{
		timestampMs: uint64(time.Now().UnixMilli()),
		tsxs:        tsxs,
		validator:   &validator,
		prevHash:    prevHash,
	}
	b.hash = b.computeHash()
	return b
}

// NewGenesis builds the network's first block: no validator, a zero
// prevHash, and whatever genesis transactions the bootstrap peer
// assembled (one per network peer, not necessarily Capacity of them).
func NewGenesis(tsxs []transaction.Transaction) Block {
	b := Block{
		timestampMs: uint64(time.Now().UnixMilli()),
		tsxs:        tsxs,
	}
	b.hash = b.computeHash()
	return b
}

// WithIndex returns a copy of b with its index set to i. The chain
// package calls this when appending a block, so that callers never have
// to guess their own position in the log.
func (b Block) WithIndex(i uint32) Block {
	b.index = i
	return b
}

func (b Block) computeHash() [32]byte {
	var parts [][]byte
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], b.timestampMs)
	parts = append(parts, tsBuf[:])
	for _, tx := range b.tsxs {
		h := tx.Hash()
		parts = append(parts, h[:])
	}
	if b.validator != nil {
		parts = append(parts, b.validator.DER())
	}
	parts = append(parts, b.prevHash[:])
	return cryptoutil.Hash(parts...)
}

func (b Block) Index() uint32                        { return b.index }
func (b Block) TimestampMs() uint64                   { return b.timestampMs }
func (b Block) Transactions() []transaction.Transaction { return b.tsxs }
func (b Block) Validator() *cryptoutil.PublicKey      { return b.validator }
func (b Block) PrevHash() [32]byte                    { return b.prevHash }
func (b Block) Hash() [32]byte                        { return b.hash }

type wireBlock struct {
	Index        uint32                     `json:"index"`
	Timestamp    uint64                     `json:"timestamp"`
	Transactions []transaction.Transaction  `json:"transactions"`
	Validator    *cryptoutil.PublicKey      `json:"validator"`
	PrevHash     [32]byte                   `json:"previous_hash"`
	Hash         [32]byte                  `json:"hash"`
}

func (b Block) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireBlock{
		Index:        b.index,
		Timestamp:    b.timestampMs,
		Transactions: b.tsxs,
		Validator:    b.validator,
		PrevHash:     b.prevHash,
		Hash:         b.hash,
	})
}

func (b *Block) UnmarshalJSON(data []byte) error {
	var w wireBlock
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("block: decode: %w", err)
	}
	b.index = w.Index
	b.timestampMs = w.Timestamp
	b.tsxs = w.Transactions
	b.validator = w.Validator
	b.prevHash = w.PrevHash
	b.hash = w.Hash
	return nil
}
