package eventsink

import (
	"encoding/hex"

	"github.com/go-edu/blockchat/internal/chain"
	"github.com/go-edu/blockchat/internal/chain/block"
	"github.com/go-edu/blockchat/internal/chain/transaction"
	"github.com/go-edu/blockchat/internal/peer"
	"github.com/rs/zerolog"
)

// LogSink turns every state transition into a structured zerolog event,
// replacing the reference implementation's scattered log::debug!/
// log::warn! call sites with one consistent shape per event kind.
type LogSink struct {
	Logger zerolog.Logger
}

func txIDs(blk block.Block) []string {
	ids := make([]string, len(blk.Transactions()))
	for i, tx := range blk.Transactions() {
		h := tx.Hash()
		ids[i] = hex.EncodeToString(h[:4])
	}
	return ids
}

func (s LogSink) NetworkTransaction(tsx transaction.Transaction, peers *peer.Catalog) {
	h := tsx.Hash()
	s.Logger.Debug().
		Str("hash", hex.EncodeToString(h[:4])).
		Str("kind", tsx.Payload().Kind().String()).
		Msg("accepted network transaction")
}

func (s LogSink) LocalTransaction(tsx transaction.Transaction, peers *peer.Catalog) {
	h := tsx.Hash()
	s.Logger.Debug().
		Str("hash", hex.EncodeToString(h[:4])).
		Str("kind", tsx.Payload().Kind().String()).
		Msg("created local transaction")
}

func (s LogSink) InvalidTransaction(tsx transaction.Transaction, peers *peer.Catalog, err error) {
	h := tsx.Hash()
	s.Logger.Warn().
		Str("hash", hex.EncodeToString(h[:4])).
		Err(err).
		Msg("rejected invalid transaction")
}

func (s LogSink) NetworkBlock(blk block.Block, peers *peer.Catalog) {
	h := blk.Hash()
	s.Logger.Info().
		Str("hash", hex.EncodeToString(h[:4])).
		Uint32("index", blk.Index()).
		Strs("transactions", txIDs(blk)).
		Msg("accepted network block")
}

func (s LogSink) LocalBlock(blk block.Block, peers *peer.Catalog) {
	h := blk.Hash()
	s.Logger.Info().
		Str("hash", hex.EncodeToString(h[:4])).
		Uint32("index", blk.Index()).
		Strs("transactions", txIDs(blk)).
		Msg("minted local block")
}

func (s LogSink) InvalidBlock(blk block.Block, peers *peer.Catalog, err error) {
	h := blk.Hash()
	s.Logger.Warn().
		Str("hash", hex.EncodeToString(h[:4])).
		Err(err).
		Msg("rejected invalid block")
}

func (s LogSink) NewValidator(selfID, winnerID uint32, c *chain.Blockchain) {
	s.Logger.Info().
		Uint32("self_id", selfID).
		Uint32("winner_id", winnerID).
		Int("chain_len", c.Len()).
		Bool("is_self", selfID == winnerID).
		Msg("validator elected")
}

var _ Sink = LogSink{}
