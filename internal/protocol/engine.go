// Package protocol implements the single-threaded state machine that
// drives one BlockChat node: validating and applying incoming
// transactions and blocks, answering client commands, electing
// validators, and minting new blocks once enough transactions have
// accumulated. Every exported method on Engine must be called from the
// same goroutine (Run's) — nothing here is synchronized, by design,
// exactly like the reference implementation's single dispatch loop.
package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/go-edu/blockchat/internal/account"
	"github.com/go-edu/blockchat/internal/chain"
	"github.com/go-edu/blockchat/internal/chain/block"
	"github.com/go-edu/blockchat/internal/chain/transaction"
	"github.com/go-edu/blockchat/internal/cryptoutil"
	"github.com/go-edu/blockchat/internal/eventsink"
	"github.com/go-edu/blockchat/internal/metrics"
	"github.com/go-edu/blockchat/internal/network"
	"github.com/go-edu/blockchat/internal/peer"
	"github.com/go-edu/blockchat/internal/pos"
	"github.com/go-edu/blockchat/internal/wire"
)

// CentsPerCoin is how many cents the client-facing coin unit is worth.
// Clients speak in whole coins; the ledger speaks in cents.
const CentsPerCoin = 100

// Engine owns a node's whole mutable state: the hard accounts (what the
// chain has confirmed), the soft accounts (hard accounts projected
// forward by the pending pool, used to validate new transactions before
// they are ever in a block), the pending pool itself, and the chain.
type Engine struct {
	id    uint32
	peers *peer.Catalog
	priv  cryptoutil.PrivateKey

	softAccounts *account.Catalog
	hardAccounts *account.Catalog
	pending      []transaction.Transaction
	chain        *chain.Blockchain

	validatorID *uint32 // memoized pos.Elect result for the current chain tip; nil means stale

	outgoing chan<- wire.Broadcast
	sink     eventsink.Sink
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	tsxTimes []time.Duration
	blkTimes []time.Duration
	tsxStart time.Time
	blkStart time.Time
}

// New builds an Engine. hardAccounts must already reflect every
// transaction in c's genesis block — bootstrap guarantees this.
func New(
	id uint32,
	peers *peer.Catalog,
	hardAccounts *account.Catalog,
	c *chain.Blockchain,
	priv cryptoutil.PrivateKey,
	outgoing chan<- wire.Broadcast,
	sink eventsink.Sink,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Engine {
	now := time.Now()
	return &Engine{
		id:           id,
		peers:        peers,
		priv:         priv,
		softAccounts: hardAccounts.Clone(),
		hardAccounts: hardAccounts,
		chain:        c,
		outgoing:     outgoing,
		sink:         sink,
		metrics:      m,
		logger:       logger,
		tsxStart:     now,
		blkStart:     now,
	}
}

// Run drains events until it is closed or ctx is cancelled. This must be
// the only goroutine that ever calls into the Engine.
func (e *Engine) Run(ctx context.Context, events <-chan network.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e.dispatch(ev)
		}
	}
}

func (e *Engine) dispatch(ev network.Event) {
	switch {
	case ev.Broadcast.Transaction != nil:
		e.HandleTransaction(*ev.Broadcast.Transaction, nil, false)
	case ev.Broadcast.Block != nil:
		e.HandleBlock(*ev.Broadcast.Block, false)
	case ev.Broadcast.Command != nil:
		e.HandleCommand(*ev.Broadcast.Command, ev.Conn)
	}
}

func (e *Engine) localPeer() peer.Peer {
	p, ok := e.peers.GetByID(e.id)
	if !ok {
		panic("protocol: local peer not found in the roster")
	}
	return p
}

func (e *Engine) localSoftAccount() *account.Account {
	acc, ok := e.softAccounts.GetByID(e.id)
	if !ok {
		panic("protocol: local account not found")
	}
	return acc
}

// HandleCommand answers a single client request on conn, closing it
// once the reply has been written (if conn is non-nil — tests may pass
// nil to exercise the command logic without a socket).
func (e *Engine) HandleCommand(cmd wire.Command, conn net.Conn) {
	switch cmd.Verb {
	case wire.VerbTransfer:
		e.handleTransferCommand(cmd, conn)
	case wire.VerbMessage:
		e.handleMessageCommand(cmd, conn)
	case wire.VerbStake:
		e.handleStakeCommand(cmd, conn)
	case wire.VerbBalance:
		e.replyAndClose(conn, balanceReply(e.localSoftAccount()))
	case wire.VerbView:
		e.replyAndClose(conn, e.viewReply())
	case wire.VerbHistory:
		e.replyHistoryAndClose(conn)
	case wire.VerbID:
		e.replyAndClose(conn, strconv.FormatUint(uint64(e.id), 10))
	case wire.VerbTime:
		e.replyAndClose(conn, e.timeReply())
	case wire.VerbStats:
		e.replyAndClose(conn, e.statsReply())
	}
}

func (e *Engine) handleTransferCommand(cmd wire.Command, conn net.Conn) {
	sender := e.localPeer()
	senderAcc := e.localSoftAccount()

	if cmd.RecipientID == sender.ID {
		e.replyAndClose(conn, "You cannot send coins to yourself")
		return
	}
	recipient, ok := e.peers.GetByID(cmd.RecipientID)
	if !ok {
		e.replyAndClose(conn, "Recipient not found")
		return
	}

	amountCents := cmd.AmountCoins * CentsPerCoin
	if senderAcc.HeldCents() < transaction.TransferTotalCost(amountCents) {
		e.replyAndClose(conn, "Not enough coins")
		return
	}

	tsx, err := transaction.NewTransfer(sender.PublicKey, recipient.PublicKey, amountCents, senderAcc.NextNonce(), e.priv)
	if err != nil {
		e.logger.Error().Err(err).Msg("protocol: failed to build transfer transaction")
		e.replyAndClose(conn, "Internal error")
		return
	}
	e.HandleTransaction(tsx, conn, true)
}

func (e *Engine) handleMessageCommand(cmd wire.Command, conn net.Conn) {
	sender := e.localPeer()
	senderAcc := e.localSoftAccount()

	if cmd.RecipientID == sender.ID {
		e.replyAndClose(conn, "You cannot message yourself")
		return
	}
	recipient, ok := e.peers.GetByID(cmd.RecipientID)
	if !ok {
		e.replyAndClose(conn, "Recipient not found")
		return
	}
	if cmd.Message == "" {
		e.replyAndClose(conn, "Message cannot be empty")
		return
	}
	if senderAcc.HeldCents() < transaction.MessageTotalCost(cmd.Message) {
		e.replyAndClose(conn, "Not enough coins")
		return
	}

	tsx, err := transaction.NewMessage(sender.PublicKey, recipient.PublicKey, cmd.Message, senderAcc.NextNonce(), e.priv)
	if err != nil {
		e.logger.Error().Err(err).Msg("protocol: failed to build message transaction")
		e.replyAndClose(conn, "Internal error")
		return
	}
	e.HandleTransaction(tsx, conn, true)
}

func (e *Engine) handleStakeCommand(cmd wire.Command, conn net.Conn) {
	sender := e.localPeer()
	senderAcc := e.localSoftAccount()

	amountCents := cmd.AmountCoins * CentsPerCoin
	if senderAcc.HeldCents() < transaction.StakeTotalCost(amountCents) {
		e.replyAndClose(conn, "Not enough coins")
		return
	}

	tsx, err := transaction.NewStake(sender.PublicKey, amountCents, senderAcc.NextNonce(), e.priv)
	if err != nil {
		e.replyAndClose(conn, err.Error())
		return
	}
	e.HandleTransaction(tsx, conn, true)
}

// HandleTransaction validates tsx (skipped, beyond a consistency check,
// for locally built transactions — they were just signed with our own
// key, so they had better be valid), applies it to the soft accounts,
// queues it as pending, replies on conn if given, broadcasts it if
// local, and attempts to mint a block.
func (e *Engine) HandleTransaction(tsx transaction.Transaction, conn net.Conn, isLocal bool) {
	if isLocal {
		e.sink.LocalTransaction(tsx, e.peers)
		if err := transaction.ValidateStructure(&tsx); err != nil {
			panic(fmt.Sprintf("protocol: a locally built transaction failed structural validation: %v", err))
		}
		if err := transaction.ValidateSemantics(&tsx, e.softAccounts); err != nil {
			panic(fmt.Sprintf("protocol: a locally built transaction failed semantic validation: %v", err))
		}
	} else {
		e.sink.NetworkTransaction(tsx, e.peers)

		if err := transaction.ValidateStructure(&tsx); err != nil {
			e.sink.InvalidTransaction(tsx, e.peers, err)
			e.rejectTransaction("structure")
			e.logger.Warn().Err(err).Msg("protocol: received a structurally invalid transaction")
			return
		}
		if err := transaction.ValidateSemantics(&tsx, e.softAccounts); err != nil {
			e.sink.InvalidTransaction(tsx, e.peers, err)
			e.rejectTransaction("semantics")
			e.logger.Warn().Err(err).Msg("protocol: received a semantically invalid transaction")
			return
		}
	}

	// This cannot fail: the validation above already confirmed the
	// sender can afford it and every address involved is known.
	if err := e.softAccounts.ProcessTransaction(&tsx); err != nil {
		panic(fmt.Sprintf("protocol: a validated transaction failed to apply: %v", err))
	}

	e.pending = append(e.pending, tsx)
	if e.metrics != nil {
		e.metrics.TransactionsAdmitted.Inc()
		e.metrics.PendingSize.Set(float64(len(e.pending)))
	}

	e.replyAndClose(conn, "Transaction successful")

	if isLocal {
		e.outgoing <- wire.NewTransactionBroadcast(tsx)
	}

	e.tsxTimes = append(e.tsxTimes, time.Since(e.tsxStart))
	e.tsxStart = time.Now()

	e.tryMintBlock()
}

func (e *Engine) rejectTransaction(reason string) {
	if e.metrics != nil {
		e.metrics.TransactionsRejected.WithLabelValues(reason).Inc()
	}
}

// HandleBlock validates blk (skipped, beyond a consistency check, for
// locally minted blocks), applies it to the hard accounts, appends it to
// the chain, invalidates the memoized validator election, rebuilds the
// soft accounts by discarding the block's transactions from the pending
// pool and reprocessing the rest, and attempts to mint the next block.
func (e *Engine) HandleBlock(blk block.Block, isLocal bool) {
	if isLocal {
		e.sink.LocalBlock(blk, e.peers)
		if err := block.ValidateStructure(&blk); err != nil {
			panic(fmt.Sprintf("protocol: a locally minted block failed structural validation: %v", err))
		}
		if err := block.ValidateSemantics(&blk, e.proofOfStake(), e.hardAccounts, e.chain); err != nil {
			panic(fmt.Sprintf("protocol: a locally minted block failed semantic validation: %v", err))
		}
	} else {
		e.sink.NetworkBlock(blk, e.peers)

		if err := block.ValidateStructure(&blk); err != nil {
			e.sink.InvalidBlock(blk, e.peers, err)
			e.logger.Warn().Err(err).Msg("protocol: received a structurally invalid block")
			return
		}
		if err := block.ValidateSemantics(&blk, e.proofOfStake(), e.hardAccounts, e.chain); err != nil {
			e.sink.InvalidBlock(blk, e.peers, err)
			e.logger.Warn().Err(err).Msg("protocol: received a semantically invalid block")
			return
		}
	}

	if err := e.hardAccounts.ProcessBlock(&blk); err != nil {
		panic(fmt.Sprintf("protocol: a validated block failed to apply: %v", err))
	}

	e.chain.AddBlock(blk)
	e.validatorID = nil

	if isLocal {
		e.outgoing <- wire.NewBlockBroadcast(blk)
		if e.metrics != nil {
			e.metrics.BlocksMinted.Inc()
		}
	}

	e.rebuildSoftAccounts(blk)

	e.blkTimes = append(e.blkTimes, time.Since(e.blkStart))
	e.blkStart = time.Now()

	e.tryMintBlock()
}

// rebuildSoftAccounts drops every pending transaction blk just confirmed
// and reprocesses the rest against the fresh hard-account state,
// discarding any that no longer apply. ProcessTransaction fails only
// when the sender can no longer afford the transaction; a pending
// transaction whose nonce the block already used is not discarded.
func (e *Engine) rebuildSoftAccounts(blk block.Block) {
	newSoft := e.hardAccounts.Clone()
	kept := make([]transaction.Transaction, 0, len(e.pending))

	for _, p := range e.pending {
		if containsHash(blk.Transactions(), p.Hash()) {
			continue
		}
		if err := newSoft.ProcessTransaction(&p); err != nil {
			e.sink.InvalidTransaction(p, e.peers, err)
			continue
		}
		kept = append(kept, p)
	}

	e.pending = kept
	e.softAccounts = newSoft
	if e.metrics != nil {
		e.metrics.PendingSize.Set(float64(len(e.pending)))
	}
}

func containsHash(tsxs []transaction.Transaction, hash [32]byte) bool {
	for _, t := range tsxs {
		if t.Hash() == hash {
			return true
		}
	}
	return false
}

// tryMintBlock drains the oldest Capacity pending transactions into a
// new block and applies it locally, but only once the pool is full and
// this node is the elected validator.
func (e *Engine) tryMintBlock() {
	if len(e.pending) < block.Capacity || e.id != e.proofOfStake() {
		return
	}

	tsxs := make([]transaction.Transaction, block.Capacity)
	copy(tsxs, e.pending[:block.Capacity])
	remaining := make([]transaction.Transaction, len(e.pending)-block.Capacity)
	copy(remaining, e.pending[block.Capacity:])
	e.pending = remaining

	blk := block.New(tsxs, e.priv.PublicKey(), e.chain.LastHash())
	e.HandleBlock(blk, true)
}

// proofOfStake returns the id of the validator elected for the chain's
// current tip, memoizing the result until the tip changes.
func (e *Engine) proofOfStake() uint32 {
	if e.validatorID != nil {
		return *e.validatorID
	}

	winner := pos.Elect(e.hardAccounts.Accounts(), e.chain.LastHash())
	e.validatorID = &winner

	e.sink.NewValidator(e.id, winner, e.chain)
	if e.metrics != nil {
		e.metrics.ValidatorElections.Inc()
	}

	return winner
}

func (e *Engine) reply(conn net.Conn, s string) {
	if conn == nil {
		return
	}
	if _, err := conn.Write([]byte(s)); err != nil {
		e.logger.Warn().Err(err).Msg("protocol: failed to write a reply")
	}
}

func (e *Engine) replyAndClose(conn net.Conn, s string) {
	e.reply(conn, s)
	if conn != nil {
		conn.Close()
	}
}

func (e *Engine) replyHistoryAndClose(conn net.Conn) {
	if conn != nil {
		defer conn.Close()
	}

	hs, ok := e.sink.(*eventsink.HistorySink)
	if !ok {
		e.reply(conn, "History is not enabled on this node")
		return
	}

	data, err := json.Marshal(hs.Events())
	if err != nil {
		e.logger.Error().Err(err).Msg("protocol: failed to serialize history")
		return
	}
	if conn != nil {
		if _, err := conn.Write(data); err != nil {
			e.logger.Warn().Err(err).Msg("protocol: failed to reply to a history command")
		}
	}
}

func (e *Engine) statsReply() string {
	hs, ok := e.sink.(*eventsink.HistorySink)
	if !ok {
		return "History is not enabled on this node\n"
	}
	return hs.Stats()
}

func (e *Engine) viewReply() string {
	b := e.chain.LastBlock()
	return fmt.Sprintf(
		"Last block: Block { index: %d, timestamp: %d, transactions: %d, validator: %v, previous_hash: %x, hash: %x }",
		b.Index(), b.TimestampMs(), len(b.Transactions()), b.Validator(), b.PrevHash(), b.Hash(),
	)
}

func (e *Engine) timeReply() string {
	tsxAvg := average(e.tsxTimes)
	blkAvg := average(e.blkTimes)
	return fmt.Sprintf(
		"Average transaction time 1: %s ms\nAverage block time 1: %s ms\n",
		formatMillis(tsxAvg), formatMillis(blkAvg),
	)
}

func average(durs []time.Duration) time.Duration {
	if len(durs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range durs {
		sum += d
	}
	return sum / time.Duration(len(durs))
}

func formatMillis(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds()*1000, 'f', -1, 64)
}

func balanceReply(acc *account.Account) string {
	return fmt.Sprintf(
		"Balance: %s held, %s staked",
		strconv.FormatFloat(float64(acc.HeldCents())/float64(CentsPerCoin), 'f', 2, 64),
		strconv.FormatFloat(float64(acc.StakedCents())/float64(CentsPerCoin), 'f', 2, 64),
	)
}
