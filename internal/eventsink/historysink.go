package eventsink

import (
	"fmt"
	"sort"

	"github.com/go-edu/blockchat/internal/chain"
	"github.com/go-edu/blockchat/internal/chain/block"
	"github.com/go-edu/blockchat/internal/chain/transaction"
	"github.com/go-edu/blockchat/internal/peer"
)

// eventKind mirrors the reference implementation's EventKind tags,
// collapsed to a single string since Go has no serde-style tagged enum.
type eventKind string

const (
	kindLocalTransfer  eventKind = "LT"
	kindLocalMessage   eventKind = "LM"
	kindLocalStake     eventKind = "LS"
	kindLocalBlock     eventKind = "LB"
	kindNetworkTransfer eventKind = "NT"
	kindNetworkMessage  eventKind = "NM"
	kindNetworkStake    eventKind = "NS"
	kindNetworkBlock    eventKind = "NB"
	kindInvalidTsx      eventKind = "IT"
	kindInvalidBlock    eventKind = "IB"
	kindNewValidator    eventKind = "NV"
)

// Event is one recorded history entry.
type Event struct {
	Kind    eventKind `json:"type"`
	Src     uint32    `json:"src"`
	Dst     *uint32   `json:"dst,omitempty"`
	Amount  *float64  `json:"amount,omitempty"`
	Message *string   `json:"message,omitempty"`
	TxIDs   []string  `json:"tids,omitempty"`
}

// HistorySink records every transition in memory, for the debug H
// (history) and Stats commands. Only the engine goroutine ever touches
// it, so it needs no locking.
type HistorySink struct {
	events []Event
}

// NewHistorySink creates an empty sink.
func NewHistorySink() *HistorySink {
	return &HistorySink{}
}

// Events returns every recorded event, oldest first. Callers must not
// mutate the returned slice.
func (s *HistorySink) Events() []Event {
	return s.events
}

func txKind(tsx transaction.Transaction, local bool) eventKind {
	switch tsx.Payload().Kind() {
	case transaction.KindTransfer:
		if local {
			return kindLocalTransfer
		}
		return kindNetworkTransfer
	case transaction.KindMessage:
		if local {
			return kindLocalMessage
		}
		return kindNetworkMessage
	default:
		if local {
			return kindLocalStake
		}
		return kindNetworkStake
	}
}

func (s *HistorySink) logTransaction(tsx transaction.Transaction, peers *peer.Catalog, local bool) {
	srcPeer, _ := peers.GetByPublicKey(*tsx.SenderAddr())
	event := Event{Kind: txKind(tsx, local), Src: srcPeer.ID}

	if recipient := tsx.RecipientAddr(); recipient != nil {
		dstPeer, _ := peers.GetByPublicKey(*recipient)
		dst := dstPeer.ID
		event.Dst = &dst
	}

	if coins, ok := tsx.Payload().Coins(); ok {
		amount := float64(coins) / 100.0
		event.Amount = &amount
	}
	if msg, ok := tsx.Payload().Message(); ok {
		event.Message = &msg
	}

	s.events = append(s.events, event)
}

func (s *HistorySink) NetworkTransaction(tsx transaction.Transaction, peers *peer.Catalog) {
	s.logTransaction(tsx, peers, false)
}

func (s *HistorySink) LocalTransaction(tsx transaction.Transaction, peers *peer.Catalog) {
	s.logTransaction(tsx, peers, true)
}

func (s *HistorySink) InvalidTransaction(tsx transaction.Transaction, peers *peer.Catalog, err error) {
	src := uint32(0)
	if sender := tsx.SenderAddr(); sender != nil {
		if p, ok := peers.GetByPublicKey(*sender); ok {
			src = p.ID
		}
	}
	s.events = append(s.events, Event{Kind: kindInvalidTsx, Src: src})
}

func (s *HistorySink) logBlock(blk block.Block, peers *peer.Catalog, kind eventKind) {
	src := uint32(0)
	if validator := blk.Validator(); validator != nil {
		if p, ok := peers.GetByPublicKey(*validator); ok {
			src = p.ID
		}
	}
	s.events = append(s.events, Event{Kind: kind, Src: src, TxIDs: txIDs(blk)})
}

func (s *HistorySink) NetworkBlock(blk block.Block, peers *peer.Catalog) {
	s.logBlock(blk, peers, kindNetworkBlock)
}

func (s *HistorySink) LocalBlock(blk block.Block, peers *peer.Catalog) {
	s.logBlock(blk, peers, kindLocalBlock)
}

func (s *HistorySink) InvalidBlock(blk block.Block, peers *peer.Catalog, err error) {
	src := uint32(0)
	if validator := blk.Validator(); validator != nil {
		if p, ok := peers.GetByPublicKey(*validator); ok {
			src = p.ID
		}
	}
	s.events = append(s.events, Event{Kind: kindInvalidBlock, Src: src})
}

func (s *HistorySink) NewValidator(selfID, winnerID uint32, c *chain.Blockchain) {
	s.events = append(s.events, Event{Kind: kindNewValidator, Src: uint32(c.Len() - 1), Dst: &winnerID})
}

var _ Sink = (*HistorySink)(nil)

// Stats renders the same per-peer summary the reference
// implementation's Stats command produces: transactions made and
// blocks validated per peer, plus invalid counts when any occurred.
func (s *HistorySink) Stats() string {
	txsSent := map[uint32]int{}
	blksValidated := map[uint32]int{}
	invalidTxsSent := map[uint32]int{}
	invalidBlksValidated := map[uint32]int{}
	var totalTxs, totalBlks, totalInvalidTxs, totalInvalidBlks int

	for _, e := range s.events {
		switch e.Kind {
		case kindLocalTransfer, kindLocalMessage, kindLocalStake,
			kindNetworkTransfer, kindNetworkMessage, kindNetworkStake:
			totalTxs++
			txsSent[e.Src]++
		case kindLocalBlock, kindNetworkBlock:
			totalBlks++
			blksValidated[e.Src]++
		case kindInvalidTsx:
			totalInvalidTxs++
			invalidTxsSent[e.Src]++
		case kindInvalidBlock:
			totalInvalidBlks++
			invalidBlksValidated[e.Src]++
		}
	}

	ids := make([]uint32, 0, len(txsSent))
	for id := range txsSent {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := ""
	for _, id := range ids {
		out += fmt.Sprintf("Peer %d made %d transactions and validated %d blocks\n",
			id, txsSent[id], blksValidated[id])
		if invalidTxsSent[id] > 0 || invalidBlksValidated[id] > 0 {
			out += fmt.Sprintf("Peer %d made %d invalid transactions and validated %d invalid blocks\n",
				id, invalidTxsSent[id], invalidBlksValidated[id])
		}
	}

	out += fmt.Sprintf("In total, %d transactions were made and %d blocks were validated\n", totalTxs, totalBlks)
	if totalInvalidTxs > 0 || totalInvalidBlks > 0 {
		out += fmt.Sprintf("In total, %d invalid transactions were made and %d invalid blocks were validated\n",
			totalInvalidTxs, totalInvalidBlks)
	}
	return out
}
