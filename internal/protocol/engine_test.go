package protocol

import (
	"net"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/go-edu/blockchat/internal/account"
	"github.com/go-edu/blockchat/internal/chain"
	"github.com/go-edu/blockchat/internal/chain/block"
	"github.com/go-edu/blockchat/internal/chain/transaction"
	"github.com/go-edu/blockchat/internal/cryptoutil"
	"github.com/go-edu/blockchat/internal/eventsink"
	"github.com/go-edu/blockchat/internal/peer"
	"github.com/go-edu/blockchat/internal/pos"
	"github.com/go-edu/blockchat/internal/wire"
)

const genesisCentsPerPeer = 100000 // 1000 coins

type testNetwork struct {
	keys   []cryptoutil.PrivateKey
	peers  *peer.Catalog
	hard   *account.Catalog
	chain  *chain.Blockchain
}

func newTestNetwork(t *testing.T, n int) *testNetwork {
	t.Helper()

	keys := make([]cryptoutil.PrivateKey, n)
	peers := peer.NewCatalog()
	for i := 0; i < n; i++ {
		priv, err := cryptoutil.GeneratePrivateKey()
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		keys[i] = priv
		if err := peers.Insert(priv.PublicKey(), net.TCPAddr{}); err != nil {
			t.Fatalf("insert peer: %v", err)
		}
	}

	hard := account.NewCatalog(peers)
	tsxs := make([]transaction.Transaction, n)
	for i := 0; i < n; i++ {
		tsx, err := transaction.NewGenesis(keys[i].PublicKey(), genesisCentsPerPeer)
		if err != nil {
			t.Fatalf("new genesis: %v", err)
		}
		if err := hard.ProcessTransaction(&tsx); err != nil {
			t.Fatalf("process genesis: %v", err)
		}
		tsxs[i] = tsx
	}

	genesis := block.NewGenesis(tsxs)
	return &testNetwork{keys: keys, peers: peers, hard: hard, chain: chain.New(genesis)}
}

func newTestEngine(t *testing.T, tn *testNetwork, id uint32, sink eventsink.Sink) (*Engine, chan wire.Broadcast) {
	t.Helper()
	outgoing := make(chan wire.Broadcast, 32)
	if sink == nil {
		sink = eventsink.NoopSink{}
	}
	eng := New(id, tn.peers, tn.hard.Clone(), tn.chain, tn.keys[id], outgoing, sink, nil, zerolog.Nop())
	return eng, outgoing
}

func balanceString(t *testing.T, eng *Engine) string {
	t.Helper()
	server, client := net.Pipe()
	done := make(chan string, 1)
	go func() {
		buf := make([]byte, 256)
		nr, _ := client.Read(buf)
		done <- string(buf[:nr])
	}()
	go eng.HandleCommand(wire.NewSimpleCommand(wire.VerbBalance), server)
	return <-done
}

func TestBalanceReplyFormatsHeldAndStaked(t *testing.T) {
	tn := newTestNetwork(t, 2)
	eng, _ := newTestEngine(t, tn, 0, nil)

	got := balanceString(t, eng)
	want := "Balance: 1000.00 held, 0.00 staked"
	if got != want {
		t.Fatalf("balance reply = %q, want %q", got, want)
	}
}

func TestHandleTransactionLocalTransferDebitsAndCreditsSoftAccounts(t *testing.T) {
	tn := newTestNetwork(t, 3)
	eng, outgoing := newTestEngine(t, tn, 0, nil)

	recipient := tn.keys[1].PublicKey()
	tsx, err := transaction.NewTransfer(tn.keys[0].PublicKey(), recipient, 10000, 0, tn.keys[0])
	if err != nil {
		t.Fatalf("new transfer: %v", err)
	}

	eng.HandleTransaction(tsx, nil, true)

	senderAcc, _ := eng.softAccounts.GetByID(0)
	recipientAcc, _ := eng.softAccounts.GetByID(1)

	wantFee := transaction.TransferTotalCost(10000) - 10000
	if got := genesisCentsPerPeer - senderAcc.HeldCents(); got != 10000+wantFee {
		t.Fatalf("sender debited %d, want %d", got, 10000+wantFee)
	}
	if got := recipientAcc.HeldCents() - genesisCentsPerPeer; got != 10000 {
		t.Fatalf("recipient credited %d, want 10000", got)
	}
	if len(eng.pending) != 1 {
		t.Fatalf("expected 1 pending transaction, got %d", len(eng.pending))
	}

	select {
	case b := <-outgoing:
		if b.Transaction == nil || b.Transaction.Hash() != tsx.Hash() {
			t.Fatalf("expected the transaction to be broadcast")
		}
	default:
		t.Fatal("expected a broadcast frame")
	}
}

func TestHandleTransactionNetworkRejectsInsufficientFunds(t *testing.T) {
	tn := newTestNetwork(t, 2)
	hs := eventsink.NewHistorySink()
	eng, outgoing := newTestEngine(t, tn, 0, hs)

	tsx, err := transaction.NewTransfer(tn.keys[1].PublicKey(), tn.keys[0].PublicKey(), genesisCentsPerPeer*10, 0, tn.keys[1])
	if err != nil {
		t.Fatalf("new transfer: %v", err)
	}

	eng.HandleTransaction(tsx, nil, false)

	if len(eng.pending) != 0 {
		t.Fatalf("expected the transaction to be rejected, pending = %d", len(eng.pending))
	}
	select {
	case <-outgoing:
		t.Fatal("a rejected transaction must not be broadcast")
	default:
	}

	events := hs.Events()
	if len(events) == 0 {
		t.Fatal("expected an invalid-transaction event to be recorded")
	}
}

func TestEngineMintsBlockOncePendingPoolFills(t *testing.T) {
	tn := newTestNetwork(t, 3)
	winnerID := pos.Elect(tn.hard.Accounts(), tn.chain.LastHash())

	eng, outgoing := newTestEngine(t, tn, winnerID, nil)

	for i := 0; i < block.Capacity; i++ {
		senderIdx := uint32(i % 3)
		recipientIdx := (senderIdx + 1) % 3

		senderAcc, ok := eng.softAccounts.GetByID(senderIdx)
		if !ok {
			t.Fatalf("missing sender account %d", senderIdx)
		}
		tsx, err := transaction.NewTransfer(
			tn.keys[senderIdx].PublicKey(),
			tn.keys[recipientIdx].PublicKey(),
			1000,
			senderAcc.NextNonce(),
			tn.keys[senderIdx],
		)
		if err != nil {
			t.Fatalf("new transfer %d: %v", i, err)
		}

		eng.HandleTransaction(tsx, nil, false)
	}

	if tn.chain.Len() != 2 {
		t.Fatalf("expected a block to be minted, chain length = %d", tn.chain.Len())
	}
	if len(eng.pending) != 0 {
		t.Fatalf("expected the pending pool to be drained, got %d", len(eng.pending))
	}

	select {
	case b := <-outgoing:
		if b.Block == nil {
			t.Fatalf("expected a block broadcast, got %+v", b)
		}
		if len(b.Block.Transactions()) != block.Capacity {
			t.Fatalf("minted block has %d transactions, want %d", len(b.Block.Transactions()), block.Capacity)
		}
	default:
		t.Fatal("expected the minted block to be broadcast")
	}
}

func TestHandleTransactionRejectsReplayedNonce(t *testing.T) {
	tn := newTestNetwork(t, 2)
	eng, _ := newTestEngine(t, tn, 0, nil)

	tsx, err := transaction.NewTransfer(tn.keys[0].PublicKey(), tn.keys[1].PublicKey(), 1000, 0, tn.keys[0])
	if err != nil {
		t.Fatalf("new transfer: %v", err)
	}
	eng.HandleTransaction(tsx, nil, true)
	if len(eng.pending) != 1 {
		t.Fatalf("expected the first transaction to be admitted")
	}

	replay, err := transaction.NewTransfer(tn.keys[0].PublicKey(), tn.keys[1].PublicKey(), 1000, 0, tn.keys[0])
	if err != nil {
		t.Fatalf("new transfer: %v", err)
	}
	eng.HandleTransaction(replay, nil, false)

	if len(eng.pending) != 1 {
		t.Fatalf("expected the replayed nonce to be rejected, pending = %d", len(eng.pending))
	}
}

func TestStatsReplyWithoutHistoryExplainsItIsDisabled(t *testing.T) {
	tn := newTestNetwork(t, 2)
	eng, _ := newTestEngine(t, tn, 0, nil)

	if got := eng.statsReply(); !strings.Contains(got, "not enabled") {
		t.Fatalf("statsReply() = %q, want a message explaining history is disabled", got)
	}
}
