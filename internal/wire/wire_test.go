package wire

import (
	"encoding/json"
	"testing"

	"github.com/go-edu/blockchat/internal/chain/transaction"
	"github.com/go-edu/blockchat/internal/cryptoutil"
)

func mustKey(t *testing.T) cryptoutil.PrivateKey {
	t.Helper()
	priv, err := cryptoutil.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return priv
}

func TestCommandStringForms(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{"transfer", NewTransferCommand(3, 12), "t 3 12"},
		{"message", NewMessageCommand(2, "hello there"), "m 2 hello there"},
		{"stake", NewStakeCommand(7), "stake 7"},
		{"balance", NewSimpleCommand(VerbBalance), "balance"},
		{"view", NewSimpleCommand(VerbView), "view"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cmd.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCommandJSONRoundTrip(t *testing.T) {
	cmd := NewTransferCommand(5, 42)
	data, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Command
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != cmd {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, cmd)
	}
}

func TestCommandUnmarshalRejectsUnknownVerb(t *testing.T) {
	if err := json.Unmarshal([]byte(`{"verb":"nonsense"}`), &Command{}); err == nil {
		t.Fatal("expected an error for an unrecognized verb")
	}
}

func TestBroadcastJSONRoundTripTransaction(t *testing.T) {
	sender, recipient := mustKey(t), mustKey(t)
	tsx, err := transaction.NewTransfer(sender.PublicKey(), recipient.PublicKey(), 500, 0, sender)
	if err != nil {
		t.Fatalf("new transfer: %v", err)
	}

	b := NewTransactionBroadcast(tsx)
	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Broadcast
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Transaction == nil || decoded.Transaction.Hash() != tsx.Hash() {
		t.Fatalf("decoded transaction mismatch")
	}
	if decoded.Block != nil || decoded.Command != nil {
		t.Fatalf("expected only the transaction tag to be set")
	}
}

func TestBroadcastUnmarshalRejectsEmptyFrame(t *testing.T) {
	if err := json.Unmarshal([]byte(`{}`), &Broadcast{}); err == nil {
		t.Fatal("expected an error for a frame with no recognized tag")
	}
}
