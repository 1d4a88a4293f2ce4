package transaction

import (
	"testing"

	"github.com/go-edu/blockchat/internal/cryptoutil"
)

func mustKey(t *testing.T) cryptoutil.PrivateKey {
	t.Helper()
	key, err := cryptoutil.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	return key
}

func TestFeesAndTotalCost(t *testing.T) {
	tests := []struct {
		name       string
		payload    Payload
		wantFee    uint32
		wantTotal  uint32
	}{
		{"transfer above floor", mustPayload(t)(NewTransferPayload(1000)), 30, 1030},
		{"transfer below floor", mustPayload(t)(NewTransferPayload(10)), 1, 11},
		{"message", mustPayload(t)(NewMessagePayload("hi")), 200, 202},
		{"stake", mustPayload(t)(NewStakePayload(500)), 0, 500},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tx := Transaction{payload: tc.payload}
			if got := tx.Fees(); got != tc.wantFee {
				t.Errorf("Fees() = %d, want %d", got, tc.wantFee)
			}
			if got := tx.TotalCost(); got != tc.wantTotal {
				t.Errorf("TotalCost() = %d, want %d", got, tc.wantTotal)
			}
		})
	}
}

func mustPayload(t *testing.T) func(Payload, error) Payload {
	return func(p Payload, err error) Payload {
		t.Helper()
		if err != nil {
			t.Fatalf("payload constructor: %v", err)
		}
		return p
	}
}

func TestGenesisHasNoSenderOrSignature(t *testing.T) {
	priv := mustKey(t)
	tx, err := NewGenesis(priv.PublicKey(), 1000)
	if err != nil {
		t.Fatalf("NewGenesis: %v", err)
	}
	if tx.SenderAddr() != nil {
		t.Fatal("genesis transaction has a sender address")
	}
	if tx.RecipientAddr() == nil {
		t.Fatal("genesis transaction has no recipient address")
	}
	if tx.Signature() != nil {
		t.Fatal("genesis transaction has a signature")
	}
	if !tx.IsGenesis() {
		t.Fatal("IsGenesis() = false for a genesis transaction")
	}
}

func TestValidateStructureTransfer(t *testing.T) {
	senderPriv := mustKey(t)
	recipientPriv := mustKey(t)

	tx, err := NewTransfer(senderPriv.PublicKey(), recipientPriv.PublicKey(), 100, 0, senderPriv)
	if err != nil {
		t.Fatalf("NewTransfer: %v", err)
	}
	if err := ValidateStructure(&tx); err != nil {
		t.Fatalf("ValidateStructure: %v", err)
	}
}

func TestValidateStructureRejectsIdenticalAddrs(t *testing.T) {
	priv := mustKey(t)
	tx, err := NewTransfer(priv.PublicKey(), priv.PublicKey(), 100, 0, priv)
	if err != nil {
		t.Fatalf("NewTransfer: %v", err)
	}
	if err := ValidateStructure(&tx); err != ErrIdenticalAddrs {
		t.Fatalf("ValidateStructure = %v, want ErrIdenticalAddrs", err)
	}
}

func TestValidateStructureRejectsStakeWithRecipient(t *testing.T) {
	senderPriv := mustKey(t)
	recipientPriv := mustKey(t)

	payload, err := NewStakePayload(100)
	if err != nil {
		t.Fatalf("NewStakePayload: %v", err)
	}
	senderPub := senderPriv.PublicKey()
	recipientPub := recipientPriv.PublicKey()
	tx := Transaction{payload: payload, senderAddr: &senderPub, recipientAddr: &recipientPub}
	tx.hash = tx.computeHash()
	sig, err := senderPriv.Sign(tx.hash[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	tx.signature = sig

	if err := ValidateStructure(&tx); err != ErrUnexpectedRecipientAddr {
		t.Fatalf("ValidateStructure = %v, want ErrUnexpectedRecipientAddr", err)
	}
}

func TestValidateStructureDetectsTamperedHash(t *testing.T) {
	senderPriv := mustKey(t)
	recipientPriv := mustKey(t)
	tx, err := NewTransfer(senderPriv.PublicKey(), recipientPriv.PublicKey(), 100, 0, senderPriv)
	if err != nil {
		t.Fatalf("NewTransfer: %v", err)
	}
	tx.hash[0] ^= 0xFF
	if err := ValidateStructure(&tx); err != ErrInvalidHash {
		t.Fatalf("ValidateStructure = %v, want ErrInvalidHash", err)
	}
}

func TestValidateStructureDetectsBadSignature(t *testing.T) {
	senderPriv := mustKey(t)
	recipientPriv := mustKey(t)
	tx, err := NewTransfer(senderPriv.PublicKey(), recipientPriv.PublicKey(), 100, 0, senderPriv)
	if err != nil {
		t.Fatalf("NewTransfer: %v", err)
	}
	tx.signature[0] ^= 0xFF
	if err := ValidateStructure(&tx); err != ErrInvalidSignature {
		t.Fatalf("ValidateStructure = %v, want ErrInvalidSignature", err)
	}
}

// fakeAccount and fakeAccounts let the validator package's tests drive
// ValidateSemantics without importing the account package (which would
// create an import cycle back to this one).
type fakeAccount struct {
	held       uint32
	usedNonces map[uint64]bool
}

func (a fakeAccount) HeldCents() uint32           { return a.held }
func (a fakeAccount) NonceUsed(nonce uint64) bool { return a.usedNonces[nonce] }

type fakeAccounts map[string]fakeAccount

func (a fakeAccounts) Lookup(pub cryptoutil.PublicKey) (AccountView, bool) {
	acc, ok := a[pub.Fingerprint()]
	return acc, ok
}

func TestValidateSemantics(t *testing.T) {
	senderPriv := mustKey(t)
	recipientPriv := mustKey(t)
	senderPub := senderPriv.PublicKey()
	recipientPub := recipientPriv.PublicKey()

	accounts := fakeAccounts{
		senderPub.Fingerprint():    {held: 1000, usedNonces: map[uint64]bool{3: true}},
		recipientPub.Fingerprint(): {held: 0, usedNonces: map[uint64]bool{}},
	}

	t.Run("valid", func(t *testing.T) {
		tx, _ := NewTransfer(senderPub, recipientPub, 100, 0, senderPriv)
		if err := ValidateSemantics(&tx, accounts); err != nil {
			t.Fatalf("ValidateSemantics: %v", err)
		}
	})

	t.Run("unknown recipient", func(t *testing.T) {
		strangerPriv := mustKey(t)
		tx, _ := NewTransfer(senderPub, strangerPriv.PublicKey(), 100, 1, senderPriv)
		if err := ValidateSemantics(&tx, accounts); err != ErrUnknownRecipient {
			t.Fatalf("ValidateSemantics = %v, want ErrUnknownRecipient", err)
		}
	})

	t.Run("insufficient funds", func(t *testing.T) {
		tx, _ := NewTransfer(senderPub, recipientPub, 1_000_000, 1, senderPriv)
		err := ValidateSemantics(&tx, accounts)
		insufficient, ok := err.(*InsufficientFundsError)
		if !ok {
			t.Fatalf("ValidateSemantics = %v, want *InsufficientFundsError", err)
		}
		if insufficient.Actual != 1000 {
			t.Errorf("Actual = %d, want 1000", insufficient.Actual)
		}
	})

	t.Run("repeated nonce", func(t *testing.T) {
		tx, _ := NewTransfer(senderPub, recipientPub, 100, 3, senderPriv)
		if _, ok := ValidateSemantics(&tx, accounts).(*RepeatedNonceError); !ok {
			t.Fatalf("ValidateSemantics = %v, want *RepeatedNonceError", ValidateSemantics(&tx, accounts))
		}
	})
}
