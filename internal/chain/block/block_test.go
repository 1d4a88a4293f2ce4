package block

import (
	"testing"

	"github.com/go-edu/blockchat/internal/chain/transaction"
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

func fullTsxs(t *testing.T, sender cryptoutil.PrivateKey, recipient cryptoutil.PublicKey) []transaction.Transaction {
	t.Helper()
	tsxs := make([]transaction.Transaction, Capacity)
	for i := range tsxs {
		tx, err := transaction.NewTransfer(sender.PublicKey(), recipient, 10, uint64(i), sender)
		if err != nil {
			t.Fatalf("NewTransfer: %v", err)
		}
		tsxs[i] = tx
	}
	return tsxs
}

func TestValidateStructureRejectsWrongTransactionCount(t *testing.T) {
	sender := mustKey(t)
	recipient := mustKey(t).PublicKey()
	validator := mustKey(t).PublicKey()

	tsxs := fullTsxs(t, sender, recipient)

	short := New(tsxs[:Capacity-1], validator, [32]byte{})
	if _, ok := ValidateStructure(&short).(*PartiallyFilledError); !ok {
		t.Fatalf("ValidateStructure(short) = %v, want *PartiallyFilledError", ValidateStructure(&short))
	}

	over := New(append(tsxs, tsxs[0]), validator, [32]byte{})
	if _, ok := ValidateStructure(&over).(*OverfilledError); !ok {
		t.Fatalf("ValidateStructure(over) = %v, want *OverfilledError", ValidateStructure(&over))
	}
}

func TestValidateStructureAccepts(t *testing.T) {
	sender := mustKey(t)
	recipient := mustKey(t).PublicKey()
	validator := mustKey(t).PublicKey()

	tsxs := fullTsxs(t, sender, recipient)
	blk := New(tsxs, validator, [32]byte{})

	if err := ValidateStructure(&blk); err != nil {
		t.Fatalf("ValidateStructure: %v", err)
	}
}

func TestValidateStructureDetectsTamperedHash(t *testing.T) {
	sender := mustKey(t)
	recipient := mustKey(t).PublicKey()
	validator := mustKey(t).PublicKey()

	tsxs := fullTsxs(t, sender, recipient)
	blk := New(tsxs, validator, [32]byte{})
	blk.hash[0] ^= 0xFF

	if err := ValidateStructure(&blk); err != ErrInvalidHash {
		t.Fatalf("ValidateStructure = %v, want ErrInvalidHash", err)
	}
}

func TestValidateStructureRejectsMissingValidator(t *testing.T) {
	sender := mustKey(t)
	recipient := mustKey(t).PublicKey()

	tsxs := fullTsxs(t, sender, recipient)
	blk := NewGenesis(tsxs)

	if err := ValidateStructure(&blk); err != ErrMissingValidator {
		t.Fatalf("ValidateStructure = %v, want ErrMissingValidator", err)
	}
}

func TestValidateSemanticsRejectsMissingValidator(t *testing.T) {
	sender := mustKey(t)
	recipient := mustKey(t).PublicKey()

	tsxs := fullTsxs(t, sender, recipient)
	blk := NewGenesis(tsxs)

	if err := ValidateSemantics(&blk, 0, nil, nil); err != ErrMissingValidator {
		t.Fatalf("ValidateSemantics = %v, want ErrMissingValidator", err)
	}
}

func TestWithIndexDoesNotAffectHash(t *testing.T) {
	sender := mustKey(t)
	recipient := mustKey(t).PublicKey()
	validator := mustKey(t).PublicKey()

	tsxs := fullTsxs(t, sender, recipient)
	blk := New(tsxs, validator, [32]byte{})
	wantHash := blk.Hash()

	indexed := blk.WithIndex(7)
	if indexed.Index() != 7 {
		t.Fatalf("Index() = %d, want 7", indexed.Index())
	}
	if indexed.Hash() != wantHash {
		t.Fatal("WithIndex changed the block's hash")
	}
}
