package transaction

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/go-edu/blockchat/internal/cryptoutil"
)

const (
	// TransferFeePercentCents is the numerator of the 3% transfer fee.
	TransferFeePercentCents = 3
	// MinimumTransferFeeCents is the floor applied to the percentage fee.
	MinimumTransferFeeCents = 1
	// MessageFeePerCharacterCents is charged per byte of message text.
	MessageFeePerCharacterCents = 100
)

// Transaction is a single signed operation against the ledger: a
// transfer, a message, or a stake. Genesis transactions have a
// recipient but no sender and no signature.
type Transaction struct {
	payload       Payload
	senderAddr    *cryptoutil.PublicKey
	recipientAddr *cryptoutil.PublicKey
	nonce         uint64
	hash          [32]byte
	signature     []byte
}

// NewGenesis builds one of the network's initial minting transactions,
// crediting recipient with amountCents out of nothing. Genesis
// transactions carry no sender and no signature.
func NewGenesis(recipient cryptoutil.PublicKey, amountCents uint32) (Transaction, error) {
	payload, err := NewTransferPayload(amountCents)
	if err != nil {
		return Transaction{}, err
	}
	t := Transaction{
		payload:       payload,
		recipientAddr: &recipient,
		nonce:         0,
	}
	t.hash = t.computeHash()
	return t, nil
}

// NewTransfer builds and signs a Transfer transaction.
func NewTransfer(sender cryptoutil.PublicKey, recipient cryptoutil.PublicKey, amountCents uint32, nonce uint64, priv cryptoutil.PrivateKey) (Transaction, error) {
	payload, err := NewTransferPayload(amountCents)
	if err != nil {
		return Transaction{}, err
	}
	return newSigned(payload, &sender, &recipient, nonce, priv)
}

// NewMessage builds and signs a Message transaction.
func NewMessage(sender cryptoutil.PublicKey, recipient cryptoutil.PublicKey, message string, nonce uint64, priv cryptoutil.PrivateKey) (Transaction, error) {
	payload, err := NewMessagePayload(message)
	if err != nil {
		return Transaction{}, err
	}
	return newSigned(payload, &sender, &recipient, nonce, priv)
}

// NewStake builds and signs a Stake transaction. Stake transactions
// have no recipient.
func NewStake(sender cryptoutil.PublicKey, amountCents uint32, nonce uint64, priv cryptoutil.PrivateKey) (Transaction, error) {
	payload, err := NewStakePayload(amountCents)
	if err != nil {
		return Transaction{}, err
	}
	return newSigned(payload, &sender, nil, nonce, priv)
}

func newSigned(payload Payload, sender, recipient *cryptoutil.PublicKey, nonce uint64, priv cryptoutil.PrivateKey) (Transaction, error) {
	t := Transaction{
		payload:       payload,
		senderAddr:    sender,
		recipientAddr: recipient,
		nonce:         nonce,
	}
	t.hash = t.computeHash()
	sig, err := priv.Sign(t.hash[:])
	if err != nil {
		return Transaction{}, fmt.Errorf("transaction: sign: %w", err)
	}
	t.signature = sig
	return t, nil
}

func (t Transaction) computeHash() [32]byte {
	var parts [][]byte
	if coins, ok := t.payload.Coins(); ok {
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], coins)
		parts = append(parts, buf[:])
	}
	if msg, ok := t.payload.Message(); ok {
		parts = append(parts, []byte(msg))
	}
	if t.recipientAddr != nil {
		parts = append(parts, t.recipientAddr.DER())
	}
	if t.senderAddr != nil {
		parts = append(parts, t.senderAddr.DER())
	}
	var nonceBuf [8]byte
	binary.BigEndian.PutUint64(nonceBuf[:], t.nonce)
	parts = append(parts, nonceBuf[:])
	return cryptoutil.Hash(parts...)
}

// transferFee multiplies amount by TransferFeePercentCents/100 using
// 64-bit intermediates, since amount*3 can overflow a uint32 for large
// transfer amounts, and applies the MinimumTransferFeeCents floor.
func transferFee(amountCents uint32) uint32 {
	fee := uint64(amountCents) * TransferFeePercentCents / 100
	if fee < MinimumTransferFeeCents {
		return MinimumTransferFeeCents
	}
	if fee > 0xFFFFFFFF {
		panic("transaction: transfer fee overflows a 32-bit amount")
	}
	return uint32(fee)
}

func messageFee(message string) uint32 {
	total := uint64(len(message)) * MessageFeePerCharacterCents
	if total > 0xFFFFFFFF {
		panic("transaction: message fee overflows a 32-bit amount")
	}
	return uint32(total)
}

// Fees reports the fee charged for this transaction, paid to the block
// validator that includes it.
func (t Transaction) Fees() uint32 {
	switch t.payload.Kind() {
	case KindTransfer:
		coins, _ := t.payload.Coins()
		return transferFee(coins)
	case KindMessage:
		msg, _ := t.payload.Message()
		return messageFee(msg)
	case KindStake:
		return 0
	default:
		panic(fmt.Sprintf("transaction: unknown payload kind %d", t.payload.Kind()))
	}
}

// TotalCost reports the full amount debited from the sender's held
// balance: the payload amount plus its fee. Preserved verbatim from the
// original, Message's total cost treats the character count of the
// message as if it were an amount of cents, in addition to its fee.
func (t Transaction) TotalCost() uint32 {
	switch t.payload.Kind() {
	case KindTransfer:
		coins, _ := t.payload.Coins()
		return addChecked(coins, transferFee(coins))
	case KindMessage:
		msg, _ := t.payload.Message()
		return addChecked(uint32(len(msg)), messageFee(msg))
	case KindStake:
		coins, _ := t.payload.Coins()
		return coins
	default:
		panic(fmt.Sprintf("transaction: unknown payload kind %d", t.payload.Kind()))
	}
}

// TransferTotalCost reports the total cost of a transfer carrying
// amountCents, without constructing one — used by command handling to
// check affordability before signing anything.
func TransferTotalCost(amountCents uint32) uint32 {
	return addChecked(amountCents, transferFee(amountCents))
}

// MessageTotalCost reports the total cost of a message transaction
// carrying message, without constructing one.
func MessageTotalCost(message string) uint32 {
	return addChecked(uint32(len(message)), messageFee(message))
}

// StakeTotalCost reports the total cost of staking amountCents. Staking
// has no fee, so this is just amountCents.
func StakeTotalCost(amountCents uint32) uint32 {
	return amountCents
}

func addChecked(a, b uint32) uint32 {
	sum := uint64(a) + uint64(b)
	if sum > 0xFFFFFFFF {
		panic("transaction: total cost overflows a 32-bit amount")
	}
	return uint32(sum)
}

func (t Transaction) Payload() Payload                       { return t.payload }
func (t Transaction) SenderAddr() *cryptoutil.PublicKey       { return t.senderAddr }
func (t Transaction) RecipientAddr() *cryptoutil.PublicKey    { return t.recipientAddr }
func (t Transaction) Nonce() uint64                           { return t.nonce }
func (t Transaction) Hash() [32]byte                          { return t.hash }
func (t Transaction) Signature() []byte                       { return t.signature }
func (t Transaction) IsGenesis() bool                         { return t.senderAddr == nil }

type wireTransaction struct {
	Payload          Payload               `json:"payload"`
	SenderAddress    *cryptoutil.PublicKey `json:"sender_address"`
	RecipientAddress *cryptoutil.PublicKey `json:"recipient_address"`
	Nonce            uint64                `json:"nonce"`
	Hash             [32]byte              `json:"hash"`
	Signature        []byte                `json:"signature"`
}

func (t Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireTransaction{
		Payload:          t.payload,
		SenderAddress:    t.senderAddr,
		RecipientAddress: t.recipientAddr,
		Nonce:            t.nonce,
		Hash:             t.hash,
		Signature:        t.signature,
	})
}

func (t *Transaction) UnmarshalJSON(data []byte) error {
	var w wireTransaction
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("transaction: decode: %w", err)
	}
	t.payload = w.Payload
	t.senderAddr = w.SenderAddress
	t.recipientAddr = w.RecipientAddress
	t.nonce = w.Nonce
	t.hash = w.Hash
	t.signature = w.Signature
	return nil
}
