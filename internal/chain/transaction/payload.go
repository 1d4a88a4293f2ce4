// Package transaction implements the three transaction kinds BlockChat
// nodes exchange — transfers, messages, and stakes — their hashing and
// signing, and their structural/semantic validation rules.
package transaction

import (
	"encoding/json"
	"fmt"
)

// Kind identifies which of the three payload shapes a Payload holds.
type Kind int

const (
	KindTransfer Kind = iota
	KindMessage
	KindStake
)

func (k Kind) String() string {
	switch k {
	case KindTransfer:
		return "Transfer"
	case KindMessage:
		return "Message"
	case KindStake:
		return "Stake"
	default:
		return "Unknown"
	}
}

// Payload is the tagged union of transaction bodies. Exactly one of
// Transfer, Message or Stake is populated at any time; use NewTransfer
// Payload, NewMessagePayload or NewStakePayload to build one.
type Payload struct {
	kind    Kind
	coins   uint32
	message string
}

// NewTransferPayload builds a Transfer payload moving amountCents held
// coins from sender to recipient.
func NewTransferPayload(amountCents uint32) (Payload, error) {
	if amountCents == 0 {
		return Payload{}, fmt.Errorf("transaction: transfer amount must be non-zero")
	}
	return Payload{kind: KindTransfer, coins: amountCents}, nil
}

// NewMessagePayload builds a Message payload carrying an arbitrary
// non-empty string.
func NewMessagePayload(message string) (Payload, error) {
	if message == "" {
		return Payload{}, fmt.Errorf("transaction: message must be non-empty")
	}
	return Payload{kind: KindMessage, message: message}, nil
}

// NewStakePayload builds a Stake payload locking amountCents of the
// sender's held coins.
func NewStakePayload(amountCents uint32) (Payload, error) {
	if amountCents == 0 {
		return Payload{}, fmt.Errorf("transaction: stake amount must be non-zero")
	}
	return Payload{kind: KindStake, coins: amountCents}, nil
}

// Kind reports which payload shape this is.
func (p Payload) Kind() Kind {
	return p.kind
}

// Coins returns the coin amount for Transfer and Stake payloads. ok is
// false for Message payloads.
func (p Payload) Coins() (amount uint32, ok bool) {
	if p.kind == KindMessage {
		return 0, false
	}
	return p.coins, true
}

// Message returns the message text for Message payloads. ok is false
// for Transfer and Stake payloads.
func (p Payload) Message() (text string, ok bool) {
	if p.kind != KindMessage {
		return "", false
	}
	return p.message, true
}

type wirePayload struct {
	Transfer *uint32 `json:"Transfer,omitempty"`
	Message  *string `json:"Message,omitempty"`
	Stake    *uint32 `json:"Stake,omitempty"`
}

func (p Payload) MarshalJSON() ([]byte, error) {
	var w wirePayload
	switch p.kind {
	case KindTransfer:
		coins := p.coins
		w.Transfer = &coins
	case KindMessage:
		msg := p.message
		w.Message = &msg
	case KindStake:
		coins := p.coins
		w.Stake = &coins
	default:
		return nil, fmt.Errorf("transaction: invalid payload kind %d", p.kind)
	}
	return json.Marshal(w)
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	var w wirePayload
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("transaction: decode payload: %w", err)
	}
	switch {
	case w.Transfer != nil:
		payload, err := NewTransferPayload(*w.Transfer)
		if err != nil {
			return err
		}
		*p = payload
	case w.Message != nil:
		payload, err := NewMessagePayload(*w.Message)
		if err != nil {
			return err
		}
		*p = payload
	case w.Stake != nil:
		payload, err := NewStakePayload(*w.Stake)
		if err != nil {
			return err
		}
		*p = payload
	default:
		return fmt.Errorf("transaction: payload has no recognized tag")
	}
	return nil
}
