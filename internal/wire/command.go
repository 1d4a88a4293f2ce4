package wire

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CommandVerb identifies which of BlockChat's nine client verbs a
// Command carries.
type CommandVerb int

const (
	VerbTransfer CommandVerb = iota
	VerbMessage
	VerbStake
	VerbView
	VerbBalance
	VerbHistory
	VerbID
	VerbTime
	VerbStats
)

func (v CommandVerb) String() string {
	switch v {
	case VerbTransfer:
		return "t"
	case VerbMessage:
		return "m"
	case VerbStake:
		return "stake"
	case VerbView:
		return "view"
	case VerbBalance:
		return "balance"
	case VerbHistory:
		return "history"
	case VerbID:
		return "id"
	case VerbTime:
		return "time"
	case VerbStats:
		return "stats"
	default:
		return "unknown"
	}
}

// Command is a single client request: transfer/message/stake take
// arguments, the rest (view/balance/history/id/time/stats) don't.
// AmountCoins is whole coins as the user typed them — the daemon, not
// the client, converts to cents.
type Command struct {
	Verb        CommandVerb
	RecipientID uint32
	AmountCoins uint32
	Message     string
}

func NewTransferCommand(recipientID uint32, amountCoins uint32) Command {
	return Command{Verb: VerbTransfer, RecipientID: recipientID, AmountCoins: amountCoins}
}

func NewMessageCommand(recipientID uint32, message string) Command {
	return Command{Verb: VerbMessage, RecipientID: recipientID, Message: message}
}

func NewStakeCommand(amountCoins uint32) Command {
	return Command{Verb: VerbStake, AmountCoins: amountCoins}
}

func NewSimpleCommand(verb CommandVerb) Command {
	return Command{Verb: verb}
}

// String reconstructs the command's text form, mirroring the original
// CLI's Display impl.
func (c Command) String() string {
	switch c.Verb {
	case VerbTransfer:
		return fmt.Sprintf("t %d %d", c.RecipientID, c.AmountCoins)
	case VerbMessage:
		return fmt.Sprintf("m %d %s", c.RecipientID, c.Message)
	case VerbStake:
		return fmt.Sprintf("stake %d", c.AmountCoins)
	default:
		return c.Verb.String()
	}
}

type wireCommand struct {
	Verb        string `json:"verb"`
	RecipientID uint32 `json:"recipient_id,omitempty"`
	AmountCoins uint32 `json:"amount_coins,omitempty"`
	Message     string `json:"message,omitempty"`
}

func (c Command) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireCommand{
		Verb:        c.Verb.String(),
		RecipientID: c.RecipientID,
		AmountCoins: c.AmountCoins,
		Message:     c.Message,
	})
}

func (c *Command) UnmarshalJSON(data []byte) error {
	var w wireCommand
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("wire: decode command: %w", err)
	}
	switch strings.ToLower(w.Verb) {
	case "t":
		c.Verb = VerbTransfer
	case "m":
		c.Verb = VerbMessage
	case "stake":
		c.Verb = VerbStake
	case "view":
		c.Verb = VerbView
	case "balance":
		c.Verb = VerbBalance
	case "history":
		c.Verb = VerbHistory
	case "id":
		c.Verb = VerbID
	case "time":
		c.Verb = VerbTime
	case "stats":
		c.Verb = VerbStats
	default:
		return fmt.Errorf("wire: unrecognized command verb %q", w.Verb)
	}
	c.RecipientID = w.RecipientID
	c.AmountCoins = w.AmountCoins
	c.Message = w.Message
	return nil
}
