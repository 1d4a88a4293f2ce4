// Command blockchat-cli sends one command to a running blockchatd and
// prints its reply.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/go-edu/blockchat/internal/config"
	"github.com/go-edu/blockchat/internal/wire"
)

func main() {
	configPath := flag.String("config", "blockchat-cli.yaml", "path to the client's YAML config file")
	addrFlag := flag.String("addr", "", "daemon address, overrides the config file")
	flag.Parse()

	addr := *addrFlag
	if addr == "" {
		cfg, err := config.LoadClient(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "blockchat-cli: %v\n", err)
			os.Exit(1)
		}
		addr = cfg.DaemonAddr
	}

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: blockchat-cli [-addr host:port] <t|m|stake|view|balance|history|id|time|stats> [args...]")
		os.Exit(1)
	}

	cmd, err := parseCommand(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "blockchat-cli: %v\n", err)
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "blockchat-cli: failed to connect to %s: %v\n", addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	frame := wire.NewCommandBroadcast(cmd)
	if err := sendFrame(conn, frame); err != nil {
		fmt.Fprintf(os.Stderr, "blockchat-cli: %v\n", err)
		os.Exit(1)
	}

	reply, err := readReply(conn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "blockchat-cli: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(reply)
}

func sendFrame(conn net.Conn, frame wire.Broadcast) error {
	data, err := frame.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("send command: %w", err)
	}
	return nil
}

func readReply(conn net.Conn) (string, error) {
	reader := bufio.NewReader(conn)
	var sb strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			sb.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// parseCommand turns the CLI's positional arguments into a wire.Command,
// mirroring the original client's plain-text verb grammar.
func parseCommand(args []string) (wire.Command, error) {
	verb := strings.ToLower(args[0])
	rest := args[1:]

	switch verb {
	case "t", "transfer":
		if len(rest) != 2 {
			return wire.Command{}, fmt.Errorf("t requires <recipient_id> <amount>")
		}
		recipientID, err := strconv.ParseUint(rest[0], 10, 32)
		if err != nil {
			return wire.Command{}, fmt.Errorf("invalid recipient id %q: %w", rest[0], err)
		}
		amount, err := strconv.ParseUint(rest[1], 10, 32)
		if err != nil {
			return wire.Command{}, fmt.Errorf("invalid amount %q: %w", rest[1], err)
		}
		return wire.NewTransferCommand(uint32(recipientID), uint32(amount)), nil

	case "m", "message":
		if len(rest) < 2 {
			return wire.Command{}, fmt.Errorf("m requires <recipient_id> <message...>")
		}
		recipientID, err := strconv.ParseUint(rest[0], 10, 32)
		if err != nil {
			return wire.Command{}, fmt.Errorf("invalid recipient id %q: %w", rest[0], err)
		}
		return wire.NewMessageCommand(uint32(recipientID), strings.Join(rest[1:], " ")), nil

	case "stake":
		if len(rest) != 1 {
			return wire.Command{}, fmt.Errorf("stake requires <amount>")
		}
		amount, err := strconv.ParseUint(rest[0], 10, 32)
		if err != nil {
			return wire.Command{}, fmt.Errorf("invalid amount %q: %w", rest[0], err)
		}
		return wire.NewStakeCommand(uint32(amount)), nil

	case "view":
		return wire.NewSimpleCommand(wire.VerbView), nil
	case "balance":
		return wire.NewSimpleCommand(wire.VerbBalance), nil
	case "history":
		return wire.NewSimpleCommand(wire.VerbHistory), nil
	case "id":
		return wire.NewSimpleCommand(wire.VerbID), nil
	case "time":
		return wire.NewSimpleCommand(wire.VerbTime), nil
	case "stats":
		return wire.NewSimpleCommand(wire.VerbStats), nil
	default:
		return wire.Command{}, fmt.Errorf("unrecognized command %q", verb)
	}
}
