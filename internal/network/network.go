// Package network runs the accept loop and broadcast loop that multiplex
// transactions, blocks, and client commands over plain TCP: one JSON
// value per connection, exactly the way the reference implementation's
// listener and broadcast threads do it.
package network

import (
	"context"
	"encoding/json"
	"net"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/go-edu/blockchat/internal/peer"
	"github.com/go-edu/blockchat/internal/wire"
)

// Event is one decoded frame handed to the protocol engine. Conn is
// non-nil only for Command frames, which keep their connection open so
// the engine can write a reply directly to the client; Transaction and
// Block frames arrive with Conn nil, since nothing replies to a peer
// broadcast.
type Event struct {
	Broadcast wire.Broadcast
	Conn      net.Conn
}

// Listener accepts incoming connections and decodes one wire.Broadcast
// frame from each, handing the result to a channel for the engine's main
// loop to consume. A rate limiter throttles how quickly new connections
// are accepted, guarding against a peer opening connections faster than
// the engine can drain them.
type Listener struct {
	ln      net.Listener
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewListener wraps ln with a limiter and logger. limiter may be nil, in
// which case connections are accepted as fast as the OS hands them over.
func NewListener(ln net.Listener, limiter *rate.Limiter, logger zerolog.Logger) *Listener {
	return &Listener{ln: ln, limiter: limiter, logger: logger}
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Serve accepts connections until ctx is cancelled or the listener is
// closed, decoding one Broadcast per connection and sending it on
// events. Each accepted connection is handled in its own goroutine so a
// slow or malicious peer cannot stall the accept loop.
func (l *Listener) Serve(ctx context.Context, events chan<- Event) {
	for {
		if l.limiter != nil {
			if err := l.limiter.Wait(ctx); err != nil {
				return
			}
		}

		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				l.logger.Warn().Err(err).Msg("listener: failed to accept connection")
				continue
			}
		}

		go l.handle(conn, events)
	}
}

func (l *Listener) handle(conn net.Conn, events chan<- Event) {
	var b wire.Broadcast
	dec := json.NewDecoder(conn)
	if err := dec.Decode(&b); err != nil {
		l.logger.Warn().Err(err).Msg("listener: failed to decode frame")
		conn.Close()
		return
	}

	kind := "transaction"
	switch {
	case b.Block != nil:
		kind = "block"
	case b.Command != nil:
		kind = "command"
	}
	l.logger.Trace().Str("kind", kind).Str("remote", conn.RemoteAddr().String()).Msg("listener: received frame")

	if b.Command == nil {
		conn.Close()
		events <- Event{Broadcast: b}
		return
	}

	// Command frames keep their connection open: the engine answers
	// directly on it and closes it when done.
	events <- Event{Broadcast: b, Conn: conn}
}

// Broadcaster relays outgoing transactions and blocks to every other
// peer in the catalog, one connection per peer per frame. It runs on its
// own goroutine so that two consecutive blocks are always sent in the
// order they were minted, and so broadcasting never blocks the engine.
type Broadcaster struct {
	selfID uint32
	peers  *peer.Catalog
	logger zerolog.Logger
}

// NewBroadcaster builds a Broadcaster that skips selfID when relaying.
func NewBroadcaster(selfID uint32, peers *peer.Catalog, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{selfID: selfID, peers: peers, logger: logger}
}

// Run drains outgoing until it is closed or ctx is cancelled, relaying
// each frame to every peer but itself.
func (b *Broadcaster) Run(ctx context.Context, outgoing <-chan wire.Broadcast) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-outgoing:
			if !ok {
				return
			}
			b.relay(frame)
		}
	}
}

func (b *Broadcaster) relay(frame wire.Broadcast) {
	payload, err := json.Marshal(frame)
	if err != nil {
		b.logger.Error().Err(err).Msg("broadcaster: failed to serialize frame")
		return
	}

	for _, p := range b.peers.All() {
		if p.ID == b.selfID {
			continue
		}

		conn, err := net.Dial("tcp", p.Addr.String())
		if err != nil {
			b.logger.Warn().Err(err).Uint32("peer_id", p.ID).Msg("broadcaster: failed to connect to peer")
			continue
		}

		if _, err := conn.Write(payload); err != nil {
			b.logger.Warn().Err(err).Uint32("peer_id", p.ID).Msg("broadcaster: failed to send frame")
		}
		conn.Close()
	}
}
