// Package bootstrap runs the rendezvous protocol that turns a handful of
// independently-started daemons into one network: every peer connects to
// a designated bootstrap peer, the bootstrap peer collects join requests
// until the expected peer count is reached, and either relays back the
// roster (if it received someone else's genesis first) or mints genesis
// itself and distributes it to everyone else.
package bootstrap

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/go-edu/blockchat/internal/chain"
	"github.com/go-edu/blockchat/internal/chain/block"
	"github.com/go-edu/blockchat/internal/chain/transaction"
	"github.com/go-edu/blockchat/internal/cryptoutil"
	"github.com/go-edu/blockchat/internal/peer"
)

// Config describes one daemon's bootstrap parameters.
type Config struct {
	TotalPeers        uint16
	CentsPerPeer      uint32
	BootstrapPeerAddr string
	BootstrapPort     uint16
	NetworkPort       uint16
	PublicKey         cryptoutil.PublicKey
	Logger            zerolog.Logger
}

// Result is everything the protocol engine needs to start running once
// the network has finished forming.
type Result struct {
	NetworkListener net.Listener
	Peers           *peer.Catalog
	Chain           *chain.Blockchain
	LocalID         uint32
}

type peerInfo struct {
	PublicKey cryptoutil.PublicKey `json:"publ_key"`
	IP        string               `json:"ip"`
	NetPort   uint16               `json:"net_port"`
	BSPort    uint16               `json:"bs_port"`
}

type joinRequest struct {
	RequestID uuid.UUID            `json:"request_id"`
	PublicKey cryptoutil.PublicKey `json:"publ_key"`
	NetPort   uint16               `json:"net_port"`
	BSPort    uint16               `json:"bs_port"`
}

type joinResponse struct {
	PeersInfo []peerInfo  `json:"peers_info"`
	Genesis   block.Block `json:"genesis"`
}

type message struct {
	JoinRequest  *joinRequest  `json:"JoinRequest,omitempty"`
	JoinResponse *joinResponse `json:"JoinResponse,omitempty"`
}

// Network runs the full bootstrap sequence and returns a live network
// listener, the finished peer roster, and the genesis chain.
func Network(cfg Config) (*Result, error) {
	if cfg.TotalPeers < 2 {
		return nil, fmt.Errorf("bootstrap: total peers must be at least 2, got %d", cfg.TotalPeers)
	}
	if cfg.CentsPerPeer == 0 {
		return nil, fmt.Errorf("bootstrap: cents per peer must not be 0")
	}
	if cfg.BootstrapPort == 0 {
		return nil, fmt.Errorf("bootstrap: bootstrap port must not be 0")
	}

	bsListener, bsPort, err := bindListener(cfg.BootstrapPort, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: bind bootstrap listener: %w", err)
	}
	netListener, netPort, err := bindListener(cfg.NetworkPort, cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: bind network listener: %w", err)
	}

	sendJoinRequest(cfg.BootstrapPeerAddr, cfg.PublicKey, netPort, bsPort, cfg.Logger)

	peersInfo, genesis := discoverPeers(bsListener, cfg.TotalPeers, cfg.PublicKey, cfg.Logger)
	if genesis == nil {
		g := initGenesis(peersInfo, cfg.CentsPerPeer)
		genesis = &g
		sendJoinResponses(peersInfo, g, cfg.Logger)
	}

	catalog := peer.NewCatalog()
	var localID uint32
	for i, p := range peersInfo {
		addr := net.TCPAddr{IP: net.ParseIP(p.IP), Port: int(p.NetPort)}
		if err := catalog.Insert(p.PublicKey, addr); err != nil {
			return nil, fmt.Errorf("bootstrap: insert peer: %w", err)
		}
		if p.PublicKey.Equal(cfg.PublicKey) {
			localID = uint32(i)
		}
	}

	return &Result{
		NetworkListener: netListener,
		Peers:           catalog,
		Chain:           chain.New(*genesis),
		LocalID:         localID,
	}, nil
}

func bindListener(port uint16, logger zerolog.Logger) (net.Listener, uint16, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return nil, 0, err
	}
	actual := uint16(ln.Addr().(*net.TCPAddr).Port)
	logger.Debug().Str("addr", ln.Addr().String()).Msg("bootstrap: listener bound")
	return ln, actual, nil
}

// sendJoinRequest retries, once a second, until it manages to connect to
// the bootstrap peer and send a join request; it then stops. Every
// retry carries the same requestID, so the bootstrap authority can
// recognize and discard a duplicate delivery instead of double-counting
// this peer toward its roster.
func sendJoinRequest(bootstrapAddr string, pub cryptoutil.PublicKey, netPort, bsPort uint16, logger zerolog.Logger) {
	requestID := uuid.New()
	req := message{JoinRequest: &joinRequest{RequestID: requestID, PublicKey: pub, NetPort: netPort, BSPort: bsPort}}
	payload, err := json.Marshal(req)
	if err != nil {
		panic("bootstrap: failed to serialize join request: " + err.Error())
	}

	go func() {
		for {
			conn, err := net.Dial("tcp", bootstrapAddr)
			if err != nil {
				logger.Warn().Err(err).Msg("bootstrap: failed to connect to bootstrap peer")
				time.Sleep(time.Second)
				continue
			}

			if _, err := conn.Write(payload); err != nil {
				logger.Warn().Err(err).Msg("bootstrap: failed to send join request")
				conn.Close()
				time.Sleep(time.Second)
				continue
			}

			conn.Close()
			logger.Debug().Str("request_id", requestID.String()).Msg("bootstrap: join request sent")
			return
		}
	}()
}

// discoverPeers accepts join requests on listener until either totalPeers
// have been gathered (in which case it returns them with a nil genesis,
// meaning the caller is the bootstrap authority and must mint genesis
// itself) or a join response arrives from whichever peer became the
// authority first.
func discoverPeers(listener net.Listener, totalPeers uint16, pub cryptoutil.PublicKey, logger zerolog.Logger) ([]peerInfo, *block.Block) {
	var discovered []peerInfo
	addedSelf := false
	seen := make(map[uuid.UUID]bool)

	for {
		conn, err := listener.Accept()
		if err != nil {
			logger.Warn().Err(err).Msg("bootstrap: failed to accept connection")
			continue
		}

		var msg message
		if err := json.NewDecoder(conn).Decode(&msg); err != nil {
			logger.Warn().Err(err).Msg("bootstrap: failed to decode message")
			conn.Close()
			continue
		}
		remoteAddr := conn.RemoteAddr().String()
		conn.Close()

		if msg.JoinResponse != nil {
			g := msg.JoinResponse.Genesis
			return msg.JoinResponse.PeersInfo, &g
		}

		if seen[msg.JoinRequest.RequestID] {
			logger.Debug().Str("request_id", msg.JoinRequest.RequestID.String()).Msg("bootstrap: dropped a duplicate join request")
			continue
		}
		seen[msg.JoinRequest.RequestID] = true

		remoteIP, _, _ := net.SplitHostPort(remoteAddr)
		info := peerInfo{
			PublicKey: msg.JoinRequest.PublicKey,
			IP:        remoteIP,
			NetPort:   msg.JoinRequest.NetPort,
			BSPort:    msg.JoinRequest.BSPort,
		}

		if !addedSelf && info.PublicKey.Equal(pub) {
			discovered = append(discovered, info)
			last := len(discovered) - 1
			discovered[0], discovered[last] = discovered[last], discovered[0]
			addedSelf = true
		} else {
			discovered = append(discovered, info)
		}

		if uint16(len(discovered)) >= totalPeers {
			return discovered, nil
		}
	}
}

func initGenesis(peersInfo []peerInfo, centsPerPeer uint32) block.Block {
	tsxs := make([]transaction.Transaction, len(peersInfo))
	for i, p := range peersInfo {
		tsx, err := transaction.NewGenesis(p.PublicKey, centsPerPeer)
		if err != nil {
			panic("bootstrap: failed to build genesis transaction: " + err.Error())
		}
		tsxs[i] = tsx
	}
	return block.NewGenesis(tsxs)
}

// sendJoinResponses relays the finished roster and genesis block to
// every peer but the bootstrap authority itself (always at index 0).
func sendJoinResponses(peersInfo []peerInfo, genesis block.Block, logger zerolog.Logger) {
	res := message{JoinResponse: &joinResponse{PeersInfo: peersInfo, Genesis: genesis}}
	payload, err := json.Marshal(res)
	if err != nil {
		panic("bootstrap: failed to serialize join response: " + err.Error())
	}

	ok := 0
	for _, p := range peersInfo[1:] {
		addr := net.JoinHostPort(p.IP, fmt.Sprint(p.BSPort))
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			logger.Warn().Err(err).Msg("bootstrap: failed to connect to peer")
			continue
		}

		if _, err := conn.Write(payload); err != nil {
			logger.Warn().Err(err).Msg("bootstrap: failed to send join response")
		} else {
			ok++
		}
		conn.Close()
	}

	logger.Debug().Int("peers", ok).Msg("bootstrap: join responses sent")
}
