// Package peer tracks the fixed roster of network participants: each
// peer's public key and network address, indexed by the sequential id
// it was assigned during bootstrap.
package peer

import (
	"fmt"
	"net"

	"github.com/go-edu/blockchat/internal/cryptoutil"
)

// Peer is one participant in the network.
type Peer struct {
	ID        uint32
	PublicKey cryptoutil.PublicKey
	Addr      net.TCPAddr
}

// Catalog is the full, fixed peer roster. It is built once during
// bootstrap and never mutated afterward, so a *Catalog can be shared
// freely across goroutines without synchronization — unlike the
// reference implementation, which leaks its catalog to get a 'static
// reference for the same purpose, Go callers just share the pointer.
type Catalog struct {
	peers    []Peer
	byKey    map[string]int
}

// NewCatalog creates an empty catalog. Use Insert to populate it during
// bootstrap.
func NewCatalog() *Catalog {
	return &Catalog{byKey: make(map[string]int)}
}

// Insert adds a peer, assigning it the next sequential id. Returns an
// error if the peer's public key is already present.
func (c *Catalog) Insert(pub cryptoutil.PublicKey, addr net.TCPAddr) error {
	fp := pub.Fingerprint()
	if _, exists := c.byKey[fp]; exists {
		return fmt.Errorf("peer: public key already present in catalog")
	}
	id := uint32(len(c.peers))
	c.peers = append(c.peers, Peer{ID: id, PublicKey: pub, Addr: addr})
	c.byKey[fp] = int(id)
	return nil
}

// GetByID returns the peer with the given id.
func (c *Catalog) GetByID(id uint32) (Peer, bool) {
	if int(id) >= len(c.peers) {
		return Peer{}, false
	}
	return c.peers[id], true
}

// GetByPublicKey returns the peer with the given public key.
func (c *Catalog) GetByPublicKey(pub cryptoutil.PublicKey) (Peer, bool) {
	idx, ok := c.byKey[pub.Fingerprint()]
	if !ok {
		return Peer{}, false
	}
	return c.peers[idx], true
}

// Len reports how many peers are in the catalog.
func (c *Catalog) Len() int {
	return len(c.peers)
}

// All returns every peer, ordered by id. Callers must not mutate the
// returned slice.
func (c *Catalog) All() []Peer {
	return c.peers
}
