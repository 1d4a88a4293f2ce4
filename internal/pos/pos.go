// Package pos implements the deterministic, stake-weighted validator
// election as a pure function of account state and the last block's
// hash.
package pos

import (
	"encoding/binary"

	"github.com/go-edu/blockchat/internal/account"
	"golang.org/x/crypto/chacha20"
)

// Elect picks the id of the next block's validator from accounts
// (which must be ordered ascending by id — account.Catalog.Accounts
// guarantees this), deterministically seeded by lastBlockHash.
//
// The ticket pool is the sum of every account's staked cents; if that
// sum is zero, the network falls back to a uniform lottery over peer
// count instead. A single pseudo-random draw, derived from
// lastBlockHash, selects a winning ticket; walking the accounts in
// ascending id order, the first account whose cumulative stake
// strictly exceeds the draw wins.
//
// The reference implementation seeds a ChaCha12 CSPRNG with the hash;
// Go has no common ChaCha12 binding, so this uses
// golang.org/x/crypto/chacha20 (20 rounds) instead — see DESIGN.md for
// why that substitution doesn't affect any invariant this function is
// responsible for (nodes only need to agree among themselves).
func Elect(accounts []account.Account, lastBlockHash [32]byte) uint32 {
	if len(accounts) == 0 {
		panic("pos: Elect called with no accounts")
	}

	var stakeSum uint64
	for i := range accounts {
		stakeSum += uint64(accounts[i].StakedCents())
	}

	uniform := stakeSum == 0
	tickets := stakeSum
	if uniform {
		tickets = uint64(len(accounts))
	}

	draw := drawTicket(lastBlockHash) % tickets

	if uniform {
		return accounts[draw].ID()
	}

	var cumulative uint64
	for i := range accounts {
		cumulative += uint64(accounts[i].StakedCents())
		if cumulative > draw {
			return accounts[i].ID()
		}
	}

	panic("pos: no winner found — cumulative stake never exceeded the draw")
}

// drawTicket derives a single uint32 from a ChaCha20 keystream seeded
// with lastBlockHash and a zero nonce.
func drawTicket(lastBlockHash [32]byte) uint64 {
	cipher, err := chacha20.NewUnauthenticatedCipher(lastBlockHash[:], make([]byte, chacha20.NonceSize))
	if err != nil {
		panic("pos: failed to construct the election cipher: " + err.Error())
	}
	var keystream [4]byte
	cipher.XORKeyStream(keystream[:], keystream[:])
	return uint64(binary.LittleEndian.Uint32(keystream[:]))
}
