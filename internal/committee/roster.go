package committee

import (
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// Identity is a single verifier's public standing in the committee: its
// index (used in auth headers and MuSig2 nonce/signature ordering), its
// secp256k1 public key, and the P2WPKH address derived from it.
type Identity struct {
	Index   int
	PubKey  *btcec.PublicKey
	Address string
}

// Roster is the ordered committee of verifiers, keyed by the index each
// verifier occupies in the configured public key list.
type Roster struct {
	members []Identity
	byAddr  map[string]int
}

// LoadRoster parses the hex-encoded compressed public keys configured for
// the committee and derives each member's P2WPKH attestation address.
func LoadRoster(pubKeysHex []string, net *chaincfg.Params) (*Roster, error) {
	if len(pubKeysHex) == 0 {
		return nil, fmt.Errorf("committee roster is empty")
	}

	members := make([]Identity, 0, len(pubKeysHex))
	byAddr := make(map[string]int, len(pubKeysHex))

	for i, hexKey := range pubKeysHex {
		raw, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("roster member %d: decode public key: %w", i, err)
		}

		pubKey, err := btcec.ParsePubKey(raw)
		if err != nil {
			return nil, fmt.Errorf("roster member %d: parse public key: %w", i, err)
		}

		witnessProg := btcutil.Hash160(pubKey.SerializeCompressed())
		addr, err := btcutil.NewAddressWitnessPubKeyHash(witnessProg, net)
		if err != nil {
			return nil, fmt.Errorf("roster member %d: derive address: %w", i, err)
		}

		members = append(members, Identity{
			Index:   i,
			PubKey:  pubKey,
			Address: addr.EncodeAddress(),
		})
		byAddr[addr.EncodeAddress()] = i
	}

	slog.Info("committee roster loaded", "members", len(members))

	return &Roster{members: members, byAddr: byAddr}, nil
}

// Size returns the number of members in the committee.
func (r *Roster) Size() int {
	return len(r.members)
}

// At returns the identity at the given verifier index.
func (r *Roster) At(index int) (Identity, bool) {
	if index < 0 || index >= len(r.members) {
		return Identity{}, false
	}
	return r.members[index], true
}

// IndexOfAddress returns the verifier index whose derived address matches addr.
func (r *Roster) IndexOfAddress(addr string) (int, bool) {
	i, ok := r.byAddr[addr]
	return i, ok
}

// All returns every identity in index order. The returned slice must not be mutated.
func (r *Roster) All() []Identity {
	return r.members
}

// PubKeys returns the raw public keys in index order, as required by MuSig2
// key aggregation.
func (r *Roster) PubKeys() []*btcec.PublicKey {
	keys := make([]*btcec.PublicKey, len(r.members))
	for i, m := range r.members {
		keys[i] = m.PubKey
	}
	return keys
}
