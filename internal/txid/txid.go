// Package txid converts between a Bitcoin transaction id's two byte orders:
// the display form (big-endian hex, what every Bitcoin API and the
// inscription indexer accept as a lookup key) and the stored/wire form
// (little-endian, the order transaction hashes are actually computed and
// serialized in). The Vote Ledger persists proof-reveal txids in wire order
// (a storage-boundary invariant, not a property of the indexer), so any
// write to or read from it crosses this package.
package txid

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ToStored converts a display-format txid (as handed back by the indexer)
// into the little-endian hex the ledger persists.
func ToStored(display string) (string, error) {
	hash, err := chainhash.NewHashFromStr(display)
	if err != nil {
		return "", fmt.Errorf("parse display txid %q: %w", display, err)
	}
	return hex.EncodeToString(hash[:]), nil
}

// ToDisplay converts a stored (wire-order) txid back into the display hex
// the indexer's string-based lookups expect.
func ToDisplay(stored string) (string, error) {
	raw, err := hex.DecodeString(stored)
	if err != nil {
		return "", fmt.Errorf("decode stored txid %q: %w", stored, err)
	}
	hash, err := chainhash.NewHash(raw)
	if err != nil {
		return "", fmt.Errorf("parse stored txid %q: %w", stored, err)
	}
	return hash.String(), nil
}

// RawBytes decodes a stored (wire-order) txid into its raw 32 bytes, the
// form embedded verbatim in a withdrawal transaction's OP_RETURN output.
func RawBytes(stored string) (chainhash.Hash, error) {
	var h chainhash.Hash
	raw, err := hex.DecodeString(stored)
	if err != nil {
		return h, fmt.Errorf("decode stored txid %q: %w", stored, err)
	}
	copy(h[:], raw)
	if len(raw) != chainhash.HashSize {
		return h, fmt.Errorf("stored txid %q: want %d bytes, got %d", stored, chainhash.HashSize, len(raw))
	}
	return h, nil
}
