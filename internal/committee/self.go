package committee

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// Self is this process's own committee membership: a private key and the
// index it occupies in the roster, resolved by matching its derived public
// key against the configured member list.
type Self struct {
	Identity
	PrivKey *btcec.PrivateKey
}

// LoadSelf decodes a WIF-encoded private key and locates its position in
// the roster by matching public keys. The verifier MUST be present in the
// roster; there is no such thing as an anonymous committee participant.
func LoadSelf(wif string, roster *Roster, net *chaincfg.Params) (*Self, error) {
	decoded, err := btcutil.DecodeWIF(wif)
	if err != nil {
		return nil, fmt.Errorf("decode private key WIF: %w", err)
	}
	if !decoded.IsForNet(net) {
		return nil, fmt.Errorf("private key WIF is not valid for network %s", net.Name)
	}

	pubKey := decoded.PrivKey.PubKey()
	serialized := pubKey.SerializeCompressed()

	for _, m := range roster.All() {
		if bytes.Equal(m.PubKey.SerializeCompressed(), serialized) {
			return &Self{
				Identity: m,
				PrivKey:  decoded.PrivKey,
			}, nil
		}
	}

	return nil, fmt.Errorf("private key does not match any member of the configured roster")
}
