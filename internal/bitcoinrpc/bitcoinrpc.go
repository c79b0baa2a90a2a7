// Package bitcoinrpc declares the Bitcoin full-node RPC capability this
// system consumes but does not implement (spec.md §1: UTXO fetch, fee
// estimation, broadcast, confirmation polling). Production wiring supplies
// a real bitcoind-backed client; tests substitute a hand-written fake.
package bitcoinrpc

import "github.com/btcsuite/btcd/wire"

// UTXO is a single unspent output owned by the bridge address, in the order
// the client returns it — the order the withdrawal builder's first-fit
// selection (§4.4) iterates over.
type UTXO struct {
	Outpoint wire.OutPoint
	Output   wire.TxOut
}

// Client is the capability set the withdrawal builder (C4) and MuSig2
// follower/coordinator (C7) depend on.
type Client interface {
	// FetchUTXOs returns the UTXOs currently owned by the bridge address.
	FetchUTXOs(bridgeAddress string) ([]UTXO, error)

	// GetFeeRate estimates a sat/vbyte fee rate targeting confirmation
	// within the given number of blocks.
	GetFeeRate(targetBlocks uint16) (uint64, error)

	// BroadcastSignedTransaction submits a fully-signed raw transaction
	// (hex-encoded) to the network and returns its txid.
	BroadcastSignedTransaction(txHex string) (string, error)

	// CheckTxConfirmation reports whether txid has at least minConfirmations
	// confirmations on the active chain.
	CheckTxConfirmation(txid string, minConfirmations uint32) (bool, error)
}
