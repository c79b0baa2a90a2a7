// Package withdrawal implements the Withdrawal Builder (C4): given a set of
// (address, amount) withdrawal requests and the proof-reveal txid that
// authorizes them, it selects bridge UTXOs and constructs the deterministic
// unsigned Bitcoin transaction the MuSig2 coordinator (C6) will drive to a
// signature. Grounded on original_source's WithdrawalBuilder
// (core/lib/via_btc_client/src/withdrawal/mod.rs), re-expressed over
// btcsuite/btcd's wire/txscript/btcutil types in place of the rust-bitcoin
// crate.
package withdrawal

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/via-protocol/verifier-node/internal/bitcoinrpc"
	"github.com/via-protocol/verifier-node/internal/config"
)

// rbfSequence is Sequence::ENABLE_RBF_NO_LOCKTIME from the original
// implementation: RBF-signaling, locktime-disabling.
const rbfSequence uint32 = 0xFFFFFFFD

// Request is a single withdrawal destination and amount, in satoshis.
type Request struct {
	Address btcutil.Address
	Amount  int64
}

// UnsignedTx is an unsigned withdrawal transaction ready for MuSig2 signing,
// plus the bookkeeping the signer needs to compute the taproot sighash for
// each spent input.
type UnsignedTx struct {
	Tx           *wire.MsgTx
	TxID         chainhash.Hash
	UTXOs        []bitcoinrpc.UTXO
	ChangeAmount int64
}

// Builder constructs unsigned withdrawal transactions spending from a single
// Taproot bridge address.
type Builder struct {
	client        bitcoinrpc.Client
	bridgeAddress btcutil.Address
}

// NewBuilder constructs a Builder over client, spending the bridge address's
// UTXOs.
func NewBuilder(client bitcoinrpc.Client, bridgeAddress btcutil.Address) *Builder {
	return &Builder{client: client, bridgeAddress: bridgeAddress}
}

// CreateUnsignedWithdrawalTx implements §4.4: sum the requested amounts,
// select UTXOs, estimate the fee, and assemble a version-2 locktime-0
// transaction with outputs ordered [withdrawals..., OP_RETURN, change?].
func (b *Builder) CreateUnsignedWithdrawalTx(requests []Request, proofTxID chainhash.Hash) (*UnsignedTx, error) {
	totalAmount, err := sumAmounts(requests)
	if err != nil {
		return nil, err
	}

	utxos, err := b.client.FetchUTXOs(b.bridgeAddress.EncodeAddress())
	if err != nil {
		return nil, fmt.Errorf("fetch bridge utxos: %w", err)
	}

	selected, totalInput, err := selectUTXOs(utxos, totalAmount)
	if err != nil {
		return nil, err
	}

	opReturnScript, err := createOpReturnScript(proofTxID)
	if err != nil {
		return nil, fmt.Errorf("build op_return script: %w", err)
	}

	feeRate, err := b.client.GetFeeRate(1)
	if err != nil {
		return nil, fmt.Errorf("get fee rate: %w", err)
	}
	// +1 output for the OP_RETURN marker.
	feeAmount := estimateFee(uint32(len(selected)), uint32(len(requests))+1, feeRate)

	totalNeeded, ok := addOverflow(totalAmount, feeAmount)
	if !ok {
		return nil, fmt.Errorf("%w: amount + fee", config.ErrAmountOverflow)
	}
	if totalInput < totalNeeded {
		return nil, fmt.Errorf("%w: have %d, need %d", config.ErrInsufficientFunds, totalInput, totalNeeded)
	}

	tx := wire.NewMsgTx(2)

	for _, u := range selected {
		outpoint := u.Outpoint
		txIn := wire.NewTxIn(&outpoint, nil, nil)
		txIn.Sequence = rbfSequence
		tx.AddTxIn(txIn)
	}

	for _, r := range requests {
		pkScript, err := txscript.PayToAddrScript(r.Address)
		if err != nil {
			return nil, fmt.Errorf("build script for withdrawal address %s: %w", r.Address.EncodeAddress(), err)
		}
		tx.AddTxOut(wire.NewTxOut(r.Amount, pkScript))
	}

	tx.AddTxOut(wire.NewTxOut(0, opReturnScript))

	changeAmount := totalInput - totalNeeded
	if changeAmount > 0 {
		changeScript, err := txscript.PayToAddrScript(b.bridgeAddress)
		if err != nil {
			return nil, fmt.Errorf("build change script: %w", err)
		}
		tx.AddTxOut(wire.NewTxOut(changeAmount, changeScript))
	}

	return &UnsignedTx{
		Tx:           tx,
		TxID:         tx.TxHash(),
		UTXOs:        selected,
		ChangeAmount: changeAmount,
	}, nil
}

// selectUTXOs performs first-fit greedy selection: accumulate UTXOs in the
// order the client returned them until the running total reaches target.
func selectUTXOs(utxos []bitcoinrpc.UTXO, target int64) (selected []bitcoinrpc.UTXO, total int64, err error) {
	for _, u := range utxos {
		selected = append(selected, u)
		sum, ok := addOverflow(total, u.Output.Value)
		if !ok {
			return nil, 0, fmt.Errorf("%w: during utxo selection", config.ErrAmountOverflow)
		}
		total = sum
		if total >= target {
			break
		}
	}
	if total < target {
		return nil, 0, fmt.Errorf("%w: have %d, need %d", config.ErrInsufficientFunds, total, target)
	}
	return selected, total, nil
}

// estimateFee reproduces the original implementation's fixed per-input/
// per-output vbyte heuristic (§4.4, config.TxOverheadVBytes/TxInputVBytes/
// TxOutputVBytes).
func estimateFee(inputCount, outputCount uint32, feeRateSatPerVByte uint64) int64 {
	totalVBytes := uint64(config.TxOverheadVBytes) +
		uint64(config.TxInputVBytes)*uint64(inputCount) +
		uint64(config.TxOutputVBytes)*uint64(outputCount)
	return int64(feeRateSatPerVByte * totalVBytes)
}

// createOpReturnScript builds the OP_RETURN marker linking a withdrawal
// transaction back to the proof reveal that authorized it: the ASCII prefix
// followed by the proof txid's raw (internal byte order) bytes.
func createOpReturnScript(proofTxID chainhash.Hash) ([]byte, error) {
	data := make([]byte, 0, len(config.OpReturnPrefix)+chainhash.HashSize)
	data = append(data, []byte(config.OpReturnPrefix)...)
	data = append(data, proofTxID[:]...)
	return txscript.NullDataScript(data)
}

func sumAmounts(requests []Request) (int64, error) {
	var total int64
	for _, r := range requests {
		sum, ok := addOverflow(total, r.Amount)
		if !ok {
			return 0, fmt.Errorf("%w: summing withdrawal amounts", config.ErrAmountOverflow)
		}
		total = sum
	}
	return total, nil
}

// addOverflow adds two non-negative satoshi amounts, reporting overflow
// rather than wrapping (the original's checked_add).
func addOverflow(a, b int64) (int64, bool) {
	sum := a + b
	if sum < a || sum < b {
		return 0, false
	}
	return sum, true
}
