package session

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/via-protocol/verifier-node/internal/bitcoinrpc"
	"github.com/via-protocol/verifier-node/internal/config"
	"github.com/via-protocol/verifier-node/internal/ledger"
	"github.com/via-protocol/verifier-node/internal/txid"
	"github.com/via-protocol/verifier-node/internal/withdrawal"
)

// WithdrawalRequestsSource resolves the pending (address, amount) payouts
// for a verified batch — a capability this core treats as external,
// matching the indexer/DA/bitcoinrpc pattern (§1, §9 design notes).
type WithdrawalRequestsSource interface {
	WithdrawalRequestsForBatch(n uint64) ([]withdrawal.Request, error)
}

// NoopWithdrawalRequestsSource satisfies WithdrawalRequestsSource without a
// real rollup-state backend plugged in, mirroring
// internal/indexer.NoopIndexer's role for the other external collaborators
// a withdrawal session depends on. Session() treats an empty request set
// the same as "nothing pending" (see WithdrawalHandler.Session), so wiring this in
// simply means no withdrawal session is ever opened until an operator
// supplies the real source.
type NoopWithdrawalRequestsSource struct{}

func (NoopWithdrawalRequestsSource) WithdrawalRequestsForBatch(n uint64) ([]withdrawal.Request, error) {
	return nil, nil
}

// WithdrawalHandler is the sole specified Handler implementation (§4.5):
// SessionType::Withdrawal.
type WithdrawalHandler struct {
	ledger          *ledger.Ledger
	builder         *withdrawal.Builder
	btcClient       bitcoinrpc.Client
	requests        WithdrawalRequestsSource
	requiredSigners int
}

// NewWithdrawalHandler builds the withdrawal session handler.
func NewWithdrawalHandler(l *ledger.Ledger, builder *withdrawal.Builder, btcClient bitcoinrpc.Client, requests WithdrawalRequestsSource, requiredSigners int) *WithdrawalHandler {
	return &WithdrawalHandler{
		ledger:          l,
		builder:         builder,
		btcClient:       btcClient,
		requests:        requests,
		requiredSigners: requiredSigners,
	}
}

// Session implements Handler: the next pending operation is the oldest
// verified-ok batch without a recorded withdrawal, provided it has a
// non-empty withdrawal request set.
func (h *WithdrawalHandler) Session() (Operation, bool) {
	n, proofTxIDHex, found, err := h.ledger.GetFirstVerifiedUnprocessedBatch()
	if err != nil || !found {
		return Operation{}, false
	}

	reqs, err := h.requests.WithdrawalRequestsForBatch(n)
	if err != nil || len(reqs) == 0 {
		return Operation{}, false
	}

	proofTxID, err := txid.RawBytes(proofTxIDHex)
	if err != nil {
		return Operation{}, false
	}

	unsigned, err := h.builder.CreateUnsignedWithdrawalTx(reqs, proofTxID)
	if err != nil {
		return Operation{}, false
	}

	txBytes, err := serializeTx(unsigned.Tx)
	if err != nil {
		return Operation{}, false
	}

	sigHash, err := computeTaprootSigHash(unsigned)
	if err != nil {
		return Operation{}, false
	}

	return Operation{
		Type:            TypeWithdrawal,
		BatchNumber:     n,
		UnsignedTxBytes: txBytes,
		MessageToSign:   sigHash,
		RequiredSigners: h.requiredSigners,
	}, true
}

// IsSessionInProgress reports whether op's batch already has a recorded
// withdrawal txid.
func (h *WithdrawalHandler) IsSessionInProgress(op Operation) (bool, error) {
	_, found, err := h.ledger.GetVoteTransactionWithdrawalTx(op.BatchNumber)
	if err != nil {
		return false, fmt.Errorf("check withdrawal in progress for batch %d: %w", op.BatchNumber, err)
	}
	return found, nil
}

// PreProcessSession enforces invariant 4 of §3: a session opens only once
// the previous batch's broadcast withdrawal has ≥1 confirmation.
func (h *WithdrawalHandler) PreProcessSession(op Operation) (bool, error) {
	if op.BatchNumber == 0 {
		return true, nil
	}

	prevTxID, found, err := h.ledger.GetVoteTransactionWithdrawalTx(op.BatchNumber - 1)
	if err != nil {
		return false, fmt.Errorf("check previous withdrawal for batch %d: %w", op.BatchNumber-1, err)
	}
	if !found {
		return true, nil
	}

	confirmed, err := h.btcClient.CheckTxConfirmation(prevTxID, config.MinWithdrawalConfirmations)
	if err != nil {
		return false, fmt.Errorf("check confirmation of prior withdrawal %s: %w", prevTxID, err)
	}
	if !confirmed {
		return false, fmt.Errorf("%w: batch %d withdrawal %s", config.ErrNotConfirmed, op.BatchNumber-1, prevTxID)
	}
	return true, nil
}

// VerifyMessage confirms op still matches the handler's current view of
// the pending operation (it has not been superseded or already recorded).
func (h *WithdrawalHandler) VerifyMessage(op Operation) bool {
	current, ok := h.Session()
	if !ok {
		return false
	}
	return current.BatchNumber == op.BatchNumber && current.MessageToSign == op.MessageToSign
}

// BeforeBroadcastFinalTransaction guards against broadcasting twice for the
// same batch.
func (h *WithdrawalHandler) BeforeBroadcastFinalTransaction(op Operation) (bool, error) {
	inProgress, err := h.IsSessionInProgress(op)
	if err != nil {
		return false, err
	}
	return !inProgress, nil
}

// AfterBroadcastFinalTransaction records the broadcast txid against op's
// batch, the single mutation that closes out a withdrawal session.
func (h *WithdrawalHandler) AfterBroadcastFinalTransaction(txid string, op Operation) error {
	return h.ledger.MarkVoteTransactionAsProcessedWithdrawals(txid, op.BatchNumber)
}

func serializeTx(tx *wire.MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("serialize unsigned transaction: %w", err)
	}
	return buf.Bytes(), nil
}

// computeTaprootSigHash computes the BIP-341 key-path sighash for input 0
// of the unsigned transaction. Per §9's "Sighash choice" design note, the
// same resulting signature is attached to every input's witness regardless
// of index — a simplification carried over from the original implementation
// that holds because the bridge in practice spends from a small, same-keyed
// UTXO set.
func computeTaprootSigHash(unsigned *withdrawal.UnsignedTx) ([32]byte, error) {
	var digest [32]byte

	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(unsigned.UTXOs))
	for _, u := range unsigned.UTXOs {
		output := u.Output
		prevOuts[u.Outpoint] = &output
	}
	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)

	sigHashes := txscript.NewTxSigHashes(unsigned.Tx, fetcher)
	sigHash, err := txscript.CalcTaprootSignatureHash(sigHashes, txscript.SigHashAll, unsigned.Tx, 0, fetcher)
	if err != nil {
		return digest, fmt.Errorf("compute taproot sighash: %w", err)
	}
	copy(digest[:], sigHash)
	return digest, nil
}
