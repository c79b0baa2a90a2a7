// Package inscription implements the Message Processor (C2): it classifies
// indexed inscriptions and drives the Vote Ledger (C1).
package inscription

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/via-protocol/verifier-node/internal/indexer"
	"github.com/via-protocol/verifier-node/internal/ledger"
	"github.com/via-protocol/verifier-node/internal/rollupmsg"
	"github.com/via-protocol/verifier-node/internal/txid"
)

// Processor consumes ordered batches of inscription messages and drives the
// ledger. SystemBootstrapping, ProposeSequencer, L1ToL2Message and
// L1BatchDAReference are ignored at this layer (§4.2).
type Processor struct {
	ledger    *ledger.Ledger
	indexer   indexer.Indexer
	bridge    SequencerBridge
	threshold float64
}

// New builds a Processor. threshold is the `ok`-vote share in (0,1] a batch
// must reach to finalize (§4.1).
func New(l *ledger.Ledger, idx indexer.Indexer, bridge SequencerBridge, threshold float64) *Processor {
	if bridge == nil {
		bridge = NoopSequencerBridge{}
	}
	return &Processor{ledger: l, indexer: idx, bridge: bridge, threshold: threshold}
}

// ProcessMessages processes msgs in order. Processing is sequential; a
// ledger constraint violation on one message aborts the remaining messages
// in this call (§7: "surfaced as a structured error; does not crash the
// loop" — the caller is expected to retry the batch on the next tick).
func (p *Processor) ProcessMessages(msgs []rollupmsg.Message) error {
	for _, msg := range msgs {
		var err error
		switch msg.Kind {
		case rollupmsg.KindProofDAReference:
			err = p.processProofDAReference(msg)
		case rollupmsg.KindValidatorAttestation:
			err = p.processValidatorAttestation(msg)
		case rollupmsg.KindSystemBootstrapping,
			rollupmsg.KindProposeSequencer,
			rollupmsg.KindL1ToL2Message,
			rollupmsg.KindL1BatchDAReference:
			// Ignored at this layer: handled by the indexer's own
			// bootstrap logic or by other processors out of scope here.
		default:
			err = fmt.Errorf("unhandled inscription message kind: %v", msg.Kind)
		}
		if err != nil {
			return fmt.Errorf("process message %s (%s): %w", msg.Kind, msg.TxID(), err)
		}
	}
	return nil
}

func (p *Processor) processProofDAReference(msg rollupmsg.Message) error {
	proof := msg.ProofDAReference

	n, ok := p.indexer.BatchOf(msg)
	if !ok {
		slog.Warn("L1BatchNumber not found for ProofDAReference message", "txID", proof.TxID)
		return nil
	}

	last, found, err := p.ledger.GetLastInsertedBlock()
	if err != nil {
		return err
	}
	expected := uint64(1)
	if found {
		expected = last + 1
	}
	if n != expected {
		slog.Warn("skipping out-of-order ProofDAReference message",
			"batchNumber", n, "lastInsertedBlock", last,
		)
		return nil
	}

	storedTxID, err := txid.ToStored(proof.TxID)
	if err != nil {
		return fmt.Errorf("convert proof txid to stored form: %w", err)
	}
	if err := p.ledger.InsertVotableTransaction(n, storedTxID); err != nil {
		return err
	}

	// Bogus-confirmed markers so the downstream sequencer state transition
	// pipeline observes commit + proof-publish for this batch (§4.2, §9
	// "open question"; see SequencerBridge for the hook semantics).
	if err := p.bridge.RecordCommit(n, proof.L1BatchRevealTxID); err != nil {
		slog.Warn("sequencer bridge RecordCommit failed", "batchNumber", n, "error", err)
	}
	if err := p.bridge.RecordProofPublished(n, proof.TxID); err != nil {
		slog.Warn("sequencer bridge RecordProofPublished failed", "batchNumber", n, "error", err)
	}

	return nil
}

func (p *Processor) processValidatorAttestation(msg rollupmsg.Message) error {
	att := msg.ValidatorAttestation

	n, ok := p.indexer.BatchOf(msg)
	if !ok {
		slog.Warn("L1BatchNumber not found for ValidatorAttestation message", "txID", att.TxID)
		return nil
	}

	storedRefTxID, err := txid.ToStored(att.ReferenceTxID)
	if err != nil {
		return fmt.Errorf("convert attestation reference txid to stored form: %w", err)
	}

	// FinalizeIfNeeded keeps reporting true once a batch is finalized, so the
	// flag is probed before this vote with a threshold no share can reach:
	// the Execute marker is emitted only on the first finalization.
	wasFinalized, err := p.ledger.FinalizeIfNeeded(n, storedRefTxID, math.Inf(1), p.indexer.NumberOfVerifiers())
	if err != nil {
		return err
	}

	isOk := att.Attestation == rollupmsg.VoteOk
	if err := p.ledger.InsertVote(n, storedRefTxID, att.VoterAddress, isOk); err != nil {
		return err
	}

	finalizedNow, err := p.ledger.FinalizeIfNeeded(n, storedRefTxID, p.threshold, p.indexer.NumberOfVerifiers())
	if err != nil {
		return err
	}

	if finalizedNow && !wasFinalized {
		slog.Info("finalizing transaction", "batchNumber", n, "txID", att.TxID)
		if err := p.bridge.RecordExecute(n, att.TxID); err != nil {
			slog.Warn("sequencer bridge RecordExecute failed", "batchNumber", n, "error", err)
		}
	}

	return nil
}
