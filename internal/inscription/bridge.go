package inscription

import "log/slog"

// SequencerBridge is the hook spec.md §9 leaves open: the two
// "insert_bogus_confirmed_eth_tx" calls the original Ethereum-anchored
// pipeline used to drive its own state machine. In a Bitcoin-only
// deployment their semantics are implementation-defined (spec.md: "treat
// those two calls as a hook, not a contract"). This interface gives the
// hook three named transition points instead of a raw call, matching
// original_source's three AggregatedActionType variants (Commit,
// PublishProofOnchain, Execute).
type SequencerBridge interface {
	RecordCommit(batchNumber uint64, batchTxID string) error
	RecordProofPublished(batchNumber uint64, proofTxID string) error
	RecordExecute(batchNumber uint64, attestationTxID string) error
}

// NoopSequencerBridge logs the transition and does nothing else — the
// default wiring, since the downstream sequencer pipeline is out of scope
// for this network (spec.md §1).
type NoopSequencerBridge struct{}

func (NoopSequencerBridge) RecordCommit(batchNumber uint64, batchTxID string) error {
	slog.Debug("sequencer bridge: commit (no-op)", "batchNumber", batchNumber, "batchTxID", batchTxID)
	return nil
}

func (NoopSequencerBridge) RecordProofPublished(batchNumber uint64, proofTxID string) error {
	slog.Debug("sequencer bridge: proof published (no-op)", "batchNumber", batchNumber, "proofTxID", proofTxID)
	return nil
}

func (NoopSequencerBridge) RecordExecute(batchNumber uint64, attestationTxID string) error {
	slog.Debug("sequencer bridge: execute (no-op)", "batchNumber", batchNumber, "attestationTxID", attestationTxID)
	return nil
}
