// Package zkverify implements the black-box zk-SNARK verifier predicate
// (§1, §4.3 step 7): verify(vk, proof, public_inputs) -> bool. The decoded
// DA blob payload shape mirrors original_source's ProveBatches/
// L1BatchProofForL1 (via_zk_verifier/src/lib.rs), re-expressed with CBOR
// instead of bincode — github.com/fxamacker/cbor/v2 already rides along in
// the dependency graph as gnark-crypto's serialization format, so this
// promotes an existing indirect dependency to direct use instead of
// hand-rolling a binary codec on the standard library.
package zkverify

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// L1BatchCommitment is the minimal projection of L1BatchWithMetadata this
// network needs: the batch number and its state commitment.
type L1BatchCommitment struct {
	Number     uint64
	Commitment [32]byte
}

// L1BatchProofForL1 is a single batch's Groth16 proof plus the protocol
// version it was produced under.
type L1BatchProofForL1 struct {
	AggregationResultCoords [4][32]byte
	SchedulerProof          []byte
	ProtocolVersion         string
}

// ProveBatches is the decoded proof-reveal blob payload (§4.3 step 5).
type ProveBatches struct {
	PrevL1Batch  L1BatchCommitment
	L1Batches    []L1BatchCommitment
	Proofs       []L1BatchProofForL1
	ShouldVerify bool
}

// DecodeProveBatches decodes a DA blob payload into a ProveBatches value.
func DecodeProveBatches(blob []byte) (ProveBatches, error) {
	var pb ProveBatches
	if err := cbor.Unmarshal(blob, &pb); err != nil {
		return ProveBatches{}, fmt.Errorf("decode proof payload: %w", err)
	}
	return pb, nil
}

// GenerateInputs recomputes the Groth16 public-input vector committing to a
// batch's prev/curr state transition (§4.3 step 7), as raw bytes ready for
// Verifier.Verify. The circuit this network verifies treats the two
// 32-byte commitments as the full public input vector, concatenated in
// prev-then-curr order.
func GenerateInputs(prevCommitment, currCommitment [32]byte) []byte {
	inputs := make([]byte, 0, 64)
	inputs = append(inputs, prevCommitment[:]...)
	inputs = append(inputs, currCommitment[:]...)
	return inputs
}
