// Package rollupmsg defines the closed set of inscribed rollup messages
// this network reasons about. It is the shared vocabulary between the
// indexer capability (internal/indexer) and the message processor
// (internal/inscription); neither package owns these types so both can
// depend on them without a cycle.
package rollupmsg

// Kind tags which variant of the inscription union a Message carries.
type Kind int

const (
	KindSystemBootstrapping Kind = iota
	KindProposeSequencer
	KindL1BatchDAReference
	KindProofDAReference
	KindValidatorAttestation
	KindL1ToL2Message
)

func (k Kind) String() string {
	switch k {
	case KindSystemBootstrapping:
		return "SystemBootstrapping"
	case KindProposeSequencer:
		return "ProposeSequencer"
	case KindL1BatchDAReference:
		return "L1BatchDAReference"
	case KindProofDAReference:
		return "ProofDAReference"
	case KindValidatorAttestation:
		return "ValidatorAttestation"
	case KindL1ToL2Message:
		return "L1ToL2Message"
	default:
		return "Unknown"
	}
}

// Vote is a committee member's attestation over a proof reveal.
type Vote int

const (
	VoteOk Vote = iota
	VoteNotOk
)

// SystemBootstrapping marks the genesis inscription of the rollup. Ignored
// by the votable-message processor (§4.2); handled by the indexer's own
// bootstrap logic, out of scope here.
type SystemBootstrapping struct {
	TxID string
}

// ProposeSequencer proposes a new sequencer operator. Ignored here.
type ProposeSequencer struct {
	TxID string
}

// L1BatchDAReference points at the DA blob holding a batch's public data.
// Ignored by the message processor directly; read by the ZK verifier loop
// (§4.3) when it resolves the batch blob for a finalized proof.
type L1BatchDAReference struct {
	TxID        string
	BlobID      string
	L1BatchHash string
}

// ProofDAReference reveals a zk-proof commitment for a batch, referencing
// the batch-data reveal transaction it was derived from.
type ProofDAReference struct {
	TxID              string
	BlobID            string
	L1BatchRevealTxID string
}

// ValidatorAttestation is a committee member's signed vote over a prior
// ProofDAReference.
type ValidatorAttestation struct {
	TxID          string
	ReferenceTxID string
	VoterAddress  string
	Attestation   Vote
}

// L1ToL2Message carries a deposit/message from L1 into the rollup. Ignored
// by this core; handled elsewhere in the full system.
type L1ToL2Message struct {
	TxID string
}

// Message is the closed tagged union over the six inscription kinds. Exactly
// one of the typed fields is populated, matching Kind.
type Message struct {
	Kind Kind

	SystemBootstrapping  *SystemBootstrapping
	ProposeSequencer     *ProposeSequencer
	L1BatchDAReference   *L1BatchDAReference
	ProofDAReference     *ProofDAReference
	ValidatorAttestation *ValidatorAttestation
	L1ToL2Message        *L1ToL2Message
}

// TxID returns the enclosing transaction id of whichever variant is set.
func (m Message) TxID() string {
	switch m.Kind {
	case KindSystemBootstrapping:
		return m.SystemBootstrapping.TxID
	case KindProposeSequencer:
		return m.ProposeSequencer.TxID
	case KindL1BatchDAReference:
		return m.L1BatchDAReference.TxID
	case KindProofDAReference:
		return m.ProofDAReference.TxID
	case KindValidatorAttestation:
		return m.ValidatorAttestation.TxID
	case KindL1ToL2Message:
		return m.L1ToL2Message.TxID
	default:
		return ""
	}
}
