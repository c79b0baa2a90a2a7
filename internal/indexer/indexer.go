// Package indexer declares the Bitcoin inscription indexer capability this
// system consumes but does not implement (spec.md §1: "The Bitcoin
// inscription indexer that parses raw transactions into typed messages").
// Production wiring supplies a real indexer backed by a full node; tests
// substitute a hand-written fake.
package indexer

import "github.com/via-protocol/verifier-node/internal/rollupmsg"

// Indexer is the capability set the message processor (C2) and ZK verifier
// loop (C3) depend on to resolve inscriptions into typed rollup messages
// and batch numbers.
type Indexer interface {
	// ParseTransaction decodes the inscription(s) carried by the Bitcoin
	// transaction with the given display (big-endian) txid.
	ParseTransaction(txid string) ([]rollupmsg.Message, error)

	// BatchOf resolves the L1 batch number a message refers to, if any.
	// SystemBootstrapping/ProposeSequencer/L1ToL2Message messages have no
	// associated batch number and report ok=false.
	BatchOf(msg rollupmsg.Message) (n uint64, ok bool)

	// NumberOfVerifiers reports the size of the committee the indexer was
	// bootstrapped with, used as the finalization denominator (§4.1).
	NumberOfVerifiers() int
}
