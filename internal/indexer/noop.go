package indexer

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/via-protocol/verifier-node/internal/rollupmsg"
)

// NoopIndexer satisfies Indexer without a real full-node-backed parser
// plugged in, mirroring internal/inscription.NoopSequencerBridge's role for
// its own out-of-scope external collaborator: it lets cmd/watcher and
// cmd/verifier start and run their tick loops against C1/C2/C3 before an
// operator wires in a real indexer (spec.md §1 lists the indexer itself as
// explicitly out of scope). Every ParseTransaction call returns an error
// (logging a warning only once per txid), which the ZK verifier loop treats
// as a transient parse failure and retries next tick without marking the
// batch.
type NoopIndexer struct {
	numVerifiers int

	mu     sync.Mutex
	warned map[string]bool
}

// NewNoopIndexer builds a NoopIndexer reporting numVerifiers as the
// committee size.
func NewNoopIndexer(numVerifiers int) *NoopIndexer {
	return &NoopIndexer{numVerifiers: numVerifiers, warned: make(map[string]bool)}
}

func (n *NoopIndexer) ParseTransaction(txid string) ([]rollupmsg.Message, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.warned[txid] {
		n.warned[txid] = true
		slog.Warn("indexer not configured, no messages will be parsed", "txID", txid)
	}
	return nil, fmt.Errorf("indexer not configured: cannot parse transaction %s", txid)
}

func (n *NoopIndexer) BatchOf(msg rollupmsg.Message) (uint64, bool) {
	return 0, false
}

func (n *NoopIndexer) NumberOfVerifiers() int {
	return n.numVerifiers
}
