package daclient

import "log/slog"

// NoopClient satisfies Client without a real data-availability backend
// plugged in, mirroring internal/indexer.NoopIndexer's role for the other
// external collaborator spec.md §1 declares out of scope. Every
// GetInclusionData call reports ErrBlobNotFound, which the ZK verifier
// loop (C3) already treats as a transient fetch failure to retry next tick
// (§4.3 step 4, §7) rather than a verification failure.
type NoopClient struct{}

// NewNoopClient builds a NoopClient.
func NewNoopClient() *NoopClient {
	return &NoopClient{}
}

func (NoopClient) GetInclusionData(blobID string) (*Blob, error) {
	slog.Warn("data availability client not configured, no blob fetched", "blobID", blobID)
	return nil, ErrBlobNotFound
}
