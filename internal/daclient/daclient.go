// Package daclient declares the data-availability blob store capability
// this system consumes but does not implement (spec.md §1). Production
// wiring supplies a real DA client; tests substitute a hand-written fake.
package daclient

import "errors"

// ErrBlobNotFound is returned when no blob exists for the given id.
var ErrBlobNotFound = errors.New("da blob not found")

// Blob is an opaque byte string retrievable by content-addressed id.
type Blob struct {
	Data []byte
}

// Client is the DA capability the ZK verifier loop (C3) depends on to fetch
// the proof and batch blobs referenced by an inscription.
type Client interface {
	GetInclusionData(blobID string) (*Blob, error)
}
