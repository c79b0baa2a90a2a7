package zkverify

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// KeyStore loads and caches Groth16 verifying keys by protocol version
// (§4.3 step 7: "load the verification key for the batch's protocol
// version"). Keys are vendored on disk rather than embedded at compile
// time, since they are rotated independently of the binary as new protocol
// versions ship.
type KeyStore struct {
	dir string

	mu    sync.Mutex
	cache map[string][]byte
}

// NewKeyStore opens a key store rooted at dir, where each file is named
// "<protocol_version>.vk".
func NewKeyStore(dir string) *KeyStore {
	return &KeyStore{dir: dir, cache: make(map[string][]byte)}
}

// Load returns the raw verifying-key bytes for protocolVersion, reading
// from disk once and caching thereafter.
func (k *KeyStore) Load(protocolVersion string) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if cached, ok := k.cache[protocolVersion]; ok {
		return cached, nil
	}

	path := filepath.Join(k.dir, protocolVersion+".vk")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load verification key for protocol version %s: %w", protocolVersion, err)
	}

	k.cache[protocolVersion] = data
	return data, nil
}
