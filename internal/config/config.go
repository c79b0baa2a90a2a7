package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// VerifierMode selects whether this process drives session creation
// (COORDINATOR) or merely participates in sessions it observes (FOLLOWER).
type VerifierMode string

const (
	ModeCoordinator VerifierMode = "COORDINATOR"
	ModeFollower    VerifierMode = "FOLLOWER"
)

// Config holds all application configuration loaded from environment variables.
// Field names mirror the recognized options table of the specification.
type Config struct {
	DBPath   string `envconfig:"VIA_DB_PATH" default:"./data/via-verifier.sqlite"`
	Port     int    `envconfig:"VIA_PORT" default:"8787"`
	LogLevel string `envconfig:"VIA_LOG_LEVEL" default:"info"`
	LogDir   string `envconfig:"VIA_LOG_DIR" default:"./logs"`
	Network  string `envconfig:"VIA_NETWORK" default:"testnet"`

	PollingInterval time.Duration `envconfig:"VIA_POLLING_INTERVAL" default:"10s"`

	// RequiredSigners is the MuSig2 quorum `m`: the number of partial
	// signatures/nonces the coordinator must gather before advancing.
	RequiredSigners uint8 `envconfig:"VIA_REQUIRED_SIGNERS" default:"1"`

	// VoteThreshold is the `ok`-share in (0,1] a batch's attestations must
	// reach before the vote ledger finalizes it (§4.1).
	VoteThreshold float64 `envconfig:"VIA_VOTE_THRESHOLD" default:"0.66"`

	// VerifiersPubKeysStr is the ordered committee roster, hex-encoded
	// compressed secp256k1 public keys. Index in this slice is the
	// verifier index used throughout auth headers and MuSig2 aggregation.
	VerifiersPubKeysStr []string `envconfig:"VIA_VERIFIERS_PUB_KEYS" required:"true"`

	// PrivateKey is this verifier's own WIF-encoded Bitcoin private key.
	PrivateKey string `envconfig:"VIA_PRIVATE_KEY" required:"true"`

	VerifierMode VerifierMode `envconfig:"VIA_VERIFIER_MODE" default:"FOLLOWER"`

	// BridgeAddressStr is the Taproot-encoded bridge address; it must
	// match the MuSig2 key-aggregation of VerifiersPubKeysStr.
	BridgeAddressStr string `envconfig:"VIA_BRIDGE_ADDRESS" required:"true"`

	// URL is the coordinator's base URL, used by followers.
	URL string `envconfig:"VIA_COORDINATOR_URL"`

	RPCURL      string `envconfig:"VIA_RPC_URL"`
	RPCUser     string `envconfig:"VIA_RPC_USER"`
	RPCPassword string `envconfig:"VIA_RPC_PASSWORD"`
}

// Load reads configuration from a .env file (if present) then from environment
// variables. Environment variables override .env values.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			slog.Warn("failed to load .env file", "error", err)
		} else {
			slog.Info("loaded .env file")
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	if c.Network != "mainnet" && c.Network != "testnet" && c.Network != "regtest" {
		return fmt.Errorf("%w: network must be \"mainnet\", \"testnet\" or \"regtest\", got %q", ErrInvalidConfig, c.Network)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port must be 1-65535, got %d", ErrInvalidConfig, c.Port)
	}
	if len(c.VerifiersPubKeysStr) == 0 {
		return fmt.Errorf("%w", ErrMissingRoster)
	}
	if strings.TrimSpace(c.PrivateKey) == "" {
		return fmt.Errorf("%w", ErrMissingPrivateKey)
	}
	if c.VoteThreshold <= 0 || c.VoteThreshold > 1 {
		return fmt.Errorf("%w: vote threshold must be in (0,1], got %f", ErrInvalidConfig, c.VoteThreshold)
	}
	if c.RequiredSigners == 0 || int(c.RequiredSigners) > len(c.VerifiersPubKeysStr) {
		return fmt.Errorf("%w: required signers %d must be in [1,%d]", ErrInvalidConfig, c.RequiredSigners, len(c.VerifiersPubKeysStr))
	}
	if c.VerifierMode != ModeCoordinator && c.VerifierMode != ModeFollower {
		return fmt.Errorf("%w: verifier_mode must be COORDINATOR or FOLLOWER, got %q", ErrInvalidConfig, c.VerifierMode)
	}
	if c.VerifierMode == ModeFollower && c.URL == "" {
		return fmt.Errorf("%w: url is required in FOLLOWER mode", ErrInvalidConfig)
	}
	return nil
}

// TotalVerifiers returns the size of the committee roster.
func (c *Config) TotalVerifiers() int {
	return len(c.VerifiersPubKeysStr)
}
