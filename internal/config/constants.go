package config

import "time"

// Withdrawal transaction construction (see internal/withdrawal).
const (
	TxOverheadVBytes     = 10  // version + locktime
	TxInputVBytes        = 148 // legacy-equivalent per-input estimate used by the withdrawal fee heuristic
	TxOutputVBytes       = 34  // per-output estimate
	OpReturnPrefix       = "VIA_PROTOCOL:WITHDRAWAL:"
	TaprootSighashSuffix = 0x01 // SIGHASH_ALL appended to the 64-byte MuSig2 signature
)

// Logging.
const (
	LogDir         = "./logs"
	LogFilePattern = "via-verifier-%s-%s.log" // date, level
	LogFilePrefix  = "via-verifier-"
	LogMaxAgeDays  = 30
)

// Database.
const (
	DBPath        = "./data/via-verifier.sqlite"
	DBBusyTimeout = 5000 // milliseconds
)

// Server.
const (
	ServerPort         = 8787
	ServerReadTimeout  = 15 * time.Second
	ServerWriteTimeout = 30 * time.Second
	ShutdownTimeout    = 10 * time.Second
)

// Auth middleware (C8).
const (
	AuthTimestampSkew = 60 * time.Second
)

// Retry helper defaults (C9).
const (
	DefaultRetryMaxAttempts = 3
	DefaultRetryDelay       = 500 * time.Millisecond
)

// Follower / coordinator HTTP client.
const (
	CoordinatorRequestsPerSecond = 5
	CoordinatorRequestTimeout    = 10 * time.Second
)

// Confirmation gate.
const (
	MinWithdrawalConfirmations = 1
)
