package config

import "errors"

// Sentinel errors for internal use.
var (
	ErrInvalidConfig        = errors.New("invalid config")
	ErrMissingPrivateKey    = errors.New("missing verifier private key")
	ErrMissingRoster        = errors.New("missing verifier roster")
	ErrSessionInProgress    = errors.New("signing session already in progress")
	ErrSessionEmpty         = errors.New("no signing session in progress")
	ErrBatchGap             = errors.New("batch number is not contiguous")
	ErrDuplicateVotable     = errors.New("votable transaction already exists for batch")
	ErrInsufficientFunds    = errors.New("insufficient funds for withdrawal")
	ErrAmountOverflow       = errors.New("withdrawal amount overflow")
	ErrInvalidSignature     = errors.New("request signature invalid")
	ErrStaleTimestamp       = errors.New("request timestamp outside allowed skew")
	ErrUnknownVerifierIndex = errors.New("unknown verifier index")
	ErrNotConfirmed         = errors.New("previous withdrawal transaction not yet confirmed")
	ErrSignerMisuse         = errors.New("signer protocol misuse")
	ErrProofMessageCount    = errors.New("unexpected inscription message count")
)
