// Package ledger implements the Vote Ledger (C1): the persistent per-batch
// attestation tally and the finalization predicate. It is the single
// serialization point the message processor (C2) writes through (§5).
package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/via-protocol/verifier-node/internal/config"
	"github.com/via-protocol/verifier-node/internal/db"
)

// VotableTransaction is a candidate proof reveal for a batch (§3).
type VotableTransaction struct {
	BatchNumber           uint64
	ProofTxID             string
	IsFinalized           bool
	IsVerified            bool
	VerifiedOK            bool
	WithdrawalTxID        string
	WithdrawalsProcessed  bool
}

// Ledger wraps the database with the vote-tally operations of §4.1.
type Ledger struct {
	db *db.DB
}

// New wraps database in a Ledger.
func New(database *db.DB) *Ledger {
	return &Ledger{db: database}
}

// InsertVotableTransaction records a new candidate proof reveal for batch n.
// Invariant 2 (§3): at most one VotableTransaction per batch_number.
func (l *Ledger) InsertVotableTransaction(n uint64, proofTxID string) error {
	_, err := l.db.Conn().Exec(
		`INSERT INTO votable_transactions (batch_number, proof_reveal_txid) VALUES (?, ?)`,
		n, proofTxID,
	)
	if err != nil {
		return fmt.Errorf("%w: batch %d: %v", config.ErrDuplicateVotable, n, err)
	}
	slog.Info("votable transaction inserted", "batchNumber", n, "proofTxID", proofTxID)
	return nil
}

// InsertVote records voterAddr's attestation for batch n. Idempotent per
// (batch_number, voter_address): a later duplicate vote by the same voter
// is silently ignored (§4.1).
func (l *Ledger) InsertVote(n uint64, referenceTxID, voterAddr string, ok bool) error {
	res, err := l.db.Conn().Exec(
		`INSERT OR IGNORE INTO votes (batch_number, reference_txid, voter_address, ok) VALUES (?, ?, ?, ?)`,
		n, referenceTxID, voterAddr, ok,
	)
	if err != nil {
		return fmt.Errorf("insert vote for batch %d, voter %s: %w", n, voterAddr, err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		slog.Debug("duplicate vote ignored", "batchNumber", n, "voterAddr", voterAddr)
	} else {
		slog.Info("vote recorded", "batchNumber", n, "voterAddr", voterAddr, "ok", ok)
	}
	return nil
}

// FinalizeIfNeeded returns true the first time the share of `ok` attestations
// for batch n reaches threshold (the operator is ≥; ties finalize). Sticky:
// once a batch is finalized it is never un-finalized (§4.1, testable
// property 2).
func (l *Ledger) FinalizeIfNeeded(n uint64, referenceTxID string, threshold float64, totalVerifiers int) (bool, error) {
	if totalVerifiers <= 0 {
		return false, fmt.Errorf("finalize batch %d: total verifiers must be positive, got %d", n, totalVerifiers)
	}

	tx, err := l.db.Conn().Begin()
	if err != nil {
		return false, fmt.Errorf("finalize batch %d: begin tx: %w", n, err)
	}
	defer tx.Rollback()

	var alreadyFinalized bool
	if err := tx.QueryRow(
		`SELECT is_finalized FROM votable_transactions WHERE batch_number = ?`, n,
	).Scan(&alreadyFinalized); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("finalize batch %d: lookup: %w", n, err)
	}

	if alreadyFinalized {
		return true, nil
	}

	var okVotes int
	if err := tx.QueryRow(
		`SELECT COUNT(*) FROM votes WHERE batch_number = ? AND ok = 1`, n,
	).Scan(&okVotes); err != nil {
		return false, fmt.Errorf("finalize batch %d: count ok votes: %w", n, err)
	}

	share := float64(okVotes) / float64(totalVerifiers)
	if share < threshold {
		return false, tx.Commit()
	}

	if _, err := tx.Exec(
		`UPDATE votable_transactions SET is_finalized = 1 WHERE batch_number = ?`, n,
	); err != nil {
		return false, fmt.Errorf("finalize batch %d: update: %w", n, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("finalize batch %d: commit: %w", n, err)
	}

	slog.Info("batch finalized",
		"batchNumber", n,
		"referenceTxID", referenceTxID,
		"okVotes", okVotes,
		"totalVerifiers", totalVerifiers,
		"share", share,
		"threshold", threshold,
	)
	return true, nil
}

// GetFirstNotVerifiedBlock returns the oldest finalized-but-unverified batch.
func (l *Ledger) GetFirstNotVerifiedBlock() (n uint64, proofTxID string, found bool, err error) {
	err = l.db.Conn().QueryRow(
		`SELECT batch_number, proof_reveal_txid FROM votable_transactions
		 WHERE is_finalized = 1 AND is_verified = 0
		 ORDER BY batch_number ASC LIMIT 1`,
	).Scan(&n, &proofTxID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, "", false, nil
		}
		return 0, "", false, fmt.Errorf("get first not verified block: %w", err)
	}
	return n, proofTxID, true, nil
}

// VerifyVotableTransaction records the zk-proof verification decision for
// batch n. Errors are never recorded here (§7) — only a true/false decision.
func (l *Ledger) VerifyVotableTransaction(n uint64, proofTxID string, isValid bool) error {
	res, err := l.db.Conn().Exec(
		`UPDATE votable_transactions SET is_verified = 1, verified_ok = ?
		 WHERE batch_number = ? AND proof_reveal_txid = ?`,
		isValid, n, proofTxID,
	)
	if err != nil {
		return fmt.Errorf("verify votable transaction batch %d: %w", n, err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("verify votable transaction batch %d: no matching row for proof %s", n, proofTxID)
	}
	slog.Info("votable transaction verified", "batchNumber", n, "isValid", isValid)
	return nil
}

// GetVoteTransactionWithdrawalTx returns the withdrawal txid recorded
// against batch n, if any.
func (l *Ledger) GetVoteTransactionWithdrawalTx(n uint64) (txid string, found bool, err error) {
	var nullable sql.NullString
	err = l.db.Conn().QueryRow(
		`SELECT withdrawal_txid FROM votable_transactions WHERE batch_number = ?`, n,
	).Scan(&nullable)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get withdrawal tx for batch %d: %w", n, err)
	}
	if !nullable.Valid {
		return "", false, nil
	}
	return nullable.String, true, nil
}

// MarkVoteTransactionAsProcessedWithdrawals records the broadcast withdrawal
// txid against batch n. Idempotent: if already recorded with the same
// txid, no error.
func (l *Ledger) MarkVoteTransactionAsProcessedWithdrawals(txid string, n uint64) error {
	_, err := l.db.Conn().Exec(
		`UPDATE votable_transactions SET withdrawal_txid = ?, withdrawals_processed = 1 WHERE batch_number = ?`,
		txid, n,
	)
	if err != nil {
		return fmt.Errorf("mark batch %d withdrawal processed: %w", n, err)
	}
	slog.Info("withdrawal transaction recorded", "batchNumber", n, "txid", txid)
	return nil
}

// GetFirstVerifiedUnprocessedBatch returns the oldest batch that verified ok
// and has no withdrawal transaction recorded against it yet by
// MarkVoteTransactionAsProcessedWithdrawals (§4: C1 finalizes, C3 verifies,
// C5 opens a withdrawal session on success).
func (l *Ledger) GetFirstVerifiedUnprocessedBatch() (n uint64, proofTxID string, found bool, err error) {
	err = l.db.Conn().QueryRow(
		`SELECT batch_number, proof_reveal_txid FROM votable_transactions
		 WHERE is_verified = 1 AND verified_ok = 1 AND withdrawals_processed = 0
		 ORDER BY batch_number ASC LIMIT 1`,
	).Scan(&n, &proofTxID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, "", false, nil
		}
		return 0, "", false, fmt.Errorf("get first verified unprocessed batch: %w", err)
	}
	return n, proofTxID, true, nil
}

// GetLastInsertedBlock returns the highest batch_number with a votable
// transaction recorded (invariant 1, §3).
func (l *Ledger) GetLastInsertedBlock() (n uint64, found bool, err error) {
	var nullable sql.NullInt64
	err = l.db.Conn().QueryRow(`SELECT MAX(batch_number) FROM votable_transactions`).Scan(&nullable)
	if err != nil {
		return 0, false, fmt.Errorf("get last inserted block: %w", err)
	}
	if !nullable.Valid {
		return 0, false, nil
	}
	return uint64(nullable.Int64), true, nil
}

// HasVoteInscriptionRequest reports whether an outbound vote-inscription
// request has already been made for batch n (supplemented feature, §11.2 of
// SPEC_FULL.md — makes the outbound request idempotent).
func (l *Ledger) HasVoteInscriptionRequest(n uint64) (bool, error) {
	var count int
	err := l.db.Conn().QueryRow(
		`SELECT COUNT(*) FROM vote_inscription_requests WHERE batch_number = ?`, n,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check vote inscription request for batch %d: %w", n, err)
	}
	return count > 0, nil
}

// RecordVoteInscriptionRequest marks batch n as having had its vote
// inscription requested, so the caller does not double-submit.
func (l *Ledger) RecordVoteInscriptionRequest(n uint64) error {
	_, err := l.db.Conn().Exec(
		`INSERT OR IGNORE INTO vote_inscription_requests (batch_number) VALUES (?)`, n,
	)
	if err != nil {
		return fmt.Errorf("record vote inscription request for batch %d: %w", n, err)
	}
	return nil
}
