// Command inspect is a one-shot operator diagnostic that prints the vote
// ledger's current state and, if a coordinator URL is configured, the
// coordinator's current signing session — the teacher's cmd/verify
// shape (a short script, no server, no graceful-shutdown machinery).
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/via-protocol/verifier-node/internal/authsig"
	"github.com/via-protocol/verifier-node/internal/committee"
	"github.com/via-protocol/verifier-node/internal/config"
	"github.com/via-protocol/verifier-node/internal/db"
	"github.com/via-protocol/verifier-node/internal/ledger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	l := ledger.New(database)

	fmt.Println("=== Vote Ledger ===")

	last, found, err := l.GetLastInsertedBlock()
	if err != nil {
		fmt.Fprintf(os.Stderr, "  last inserted block: error: %v\n", err)
	} else if !found {
		fmt.Println("  last inserted block: none")
	} else {
		fmt.Printf("  last inserted block: %d\n", last)
	}

	n, proofTxID, found, err := l.GetFirstNotVerifiedBlock()
	if err != nil {
		fmt.Fprintf(os.Stderr, "  first not-verified block: error: %v\n", err)
	} else if !found {
		fmt.Println("  first not-verified block: none")
	} else {
		fmt.Printf("  first not-verified block: %d (proof %s)\n", n, proofTxID)
	}

	n, proofTxID, found, err = l.GetFirstVerifiedUnprocessedBatch()
	if err != nil {
		fmt.Fprintf(os.Stderr, "  first verified unprocessed batch: error: %v\n", err)
	} else if !found {
		fmt.Println("  first verified unprocessed batch: none")
	} else {
		fmt.Printf("  first verified unprocessed batch: %d (proof %s)\n", n, proofTxID)
	}

	coordinatorURL := cfg.URL
	if cfg.VerifierMode == config.ModeCoordinator {
		coordinatorURL = fmt.Sprintf("http://127.0.0.1:%d", cfg.Port)
	}
	if coordinatorURL == "" {
		return
	}

	fmt.Println("\n=== Coordinator Session ===")
	if err := printSession(cfg, coordinatorURL); err != nil {
		fmt.Fprintf(os.Stderr, "  error: %v\n", err)
	}
}

// printSession issues a single authenticated GET against the coordinator's
// /session/ endpoint and prints the raw JSON response, reusing the same
// signing scheme the MuSig2 follower uses for every request (§4.8).
func printSession(cfg *config.Config, coordinatorURL string) error {
	net := committee.NetworkParams(cfg.Network)
	roster, err := committee.LoadRoster(cfg.VerifiersPubKeysStr, net)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	self, err := committee.LoadSelf(cfg.PrivateKey, roster, net)
	if err != nil {
		return fmt.Errorf("resolve own identity: %w", err)
	}

	headers, err := authsig.BuildHeaders(self.PrivKey, self.Index, time.Now().Unix(), nil)
	if err != nil {
		return fmt.Errorf("build auth headers: %w", err)
	}

	req, err := http.NewRequest(http.MethodGet, coordinatorURL+"/session/", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: config.CoordinatorRequestTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request session: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var pretty map[string]interface{}
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Printf("  %s\n", body)
		return nil
	}
	encoded, err := json.MarshalIndent(pretty, "  ", "  ")
	if err != nil {
		return fmt.Errorf("format response: %w", err)
	}
	fmt.Printf("  %s\n", encoded)
	return nil
}
