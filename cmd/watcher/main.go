// Command watcher runs the Message Processor (C2) against the configured
// committee size, driving the Vote Ledger (C1) from classified inscription
// messages. It mirrors the teacher's cmd/poller shape: config, logging, db
// and migrations, a chi health endpoint, and a graceful-shutdown select
// loop around a periodic tick.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/via-protocol/verifier-node/internal/committee"
	"github.com/via-protocol/verifier-node/internal/config"
	"github.com/via-protocol/verifier-node/internal/db"
	"github.com/via-protocol/verifier-node/internal/indexer"
	"github.com/via-protocol/verifier-node/internal/inscription"
	"github.com/via-protocol/verifier-node/internal/ledger"
	"github.com/via-protocol/verifier-node/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logCloser, err := logging.Setup(cfg.LogLevel, cfg.LogDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	slog.Info("watcher starting",
		"network", cfg.Network,
		"dbPath", cfg.DBPath,
		"pollingInterval", cfg.PollingInterval,
	)

	database, err := db.New(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := database.RunMigrations(); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	roster, err := committee.LoadRoster(cfg.VerifiersPubKeysStr, committee.NetworkParams(cfg.Network))
	if err != nil {
		slog.Error("failed to load committee roster", "error", err)
		os.Exit(1)
	}

	l := ledger.New(database)

	// No production indexer is configured for this deployment; wire the
	// placeholder until an operator supplies one (indexer.Indexer is an
	// external collaborator per spec.md §1).
	idx := indexer.NewNoopIndexer(roster.Size())
	bridge := inscription.NoopSequencerBridge{}
	processor := inscription.New(l, idx, bridge, cfg.VoteThreshold)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := make(chan struct{})

	go runWatchLoop(ctx, stop, processor, cfg.PollingInterval)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Get("/health", healthHandler(cfg))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("watcher HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	sig := <-done
	slog.Info("shutdown signal received", "signal", sig)
	close(stop)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("watcher stopped")
}

// runWatchLoop has nothing upstream of the processor to pull new inscription
// messages from until a real indexer is wired in (see indexer.NoopIndexer);
// it still ticks on the configured interval so the loop's shutdown behavior
// matches every other tick loop in this process.
func runWatchLoop(ctx context.Context, stop <-chan struct{}, processor *inscription.Processor, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("watch loop stopping: context cancelled")
			return
		case <-stop:
			slog.Info("watch loop stopping: stop signal received")
			return
		case <-ticker.C:
			if err := processor.ProcessMessages(nil); err != nil {
				slog.Error("watch loop iteration failed", "error", err)
			}
		}
	}
}

func healthHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","network":%q}`, cfg.Network)
	}
}
