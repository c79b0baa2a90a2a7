// Command verifier runs the ZK Verifier Loop (C3) and the MuSig2
// coordinator/follower protocol (C5/C6/C7), role-switched by
// VIA_VERIFIER_MODE. It mirrors the teacher's cmd/server shape: config,
// logging, db and migrations, a chi router, and a graceful-shutdown select
// loop — with the COORDINATOR role additionally mounting the session REST
// surface (§4.6).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/via-protocol/verifier-node/internal/bitcoinrpc"
	"github.com/via-protocol/verifier-node/internal/committee"
	"github.com/via-protocol/verifier-node/internal/config"
	"github.com/via-protocol/verifier-node/internal/coordinator"
	"github.com/via-protocol/verifier-node/internal/daclient"
	"github.com/via-protocol/verifier-node/internal/db"
	"github.com/via-protocol/verifier-node/internal/follower"
	"github.com/via-protocol/verifier-node/internal/indexer"
	"github.com/via-protocol/verifier-node/internal/ledger"
	"github.com/via-protocol/verifier-node/internal/logging"
	"github.com/via-protocol/verifier-node/internal/musig"
	"github.com/via-protocol/verifier-node/internal/session"
	"github.com/via-protocol/verifier-node/internal/withdrawal"
	"github.com/via-protocol/verifier-node/internal/zkloop"
	"github.com/via-protocol/verifier-node/internal/zkverify"
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

	slog.Info("verifier starting",
		"mode", cfg.VerifierMode,
		"network", cfg.Network,
		"dbPath", cfg.DBPath,
		"requiredSigners", cfg.RequiredSigners,
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

	net := committee.NetworkParams(cfg.Network)
	roster, err := committee.LoadRoster(cfg.VerifiersPubKeysStr, net)
	if err != nil {
		slog.Error("failed to load committee roster", "error", err)
		os.Exit(1)
	}

	self, err := committee.LoadSelf(cfg.PrivateKey, roster, net)
	if err != nil {
		slog.Error("failed to resolve own committee identity", "error", err)
		os.Exit(1)
	}

	bridgeAddress, err := btcutil.DecodeAddress(cfg.BridgeAddressStr, net)
	if err != nil {
		slog.Error("failed to decode bridge address", "error", err)
		os.Exit(1)
	}

	rawBTC := bitcoinrpc.NewNodeClient(cfg.RPCURL, cfg.RPCUser, cfg.RPCPassword)
	btcClient := bitcoinrpc.NewRateLimited(rawBTC, config.CoordinatorRequestsPerSecond)

	l := ledger.New(database)
	builder := withdrawal.NewBuilder(btcClient, bridgeAddress)
	handler := session.NewWithdrawalHandler(l, builder, btcClient, session.NoopWithdrawalRequestsSource{}, int(cfg.RequiredSigners))
	manager := session.NewManager(map[session.Type]session.Handler{session.TypeWithdrawal: handler})

	signer, err := musig.NewSigner(self.PrivKey, self.Index, roster.PubKeys())
	if err != nil {
		slog.Error("failed to build musig2 signer", "error", err)
		os.Exit(1)
	}

	// No production indexer/DA backend is configured for this deployment;
	// wire the placeholders until an operator supplies real ones
	// (indexer.Indexer and daclient.Client are external collaborators per
	// spec.md §1).
	idx := indexer.NewNoopIndexer(roster.Size())
	da := daclient.NewNoopClient()
	keys := zkverify.NewKeyStore(verificationKeyDir)
	verifier := zkverify.NewGroth16Verifier()
	zkLoop := zkloop.New(l, idx, da, verifier, keys, cfg.PollingInterval)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Get("/health", healthHandler(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := make(chan struct{})

	go zkLoop.Run(ctx, stop)

	var coordinatorURL string
	var localCoordinator *coordinator.Coordinator
	if cfg.VerifierMode == config.ModeCoordinator {
		localCoordinator = coordinator.New(manager)
		r.Mount("/", coordinator.NewRouter(localCoordinator, roster, config.AuthTimestampSkew))
		coordinatorURL = fmt.Sprintf("http://127.0.0.1:%d", cfg.Port)
	} else {
		coordinatorURL = cfg.URL
	}

	verifierLoop := follower.New(self, cfg.VerifierMode, signer, coordinatorURL, btcClient, localCoordinator, manager, cfg.PollingInterval)
	go verifierLoop.Run(ctx, stop)

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
		slog.Info("verifier HTTP server listening", "addr", addr, "mode", cfg.VerifierMode)
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

	slog.Info("verifier stopped")
}

// verificationKeyDir holds one <protocol_version>.vk file per zk-SNARK
// protocol version the committee has agreed to verify against (§4.3 step 7).
const verificationKeyDir = "./keys"

func healthHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","mode":%q,"network":%q}`, cfg.VerifierMode, cfg.Network)
	}
}
