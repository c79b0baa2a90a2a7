package bitcoinrpc

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Client with a token-bucket limiter, the same role
// golang.org/x/time/rate plays for the teacher's provider RPC calls
// (scanner/ratelimiter.go) — bounding the rate at which this process hits
// the full node so a busy tick loop never floods it.
type RateLimited struct {
	inner   Client
	limiter *rate.Limiter
}

// NewRateLimited wraps client with a limiter allowing rps requests/second.
func NewRateLimited(client Client, rps int) *RateLimited {
	return &RateLimited{
		inner:   client,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (r *RateLimited) wait() {
	if err := r.limiter.Wait(context.Background()); err != nil {
		slog.Warn("bitcoin rpc rate limiter wait failed", "error", err)
	}
}

func (r *RateLimited) FetchUTXOs(bridgeAddress string) ([]UTXO, error) {
	r.wait()
	return r.inner.FetchUTXOs(bridgeAddress)
}

func (r *RateLimited) GetFeeRate(targetBlocks uint16) (uint64, error) {
	r.wait()
	return r.inner.GetFeeRate(targetBlocks)
}

func (r *RateLimited) BroadcastSignedTransaction(txHex string) (string, error) {
	r.wait()
	return r.inner.BroadcastSignedTransaction(txHex)
}

func (r *RateLimited) CheckTxConfirmation(txid string, minConfirmations uint32) (bool, error) {
	r.wait()
	return r.inner.CheckTxConfirmation(txid, minConfirmations)
}
