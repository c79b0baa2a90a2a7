// Package follower implements the MuSig2 Follower (C7): the tick loop every
// verifier process runs against the coordinator's HTTP surface (C6),
// gathering nonces and partial signatures and — when running in COORDINATOR
// mode — deciding when to open a new session and broadcast the final
// transaction. Grounded on original_source's
// via_verifier/node/withdrawal_service/src/verifier/mod.rs::loop_iteration,
// re-expressed as a single Tick method a time.Ticker drives (§4.7, §5).
package follower

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/via-protocol/verifier-node/internal/authsig"
	"github.com/via-protocol/verifier-node/internal/committee"
	"github.com/via-protocol/verifier-node/internal/coordinator"
)

// client is the rate-limited, signed HTTP transport a Verifier uses to talk
// to the coordinator's /session endpoints — whether that coordinator is a
// remote process (FOLLOWER mode) or this same process over loopback
// (COORDINATOR mode, §4.7 "the coordinator always talks to itself over
// HTTP"). Grounded on internal/bitcoinrpc.RateLimited for the limiter
// pattern and on original_source's create_request_headers for signing.
type client struct {
	http    *http.Client
	baseURL string
	self    *committee.Self
	limiter *rate.Limiter
}

func newClient(baseURL string, self *committee.Self, rps int, timeout time.Duration) *client {
	return &client{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
		self:    self,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// do signs bodyBytes (or the bodyless timestamp payload when body is nil)
// and issues the request, decoding a JSON response into out when non-nil.
func (c *client) do(ctx context.Context, method, path string, body interface{}, out interface{}) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limiter wait: %w", err)
	}

	var bodyBytes []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request body: %w", err)
		}
		bodyBytes = data
	}

	headers, err := authsig.BuildHeaders(c.self.PrivKey, c.self.Index, time.Now().Unix(), bodyBytes)
	if err != nil {
		return 0, fmt.Errorf("build auth headers: %w", err)
	}

	var reqBody io.Reader
	if bodyBytes != nil {
		reqBody = bytes.NewReader(bodyBytes)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return resp.StatusCode, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response from %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}

func (c *client) getSession(ctx context.Context) (coordinator.SigningSessionResponse, error) {
	var resp coordinator.SigningSessionResponse
	_, err := c.do(ctx, http.MethodGet, "/session/", nil, &resp)
	return resp, err
}

// createNewSession returns ok=false (rather than an error) when the
// coordinator responds with any non-success status — rejected because a
// session is already in progress, or because the prior one isn't
// confirmed yet. The caller reinitializes its signer in that case rather
// than treating it as a tick failure (§4.7 step 1); only a transport-level
// failure (status 0) is a real error.
func (c *client) createNewSession(ctx context.Context) (ok bool, err error) {
	status, err := c.do(ctx, http.MethodPost, "/session/new", nil, nil)
	if err != nil {
		if status == 0 {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (c *client) getSessionNonces(ctx context.Context) (map[int]string, error) {
	var resp map[int]string
	_, err := c.do(ctx, http.MethodGet, "/session/nonce", nil, &resp)
	return resp, err
}

// submitNonce reports ok=false on any non-success status without treating
// it as an error — the next tick simply retries (§4.7 step 3).
func (c *client) submitNonce(ctx context.Context, signerIndex int, nonce string) (ok bool, err error) {
	status, err := c.do(ctx, http.MethodPost, "/session/nonce", coordinator.NoncePair{
		SignerIndex: signerIndex,
		Nonce:       nonce,
	}, nil)
	if err != nil {
		if status == 0 {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (c *client) getSessionSignatures(ctx context.Context) (map[int]coordinator.PartialSignaturePair, error) {
	var resp map[int]coordinator.PartialSignaturePair
	_, err := c.do(ctx, http.MethodGet, "/session/signature", nil, &resp)
	return resp, err
}

// submitPartialSignature reports ok=false on any non-success status
// without treating it as an error, mirroring submitNonce.
func (c *client) submitPartialSignature(ctx context.Context, signerIndex int, sig string) (ok bool, err error) {
	status, err := c.do(ctx, http.MethodPost, "/session/signature", coordinator.PartialSignaturePair{
		SignerIndex: signerIndex,
		Signature:   sig,
	}, nil)
	if err != nil {
		if status == 0 {
			return false, err
		}
		return false, nil
	}
	return true, nil
}
