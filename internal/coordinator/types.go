package coordinator

// SigningSessionResponse mirrors the coordinator's exposed session state
// over HTTP (spec.md §6, §4.6). The zero value (L1BlockNumber 0) is the
// EMPTY state — no session currently active.
type SigningSessionResponse struct {
	L1BlockNumber             uint64 `json:"l1_block_number"`
	MessageToSign             string `json:"message_to_sign"`
	UnsignedTx                string `json:"unsigned_tx"`
	RequiredSigners           int    `json:"required_signers"`
	ReceivedNonces            int    `json:"received_nonces"`
	ReceivedPartialSignatures int    `json:"received_partial_signatures"`
}

// NoncePair is the POST /session/nonce request body: a verifier's own
// public nonce, base64-encoded (§6).
type NoncePair struct {
	SignerIndex int    `json:"signer_index"`
	Nonce       string `json:"nonce"`
}

// PartialSignaturePair is the POST /session/signature request body, and
// the value type GET /session/signature returns per index (§6).
type PartialSignaturePair struct {
	SignerIndex int    `json:"signer_index"`
	Signature   string `json:"signature"`
}
