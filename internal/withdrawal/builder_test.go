package withdrawal

import (
	"bytes"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/via-protocol/verifier-node/internal/bitcoinrpc"
	"github.com/via-protocol/verifier-node/internal/config"
)

// fakeBitcoinClient mirrors the Rust test suite's MockBitcoinOps fixture:
// a single 1 BTC UTXO on the bridge address and a flat 2 sat/vbyte fee rate.
type fakeBitcoinClient struct {
	utxos   []bitcoinrpc.UTXO
	feeRate uint64
}

func (f *fakeBitcoinClient) FetchUTXOs(string) ([]bitcoinrpc.UTXO, error) { return f.utxos, nil }
func (f *fakeBitcoinClient) GetFeeRate(uint16) (uint64, error)            { return f.feeRate, nil }
func (f *fakeBitcoinClient) BroadcastSignedTransaction(string) (string, error) {
	return "", errors.New("not implemented")
}
func (f *fakeBitcoinClient) CheckTxConfirmation(string, uint32) (bool, error) {
	return false, errors.New("not implemented")
}

func mustAddress(t *testing.T, encoded string) btcutil.Address {
	t.Helper()
	addr, err := btcutil.DecodeAddress(encoded, &chaincfg.RegressionNetParams)
	if err != nil {
		t.Fatalf("DecodeAddress(%q) error = %v", encoded, err)
	}
	return addr
}

func fixtureUTXO(t *testing.T) bitcoinrpc.UTXO {
	t.Helper()
	txid, err := chainhash.NewHashFromStr("4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33")
	if err != nil {
		t.Fatalf("NewHashFromStr() error = %v", err)
	}
	return bitcoinrpc.UTXO{
		Outpoint: wire.OutPoint{Hash: *txid, Index: 0},
		Output:   wire.TxOut{Value: 100_000_000, PkScript: nil}, // 1 BTC
	}
}

const (
	bridgeAddr     = "bcrt1pxqkh0g270lucjafgngmwv7vtgc8mk9j5y4j8fnrxm77yunuh398qfv8tqp"
	withdrawalAddr = "bcrt1pv6dtdf0vrrj6ntas926v8vw9u0j3mga29vmfnxh39zfxya83p89qz9ze3l"
)

func TestCreateUnsignedWithdrawalTx_OpReturnLayout(t *testing.T) {
	bridge := mustAddress(t, bridgeAddr)
	client := &fakeBitcoinClient{utxos: []bitcoinrpc.UTXO{fixtureUTXO(t)}, feeRate: 2}
	builder := NewBuilder(client, bridge)

	proofTxID, err := chainhash.NewHashFromStr("4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33")
	if err != nil {
		t.Fatalf("NewHashFromStr() error = %v", err)
	}

	requests := []Request{{Address: mustAddress(t, withdrawalAddr), Amount: 10_000_000}} // 0.1 BTC

	unsigned, err := builder.CreateUnsignedWithdrawalTx(requests, *proofTxID)
	if err != nil {
		t.Fatalf("CreateUnsignedWithdrawalTx() error = %v", err)
	}
	if len(unsigned.UTXOs) == 0 {
		t.Fatalf("UTXOs empty, want at least one")
	}

	var opReturn *wire.TxOut
	for _, out := range unsigned.Tx.TxOut {
		if txscript.GetScriptClass(out.PkScript) == txscript.NullDataTy {
			opReturn = out
			break
		}
	}
	if opReturn == nil {
		t.Fatalf("no OP_RETURN output found")
	}

	wantPrefix := []byte(config.OpReturnPrefix)
	if !bytes.Contains(opReturn.PkScript, wantPrefix) {
		t.Errorf("OP_RETURN script %x does not contain prefix %q", opReturn.PkScript, wantPrefix)
	}
	if !bytes.Contains(opReturn.PkScript, proofTxID[:]) {
		t.Errorf("OP_RETURN script does not contain proof txid bytes")
	}

	if len(unsigned.Tx.TxOut) < 2 || len(unsigned.Tx.TxOut) > 3 {
		t.Errorf("output count = %d, want 2 (no change) or 3 (with change)", len(unsigned.Tx.TxOut))
	}
	lastNonChangeIdx := len(requests)
	if txscript.GetScriptClass(unsigned.Tx.TxOut[lastNonChangeIdx].PkScript) != txscript.NullDataTy {
		t.Errorf("expected OP_RETURN immediately after withdrawal outputs")
	}
}

// TestCreateUnsignedWithdrawalTx_Deterministic covers testable property
// 4: identical requests produce byte-identical transactions and txids.
func TestCreateUnsignedWithdrawalTx_Deterministic(t *testing.T) {
	bridge := mustAddress(t, bridgeAddr)
	proofTxID, _ := chainhash.NewHashFromStr("4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33")
	requests := []Request{{Address: mustAddress(t, withdrawalAddr), Amount: 10_000_000}}

	client1 := &fakeBitcoinClient{utxos: []bitcoinrpc.UTXO{fixtureUTXO(t)}, feeRate: 2}
	tx1, err := NewBuilder(client1, bridge).CreateUnsignedWithdrawalTx(requests, *proofTxID)
	if err != nil {
		t.Fatalf("CreateUnsignedWithdrawalTx() error = %v", err)
	}

	client2 := &fakeBitcoinClient{utxos: []bitcoinrpc.UTXO{fixtureUTXO(t)}, feeRate: 2}
	tx2, err := NewBuilder(client2, bridge).CreateUnsignedWithdrawalTx(requests, *proofTxID)
	if err != nil {
		t.Fatalf("CreateUnsignedWithdrawalTx() error = %v", err)
	}

	if tx1.TxID != tx2.TxID {
		t.Errorf("TxID() differ across identical builds: %s vs %s", tx1.TxID, tx2.TxID)
	}
}

// TestCreateUnsignedWithdrawalTx_InsufficientFunds covers scenario S4.
func TestCreateUnsignedWithdrawalTx_InsufficientFunds(t *testing.T) {
	bridge := mustAddress(t, bridgeAddr)
	small := bitcoinrpc.UTXO{
		Outpoint: wire.OutPoint{Hash: chainhash.Hash{}, Index: 0},
		Output:   wire.TxOut{Value: 1000},
	}
	client := &fakeBitcoinClient{utxos: []bitcoinrpc.UTXO{small}, feeRate: 2}
	builder := NewBuilder(client, bridge)

	proofTxID, _ := chainhash.NewHashFromStr("4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33")
	requests := []Request{{Address: mustAddress(t, withdrawalAddr), Amount: 10_000_000}}

	_, err := builder.CreateUnsignedWithdrawalTx(requests, *proofTxID)
	if !errors.Is(err, config.ErrInsufficientFunds) {
		t.Fatalf("CreateUnsignedWithdrawalTx() error = %v, want %v", err, config.ErrInsufficientFunds)
	}
}

func TestCreateUnsignedWithdrawalTx_ChangeOutputOmittedWhenZero(t *testing.T) {
	bridge := mustAddress(t, bridgeAddr)
	exact := bitcoinrpc.UTXO{
		Outpoint: wire.OutPoint{Hash: chainhash.Hash{}, Index: 0},
		// amount + fee(1 input, 2 outputs) at feeRate=1: 10+148+34*2=226
		Output: wire.TxOut{Value: 10_000_000 + 226},
	}
	client := &fakeBitcoinClient{utxos: []bitcoinrpc.UTXO{exact}, feeRate: 1}
	builder := NewBuilder(client, bridge)

	proofTxID, _ := chainhash.NewHashFromStr("4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33")
	requests := []Request{{Address: mustAddress(t, withdrawalAddr), Amount: 10_000_000}}

	unsigned, err := builder.CreateUnsignedWithdrawalTx(requests, *proofTxID)
	if err != nil {
		t.Fatalf("CreateUnsignedWithdrawalTx() error = %v", err)
	}
	if unsigned.ChangeAmount != 0 {
		t.Errorf("ChangeAmount = %d, want 0", unsigned.ChangeAmount)
	}
	if len(unsigned.Tx.TxOut) != 2 {
		t.Errorf("output count = %d, want 2 (withdrawal + OP_RETURN, no change)", len(unsigned.Tx.TxOut))
	}
}
