package tests

import (
	"encoding/json"
	"testing"

	"github.com/wingame/winchain/core"
	"github.com/wingame/winchain/events"
	"github.com/wingame/winchain/indexer"
	"github.com/wingame/winchain/internal/testutil"
	"github.com/wingame/winchain/rpc"
	"github.com/wingame/winchain/storage"
	"github.com/wingame/winchain/wallet"
)

func newTestRPCHandler(t *testing.T) (*rpc.Handler, core.State, *core.Mempool) {
	t.Helper()
	state := storage.NewStateDB(testutil.NewMemDB())
	bc := core.NewBlockchain(testutil.NewMemBlockStore())
	if err := bc.Init(); err != nil {
		t.Fatal(err)
	}
	mp := core.NewMempool()
	idx := indexer.New(testutil.NewMemDB(), events.NewEmitter())
	return rpc.NewHandler(bc, mp, state, idx, testChain), state, mp
}

// dispatch runs a request through the handler and JSON round-trips the
// response, so Result values have wire types.
func dispatch(t *testing.T, h *rpc.Handler, method string, params any) rpc.Response {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		var err error
		raw, err = json.Marshal(params)
		if err != nil {
			t.Fatal(err)
		}
	}
	resp := h.Dispatch(rpc.Request{JSONRPC: "2.0", ID: 1, Method: method, Params: raw})
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	var out rpc.Response
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestGetBlockHeightFreshChain(t *testing.T) {
	h, _, _ := newTestRPCHandler(t)
	resp := dispatch(t, h, "getBlockHeight", nil)
	if resp.Error != nil {
		t.Fatalf("error: %+v", resp.Error)
	}
	if height, _ := resp.Result.(float64); height != 0 {
		t.Errorf("height: got %v want 0", resp.Result)
	}
}

func TestGetBalanceUnknownAccount(t *testing.T) {
	h, _, _ := newTestRPCHandler(t)
	resp := dispatch(t, h, "getBalance", map[string]string{"address": "nobody"})
	if resp.Error != nil {
		t.Fatalf("error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("result type: %T", resp.Result)
	}
	if bal, _ := result["balance"].(float64); bal != 0 {
		t.Errorf("balance: got %v want 0", result["balance"])
	}
}

func TestMethodNotFound(t *testing.T) {
	h, _, _ := newTestRPCHandler(t)
	resp := dispatch(t, h, "noSuchMethod", nil)
	if resp.Error == nil {
		t.Fatal("expected error")
	}
	if resp.Error.Code != rpc.CodeMethodNotFound {
		t.Errorf("code: got %d want %d", resp.Error.Code, rpc.CodeMethodNotFound)
	}
}

func TestGetCompetitionNotFound(t *testing.T) {
	h, _, _ := newTestRPCHandler(t)
	resp := dispatch(t, h, "getCompetition", map[string]uint64{"competition_id": 42})
	if resp.Error == nil {
		t.Error("missing competition should return an error")
	}
}

func TestSendTxAddsToMempool(t *testing.T) {
	h, _, mp := newTestRPCHandler(t)
	w, _ := wallet.Generate()
	tx, err := w.Transfer(testChain, "receiver", 10, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	resp := dispatch(t, h, "sendTx", tx)
	if resp.Error != nil {
		t.Fatalf("sendTx: %+v", resp.Error)
	}
	result, _ := resp.Result.(map[string]any)
	if id, _ := result["tx_id"].(string); id != tx.ID {
		t.Errorf("tx_id: got %v want %s", result["tx_id"], tx.ID)
	}
	if mp.Size() != 1 {
		t.Errorf("mempool size: got %d want 1", mp.Size())
	}
}

func TestSendTxRejectsWrongChain(t *testing.T) {
	h, _, mp := newTestRPCHandler(t)
	w, _ := wallet.Generate()
	tx, _ := w.Transfer("other-chain", "receiver", 10, 0, 0)

	resp := dispatch(t, h, "sendTx", tx)
	if resp.Error == nil {
		t.Fatal("tx for another chain should be rejected")
	}
	if mp.Size() != 0 {
		t.Error("rejected tx should not enter the mempool")
	}
}

func TestGetMempoolSize(t *testing.T) {
	h, _, mp := newTestRPCHandler(t)
	resp := dispatch(t, h, "getMempoolSize", nil)
	if resp.Error != nil {
		t.Fatal(resp.Error)
	}
	if size, _ := resp.Result.(float64); size != 0 {
		t.Errorf("size: got %v want 0", resp.Result)
	}
	w, _ := wallet.Generate()
	tx, _ := w.Transfer(testChain, "x", 1, 0, 0)
	if err := mp.Add(tx); err != nil {
		t.Fatal(err)
	}
	resp = dispatch(t, h, "getMempoolSize", nil)
	if size, _ := resp.Result.(float64); size != 1 {
		t.Errorf("size: got %v want 1", resp.Result)
	}
}
