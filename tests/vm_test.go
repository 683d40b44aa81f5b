package tests

import (
	"testing"

	"github.com/wingame/winchain/core"
	"github.com/wingame/winchain/events"
	"github.com/wingame/winchain/internal/testutil"
	"github.com/wingame/winchain/vm"
	"github.com/wingame/winchain/wallet"

	_ "github.com/wingame/winchain/vm/modules/competition"
	_ "github.com/wingame/winchain/vm/modules/economy"
	_ "github.com/wingame/winchain/vm/modules/oracle"
	_ "github.com/wingame/winchain/vm/modules/token"
)

const testChain = "test-chain"

func newVM() (core.State, *vm.Executor) {
	state := testutil.NewStateDB()
	return state, vm.NewExecutor(state, events.NewEmitter())
}

func fundAccount(t *testing.T, state core.State, addr string, amount uint64) {
	t.Helper()
	acc, err := state.GetAccount(addr)
	if err != nil {
		t.Fatal(err)
	}
	acc.Balance = amount
	if err := state.SetAccount(acc); err != nil {
		t.Fatal(err)
	}
}

func testBlock(height int64) *core.Block {
	return core.NewBlock(height, "prev", "proposer", nil)
}

// TestExecuteTransfer runs a signed transfer end to end through the executor.
func TestExecuteTransfer(t *testing.T) {
	state, exec := newVM()
	sender, _ := wallet.Generate()
	fundAccount(t, state, sender.PubKey(), 1000)

	tx, err := sender.Transfer(testChain, "receiver", 300, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if err := exec.ExecuteTx(testBlock(1), tx); err != nil {
		t.Fatalf("ExecuteTx: %v", err)
	}

	from, _ := state.GetAccount(sender.PubKey())
	if from.Balance != 690 {
		t.Errorf("sender balance: got %d want 690", from.Balance)
	}
	if from.Nonce != 1 {
		t.Errorf("sender nonce: got %d want 1", from.Nonce)
	}
	to, _ := state.GetAccount("receiver")
	if to.Balance != 300 {
		t.Errorf("receiver balance: got %d want 300", to.Balance)
	}
}

// TestNonceReplayRejected ensures the same signed tx cannot be applied twice.
func TestNonceReplayRejected(t *testing.T) {
	state, exec := newVM()
	sender, _ := wallet.Generate()
	fundAccount(t, state, sender.PubKey(), 1000)

	tx, _ := sender.Transfer(testChain, "receiver", 100, 0, 0)
	if err := exec.ExecuteTx(testBlock(1), tx); err != nil {
		t.Fatal(err)
	}
	if err := exec.ExecuteTx(testBlock(2), tx); err == nil {
		t.Error("replayed tx should be rejected by the nonce check")
	}
	to, _ := state.GetAccount("receiver")
	if to.Balance != 100 {
		t.Errorf("receiver credited twice: %d", to.Balance)
	}
}

// TestFailedTxLeavesNoTrace checks that a handler failure rolls back
// everything including the fee and nonce.
func TestFailedTxLeavesNoTrace(t *testing.T) {
	state, exec := newVM()
	sender, _ := wallet.Generate()
	fundAccount(t, state, sender.PubKey(), 50)

	// Transfer more than the balance.
	tx, _ := sender.Transfer(testChain, "receiver", 500, 0, 10)
	if err := exec.ExecuteTx(testBlock(1), tx); err == nil {
		t.Fatal("overdraft should fail")
	}

	from, _ := state.GetAccount(sender.PubKey())
	if from.Balance != 50 || from.Nonce != 0 {
		t.Errorf("state changed after failed tx: %+v", from)
	}
}

// TestCompetitionLifecycleThroughExecutor drives create/start/buy via signed
// transactions instead of calling handlers directly.
func TestCompetitionLifecycleThroughExecutor(t *testing.T) {
	state, exec := newVM()
	operator, _ := wallet.Generate()
	buyer, _ := wallet.Generate()
	fundAccount(t, state, operator.PubKey(), 1000)
	fundAccount(t, state, buyer.PubKey(), 1000)

	create, _ := operator.NewTx(testChain, core.TxCompetitionCreate, 0, 10, core.CompetitionCreatePayload{
		Capacity: 10,
		Price:    100,
	})
	if err := exec.ExecuteTx(testBlock(1), create); err != nil {
		t.Fatalf("create: %v", err)
	}

	start, _ := operator.NewTx(testChain, core.TxCompetitionStart, 1, 10, core.CompetitionStartPayload{CompetitionID: 0})
	if err := exec.ExecuteTx(testBlock(2), start); err != nil {
		t.Fatalf("start: %v", err)
	}

	buy, _ := buyer.BuyTicket(testChain, 0, 100, 0, 10)
	if err := exec.ExecuteTx(testBlock(3), buy); err != nil {
		t.Fatalf("buy: %v", err)
	}

	c, err := state.GetCompetition(0)
	if err != nil {
		t.Fatal(err)
	}
	if c.State != core.CompOpen || c.Sold() != 1 || c.Collected != 100 {
		t.Errorf("competition after buy: %+v", c)
	}
	if c.Entries[0] != buyer.PubKey() {
		t.Error("ticket 0 not owned by buyer")
	}

	buyerAcc, _ := state.GetAccount(buyer.PubKey())
	if buyerAcc.Balance != 890 {
		t.Errorf("buyer balance: got %d want 890", buyerAcc.Balance)
	}
}

// TestUnknownTxTypeRejected ensures unregistered tx types fail cleanly.
func TestUnknownTxTypeRejected(t *testing.T) {
	_, exec := newVM()
	sender, _ := wallet.Generate()

	tx, _ := sender.NewTx(testChain, core.TxType("no_such_op"), 0, 0, struct{}{})
	if err := exec.ExecuteTx(testBlock(1), tx); err == nil {
		t.Error("unknown tx type should be rejected")
	}
}
