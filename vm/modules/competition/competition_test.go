package competition

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/wingame/winchain/core"
	"github.com/wingame/winchain/internal/testutil"
	"github.com/wingame/winchain/vm"
)

const (
	operator = "op-pubkey"
	alice    = "alice-pubkey"
	bob      = "bob-pubkey"
)

// ctxAt builds a handler context for a transaction from sender executing in
// a block stamped at the given time.
func ctxAt(state core.State, sender string, blockTime int64) *vm.Context {
	block := core.NewBlock(1, "0000", operator, nil)
	block.Header.Timestamp = blockTime
	return &vm.Context{
		State: state,
		Block: block,
		Tx:    &core.Transaction{ID: "tx-" + sender, From: sender},
	}
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func fund(t *testing.T, state core.State, addr string, amount uint64) {
	t.Helper()
	if err := state.SetAccount(&core.Account{Address: addr, Balance: amount}); err != nil {
		t.Fatal(err)
	}
}

func balance(t *testing.T, state core.State, addr string) uint64 {
	t.Helper()
	acc, err := state.GetAccount(addr)
	if err != nil {
		t.Fatal(err)
	}
	return acc.Balance
}

// createCompetition runs handleCreate and returns the new record.
func createCompetition(t *testing.T, state core.State, p core.CompetitionCreatePayload) *core.Competition {
	t.Helper()
	if err := handleCreate(ctxAt(state, operator, 1), mustJSON(t, p)); err != nil {
		t.Fatalf("create: %v", err)
	}
	// IDs are sequential from zero; the newest is the last that resolves.
	var last *core.Competition
	for id := uint64(0); ; id++ {
		c, err := state.GetCompetition(id)
		if err != nil {
			break
		}
		last = c
	}
	if last == nil {
		t.Fatal("competition not found after create")
	}
	return last
}

func TestCreateDefaults(t *testing.T) {
	state := testutil.NewStateDB()
	c := createCompetition(t, state, core.CompetitionCreatePayload{Capacity: 10, Price: 5})

	if c.ID != 0 {
		t.Errorf("first competition id: got %d want 0", c.ID)
	}
	if c.Operator != operator {
		t.Errorf("operator: got %s want %s", c.Operator, operator)
	}
	if c.State != core.CompCreated {
		t.Errorf("state: got %s want %s", c.State, core.CompCreated)
	}
	if c.Curve != core.CurveLinear {
		t.Errorf("curve: got %s want linear default", c.Curve)
	}
	if c.RevealInterval != int64(time.Hour) {
		t.Errorf("reveal interval: got %d want default %d", c.RevealInterval, int64(time.Hour))
	}
	if c.Asset != core.NativeAsset {
		t.Errorf("asset: got %q want native", c.Asset)
	}
}

func TestCreateSequentialIDs(t *testing.T) {
	state := testutil.NewStateDB()
	for want := uint64(0); want < 3; want++ {
		if err := handleCreate(ctxAt(state, operator, 1), mustJSON(t, core.CompetitionCreatePayload{Capacity: 5, Price: 1})); err != nil {
			t.Fatalf("create #%d: %v", want, err)
		}
		if _, err := state.GetCompetition(want); err != nil {
			t.Errorf("competition %d missing after create", want)
		}
	}
}

func TestCreateValidation(t *testing.T) {
	state := testutil.NewStateDB()
	cases := []struct {
		name string
		p    core.CompetitionCreatePayload
	}{
		{"zero capacity", core.CompetitionCreatePayload{Capacity: 0, Price: 1}},
		{"zero price", core.CompetitionCreatePayload{Capacity: 1, Price: 0}},
		{"capacity over max", core.CompetitionCreatePayload{Capacity: MaxCapacity + 1, Price: 1}},
		{"unknown curve", core.CompetitionCreatePayload{Capacity: 1, Price: 1, Curve: "cubic"}},
		{"unknown token", core.CompetitionCreatePayload{Capacity: 1, Price: 1, Asset: "no-such-token"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := handleCreate(ctxAt(state, operator, 1), mustJSON(t, tc.p)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestUpdateOnlyBeforeStart(t *testing.T) {
	state := testutil.NewStateDB()
	c := createCompetition(t, state, core.CompetitionCreatePayload{Capacity: 10, Price: 5})

	upd := core.CompetitionUpdatePayload{CompetitionID: c.ID, Capacity: 20, Price: 7, Curve: "quadratic"}
	if err := handleUpdate(ctxAt(state, operator, 2), mustJSON(t, upd)); err != nil {
		t.Fatalf("update before start: %v", err)
	}
	c, _ = state.GetCompetition(c.ID)
	if c.Capacity != 20 || c.Price != 7 || c.Curve != core.CurveQuadratic {
		t.Errorf("terms not applied: %+v", c)
	}

	// Non-operator update refused.
	if err := handleUpdate(ctxAt(state, alice, 2), mustJSON(t, upd)); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("non-operator update: got %v want ErrUnauthorized", err)
	}

	// Terms freeze once selling starts.
	if err := handleStart(ctxAt(state, operator, 3), mustJSON(t, core.CompetitionStartPayload{CompetitionID: c.ID})); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := handleUpdate(ctxAt(state, operator, 4), mustJSON(t, upd)); !errors.Is(err, ErrInvalidState) {
		t.Errorf("update after start: got %v want ErrInvalidState", err)
	}
}

func TestStartTransitions(t *testing.T) {
	state := testutil.NewStateDB()
	c := createCompetition(t, state, core.CompetitionCreatePayload{Capacity: 2, Price: 5})

	start := mustJSON(t, core.CompetitionStartPayload{CompetitionID: c.ID})
	if err := handleStart(ctxAt(state, alice, 2), start); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("non-operator start: got %v want ErrUnauthorized", err)
	}
	if err := handleStart(ctxAt(state, operator, 2), start); err != nil {
		t.Fatalf("start: %v", err)
	}
	c, _ = state.GetCompetition(c.ID)
	if c.State != core.CompOpen {
		t.Fatalf("state after start: got %s want open", c.State)
	}
	// Starting twice is refused.
	if err := handleStart(ctxAt(state, operator, 3), start); !errors.Is(err, ErrInvalidState) {
		t.Errorf("double start: got %v want ErrInvalidState", err)
	}
}

func TestBuyTicket(t *testing.T) {
	state := testutil.NewStateDB()
	c := createCompetition(t, state, core.CompetitionCreatePayload{Capacity: 2, Price: 10})
	fund(t, state, alice, 100)
	fund(t, state, bob, 100)

	buy := mustJSON(t, core.BuyTicketPayload{CompetitionID: c.ID, Payment: 10})

	// Tickets are sold only while open.
	if err := handleBuy(ctxAt(state, alice, 2), buy); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("buy before start: got %v want ErrInvalidState", err)
	}
	if err := handleStart(ctxAt(state, operator, 2), mustJSON(t, core.CompetitionStartPayload{CompetitionID: c.ID})); err != nil {
		t.Fatal(err)
	}

	// Payment must match the price exactly, in both directions.
	under := mustJSON(t, core.BuyTicketPayload{CompetitionID: c.ID, Payment: 9})
	if err := handleBuy(ctxAt(state, alice, 3), under); !errors.Is(err, ErrWrongPayment) {
		t.Errorf("underpay: got %v want ErrWrongPayment", err)
	}
	over := mustJSON(t, core.BuyTicketPayload{CompetitionID: c.ID, Payment: 11})
	if err := handleBuy(ctxAt(state, alice, 3), over); !errors.Is(err, ErrWrongPayment) {
		t.Errorf("overpay: got %v want ErrWrongPayment", err)
	}

	if err := handleBuy(ctxAt(state, alice, 3), buy); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if err := handleBuy(ctxAt(state, bob, 3), buy); err != nil {
		t.Fatalf("buy: %v", err)
	}

	c, _ = state.GetCompetition(c.ID)
	if c.Sold() != 2 || c.Remaining() != 0 {
		t.Fatalf("sold=%d remaining=%d, want 2/0", c.Sold(), c.Remaining())
	}
	if c.Entries[0] != alice || c.Entries[1] != bob {
		t.Errorf("entries out of order: %v", c.Entries)
	}
	if c.Collected != 20 {
		t.Errorf("collected: got %d want 20", c.Collected)
	}
	if got := balance(t, state, alice); got != 90 {
		t.Errorf("alice balance: got %d want 90", got)
	}
	if got := balance(t, state, PoolAddress(c.ID)); got != 20 {
		t.Errorf("pool balance: got %d want 20", got)
	}

	// Sold out.
	if err := handleBuy(ctxAt(state, alice, 4), buy); !errors.Is(err, ErrSoldOut) {
		t.Errorf("buy when sold out: got %v want ErrSoldOut", err)
	}
}

func TestBuyInsufficientBalance(t *testing.T) {
	state := testutil.NewStateDB()
	c := createCompetition(t, state, core.CompetitionCreatePayload{Capacity: 2, Price: 50})
	fund(t, state, alice, 10)
	if err := handleStart(ctxAt(state, operator, 2), mustJSON(t, core.CompetitionStartPayload{CompetitionID: c.ID})); err != nil {
		t.Fatal(err)
	}
	buy := mustJSON(t, core.BuyTicketPayload{CompetitionID: c.ID, Payment: 50})
	if err := handleBuy(ctxAt(state, alice, 3), buy); err == nil {
		t.Fatal("expected insufficient balance error")
	}
	// Failed buy leaves no trace.
	c, _ = state.GetCompetition(c.ID)
	if c.Sold() != 0 || c.Collected != 0 {
		t.Errorf("state mutated by failed buy: sold=%d collected=%d", c.Sold(), c.Collected)
	}
}

func TestBuyTokenSettlement(t *testing.T) {
	state := testutil.NewStateDB()
	if err := state.SetToken(&core.Token{ID: "chip", Name: "Chip", Supply: 1000, Issuer: operator}); err != nil {
		t.Fatal(err)
	}
	if err := state.SetTokenBalance("chip", alice, 100); err != nil {
		t.Fatal(err)
	}

	c := createCompetition(t, state, core.CompetitionCreatePayload{Capacity: 3, Price: 25, Asset: "chip"})
	if err := handleStart(ctxAt(state, operator, 2), mustJSON(t, core.CompetitionStartPayload{CompetitionID: c.ID})); err != nil {
		t.Fatal(err)
	}
	buy := mustJSON(t, core.BuyTicketPayload{CompetitionID: c.ID, Payment: 25})
	if err := handleBuy(ctxAt(state, alice, 3), buy); err != nil {
		t.Fatalf("token buy: %v", err)
	}

	aliceBal, _ := state.GetTokenBalance("chip", alice)
	if aliceBal != 75 {
		t.Errorf("alice chip balance: got %d want 75", aliceBal)
	}
	poolBal, _ := state.GetTokenBalance("chip", PoolAddress(c.ID))
	if poolBal != 25 {
		t.Errorf("pool chip balance: got %d want 25", poolBal)
	}
	// Native balance untouched.
	if got := balance(t, state, alice); got != 0 {
		t.Errorf("alice native balance: got %d want 0", got)
	}
}
