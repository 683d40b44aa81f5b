// Package competition implements the raffle engine: fixed-price ticket
// sales, an oracle-driven ranking draw, a time-gated reveal of that ranking,
// and rank-based payout of the pooled funds.
package competition

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wingame/winchain/core"
	"github.com/wingame/winchain/events"
	"github.com/wingame/winchain/vm"
	"github.com/wingame/winchain/vm/modules/token"
)

// DefaultRevealInterval is used when create/update leave the interval unset.
const DefaultRevealInterval = time.Hour

// MaxCapacity bounds a single competition. Keeps payout weight sums well
// inside uint64 for every curve.
const MaxCapacity = 100_000

func init() {
	vm.Register(core.TxCompetitionCreate, handleCreate)
	vm.Register(core.TxCompetitionUpdate, handleUpdate)
	vm.Register(core.TxCompetitionStart, handleStart)
	vm.Register(core.TxBuyTicket, handleBuy)
	vm.Register(core.TxCompetitionDraw, handleDraw)
	vm.Register(core.TxRandomnessFulfill, handleFulfill)
	vm.Register(core.TxCompetitionFinish, handleFinish)
	vm.Register(core.TxClaim, handleClaim)
}

// PoolAddress is the ledger identity holding a competition's collected
// funds until they are claimed.
func PoolAddress(competitionID uint64) string {
	return fmt.Sprintf("competition-pool-%d", competitionID)
}

// validateTerms checks the sale parameters shared by create and update.
func validateTerms(state core.State, capacity uint32, price uint64, asset string, curve string) (core.PayoutCurve, error) {
	if capacity == 0 {
		return "", errors.New("capacity must be > 0")
	}
	if capacity > MaxCapacity {
		return "", fmt.Errorf("capacity %d exceeds maximum %d", capacity, MaxCapacity)
	}
	if price == 0 {
		return "", errors.New("price must be > 0")
	}
	if asset != core.NativeAsset {
		if _, err := state.GetToken(asset); err != nil {
			return "", fmt.Errorf("settlement token %q not found: %w", asset, err)
		}
	}
	switch core.PayoutCurve(curve) {
	case "", core.CurveLinear:
		return core.CurveLinear, nil
	case core.CurveQuadratic:
		return core.CurveQuadratic, nil
	default:
		return "", fmt.Errorf("unknown payout curve %q", curve)
	}
}

func handleCreate(ctx *vm.Context, payload json.RawMessage) error {
	var p core.CompetitionCreatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode competition_create payload: %w", err)
	}
	curve, err := validateTerms(ctx.State, p.Capacity, p.Price, p.Asset, p.Curve)
	if err != nil {
		return err
	}
	interval := p.RevealInterval
	if interval <= 0 {
		interval = int64(DefaultRevealInterval)
	}

	id, err := ctx.State.NextCompetitionID()
	if err != nil {
		return err
	}
	c := &core.Competition{
		ID:             id,
		Operator:       ctx.Tx.From,
		Capacity:       p.Capacity,
		Price:          p.Price,
		Asset:          p.Asset,
		State:          core.CompCreated,
		Curve:          curve,
		RevealInterval: interval,
		CreatedAt:      ctx.Block.Header.Timestamp,
	}
	if err := ctx.State.SetCompetition(c); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventCompetitionCreated,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data: map[string]any{
				"competition_id": id,
				"operator":       ctx.Tx.From,
				"capacity":       p.Capacity,
				"price":          p.Price,
				"asset":          p.Asset,
			},
		})
	}
	return nil
}

func handleUpdate(ctx *vm.Context, payload json.RawMessage) error {
	var p core.CompetitionUpdatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode competition_update payload: %w", err)
	}

	c, err := ctx.State.GetCompetition(p.CompetitionID)
	if err != nil {
		return fmt.Errorf("competition %d not found: %w", p.CompetitionID, err)
	}
	if c.Operator != ctx.Tx.From {
		return fmt.Errorf("%w: only the operator may edit competition %d", ErrUnauthorized, c.ID)
	}
	// Terms are frozen the moment the sale starts.
	if c.State != core.CompCreated {
		return fmt.Errorf("%w: competition %d is %s, editable only before start", ErrInvalidState, c.ID, c.State)
	}

	curve, err := validateTerms(ctx.State, p.Capacity, p.Price, p.Asset, p.Curve)
	if err != nil {
		return err
	}
	c.Capacity = p.Capacity
	c.Price = p.Price
	c.Asset = p.Asset
	c.Curve = curve
	if p.RevealInterval > 0 {
		c.RevealInterval = p.RevealInterval
	}
	if err := ctx.State.SetCompetition(c); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventCompetitionUpdated,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data: map[string]any{
				"competition_id": c.ID,
				"capacity":       p.Capacity,
				"price":          p.Price,
				"asset":          p.Asset,
			},
		})
	}
	return nil
}

func handleStart(ctx *vm.Context, payload json.RawMessage) error {
	var p core.CompetitionStartPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode competition_start payload: %w", err)
	}

	c, err := ctx.State.GetCompetition(p.CompetitionID)
	if err != nil {
		return fmt.Errorf("competition %d not found: %w", p.CompetitionID, err)
	}
	if c.Operator != ctx.Tx.From {
		return fmt.Errorf("%w: only the operator may start competition %d", ErrUnauthorized, c.ID)
	}
	if c.State != core.CompCreated {
		return fmt.Errorf("%w: competition %d is %s, want %s", ErrInvalidState, c.ID, c.State, core.CompCreated)
	}

	c.State = core.CompOpen
	if err := ctx.State.SetCompetition(c); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventCompetitionStarted,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data:        map[string]any{"competition_id": c.ID},
		})
	}
	return nil
}

func handleBuy(ctx *vm.Context, payload json.RawMessage) error {
	var p core.BuyTicketPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode buy_ticket payload: %w", err)
	}

	c, err := ctx.State.GetCompetition(p.CompetitionID)
	if err != nil {
		return fmt.Errorf("competition %d not found: %w", p.CompetitionID, err)
	}
	if c.State != core.CompOpen {
		return fmt.Errorf("%w: competition %d is %s, tickets are sold only while open", ErrInvalidState, c.ID, c.State)
	}
	if c.Remaining() == 0 {
		return fmt.Errorf("%w: competition %d has no tickets left", ErrSoldOut, c.ID)
	}
	// Exact payment only. Underpaying and overpaying both fail whole; there
	// is no partial ticket and no refund of a delta.
	if p.Payment != c.Price {
		return fmt.Errorf("%w: got %d, ticket price is %d", ErrWrongPayment, p.Payment, c.Price)
	}

	if err := payIn(ctx.State, c, ctx.Tx.From, p.Payment); err != nil {
		return err
	}

	ticket := c.Sold() // index of the ticket being issued
	c.Entries = append(c.Entries, ctx.Tx.From)
	c.Collected += p.Payment
	if err := ctx.State.SetCompetition(c); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventTicketSold,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data: map[string]any{
				"competition_id": c.ID,
				"buyer":          ctx.Tx.From,
				"ticket":         ticket,
				"remaining":      c.Remaining(),
			},
		})
	}
	return nil
}

// payIn moves the ticket payment from the buyer into the competition pool.
func payIn(state core.State, c *core.Competition, from string, amount uint64) error {
	pool := PoolAddress(c.ID)
	if c.Asset != core.NativeAsset {
		return token.Move(state, c.Asset, from, pool, amount)
	}
	buyer, err := state.GetAccount(from)
	if err != nil {
		return err
	}
	if buyer.Balance < amount {
		return fmt.Errorf("insufficient balance: have %d, need %d", buyer.Balance, amount)
	}
	buyer.Balance -= amount
	if err := state.SetAccount(buyer); err != nil {
		return err
	}
	poolAcc, err := state.GetAccount(pool)
	if err != nil {
		return err
	}
	poolAcc.Balance += amount
	return state.SetAccount(poolAcc)
}

// payOut releases amount from the competition pool to a recipient.
func payOut(state core.State, c *core.Competition, to string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	pool := PoolAddress(c.ID)
	if c.Asset != core.NativeAsset {
		return token.Move(state, c.Asset, pool, to, amount)
	}
	poolAcc, err := state.GetAccount(pool)
	if err != nil {
		return err
	}
	if poolAcc.Balance < amount {
		return fmt.Errorf("pool underfunded: have %d, need %d", poolAcc.Balance, amount)
	}
	poolAcc.Balance -= amount
	if err := state.SetAccount(poolAcc); err != nil {
		return err
	}
	recipient, err := state.GetAccount(to)
	if err != nil {
		return err
	}
	recipient.Balance += amount
	return state.SetAccount(recipient)
}
