package competition

import (
	"encoding/json"
	"fmt"

	"github.com/wingame/winchain/core"
	"github.com/wingame/winchain/events"
	"github.com/wingame/winchain/vm"
)

// handleFinish moves a drawn competition into its final phase. FinishTime
// may be scheduled in the future to delay both the reveal clock and claims.
// The rounding remainder of the payout split is released to the operator
// here; participant shares stay pooled until each owner claims.
func handleFinish(ctx *vm.Context, payload json.RawMessage) error {
	var p core.CompetitionFinishPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode competition_finish payload: %w", err)
	}

	c, err := ctx.State.GetCompetition(p.CompetitionID)
	if err != nil {
		return fmt.Errorf("competition %d not found: %w", p.CompetitionID, err)
	}
	if c.Operator != ctx.Tx.From {
		return fmt.Errorf("%w: only the operator may finish competition %d", ErrUnauthorized, c.ID)
	}
	if c.State != core.CompDrawn {
		return fmt.Errorf("%w: competition %d is %s, want %s", ErrInvalidState, c.ID, c.State, core.CompDrawn)
	}

	now := ctx.Block.Header.Timestamp
	finish := p.FinishTime
	if finish == 0 {
		finish = now
	}
	if finish < now {
		return fmt.Errorf("finish time %d is in the past (now %d)", finish, now)
	}

	shares := Entitlements(c.Curve, c.Collected, c.Sold())
	cut := OperatorRemainder(c.Collected, shares)

	c.FinishTime = finish
	c.State = core.CompFinished
	c.OperatorCut = cut
	if err := ctx.State.SetCompetition(c); err != nil {
		return err
	}
	if err := payOut(ctx.State, c, c.Operator, cut); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventCompetitionFinished,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data: map[string]any{
				"competition_id": c.ID,
				"finish_time":    finish,
				"operator_cut":   cut,
			},
		})
	}
	return nil
}

// handleClaim pays out every unclaimed ticket the sender owns. Claiming is
// independent of the phased reveal: once FinishTime has passed, any rank can
// be claimed whether or not it is publicly visible yet. Each ticket's
// claimed flag and the paidOut total are set before funds move, so a nested
// call can never double-pay a ticket.
func handleClaim(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ClaimPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode claim payload: %w", err)
	}

	c, err := ctx.State.GetCompetition(p.CompetitionID)
	if err != nil {
		return fmt.Errorf("competition %d not found: %w", p.CompetitionID, err)
	}
	if c.State != core.CompFinished {
		return fmt.Errorf("%w: competition %d is %s", ErrNotFinished, c.ID, c.State)
	}
	if now := ctx.Block.Header.Timestamp; now < c.FinishTime {
		return fmt.Errorf("%w: claims open at %d (now %d)", ErrNotFinished, c.FinishTime, now)
	}

	shares := Entitlements(c.Curve, c.Collected, c.Sold())
	rankOf := invertRanking(c.Ranking)

	var total uint64
	var tickets []uint32
	for _, t := range c.TicketsOf(ctx.Tx.From) {
		if c.Claimed[t] {
			continue
		}
		c.Claimed[t] = true
		amount := shares[rankOf[t]]
		c.PaidOut += amount
		total += amount
		tickets = append(tickets, t)
	}
	if len(tickets) == 0 {
		return fmt.Errorf("%w: no unclaimed tickets for %s in competition %d", ErrNothingToClaim, ctx.Tx.From, c.ID)
	}

	// Record the claim marks before releasing funds.
	if err := ctx.State.SetCompetition(c); err != nil {
		return err
	}
	if err := payOut(ctx.State, c, ctx.Tx.From, total); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventTicketClaimed,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data: map[string]any{
				"competition_id": c.ID,
				"claimer":        ctx.Tx.From,
				"tickets":        tickets,
				"amount":         total,
			},
		})
	}
	return nil
}

// invertRanking maps ticket index → rank.
func invertRanking(ranking []uint32) []uint32 {
	inv := make([]uint32, len(ranking))
	for rank, ticket := range ranking {
		inv[ticket] = uint32(rank)
	}
	return inv
}
