package competition

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/wingame/winchain/core"
	"github.com/wingame/winchain/events"
	"github.com/wingame/winchain/vm"
	"github.com/wingame/winchain/vm/modules/oracle"
)

// handleDraw ends the sale and asks the oracle for randomness. The ranking
// only becomes available when the coordinator's fulfillment transaction
// lands; until then the competition sits in the closed state.
func handleDraw(ctx *vm.Context, payload json.RawMessage) error {
	var p core.CompetitionDrawPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode competition_draw payload: %w", err)
	}

	c, err := ctx.State.GetCompetition(p.CompetitionID)
	if err != nil {
		return fmt.Errorf("competition %d not found: %w", p.CompetitionID, err)
	}
	if c.Operator != ctx.Tx.From {
		return fmt.Errorf("%w: only the operator may draw competition %d", ErrUnauthorized, c.ID)
	}
	if c.RequestID != 0 {
		return fmt.Errorf("%w: competition %d already holds request %d", ErrRequestPending, c.ID, c.RequestID)
	}
	if c.State != core.CompOpen {
		return fmt.Errorf("%w: competition %d is %s, want %s", ErrInvalidState, c.ID, c.State, core.CompOpen)
	}
	if c.Sold() == 0 {
		return fmt.Errorf("%w: competition %d has no entries to rank", ErrInvalidState, c.ID)
	}

	reqID, err := oracle.RequestRandomness(ctx.State, c.ID)
	if err != nil {
		return err
	}
	c.RequestID = reqID
	c.State = core.CompClosed
	if err := ctx.State.SetCompetition(c); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventCompetitionClosed,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data: map[string]any{
				"competition_id": c.ID,
				"request_id":     reqID,
				"sold":           c.Sold(),
			},
		})
	}
	return nil
}

// handleFulfill is the oracle callback. It correlates the request ID back to
// its competition, derives the ranking from the random value and commits it.
func handleFulfill(ctx *vm.Context, payload json.RawMessage) error {
	var p core.RandomnessFulfillPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode randomness_fulfill payload: %w", err)
	}
	if err := oracle.VerifyCoordinator(ctx.State, ctx.Tx.From); err != nil {
		return err
	}
	seed, err := hex.DecodeString(p.Value)
	if err != nil {
		return fmt.Errorf("random value must be hex: %w", err)
	}
	if len(seed) == 0 {
		return fmt.Errorf("random value must not be empty")
	}

	compID, err := ctx.State.GetRandomnessRequest(p.RequestID)
	if err != nil {
		return fmt.Errorf("%w: request %d", ErrUnknownRequest, p.RequestID)
	}
	c, err := ctx.State.GetCompetition(compID)
	if err != nil {
		return fmt.Errorf("competition %d not found: %w", compID, err)
	}
	if c.State != core.CompClosed {
		return fmt.Errorf("%w: request %d for competition %d", ErrAlreadyDrawn, p.RequestID, c.ID)
	}

	c.Seed = p.Value
	c.Ranking = rankingFromSeed(seed, c.Sold())
	c.Claimed = make([]bool, c.Sold())
	c.State = core.CompDrawn
	// The request is consumed; the record carries no live request afterwards.
	c.RequestID = 0
	if err := ctx.State.SetCompetition(c); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventCompetitionDrawn,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data: map[string]any{
				"competition_id": c.ID,
				"request_id":     p.RequestID,
			},
		})
	}
	return nil
}

// rankingFromSeed derives a permutation of [0, n) from the seed using
// Fisher-Yates elimination. Each draw step re-hashes the seed with the step
// counter so no part of the randomness stream is reused, and reduces modulo
// the count of still-unplaced indices: a uniformly random seed stream makes
// every permutation equally likely. Deterministic for a given (seed, n).
func rankingFromSeed(seed []byte, n uint32) []uint32 {
	ranking := make([]uint32, n)
	for i := range ranking {
		ranking[i] = uint32(i)
	}
	buf := make([]byte, 0, len(seed)+8)
	var ctr [8]byte
	for i := uint32(0); i+1 < n; i++ {
		binary.BigEndian.PutUint64(ctr[:], uint64(i))
		buf = append(buf[:0], seed...)
		buf = append(buf, ctr[:]...)
		h := sha256.Sum256(buf)
		r := binary.BigEndian.Uint64(h[:8])
		j := i + uint32(r%uint64(n-i))
		ranking[i], ranking[j] = ranking[j], ranking[i]
	}
	return ranking
}
