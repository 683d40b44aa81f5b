// Package oracle keeps the randomness coordinator configuration and the
// pending-request bookkeeping. The engine only depends on the request/callback
// shape: RequestRandomness allocates a request ID here, and the coordinator
// later submits a randomness_fulfill transaction carrying that ID.
package oracle

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wingame/winchain/core"
	"github.com/wingame/winchain/crypto"
	"github.com/wingame/winchain/events"
	"github.com/wingame/winchain/vm"
)

// ErrUnauthorized is returned when a caller lacks the authority for a
// privileged oracle operation.
var ErrUnauthorized = errors.New("unauthorized")

func init() {
	vm.Register(core.TxOracleUpdate, handleUpdate)
}

// handleUpdate rotates the coordinator identity. Only the configured
// authority may do this; if no authority was set at genesis the first caller
// claims it.
func handleUpdate(ctx *vm.Context, payload json.RawMessage) error {
	var p core.OracleUpdatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode oracle_update payload: %w", err)
	}
	if _, err := crypto.PubKeyFromHex(p.Coordinator); err != nil {
		return fmt.Errorf("invalid coordinator pubkey: %w", err)
	}

	o, err := ctx.State.GetOracle()
	if err != nil {
		return err
	}
	if o.Authority != "" && o.Authority != ctx.Tx.From {
		return fmt.Errorf("%w: only the oracle authority may rotate the coordinator", ErrUnauthorized)
	}
	if o.Authority == "" {
		o.Authority = ctx.Tx.From
	}
	o.Coordinator = p.Coordinator
	if err := ctx.State.SetOracle(o); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventOracleUpdated,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data:        map[string]any{"coordinator": p.Coordinator},
		})
	}
	return nil
}

// RequestRandomness allocates the next request ID and records the
// request → consumer correlation. The fulfillment arrives later as a
// separate transaction from the coordinator.
func RequestRandomness(state core.State, competitionID uint64) (uint64, error) {
	o, err := state.GetOracle()
	if err != nil {
		return 0, err
	}
	id := o.NextRequestID
	o.NextRequestID++
	if err := state.SetOracle(o); err != nil {
		return 0, err
	}
	if err := state.SetRandomnessRequest(id, competitionID); err != nil {
		return 0, err
	}
	return id, nil
}

// VerifyCoordinator checks that from is the configured coordinator.
func VerifyCoordinator(state core.State, from string) error {
	o, err := state.GetOracle()
	if err != nil {
		return err
	}
	if o.Coordinator == "" || o.Coordinator != from {
		return fmt.Errorf("%w: sender is not the oracle coordinator", ErrUnauthorized)
	}
	return nil
}
