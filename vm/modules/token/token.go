// Package token implements fungible settlement assets. A competition whose
// asset field names a token collects ticket payments and releases payouts in
// that token instead of the native currency.
package token

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wingame/winchain/core"
	"github.com/wingame/winchain/crypto"
	"github.com/wingame/winchain/events"
	"github.com/wingame/winchain/vm"
)

func init() {
	vm.Register(core.TxTokenCreate, handleCreate)
	vm.Register(core.TxTokenTransfer, handleTransfer)
	vm.Register(core.TxTokenApprove, handleApprove)
	vm.Register(core.TxTokenTransferFrom, handleTransferFrom)
}

func handleCreate(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TokenCreatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode token_create payload: %w", err)
	}
	if p.ID == "" {
		return errors.New("token id required")
	}
	if p.Supply == 0 {
		return errors.New("token supply must be > 0")
	}

	// Prevent overwriting an existing token.
	if _, err := ctx.State.GetToken(p.ID); err == nil {
		return fmt.Errorf("token %q already exists", p.ID)
	} else if !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("check token %q: %w", p.ID, err)
	}

	t := &core.Token{
		ID:        p.ID,
		Name:      p.Name,
		Supply:    p.Supply,
		Issuer:    ctx.Tx.From,
		CreatedAt: ctx.Block.Header.Timestamp,
	}
	if err := ctx.State.SetToken(t); err != nil {
		return err
	}
	if err := ctx.State.SetTokenBalance(p.ID, ctx.Tx.From, p.Supply); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventTokenCreated,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data:        map[string]any{"token_id": p.ID, "supply": p.Supply, "issuer": ctx.Tx.From},
		})
	}
	return nil
}

func handleTransfer(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TokenTransferPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode token_transfer payload: %w", err)
	}
	if p.Amount == 0 {
		return errors.New("transfer amount must be > 0")
	}
	if _, err := crypto.PubKeyFromHex(p.To); err != nil {
		return fmt.Errorf("invalid to pubkey: %w", err)
	}
	if _, err := ctx.State.GetToken(p.TokenID); err != nil {
		return fmt.Errorf("token %q not found: %w", p.TokenID, err)
	}

	if err := Move(ctx.State, p.TokenID, ctx.Tx.From, p.To, p.Amount); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventTokenTransfer,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data: map[string]any{
				"token_id": p.TokenID,
				"from":     ctx.Tx.From,
				"to":       p.To,
				"amount":   p.Amount,
			},
		})
	}
	return nil
}

func handleApprove(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TokenApprovePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode token_approve payload: %w", err)
	}
	if p.Spender == "" {
		return errors.New("spender required")
	}
	if _, err := ctx.State.GetToken(p.TokenID); err != nil {
		return fmt.Errorf("token %q not found: %w", p.TokenID, err)
	}

	if err := ctx.State.SetAllowance(p.TokenID, ctx.Tx.From, p.Spender, p.Amount); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventTokenApproval,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data: map[string]any{
				"token_id": p.TokenID,
				"owner":    ctx.Tx.From,
				"spender":  p.Spender,
				"amount":   p.Amount,
			},
		})
	}
	return nil
}

// handleTransferFrom spends an allowance: the sender draws from the owner's
// balance, up to whatever the owner approved. The allowance is decremented
// before the balances move.
func handleTransferFrom(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TokenTransferFromPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode token_transfer_from payload: %w", err)
	}
	if p.Amount == 0 {
		return errors.New("transfer amount must be > 0")
	}
	if p.From == "" || p.To == "" {
		return errors.New("from and to required")
	}
	if _, err := ctx.State.GetToken(p.TokenID); err != nil {
		return fmt.Errorf("token %q not found: %w", p.TokenID, err)
	}

	allowed, err := ctx.State.GetAllowance(p.TokenID, p.From, ctx.Tx.From)
	if err != nil {
		return err
	}
	if allowed < p.Amount {
		return fmt.Errorf("allowance exceeded: approved %d, need %d", allowed, p.Amount)
	}
	if err := ctx.State.SetAllowance(p.TokenID, p.From, ctx.Tx.From, allowed-p.Amount); err != nil {
		return err
	}

	if err := Move(ctx.State, p.TokenID, p.From, p.To, p.Amount); err != nil {
		return err
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventTokenTransfer,
			TxID:        ctx.Tx.ID,
			BlockHeight: ctx.Block.Header.Height,
			Data: map[string]any{
				"token_id": p.TokenID,
				"from":     p.From,
				"to":       p.To,
				"spender":  ctx.Tx.From,
				"amount":   p.Amount,
			},
		})
	}
	return nil
}

// Move debits from and credits to. The competition module uses it to settle
// token-denominated ticket payments and payouts.
func Move(state core.State, tokenID, from, to string, amount uint64) error {
	bal, err := state.GetTokenBalance(tokenID, from)
	if err != nil {
		return err
	}
	if bal < amount {
		return fmt.Errorf("insufficient token balance: have %d, need %d", bal, amount)
	}
	if err := state.SetTokenBalance(tokenID, from, bal-amount); err != nil {
		return err
	}
	toBal, err := state.GetTokenBalance(tokenID, to)
	if err != nil {
		return err
	}
	return state.SetTokenBalance(tokenID, to, toBal+amount)
}
