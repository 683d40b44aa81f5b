package rpc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wingame/winchain/core"
	"github.com/wingame/winchain/indexer"
	"github.com/wingame/winchain/vm/modules/competition"
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	bc      *core.Blockchain
	mempool *core.Mempool
	state   core.State
	indexer *indexer.Indexer
	chainID string // expected chain_id; used to reject cross-chain replay transactions

	// now supplies the clock for reveal queries; overridable in tests.
	now func() int64
}

// NewHandler creates an RPC Handler.
func NewHandler(bc *core.Blockchain, mempool *core.Mempool, state core.State, idx *indexer.Indexer, chainID string) *Handler {
	return &Handler{
		bc:      bc,
		mempool: mempool,
		state:   state,
		indexer: idx,
		chainID: chainID,
		now:     func() int64 { return time.Now().UnixNano() },
	}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getBlockHeight":
		return okResponse(req.ID, h.bc.Height())

	case "getBlock":
		return h.getBlock(req)

	case "getBalance":
		return h.getBalance(req)

	case "getToken":
		return h.getToken(req)

	case "getTokenBalance":
		return h.getTokenBalance(req)

	case "getCompetition":
		return h.getCompetition(req)

	case "getRemaining":
		return h.getRemaining(req)

	case "getResult":
		return h.getResult(req)

	case "getTickets":
		return h.getTickets(req)

	case "getCompetitionsByOperator":
		return h.getCompetitionsByOperator(req)

	case "getCompetitionsByBuyer":
		return h.getCompetitionsByBuyer(req)

	case "sendTx":
		return h.sendTx(req)

	case "getMempoolSize":
		return okResponse(req.ID, h.mempool.Size())

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string `json:"hash"`
		Height *int64 `json:"height"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}

	var block *core.Block
	var err error
	if params.Hash != "" {
		block, err = h.bc.GetBlock(params.Hash)
	} else if params.Height != nil {
		block, err = h.bc.GetBlockByHeight(*params.Height)
	} else {
		block = h.bc.Tip()
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if block == nil {
		return errResponse(req.ID, CodeInternalError, "no block found")
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	acc, err := h.state.GetAccount(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"address": params.Address, "balance": acc.Balance, "nonce": acc.Nonce})
}

func (h *Handler) getToken(req Request) Response {
	var params struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.ID == "" {
		return errResponse(req.ID, CodeInvalidParams, "id is required")
	}
	tok, err := h.state.GetToken(params.ID)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, tok)
}

func (h *Handler) getTokenBalance(req Request) Response {
	var params struct {
		Token   string `json:"token"`
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Token == "" || params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "token and address are required")
	}
	bal, err := h.state.GetTokenBalance(params.Token, params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"token": params.Token, "address": params.Address, "balance": bal})
}

type competitionParams struct {
	CompetitionID uint64 `json:"competition_id"`
}

func (h *Handler) loadCompetition(req Request) (*core.Competition, *Response) {
	var params competitionParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		resp := errResponse(req.ID, CodeInvalidParams, err.Error())
		return nil, &resp
	}
	c, err := h.state.GetCompetition(params.CompetitionID)
	if err != nil {
		resp := errResponse(req.ID, CodeInternalError, err.Error())
		return nil, &resp
	}
	return c, nil
}

func (h *Handler) getCompetition(req Request) Response {
	c, errResp := h.loadCompetition(req)
	if errResp != nil {
		return *errResp
	}
	return okResponse(req.ID, c)
}

func (h *Handler) getRemaining(req Request) Response {
	c, errResp := h.loadCompetition(req)
	if errResp != nil {
		return *errResp
	}
	return okResponse(req.ID, map[string]any{
		"competition_id": c.ID,
		"state":          c.State,
		"capacity":       c.Capacity,
		"sold":           c.Sold(),
		"remaining":      c.Remaining(),
	})
}

// getResult returns the publicly visible portion of the ranking. Before the
// finish phase the entry list is empty; afterwards it grows one rank per
// reveal interval, starting from the winner.
func (h *Handler) getResult(req Request) Response {
	c, errResp := h.loadCompetition(req)
	if errResp != nil {
		return *errResp
	}
	now := h.now()
	revealed := competition.Reveal(c, now)
	return okResponse(req.ID, map[string]any{
		"competition_id": c.ID,
		"state":          c.State,
		"sold":           c.Sold(),
		"revealed":       competition.RevealedCount(c, now),
		"finish_time":    c.FinishTime,
		"entries":        revealed,
	})
}

func (h *Handler) getTickets(req Request) Response {
	var params struct {
		CompetitionID uint64 `json:"competition_id"`
		Owner         string `json:"owner"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Owner == "" {
		return errResponse(req.ID, CodeInvalidParams, "owner is required")
	}
	c, err := h.state.GetCompetition(params.CompetitionID)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, competition.Mine(c, params.Owner))
}

func (h *Handler) getCompetitionsByOperator(req Request) Response {
	var params struct {
		Operator string `json:"operator"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Operator == "" {
		return errResponse(req.ID, CodeInvalidParams, "operator is required")
	}
	ids, err := h.indexer.GetCompetitionsByOperator(params.Operator)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, ids)
}

func (h *Handler) getCompetitionsByBuyer(req Request) Response {
	var params struct {
		Buyer string `json:"buyer"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Buyer == "" {
		return errResponse(req.ID, CodeInvalidParams, "buyer is required")
	}
	ids, err := h.indexer.GetCompetitionsByBuyer(params.Buyer)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, ids)
}

func (h *Handler) sendTx(req Request) Response {
	var tx core.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	// Reject transactions destined for a different network to prevent
	// cross-chain replay attacks.
	if tx.ChainID != h.chainID {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("chain ID mismatch: got %q want %q", tx.ChainID, h.chainID))
	}
	// Recompute the ID server-side; do not trust the client-provided value.
	tx.ID = tx.Hash()
	if err := h.mempool.Add(&tx); err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]string{"tx_id": tx.ID})
}
