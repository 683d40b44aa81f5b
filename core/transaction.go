package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wingame/winchain/crypto"
)

// TxType identifies the kind of operation a transaction performs.
type TxType string

const (
	TxTransfer          TxType = "transfer"
	TxTokenCreate       TxType = "token_create"
	TxTokenTransfer     TxType = "token_transfer"
	TxTokenApprove      TxType = "token_approve"
	TxTokenTransferFrom TxType = "token_transfer_from"
	TxCompetitionCreate TxType = "competition_create"
	TxCompetitionUpdate TxType = "competition_update"
	TxCompetitionStart  TxType = "competition_start"
	TxBuyTicket         TxType = "buy_ticket"
	TxCompetitionDraw   TxType = "competition_draw"
	TxRandomnessFulfill TxType = "randomness_fulfill"
	TxCompetitionFinish TxType = "competition_finish"
	TxClaim             TxType = "claim"
	TxOracleUpdate      TxType = "oracle_update"
)

// Transaction is the atomic unit of work on the chain.
// From holds the sender's full hex-encoded ed25519 public key (64 chars).
// Signature covers all fields except Signature itself.
type Transaction struct {
	ID        string          `json:"id"`
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"` // hex-encoded ed25519 public key
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// signingBody holds the fields that are covered by the signature.
type signingBody struct {
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hash returns a deterministic hash of the transaction (sans Signature).
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (tx *Transaction) Hash() string {
	body := signingBody{
		ChainID:   tx.ChainID,
		Type:      tx.Type,
		From:      tx.From,
		Nonce:     tx.Nonce,
		Fee:       tx.Fee,
		Timestamp: tx.Timestamp,
		Payload:   tx.Payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign computes the signature and sets ID.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	hash := tx.Hash()
	tx.Signature = crypto.Sign(priv, []byte(hash))
	tx.ID = hash
}

// Verify checks the signature and that From is a valid public key.
func (tx *Transaction) Verify() error {
	if tx.From == "" {
		return errors.New("missing from field")
	}
	pub, err := crypto.PubKeyFromHex(tx.From)
	if err != nil {
		return fmt.Errorf("invalid from (must be ed25519 pubkey hex): %w", err)
	}
	return crypto.Verify(pub, []byte(tx.Hash()), tx.Signature)
}

// NewTransaction creates an unsigned transaction with the current timestamp.
func NewTransaction(chainID string, typ TxType, from string, nonce, fee uint64, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Transaction{
		ChainID:   chainID,
		Type:      typ,
		From:      from,
		Nonce:     nonce,
		Fee:       fee,
		Timestamp: time.Now().UnixNano(),
		Payload:   raw,
	}, nil
}

// ---- Payload types ----

// TransferPayload transfers native currency.
type TransferPayload struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// TokenCreatePayload issues a new settlement token; the full supply is
// credited to the sender.
type TokenCreatePayload struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Supply uint64 `json:"supply"`
}

// TokenTransferPayload moves token units between accounts.
type TokenTransferPayload struct {
	TokenID string `json:"token_id"`
	To      string `json:"to"`
	Amount  uint64 `json:"amount"`
}

// TokenApprovePayload grants spender the right to draw up to Amount of the
// sender's token balance.
type TokenApprovePayload struct {
	TokenID string `json:"token_id"`
	Spender string `json:"spender"`
	Amount  uint64 `json:"amount"`
}

// TokenTransferFromPayload spends a previously granted allowance: the sender
// moves token units out of From's balance into To's.
type TokenTransferFromPayload struct {
	TokenID string `json:"token_id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Amount  uint64 `json:"amount"`
}

// CompetitionCreatePayload registers a new competition; the sender becomes
// its operator.
type CompetitionCreatePayload struct {
	Capacity       uint32 `json:"capacity"`
	Price          uint64 `json:"price"`
	Asset          string `json:"asset"`           // token ID; empty = native
	Curve          string `json:"curve"`           // empty = linear
	RevealInterval int64  `json:"reveal_interval"` // nanoseconds; 0 = default
}

// CompetitionUpdatePayload edits a competition that has not started selling.
type CompetitionUpdatePayload struct {
	CompetitionID  uint64 `json:"competition_id"`
	Capacity       uint32 `json:"capacity"`
	Price          uint64 `json:"price"`
	Asset          string `json:"asset"`
	Curve          string `json:"curve"`
	RevealInterval int64  `json:"reveal_interval"`
}

// CompetitionStartPayload opens ticket sales.
type CompetitionStartPayload struct {
	CompetitionID uint64 `json:"competition_id"`
}

// BuyTicketPayload purchases one ticket. Payment is the attached value and
// must equal the ticket price exactly.
type BuyTicketPayload struct {
	CompetitionID uint64 `json:"competition_id"`
	Payment       uint64 `json:"payment"`
}

// CompetitionDrawPayload closes the sale and requests oracle randomness.
type CompetitionDrawPayload struct {
	CompetitionID uint64 `json:"competition_id"`
}

// RandomnessFulfillPayload is the oracle coordinator's callback carrying the
// random value for a pending request. Value is hex-encoded bytes.
type RandomnessFulfillPayload struct {
	RequestID uint64 `json:"request_id"`
	Value     string `json:"value"`
}

// CompetitionFinishPayload schedules the reveal/claim phase. FinishTime is
// unix nanoseconds; 0 means "now". It may be in the future to delay both.
type CompetitionFinishPayload struct {
	CompetitionID uint64 `json:"competition_id"`
	FinishTime    int64  `json:"finish_time"`
}

// ClaimPayload pays out every unclaimed ticket the sender owns.
type ClaimPayload struct {
	CompetitionID uint64 `json:"competition_id"`
}

// OracleUpdatePayload rotates the randomness coordinator identity.
type OracleUpdatePayload struct {
	Coordinator string `json:"coordinator"`
}
