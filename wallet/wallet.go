package wallet

import (
	"github.com/wingame/winchain/core"
	"github.com/wingame/winchain/crypto"
)

// Wallet holds a key pair and provides transaction-building helpers.
type Wallet struct {
	priv crypto.PrivateKey
	pub  crypto.PublicKey
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public()}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate() (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded ed25519 public key (used as "from" address).
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// Address returns the short human-readable address (first 20 bytes of SHA-256(pubkey)).
func (w *Wallet) Address() string {
	return w.pub.Address()
}

// NewTx creates a signed transaction. chainID must match the target network.
// nonce should match the account's current nonce.
func (w *Wallet) NewTx(chainID string, typ core.TxType, nonce, fee uint64, payload any) (*core.Transaction, error) {
	tx, err := core.NewTransaction(chainID, typ, w.pub.Hex(), nonce, fee, payload)
	if err != nil {
		return nil, err
	}
	tx.Sign(w.priv)
	return tx, nil
}

// Transfer creates a signed transfer transaction.
func (w *Wallet) Transfer(chainID, to string, amount, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxTransfer, nonce, fee, core.TransferPayload{
		To:     to,
		Amount: amount,
	})
}

// BuyTicket creates a signed ticket purchase. payment must equal the
// competition's ticket price exactly.
func (w *Wallet) BuyTicket(chainID string, competitionID, payment, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxBuyTicket, nonce, fee, core.BuyTicketPayload{
		CompetitionID: competitionID,
		Payment:       payment,
	})
}

// Claim creates a signed claim for all of the wallet's unclaimed tickets in
// the given competition.
func (w *Wallet) Claim(chainID string, competitionID, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxClaim, nonce, fee, core.ClaimPayload{
		CompetitionID: competitionID,
	})
}

// FulfillRandomness creates a signed oracle fulfillment carrying the hex
// random value for the given request. Only accepted from the configured
// coordinator.
func (w *Wallet) FulfillRandomness(chainID string, requestID uint64, valueHex string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(chainID, core.TxRandomnessFulfill, nonce, fee, core.RandomnessFulfillPayload{
		RequestID: requestID,
		Value:     valueHex,
	})
}
