package core

// Account holds a participant's native balance and replay-protection nonce.
// Address is the hex-encoded ed25519 public key.
type Account struct {
	Address string `json:"address"` // pubkey hex
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// Token is a fungible settlement asset issued on the chain. Competitions may
// denominate their ticket price in a token instead of the native currency.
type Token struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Supply    uint64 `json:"supply"`
	Issuer    string `json:"issuer"` // pubkey hex of the creator
	CreatedAt int64  `json:"created_at"`
}

// Oracle holds the randomness coordinator configuration and the request
// counter. Request IDs start at 1 so that 0 can mean "no pending request"
// on a competition record.
type Oracle struct {
	Authority     string `json:"authority"`   // may rotate the coordinator
	Coordinator   string `json:"coordinator"` // submits randomness_fulfill
	NextRequestID uint64 `json:"next_request_id"`
}

// State is the full ledger state interface. Implementations must be
// snapshot-able so the executor can roll back failed transactions.
type State interface {
	// Accounts
	GetAccount(address string) (*Account, error)
	SetAccount(account *Account) error

	// Competitions
	GetCompetition(id uint64) (*Competition, error)
	SetCompetition(c *Competition) error
	// NextCompetitionID returns the next identifier and advances the
	// sequence in the write buffer. IDs are monotonic starting at 0.
	NextCompetitionID() (uint64, error)

	// Randomness request correlation: request ID → competition ID.
	GetRandomnessRequest(requestID uint64) (uint64, error)
	SetRandomnessRequest(requestID, competitionID uint64) error

	// Oracle configuration
	GetOracle() (*Oracle, error)
	SetOracle(o *Oracle) error

	// Tokens
	GetToken(id string) (*Token, error)
	SetToken(t *Token) error
	GetTokenBalance(tokenID, address string) (uint64, error)
	SetTokenBalance(tokenID, address string, amount uint64) error
	GetAllowance(tokenID, owner, spender string) (uint64, error)
	SetAllowance(tokenID, owner, spender string, amount uint64) error

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// ComputeRoot returns the deterministic state root from the current write
	// buffer without flushing. Call this before signing a block.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	// Always call ComputeRoot() first to obtain the root for the block header.
	Commit() error
}
