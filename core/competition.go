package core

// CompetitionState is the lifecycle tag of a competition. Transitions move
// strictly forward; no state is ever revisited.
type CompetitionState string

const (
	CompCreated  CompetitionState = "created"  // editable, not yet selling
	CompOpen     CompetitionState = "open"     // tickets on sale
	CompClosed   CompetitionState = "closed"   // sale ended, randomness pending
	CompDrawn    CompetitionState = "drawn"    // ranking committed
	CompFinished CompetitionState = "finished" // reveal clock running, claims allowed
)

// PayoutCurve selects how the pooled funds are split across ranks.
// Every curve is monotone decreasing by rank.
type PayoutCurve string

const (
	// CurveLinear weights rank r by sold-r.
	CurveLinear PayoutCurve = "linear"
	// CurveQuadratic weights rank r by (sold-r)^2, concentrating the pool
	// toward the top ranks.
	CurveQuadratic PayoutCurve = "quadratic"
)

// NativeAsset is the sentinel Asset value denoting the chain's native
// currency.
const NativeAsset = ""

// Competition is one ticketed raffle: a fixed-price sale whose entries are
// ranked by oracle randomness and paid out by rank, with the ranking
// unveiled gradually after FinishTime.
//
// Entries is append-only; the slice index is the ticket number. Claimed is
// allocated when the ranking is committed and flags are only ever set, never
// cleared. PaidOut never exceeds Collected.
type Competition struct {
	ID       uint64           `json:"id"`
	Operator string           `json:"operator"` // pubkey hex of the creator
	Capacity uint32           `json:"capacity"`
	Price    uint64           `json:"price"`
	Asset    string           `json:"asset"` // token ID; NativeAsset = native currency
	State    CompetitionState `json:"state"`

	Entries []string `json:"entries"` // buyer pubkey hex per ticket, purchase order

	RequestID uint64   `json:"request_id"` // 0 = none issued
	Seed      string   `json:"seed,omitempty"`
	Ranking   []uint32 `json:"ranking,omitempty"` // ticket indices, best to worst

	Curve          PayoutCurve `json:"curve"`
	RevealInterval int64       `json:"reveal_interval"` // nanoseconds per revealed rank
	FinishTime     int64       `json:"finish_time"`     // unix nanos; 0 until finished

	Claimed     []bool `json:"claimed,omitempty"` // len == sold once drawn
	Collected   uint64 `json:"collected"`
	PaidOut     uint64 `json:"paid_out"`
	OperatorCut uint64 `json:"operator_cut"` // rounding remainder, released at finish

	CreatedAt int64 `json:"created_at"`
}

// Sold returns the number of tickets sold.
func (c *Competition) Sold() uint32 {
	return uint32(len(c.Entries))
}

// Remaining returns the number of tickets still on sale.
func (c *Competition) Remaining() uint32 {
	sold := c.Sold()
	if sold >= c.Capacity {
		return 0
	}
	return c.Capacity - sold
}

// TicketsOf returns the ticket indices owned by the given identity, in
// purchase order.
func (c *Competition) TicketsOf(owner string) []uint32 {
	var tickets []uint32
	for i, buyer := range c.Entries {
		if buyer == owner {
			tickets = append(tickets, uint32(i))
		}
	}
	return tickets
}
