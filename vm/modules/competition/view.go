package competition

// Read-side views over a competition. These are pure functions of the stored
// record and a clock reading, shared by the RPC handlers and the tests; they
// never mutate state.

import (
	"github.com/wingame/winchain/core"
)

// RevealedEntry is one visible row of the ranking, best rank first.
type RevealedEntry struct {
	Rank        uint32 `json:"rank"`
	Ticket      uint32 `json:"ticket"`
	Owner       string `json:"owner"`
	Entitlement uint64 `json:"entitlement"`
	Claimed     bool   `json:"claimed"`
}

// TicketInfo describes a single ticket from its owner's point of view. Rank
// is -1 until the draw has happened.
type TicketInfo struct {
	Ticket      uint32 `json:"ticket"`
	Rank        int64  `json:"rank"`
	Entitlement uint64 `json:"entitlement"`
	Claimed     bool   `json:"claimed"`
}

// RevealedCount returns how many ranks are publicly visible at the given
// time. Nothing is revealed before the finish phase; afterwards one rank per
// elapsed reveal interval, capped at the number sold. A non-positive interval
// reveals everything at once.
func RevealedCount(c *core.Competition, now int64) uint32 {
	if c.State != core.CompFinished || now < c.FinishTime {
		return 0
	}
	sold := c.Sold()
	if c.RevealInterval <= 0 {
		return sold
	}
	elapsed := now - c.FinishTime
	steps := uint64(elapsed / c.RevealInterval)
	if steps >= uint64(sold) {
		return sold
	}
	return uint32(steps)
}

// Reveal returns the currently visible prefix of the ranking, best rank
// first: the winner is the first entry unveiled, and each interval extends
// the list one rank further down.
func Reveal(c *core.Competition, now int64) []RevealedEntry {
	count := RevealedCount(c, now)
	if count == 0 {
		return nil
	}
	shares := Entitlements(c.Curve, c.Collected, c.Sold())
	out := make([]RevealedEntry, 0, count)
	for rank := uint32(0); rank < count; rank++ {
		ticket := c.Ranking[rank]
		out = append(out, RevealedEntry{
			Rank:        rank,
			Ticket:      ticket,
			Owner:       c.Entries[ticket],
			Entitlement: shares[rank],
			Claimed:     c.Claimed[ticket],
		})
	}
	return out
}

// Mine lists the owner's tickets with whatever is knowable about each at the
// competition's current stage.
func Mine(c *core.Competition, owner string) []TicketInfo {
	tickets := c.TicketsOf(owner)
	if len(tickets) == 0 {
		return nil
	}
	drawn := c.State == core.CompDrawn || c.State == core.CompFinished
	var shares []uint64
	var rankOf []uint32
	if drawn {
		shares = Entitlements(c.Curve, c.Collected, c.Sold())
		rankOf = invertRanking(c.Ranking)
	}
	out := make([]TicketInfo, 0, len(tickets))
	for _, t := range tickets {
		info := TicketInfo{Ticket: t, Rank: -1}
		if drawn {
			info.Rank = int64(rankOf[t])
			info.Entitlement = shares[rankOf[t]]
			info.Claimed = c.Claimed[t]
		}
		out = append(out, info)
	}
	return out
}
