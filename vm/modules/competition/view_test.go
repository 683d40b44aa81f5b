package competition

import (
	"testing"
	"time"

	"github.com/wingame/winchain/core"
	"github.com/wingame/winchain/internal/testutil"
)

func finishedCompetition(t *testing.T, n int, interval int64, finishTime int64) *core.Competition {
	t.Helper()
	state := testutil.NewStateDB()
	c := drawnCompetition(t, state, n, 10)
	if err := handleFinish(ctxAt(state, operator, finishTime), mustJSON(t, core.CompetitionFinishPayload{CompetitionID: c.ID})); err != nil {
		t.Fatal(err)
	}
	got, _ := state.GetCompetition(c.ID)
	// The views are pure over the record, so the interval can be set directly.
	got.RevealInterval = interval
	return got
}

func TestRevealedCountSchedule(t *testing.T) {
	interval := int64(time.Hour)
	c := finishedCompetition(t, 5, interval, 1000)

	cases := []struct {
		now  int64
		want uint32
	}{
		{999, 0},                  // before finish
		{1000, 0},                 // at finish, first interval not yet elapsed
		{1000 + interval - 1, 0},  // just under one interval
		{1000 + interval, 1},      // one interval elapsed
		{1000 + 3*interval, 3},    // three elapsed
		{1000 + 5*interval, 5},    // exactly all
		{1000 + 5000*interval, 5}, // capped at sold
	}
	for _, tc := range cases {
		if got := RevealedCount(c, tc.now); got != tc.want {
			t.Errorf("RevealedCount(now=%d): got %d want %d", tc.now, got, tc.want)
		}
	}
}

func TestRevealedCountMonotone(t *testing.T) {
	interval := int64(time.Minute)
	c := finishedCompetition(t, 8, interval, 0)
	prev := uint32(0)
	for now := int64(0); now <= 10*interval; now += interval / 3 {
		got := RevealedCount(c, now)
		if got < prev {
			t.Fatalf("revealed count shrank from %d to %d at now=%d", prev, got, now)
		}
		prev = got
	}
}

func TestRevealedCountZeroBeforeFinish(t *testing.T) {
	state := testutil.NewStateDB()
	c := drawnCompetition(t, state, 4, 10)
	if got := RevealedCount(c, 1<<60); got != 0 {
		t.Errorf("drawn but unfinished competition revealed %d ranks", got)
	}
}

func TestRevealedCountInstantWithZeroInterval(t *testing.T) {
	c := finishedCompetition(t, 4, 0, 100)
	if got := RevealedCount(c, 100); got != 4 {
		t.Errorf("zero interval: got %d want all 4", got)
	}
}

func TestRevealBestRankFirst(t *testing.T) {
	interval := int64(time.Hour)
	c := finishedCompetition(t, 5, interval, 0)

	// The winner is the very first thing unveiled.
	entries := Reveal(c, interval)
	if len(entries) != 1 {
		t.Fatalf("revealed entries after one interval: got %d want 1", len(entries))
	}
	if entries[0].Rank != 0 {
		t.Errorf("first revealed entry: got rank %d want 0", entries[0].Rank)
	}

	entries = Reveal(c, 2*interval)
	if len(entries) != 2 {
		t.Fatalf("revealed entries: got %d want 2", len(entries))
	}
	if entries[0].Rank != 0 || entries[1].Rank != 1 {
		t.Errorf("reveal order: got ranks %d,%d want 0,1", entries[0].Rank, entries[1].Rank)
	}
	shares := Entitlements(c.Curve, c.Collected, c.Sold())
	for _, e := range entries {
		if e.Ticket != c.Ranking[e.Rank] {
			t.Errorf("rank %d: ticket %d does not match ranking", e.Rank, e.Ticket)
		}
		if e.Owner != c.Entries[e.Ticket] {
			t.Errorf("rank %d: owner %s does not match entry", e.Rank, e.Owner)
		}
		if e.Entitlement != shares[e.Rank] {
			t.Errorf("rank %d: entitlement %d want %d", e.Rank, e.Entitlement, shares[e.Rank])
		}
	}

	if got := Reveal(c, 0); got != nil {
		t.Errorf("nothing should be revealed at finish time, got %d entries", len(got))
	}
}

func TestMineBeforeAndAfterDraw(t *testing.T) {
	state := testutil.NewStateDB()
	setCoordinator(t, state)
	c := openCompetition(t, state, 3, 10)

	// Pre-draw: tickets visible, ranks unknown.
	infos := Mine(c, buyerAddr(1))
	if len(infos) != 1 {
		t.Fatalf("tickets: got %d want 1", len(infos))
	}
	if infos[0].Ticket != 1 || infos[0].Rank != -1 || infos[0].Entitlement != 0 {
		t.Errorf("pre-draw info: %+v", infos[0])
	}

	if got := Mine(c, "stranger"); got != nil {
		t.Errorf("stranger should hold no tickets, got %v", got)
	}

	// Post-draw: rank and entitlement filled in.
	if err := handleDraw(ctxAt(state, operator, 4), mustJSON(t, core.CompetitionDrawPayload{CompetitionID: c.ID})); err != nil {
		t.Fatal(err)
	}
	c, _ = state.GetCompetition(c.ID)
	fulfill := mustJSON(t, core.RandomnessFulfillPayload{RequestID: c.RequestID, Value: "cafe0123"})
	if err := handleFulfill(ctxAt(state, coordinator, 5), fulfill); err != nil {
		t.Fatal(err)
	}
	c, _ = state.GetCompetition(c.ID)

	infos = Mine(c, buyerAddr(1))
	rankOf := invertRanking(c.Ranking)
	shares := Entitlements(c.Curve, c.Collected, c.Sold())
	if infos[0].Rank != int64(rankOf[1]) {
		t.Errorf("rank: got %d want %d", infos[0].Rank, rankOf[1])
	}
	if infos[0].Entitlement != shares[rankOf[1]] {
		t.Errorf("entitlement: got %d want %d", infos[0].Entitlement, shares[rankOf[1]])
	}
	if infos[0].Claimed {
		t.Error("unclaimed ticket reported claimed")
	}
}
