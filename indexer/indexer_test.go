package indexer_test

import (
	"testing"

	"github.com/wingame/winchain/events"
	"github.com/wingame/winchain/indexer"
	"github.com/wingame/winchain/internal/testutil"
)

func TestOperatorIndex(t *testing.T) {
	db := testutil.NewMemDB()
	emitter := events.NewEmitter()
	idx := indexer.New(db, emitter)

	for _, id := range []uint64{0, 1, 5} {
		emitter.Emit(events.Event{
			Type: events.EventCompetitionCreated,
			Data: map[string]any{"competition_id": id, "operator": "op-a"},
		})
	}
	emitter.Emit(events.Event{
		Type: events.EventCompetitionCreated,
		Data: map[string]any{"competition_id": uint64(2), "operator": "op-b"},
	})

	ids, err := idx.GetCompetitionsByOperator("op-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 || ids[0] != 0 || ids[1] != 1 || ids[2] != 5 {
		t.Errorf("op-a competitions: %v", ids)
	}
	ids, _ = idx.GetCompetitionsByOperator("op-b")
	if len(ids) != 1 || ids[0] != 2 {
		t.Errorf("op-b competitions: %v", ids)
	}
	ids, _ = idx.GetCompetitionsByOperator("nobody")
	if ids != nil {
		t.Errorf("unknown operator: %v", ids)
	}
}

func TestBuyerIndexDeduplicates(t *testing.T) {
	db := testutil.NewMemDB()
	emitter := events.NewEmitter()
	idx := indexer.New(db, emitter)

	// Three tickets in competition 4 and one in competition 9.
	for i := 0; i < 3; i++ {
		emitter.Emit(events.Event{
			Type: events.EventTicketSold,
			Data: map[string]any{"competition_id": uint64(4), "buyer": "alice"},
		})
	}
	emitter.Emit(events.Event{
		Type: events.EventTicketSold,
		Data: map[string]any{"competition_id": uint64(9), "buyer": "alice"},
	})

	ids, err := idx.GetCompetitionsByBuyer("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != 4 || ids[1] != 9 {
		t.Errorf("alice competitions: %v", ids)
	}
}

func TestIndexIgnoresMalformedEvents(t *testing.T) {
	db := testutil.NewMemDB()
	emitter := events.NewEmitter()
	idx := indexer.New(db, emitter)

	emitter.Emit(events.Event{Type: events.EventTicketSold, Data: map[string]any{"buyer": "alice"}})
	emitter.Emit(events.Event{Type: events.EventCompetitionCreated, Data: map[string]any{"competition_id": uint64(1)}})

	if ids, _ := idx.GetCompetitionsByBuyer("alice"); ids != nil {
		t.Errorf("malformed sale indexed: %v", ids)
	}
}
