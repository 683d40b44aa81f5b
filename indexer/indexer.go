// Package indexer maintains secondary indexes over committed blocks so
// clients can list competitions by operator or buyer without scanning full
// state.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wingame/winchain/core"
	"github.com/wingame/winchain/events"
	"github.com/wingame/winchain/storage"
)

const (
	prefixOperatorComps = "idx:operator:comp:"
	prefixBuyerComps    = "idx:buyer:comp:"
)

// Indexer subscribes to chain events and updates secondary lookup tables.
type Indexer struct {
	db      storage.DB
	emitter *events.Emitter
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter) *Indexer {
	idx := &Indexer{db: db, emitter: emitter}
	emitter.Subscribe(events.EventCompetitionCreated, idx.onCompetitionCreated)
	emitter.Subscribe(events.EventTicketSold, idx.onTicketSold)
	return idx
}

// GetCompetitionsByOperator returns the IDs of competitions the given
// address created, in creation order.
func (idx *Indexer) GetCompetitionsByOperator(operator string) ([]uint64, error) {
	return idx.getList(prefixOperatorComps + operator)
}

// GetCompetitionsByBuyer returns the IDs of competitions the given address
// holds at least one ticket in.
func (idx *Indexer) GetCompetitionsByBuyer(buyer string) ([]uint64, error) {
	return idx.getList(prefixBuyerComps + buyer)
}

// ---- event handlers ----

func (idx *Indexer) onCompetitionCreated(ev events.Event) {
	operator, _ := ev.Data["operator"].(string)
	id, ok := ev.Data["competition_id"].(uint64)
	if operator == "" || !ok {
		return
	}
	_ = idx.addToList(prefixOperatorComps+operator, id)
}

func (idx *Indexer) onTicketSold(ev events.Event) {
	buyer, _ := ev.Data["buyer"].(string)
	id, ok := ev.Data["competition_id"].(uint64)
	if buyer == "" || !ok {
		return
	}
	// One entry per buyer per competition regardless of ticket count.
	_ = idx.addToListOnce(prefixBuyerComps+buyer, id)
}

// ---- list helpers ----

func (idx *Indexer) getList(key string) ([]uint64, error) {
	data, err := idx.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil // empty list
		}
		return nil, err
	}
	var ids []uint64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("indexer unmarshal: %w", err)
	}
	return ids, nil
}

func (idx *Indexer) addToList(key string, value uint64) error {
	ids, _ := idx.getList(key)
	ids = append(ids, value)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}

func (idx *Indexer) addToListOnce(key string, value uint64) error {
	ids, _ := idx.getList(key)
	for _, id := range ids {
		if id == value {
			return nil
		}
	}
	ids = append(ids, value)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return idx.db.Set([]byte(key), data)
}
