package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/wingame/winchain/core"
	"github.com/wingame/winchain/crypto"
)

// registerPrefix records a state-key prefix into statePrefixes so that
// ComputeRoot() always covers it.  All prefix constants must be declared
// via this function; manually editing statePrefixes is not required.
func registerPrefix(p string) string {
	statePrefixes = append(statePrefixes, p)
	return p
}

// statePrefixes is populated automatically by registerPrefix() below.
// ComputeRoot() iterates these prefixes to build the full world-state view.
var statePrefixes []string

var (
	prefixAccount     = registerPrefix("acct:")
	prefixCompetition = registerPrefix("comp:")
	prefixRandReq     = registerPrefix("rand:req:")
	prefixOracle      = registerPrefix("oracle:")
	prefixToken       = registerPrefix("tok:")
	prefixMeta        = registerPrefix("meta:")
)

const (
	keyOracle  = "oracle:config"
	keyCompSeq = "meta:comp_seq"
)

type stateSnapshot struct {
	dirty   map[string][]byte
	deleted map[string]bool
}

// StateDB implements core.State on top of a DB with in-memory write buffer,
// snapshot/rollback, and deterministic state-root computation.
type StateDB struct {
	db        DB
	dirty     map[string][]byte
	deleted   map[string]bool
	snapshots []stateSnapshot
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// ---- internal helpers ----

func (s *StateDB) get(key string) ([]byte, error) {
	if s.deleted[key] {
		return nil, core.ErrNotFound
	}
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	delete(s.deleted, key)
	s.dirty[key] = val
}

func (s *StateDB) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.set(key, data)
	return nil
}

// competitionKey formats IDs fixed-width so prefix iteration walks them in
// numeric order.
func competitionKey(id uint64) string {
	return fmt.Sprintf("%s%016x", prefixCompetition, id)
}

func randReqKey(id uint64) string {
	return fmt.Sprintf("%s%016x", prefixRandReq, id)
}

// ---- Account ----

func (s *StateDB) GetAccount(address string) (*core.Account, error) {
	data, err := s.get(prefixAccount + address)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Account{Address: address}, nil // zero-value account
	}
	if err != nil {
		return nil, err
	}
	var acc core.Account
	if err := json.Unmarshal(data, &acc); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	return s.setJSON(prefixAccount+acc.Address, acc)
}

// ---- Competition ----

func (s *StateDB) GetCompetition(id uint64) (*core.Competition, error) {
	data, err := s.get(competitionKey(id))
	if err != nil {
		return nil, err
	}
	var c core.Competition
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *StateDB) SetCompetition(c *core.Competition) error {
	return s.setJSON(competitionKey(c.ID), c)
}

func (s *StateDB) NextCompetitionID() (uint64, error) {
	var next uint64
	data, err := s.get(keyCompSeq)
	if err == nil {
		next, err = strconv.ParseUint(string(data), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("corrupt competition sequence: %w", err)
		}
	} else if !errors.Is(err, core.ErrNotFound) {
		return 0, err
	}
	s.set(keyCompSeq, []byte(strconv.FormatUint(next+1, 10)))
	return next, nil
}

// ---- Randomness requests ----

func (s *StateDB) GetRandomnessRequest(requestID uint64) (uint64, error) {
	data, err := s.get(randReqKey(requestID))
	if err != nil {
		return 0, err
	}
	compID, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt randomness request %d: %w", requestID, err)
	}
	return compID, nil
}

func (s *StateDB) SetRandomnessRequest(requestID, competitionID uint64) error {
	s.set(randReqKey(requestID), []byte(strconv.FormatUint(competitionID, 10)))
	return nil
}

// ---- Oracle ----

func (s *StateDB) GetOracle() (*core.Oracle, error) {
	data, err := s.get(keyOracle)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Oracle{NextRequestID: 1}, nil
	}
	if err != nil {
		return nil, err
	}
	var o core.Oracle
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, err
	}
	if o.NextRequestID == 0 {
		o.NextRequestID = 1
	}
	return &o, nil
}

func (s *StateDB) SetOracle(o *core.Oracle) error {
	return s.setJSON(keyOracle, o)
}

// ---- Tokens ----

func (s *StateDB) GetToken(id string) (*core.Token, error) {
	data, err := s.get(prefixToken + "def:" + id)
	if err != nil {
		return nil, err
	}
	var t core.Token
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *StateDB) SetToken(t *core.Token) error {
	return s.setJSON(prefixToken+"def:"+t.ID, t)
}

func (s *StateDB) GetTokenBalance(tokenID, address string) (uint64, error) {
	data, err := s.get(prefixToken + "bal:" + tokenID + ":" + address)
	if errors.Is(err, core.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	bal, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt token balance %s/%s: %w", tokenID, address, err)
	}
	return bal, nil
}

func (s *StateDB) SetTokenBalance(tokenID, address string, amount uint64) error {
	s.set(prefixToken+"bal:"+tokenID+":"+address, []byte(strconv.FormatUint(amount, 10)))
	return nil
}

func (s *StateDB) GetAllowance(tokenID, owner, spender string) (uint64, error) {
	data, err := s.get(prefixToken + "allow:" + tokenID + ":" + owner + ":" + spender)
	if errors.Is(err, core.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	amt, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt allowance %s/%s/%s: %w", tokenID, owner, spender, err)
	}
	return amt, nil
}

func (s *StateDB) SetAllowance(tokenID, owner, spender string, amount uint64) error {
	s.set(prefixToken+"allow:"+tokenID+":"+owner+":"+spender, []byte(strconv.FormatUint(amount, 10)))
	return nil
}

// ---- Snapshot / Rollback / Commit ----

// Snapshot saves the current write buffer and returns a snapshot ID.
func (s *StateDB) Snapshot() (int, error) {
	snap := stateSnapshot{
		dirty:   make(map[string][]byte, len(s.dirty)),
		deleted: make(map[string]bool, len(s.deleted)),
	}
	for k, v := range s.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		snap.dirty[k] = cp
	}
	for k, v := range s.deleted {
		snap.deleted[k] = v
	}
	s.snapshots = append(s.snapshots, snap)
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot restores the write buffer to a previously saved snapshot.
// The snapshot maps are deep-copied so that subsequent writes cannot corrupt them.
func (s *StateDB) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	snap := s.snapshots[id]

	dirty := make(map[string][]byte, len(snap.dirty))
	for k, v := range snap.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		dirty[k] = cp
	}
	deleted := make(map[string]bool, len(snap.deleted))
	for k, v := range snap.deleted {
		deleted[k] = v
	}

	s.dirty = dirty
	s.deleted = deleted
	s.snapshots = s.snapshots[:id]
	return nil
}

// ComputeRoot returns the deterministic hash of the complete world state.
// It merges all persisted state entries (scanned from DB by the known state
// prefixes) with the current write buffer, then hashes the sorted key-value
// pairs using length-prefix encoding.  It does NOT flush or modify state,
// so it is safe to call before signing a block.
func (s *StateDB) ComputeRoot() string {
	merged := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		it := s.db.NewIterator([]byte(prefix))
		for it.Next() {
			k := string(it.Key())
			v := make([]byte, len(it.Value()))
			copy(v, it.Value())
			merged[k] = v
		}
		it.Release()
	}

	// Apply in-memory write buffer (uncommitted changes this block).
	for k, v := range s.dirty {
		merged[k] = v
	}
	for k := range s.deleted {
		delete(merged, k)
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range keys {
		v := merged[k]
		kb := []byte(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(kb)))
		buf.Write(lenBuf[:])
		buf.Write(kb)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

// Commit atomically flushes the write buffer to the underlying DB via a
// batch and then clears it. Call ComputeRoot() before signing the block,
// then call Commit() after the block is safely stored.
func (s *StateDB) Commit() error {
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	for k := range s.deleted {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.deleted = make(map[string]bool)
	s.snapshots = nil
	return nil
}
