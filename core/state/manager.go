package state

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"esimchain/storage"
)

var (
	rootKey   = []byte("meta/state-root")
	heightKey = []byte("meta/state-height")
)

// Manager stages reads and writes for a single ledger operation. Writes are
// held in an in-memory journal until Commit persists them in one batch;
// Discard drops them. A Manager is not safe for concurrent use; the node
// serialises operations before handing one out.
type Manager struct {
	db      storage.Database
	writes  map[string][]byte
	deletes map[string]struct{}
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{
		db:      db,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) getRaw(hashed []byte) ([]byte, bool, error) {
	k := string(hashed)
	if _, deleted := m.deletes[k]; deleted {
		return nil, false, nil
	}
	if value, ok := m.writes[k]; ok {
		return value, true, nil
	}
	if m.db == nil {
		return nil, false, errors.New("state: database not configured")
	}
	value, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (m *Manager) putRaw(hashed, value []byte) {
	k := string(hashed)
	delete(m.deletes, k)
	m.writes[k] = value
}

// KVGet decodes the RLP value stored under key into out. The boolean reports
// whether the key exists.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	data, ok, err := m.getRaw(kvKey(key))
	if err != nil || !ok {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

// KVPut RLP-encodes value and stages it under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	m.putRaw(kvKey(key), encoded)
	return nil
}

// KVDelete stages the removal of key.
func (m *Manager) KVDelete(key []byte) error {
	hashed := string(kvKey(key))
	delete(m.writes, hashed)
	m.deletes[hashed] = struct{}{}
	return nil
}

// Dirty reports whether the journal holds staged changes.
func (m *Manager) Dirty() bool {
	return len(m.writes) > 0 || len(m.deletes) > 0
}

// Discard drops every staged change.
func (m *Manager) Discard() {
	m.writes = make(map[string][]byte)
	m.deletes = make(map[string]struct{})
}

// Root returns the last committed state root.
func (m *Manager) Root() (common.Hash, error) {
	data, ok, err := m.getRaw(rootKey)
	if err != nil || !ok {
		return common.Hash{}, err
	}
	return common.BytesToHash(data), nil
}

// Height returns the number of committed changesets.
func (m *Manager) Height() (uint64, error) {
	var height uint64
	if _, err := m.KVGet(heightKey, &height); err != nil {
		return 0, err
	}
	return height, nil
}

// Commit persists the staged changes atomically and advances the state root.
// The new root chains the previous root with the root of the changeset trie so
// two nodes that applied the same operations agree on it.
func (m *Manager) Commit() (common.Hash, error) {
	if !m.Dirty() {
		return m.Root()
	}
	prev, err := m.Root()
	if err != nil {
		return common.Hash{}, err
	}
	height, err := m.Height()
	if err != nil {
		return common.Hash{}, err
	}
	changes := m.changeset()
	changeRoot, err := ComputeChangesetRoot(changes)
	if err != nil {
		return common.Hash{}, err
	}
	root := common.BytesToHash(ethcrypto.Keccak256(prev.Bytes(), changeRoot.Bytes()))
	if err := m.KVPut(heightKey, height+1); err != nil {
		return common.Hash{}, err
	}
	m.putRaw(rootKey, root.Bytes())

	batch := m.db.NewBatch()
	for k, v := range m.writes {
		batch.Put([]byte(k), v)
	}
	for k := range m.deletes {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return common.Hash{}, fmt.Errorf("state: commit: %w", err)
	}
	m.Discard()
	return root, nil
}

func (m *Manager) changeset() []ChangeEntry {
	entries := make([]ChangeEntry, 0, len(m.writes)+len(m.deletes))
	for k, v := range m.writes {
		entries = append(entries, ChangeEntry{Key: []byte(k), Value: v})
	}
	for k := range m.deletes {
		entries = append(entries, ChangeEntry{Key: []byte(k), Deleted: true})
	}
	sort.Slice(entries, func(i, j int) bool {
		return string(entries[i].Key) < string(entries[j].Key)
	})
	return entries
}
