package state

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb"
)

// tombstone marks deleted keys inside a changeset trie; it is the RLP encoding
// of the empty string and never a valid stored record.
var tombstone = []byte{0x80}

// ChangeEntry is a single staged write inside a committed changeset.
type ChangeEntry struct {
	Key     []byte
	Value   []byte
	Deleted bool
}

// ComputeChangesetRoot builds a Merkle-Patricia trie over the changeset and
// returns its root hash. An empty changeset yields the empty trie root.
func ComputeChangesetRoot(entries []ChangeEntry) (common.Hash, error) {
	backend := memorydb.New()
	db := rawdb.NewDatabase(backend)
	trieDB := triedb.NewDatabase(db, triedb.HashDefaults)
	trie, err := gethtrie.New(gethtrie.TrieID(gethtypes.EmptyRootHash), trieDB)
	if err != nil {
		return common.Hash{}, err
	}
	for _, entry := range entries {
		value := entry.Value
		if entry.Deleted || len(value) == 0 {
			value = tombstone
		}
		if err := trie.Update(entry.Key, value); err != nil {
			return common.Hash{}, err
		}
	}
	return trie.Hash(), nil
}
