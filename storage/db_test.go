package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()
	_, err := db.Get([]byte("missing"))
	require.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, db.Put([]byte("a"), []byte("1")))
	value, err := db.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), value)

	batch := db.NewBatch()
	batch.Put([]byte("b"), []byte("2"))
	batch.Delete([]byte("a"))
	require.Equal(t, 2, batch.Len())
	require.NoError(t, batch.Write())

	ok, err := db.Has([]byte("a"))
	require.NoError(t, err)
	require.False(t, ok)
	value, err = db.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), value)

	require.NoError(t, db.Delete([]byte("b")))
	ok, err = db.Has([]byte("b"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemDB(t *testing.T) {
	exerciseDatabase(t, NewMemDB())
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "ledger"))
	require.NoError(t, err)
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestBoltDB(t *testing.T) {
	db, err := NewBoltDB(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("cassandra", t.TempDir())
	require.Error(t, err)
}
