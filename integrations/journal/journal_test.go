package journal

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"esimchain/core/events"
	"esimchain/core/types"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := Open("sqlite", dsn)
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return New(db, nil)
}

func TestJournalRecordsAndQueriesByAsset(t *testing.T) {
	j := newTestJournal(t)
	base := time.Unix(1_700_000_000, 0)
	step := 0
	j.nowFn = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	j.Emit(events.Wrap(&types.Event{Type: "esim.minted", Attributes: map[string]string{"assetId": "1", "owner": "esim1abc"}}))
	j.Emit(events.Wrap(&types.Event{Type: "esim.minted", Attributes: map[string]string{"assetId": "2"}}))
	j.Emit(events.Wrap(&types.Event{Type: "market.listed", Attributes: map[string]string{"assetId": "1"}}))

	entries, err := j.ForAsset(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "esim.minted", entries[0].Type)
	require.Equal(t, "market.listed", entries[1].Type)

	attrs, err := entries[0].Decode()
	require.NoError(t, err)
	require.Equal(t, "esim1abc", attrs["owner"])

	recent, err := j.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.Equal(t, "market.listed", recent[0].Type)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "")
	require.Error(t, err)
}
