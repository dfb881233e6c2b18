package recovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() *Snapshot {
	return &Snapshot{
		Round:  3,
		Dealer: 2,
		Players: []SeatRecord{
			{PlayerID: "host-player", Name: "Host"},
			{PlayerID: "ada-player", Name: "Ada"},
			{PlayerID: "bea-player", Name: "Bea"},
			{PlayerID: "cal-player", Name: "Cal"},
		},
		Hands:      [][]int{{1, 2}, {14, 15}, {27, 28}, {40, 41}},
		Trick:      1,
		TrickCards: []int{1},
		ToLead:     0,
		LastToLead: -1,
		Made:       []int{0, 0, 0, 0},
		Twos:       []int{0, 0, 0, 0},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "recovery.json")
	store := NewStore(path)

	_, ok := store.Load()
	assert.False(t, ok, "missing file means no resume offer")

	store.Save(testSnapshot())
	got, ok := store.Load()
	require.True(t, ok)
	assert.Equal(t, testSnapshot(), got)
}

func TestStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recovery.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, ok := NewStore(path).Load()
	assert.False(t, ok, "corrupt file means no resume offer")
}

func TestStoreRejectsEmptySnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recovery.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"round":0}`), 0o644))

	_, ok := NewStore(path).Load()
	assert.False(t, ok)
}

func TestStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recovery.json")
	store := NewStore(path)
	store.Save(testSnapshot())

	store.Clear()
	_, ok := store.Load()
	assert.False(t, ok)
}
