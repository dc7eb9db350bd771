package rundb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartAndFinishRunRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	start := time.Unix(1000, 0)
	id, err := db.StartRun("mon0", start)
	require.NoError(t, err)
	require.NotZero(t, id)

	end := time.Unix(1100, 0)
	require.NoError(t, db.FinishRun(id, end, 5, 200, 3, "signal"))

	runs, err := db.Recent(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "mon0", runs[0].Interface)
	assert.Equal(t, 5, runs[0].NetworksSeen)
	assert.Equal(t, 200, runs[0].PacketsSeen)
	assert.Equal(t, "signal", runs[0].ExitReason)
	assert.Equal(t, end.Unix(), runs[0].EndedAt.Unix())
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	id1, err := db.StartRun("mon0", time.Unix(1, 0))
	require.NoError(t, err)
	require.NoError(t, db.FinishRun(id1, time.Unix(2, 0), 1, 1, 0, "signal"))

	id2, err := db.StartRun("mon0", time.Unix(3, 0))
	require.NoError(t, err)
	require.NoError(t, db.FinishRun(id2, time.Unix(4, 0), 2, 2, 0, "signal"))

	runs, err := db.Recent(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, id2, runs[0].ID)
	assert.Equal(t, id1, runs[1].ID)
}

func TestRecentRespectsLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	for i := 0; i < 5; i++ {
		id, err := db.StartRun("mon0", time.Unix(int64(i), 0))
		require.NoError(t, err)
		require.NoError(t, db.FinishRun(id, time.Unix(int64(i+1), 0), i, i, 0, "signal"))
	}

	runs, err := db.Recent(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}
