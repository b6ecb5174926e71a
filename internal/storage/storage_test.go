package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "chronos/pkg/logx"
)

func rec(i int) Record {
	return Record{
		At:        time.Unix(int64(1_700_000_000+i), 0).UTC(),
		Kind:      "timer.fired",
		Source:    "timer",
		ID:        fmt.Sprintf("t-%d", i),
		Iteration: uint64(i),
	}
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		require.NoError(t, err)
		assert.Nil(t, st)
	}
	_, err := Open(Config{Driver: "redis"}, logx.Nop())
	assert.Error(t, err)
	_, err = Open(Config{Driver: "file"}, logx.Nop())
	assert.Error(t, err)
}

func TestStores(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "journal.db")
			st, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
			require.NoError(t, err)

			for i := 1; i <= 5; i++ {
				require.NoError(t, st.Append(ctx, rec(i)))
			}
			require.NoError(t, st.Append(ctx, Record{Kind: "event.fired", Source: "event", ID: "1", Detail: "immediate", MetaJSON: `{"user":"windy"}`}))

			got, err := st.Recent(ctx, 3)
			require.NoError(t, err)
			require.Len(t, got, 3)
			assert.Equal(t, "t-4", got[0].ID)
			assert.Equal(t, "t-5", got[1].ID)
			assert.EqualValues(t, 5, got[1].Iteration)
			assert.Equal(t, "event", got[2].Source)
			assert.Equal(t, `{"user":"windy"}`, got[2].MetaJSON)

			none, err := st.Recent(ctx, 0)
			require.NoError(t, err)
			assert.Empty(t, none)
			require.NoError(t, st.Close())

			// Reopening keeps the history.
			st, err = Open(Config{Driver: driver, Path: path}, logx.Nop())
			require.NoError(t, err)
			defer st.Close()
			all, err := st.Recent(ctx, 100)
			require.NoError(t, err)
			assert.Len(t, all, 6)
			assert.Equal(t, "t-1", all[0].ID)
			assert.True(t, all[0].At.Equal(rec(1).At))
		})
	}
}

func TestFileStoreCompacts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "j"), Retain: 3}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	for i := 1; i <= 7; i++ {
		require.NoError(t, st.Append(ctx, rec(i)))
	}
	fs := st.(*fileStore)
	// Compacted to 3 at the 6th append, then one more line.
	assert.Equal(t, 4, fs.lines)

	got, err := st.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "t-4", got[0].ID)
	assert.Equal(t, "t-7", got[3].ID)
}

func TestReadTailRing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "ring.jsonl")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	for i := 1; i <= 10; i++ {
		require.NoError(t, st.Append(ctx, rec(i)))
	}
	got, err := st.Recent(ctx, 4)
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"t-7", "t-8", "t-9", "t-10"}, ids)
}
