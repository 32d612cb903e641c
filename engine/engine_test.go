package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testOptions(t *testing.T) Options {
	opts := DefaultOptions()
	opts.Dir = t.TempDir()
	opts.FlushThreshold = 200
	opts.CompactionEntryThreshold = 200
	return opts
}

func TestPutGetRoundTrip(t *testing.T) {
	e, err := Open(testOptions(t))
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Put("users", "alice", map[string]any{"age": 30}))

	raw, ok, err := e.Get("users", "alice")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"age":30}`, string(raw))

	var out map[string]any
	ok, err = e.GetValue("users", "alice", &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 30, out["age"])
}

func TestGetMissingKeyReturnsFalse(t *testing.T) {
	e, err := Open(testOptions(t))
	require.NoError(t, err)
	defer e.Close()

	_, ok, err := e.Get("users", "nobody")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteShadowsValue(t *testing.T) {
	e, err := Open(testOptions(t))
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Put("users", "bob", "hello"))
	require.NoError(t, e.Delete("users", "bob"))

	_, ok, err := e.Get("users", "bob")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFlushAtThresholdMovesDataToL0(t *testing.T) {
	opts := testOptions(t)
	opts.FlushThreshold = 200
	opts.CompactionEntryThreshold = 1 << 30 // keep the flushed entries in L0
	e, err := Open(opts)
	require.NoError(t, err)
	defer e.Close()

	for i := 0; i < 201; i++ {
		key := "k" + string(rune('a'+i%26)) + string(rune('0'+i/26))
		require.NoError(t, e.Put("col", key, i))
	}

	e.mu.Lock()
	memSize := e.mem.Size()
	l0Entries := totalEntries(e.levels[0])
	e.mu.Unlock()

	require.Less(t, memSize, 201)
	require.Greater(t, l0Entries, 0)
}

func TestCrashRecoveryReplaysWAL(t *testing.T) {
	opts := testOptions(t)

	e, err := Open(opts)
	require.NoError(t, err)
	require.NoError(t, e.Put("users", "carol", "hi"))
	require.NoError(t, e.Put("users", "dave", "yo"))
	require.NoError(t, e.Delete("users", "dave"))
	// Simulate a crash: no Close(), WAL is left on disk un-truncated.

	e2, err := Open(opts)
	require.NoError(t, err)
	defer e2.Close()

	raw, ok, err := e2.Get("users", "carol")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `"hi"`, string(raw))

	_, ok, err = e2.Get("users", "dave")
	require.NoError(t, err)
	require.False(t, ok)

	walInfo, err := os.Stat(filepath.Join(opts.Dir, "wal.log"))
	require.NoError(t, err)
	require.Zero(t, walInfo.Size())
}

func TestQueryOrdersAcrossMemtableAndSSTable(t *testing.T) {
	e, err := Open(testOptions(t))
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Put("col", "b", 2))
	require.NoError(t, e.Put("col", "d", 4))
	require.NoError(t, e.Flush())
	require.NoError(t, e.Put("col", "a", 1))
	require.NoError(t, e.Put("col", "c", 3))

	results, err := e.Query("col", "a", "d")
	require.NoError(t, err)
	require.Len(t, results, 4)
	keys := make([]string, len(results))
	for i, r := range results {
		keys[i] = r.Key
	}
	require.Equal(t, []string{"a", "b", "c", "d"}, keys)
}

func TestQueryRespectsTombstones(t *testing.T) {
	e, err := Open(testOptions(t))
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Put("col", "a", 1))
	require.NoError(t, e.Put("col", "b", 2))
	require.NoError(t, e.Flush())
	require.NoError(t, e.Delete("col", "a"))

	results, err := e.Query("col", "a", "b")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "b", results[0].Key)
}

func TestBloomFilterShortCircuitsMiss(t *testing.T) {
	e, err := Open(testOptions(t))
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Put("col", "present", 1))
	require.NoError(t, e.Flush())

	require.False(t, e.bf.Check("col:absent-probe-key"))

	_, ok, err := e.Get("col", "absent-probe-key")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestColumnAndKeyLengthLimits(t *testing.T) {
	e, err := Open(testOptions(t))
	require.NoError(t, err)
	defer e.Close()

	long := make([]byte, 33)
	for i := range long {
		long[i] = 'x'
	}

	err = e.Put(string(long), "k", 1)
	require.ErrorIs(t, err, ErrColumnTooLong)

	err = e.Put("col", string(long), 1)
	require.ErrorIs(t, err, ErrKeyTooLong)
}

func TestCompactionCascadesAndDropsTombstonesAtLastLevel(t *testing.T) {
	opts := testOptions(t)
	opts.FlushThreshold = 1 << 30 // force manual flush/compact control
	opts.CompactionEntryThreshold = 2
	e, err := Open(opts)
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Put("col", "a", 1))
	require.NoError(t, e.Put("col", "b", 2))
	require.NoError(t, e.Put("col", "c", 3))
	require.NoError(t, e.Delete("col", "a"))
	require.NoError(t, e.Flush())

	e.mu.Lock()
	l2 := e.readAllColumns(e.levels[numLevels-1])
	e.mu.Unlock()

	if kv, ok := l2["col"]; ok {
		if r, ok := kv["a"]; ok {
			require.False(t, r.Tombstone, "tombstone should be dropped once it reaches the cold-sink level")
		}
	}
}

func TestColumnsPartitionIndependently(t *testing.T) {
	e, err := Open(testOptions(t))
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Put("a", "k", "in-a"))
	require.NoError(t, e.Put("b", "k", "in-b"))

	raw, ok, err := e.Get("a", "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `"in-a"`, string(raw))

	raw, ok, err = e.Get("b", "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `"in-b"`, string(raw))
}

func TestClosedEngineRejectsOperations(t *testing.T) {
	e, err := Open(testOptions(t))
	require.NoError(t, err)
	require.NoError(t, e.Close())

	err = e.Put("col", "k", 1)
	require.ErrorIs(t, err, ErrClosed)

	_, _, err = e.Get("col", "k")
	require.ErrorIs(t, err, ErrClosed)
}
