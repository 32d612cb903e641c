// Package engine orchestrates the memtable, WAL, and leveled SSTables: it
// is the only component a host process talks to. Put/Get/Delete/Query are
// all serialized behind a single mutex; a background worker performs a
// periodic flush on the same lock.
package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/embedkv/colstore/bloom"
	"github.com/embedkv/colstore/compaction"
	"github.com/embedkv/colstore/memtable"
	"github.com/embedkv/colstore/sstable"
	"github.com/embedkv/colstore/wal"
)

const (
	maxColumnLen = 32
	maxKeyLen    = 32
)

// QueryResult is one (key, value) pair returned by Query, already decided
// by the MemTable/L0/.../Lk-1 precedence rule.
type QueryResult struct {
	Key   string
	Value []byte
}

type Engine struct {
	mu     sync.Mutex
	closed bool

	opts    Options
	dir     string
	walPath string

	w   *wal.WAL
	mem *memtable.Memtable
	bf  *bloom.Filter
	seq uint64

	levels [numLevels]*sstable.Table

	stopBg chan struct{}
	bgDone chan struct{}
}

// Open creates the directory if missing, loads SSTable indexes, rebuilds
// the bloom filter, replays the WAL into the memtable, truncates the WAL,
// and starts the background flush timer.
func Open(opts Options) (*Engine, error) {
	opts.fillDefaults()

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryInit, err)
	}

	e := &Engine{
		opts:    opts,
		dir:     opts.Dir,
		walPath: filepath.Join(opts.Dir, "wal.log"),
		mem:     memtable.New(),
		bf:      bloom.New(opts.BloomBits, opts.BloomK),
		seq:     1,
	}

	for i := 0; i < numLevels; i++ {
		t, err := sstable.Open(e.levelPath(i), opts.Compressor, opts.Serializer)
		if err != nil {
			if !errors.Is(err, sstable.ErrCorrupt) {
				return nil, err
			}
			// SSTableCorruption is non-fatal at open: Open still returns
			// a usable (empty-index) table alongside ErrCorrupt, so
			// recovery continues with that level treated as empty.
			opts.Logger.Warn("sstable index unreadable at open, treating as empty",
				zap.Int("level", i), zap.Error(err))
		}
		e.levels[i] = t
	}

	if err := e.rebuildBloom(); err != nil {
		return nil, err
	}

	maxSeq, err := e.replayWAL()
	if err != nil {
		return nil, err
	}
	// Sequence numbers continue past every record already on disk, not just
	// those in the WAL, so writes made after a restart win over flushed ones.
	for _, t := range e.levels {
		for _, col := range t.Columns() {
			kv, err := t.Read(col)
			if err != nil {
				continue
			}
			for _, r := range kv {
				if r.Seq > maxSeq {
					maxSeq = r.Seq
				}
			}
		}
	}
	e.seq = maxSeq + 1

	w, err := wal.Open(e.walPath)
	if err != nil {
		return nil, err
	}
	if err := w.Clear(); err != nil {
		return nil, err
	}
	e.w = w

	e.stopBg = make(chan struct{})
	e.bgDone = make(chan struct{})
	go e.backgroundFlushLoop()

	return e, nil
}

func (e *Engine) levelPath(i int) string {
	return filepath.Join(e.dir, fmt.Sprintf("sstable_%d.db", i))
}

func (e *Engine) rebuildBloom() error {
	for _, t := range e.levels {
		for _, col := range t.Columns() {
			kv, err := t.Read(col)
			if err != nil {
				e.opts.Logger.Warn("sstable column unreadable while rebuilding bloom filter",
					zap.String("column", col), zap.Error(err))
				continue
			}
			for key := range kv {
				e.bf.Add(col + ":" + key)
			}
		}
	}
	return nil
}

func (e *Engine) replayWAL() (uint64, error) {
	var maxSeq uint64
	err := wal.Replay(e.walPath, func(r wal.Record) {
		if r.Seq > maxSeq {
			maxSeq = r.Seq
		}
		switch r.Op {
		case wal.OpPut:
			raw, err := e.opts.Compressor.Decompress(r.Value)
			if err != nil {
				e.opts.Logger.Warn("wal record failed to decompress, skipping",
					zap.String("column", r.Column), zap.String("key", r.Key), zap.Error(err))
				return
			}
			e.mem.Put(r.Column, r.Key, memtable.Record{Value: raw, Seq: r.Seq})
			e.bf.Add(r.Column + ":" + r.Key)
		case wal.OpDelete:
			e.mem.Put(r.Column, r.Key, memtable.Record{Tombstone: true, Seq: r.Seq})
		}
	})
	return maxSeq, err
}

// Close stops the background worker and closes the WAL. Safe to call more
// than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	stop := e.stopBg
	e.mu.Unlock()

	close(stop)
	<-e.bgDone

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.w.Close()
}

func (e *Engine) backgroundFlushLoop() {
	defer close(e.bgDone)
	ticker := time.NewTicker(e.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopBg:
			return
		case <-ticker.C:
			e.mu.Lock()
			if !e.closed {
				if err := e.flushLocked(); err != nil {
					e.opts.Logger.Error("background flush failed", zap.Error(err))
				}
			}
			e.mu.Unlock()
		}
	}
}

func validateColumnKey(column, key string) error {
	if len(column) > maxColumnLen {
		return ErrColumnTooLong
	}
	if len(key) > maxKeyLen {
		return ErrKeyTooLong
	}
	return nil
}

// Put encodes value via the configured Serializer, durably appends a WAL
// record, updates the memtable, adds the entry to the bloom filter, and
// flushes synchronously if the memtable size threshold is exceeded.
func (e *Engine) Put(column, key string, value any) error {
	if err := validateColumnKey(column, key); err != nil {
		return err
	}
	raw, err := e.opts.Serializer.Encode(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	walPayload, err := e.opts.Compressor.Compress(raw)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	seq := e.seq
	e.seq++
	if err := e.w.Append(wal.OpPut, column, key, seq, walPayload); err != nil {
		return fmt.Errorf("%w: %v", ErrWalIO, err)
	}
	e.mem.Put(column, key, memtable.Record{Value: raw, Seq: seq})
	e.bf.Add(column + ":" + key)

	if e.mem.Size() > e.opts.FlushThreshold {
		return e.flushLocked()
	}
	return nil
}

// Delete appends a delete WAL record and records a tombstone in the
// memtable. It does not synchronously touch any SSTable; the tombstone
// reaches disk on the next flush and shadows older values until
// compaction drops it.
func (e *Engine) Delete(column, key string) error {
	if err := validateColumnKey(column, key); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	seq := e.seq
	e.seq++
	if err := e.w.Append(wal.OpDelete, column, key, seq, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrWalIO, err)
	}
	e.mem.Put(column, key, memtable.Record{Tombstone: true, Seq: seq})
	return nil
}

// Get consults the bloom filter first; on a definite miss it returns
// (nil, false, nil) without touching any SSTable. On a maybe-hit it
// checks the memtable, then scans L0..Lk-1 in order; the first occurrence
// wins. The returned bytes are the raw Serializer-encoded document.
func (e *Engine) Get(column, key string) ([]byte, bool, error) {
	if err := validateColumnKey(column, key); err != nil {
		return nil, false, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, false, ErrClosed
	}

	if !e.bf.Check(column + ":" + key) {
		return nil, false, nil
	}

	if r, ok := e.mem.Get(column, key); ok {
		if r.Tombstone {
			return nil, false, nil
		}
		return r.Value, true, nil
	}

	for i := 0; i < numLevels; i++ {
		kv, err := e.levels[i].Read(column)
		if err != nil {
			e.opts.Logger.Warn("sstable column unreadable during get, skipping",
				zap.Int("level", i), zap.String("column", column), zap.Error(err))
			continue
		}
		if r, ok := kv[key]; ok {
			if r.Tombstone {
				return nil, false, nil
			}
			return r.Value, true, nil
		}
	}
	return nil, false, nil
}

// GetValue is a convenience wrapper that decodes the stored document into
// out via the configured Serializer.
func (e *Engine) GetValue(column, key string, out any) (bool, error) {
	raw, ok, err := e.Get(column, key)
	if err != nil || !ok {
		return ok, err
	}
	if err := e.opts.Serializer.Decode(raw, out); err != nil {
		return true, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return true, nil
}

// Query returns every (key, value) in column with startKey <= key <=
// endKey, inclusive on both ends, ascending by key, each key appearing at
// most once. The bloom filter is not consulted. MemTable entries shadow
// SSTable entries; lower-numbered levels (L0 first) shadow higher-numbered
// ones.
func (e *Engine) Query(column, startKey, endKey string) ([]QueryResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}

	values := make(map[string][]byte)
	shadowed := make(map[string]bool)

	apply := func(key string, r memtable.Record) {
		if shadowed[key] {
			return
		}
		shadowed[key] = true
		if !r.Tombstone {
			values[key] = r.Value
		}
	}

	for _, key := range e.mem.SortedKeys(column) {
		if key < startKey || key > endKey {
			continue
		}
		r, _ := e.mem.Get(column, key)
		apply(key, r)
	}

	for i := 0; i < numLevels; i++ {
		kv, err := e.levels[i].Read(column)
		if err != nil {
			e.opts.Logger.Warn("sstable column unreadable during query, skipping",
				zap.Int("level", i), zap.String("column", column), zap.Error(err))
			continue
		}
		keys := make([]string, 0, len(kv))
		for k := range kv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if key < startKey || key > endKey {
				continue
			}
			apply(key, kv[key])
		}
	}

	results := make([]QueryResult, 0, len(values))
	for k, v := range values {
		results = append(results, QueryResult{Key: k, Value: v})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Key < results[j].Key })
	return results, nil
}

// Flush snapshots the memtable into L0 and truncates the WAL. Exposed so
// a host can force a flush outside the size-threshold and timer paths.
func (e *Engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return e.flushLocked()
}

func (e *Engine) flushLocked() error {
	snapshot := e.mem.Snapshot()

	if len(snapshot) > 0 {
		existing := e.readAllColumns(e.levels[0])
		merged := compaction.Merge(existing, snapshot, false)
		if err := e.rewriteLevel(0, merged); err != nil {
			return err
		}
	}

	e.mem.Clear()
	if err := e.w.Clear(); err != nil {
		return err
	}

	if totalEntries(e.levels[0]) > e.opts.CompactionEntryThreshold {
		return e.compactLocked(0)
	}
	return nil
}

// compactLocked merges level into level+1 and empties level. The last
// level is a cold sink and never compacts further.
func (e *Engine) compactLocked(level int) error {
	if level >= numLevels-1 {
		return nil
	}

	cur := e.readAllColumns(e.levels[level])
	next := e.readAllColumns(e.levels[level+1])

	dropTombstones := level+1 == numLevels-1
	merged := compaction.Merge(next, cur, dropTombstones)
	if err := e.rewriteLevel(level+1, merged); err != nil {
		return err
	}
	if err := e.rewriteLevel(level, map[string]map[string]memtable.Record{}); err != nil {
		return err
	}

	if totalEntries(e.levels[level+1]) > e.opts.CompactionEntryThreshold {
		return e.compactLocked(level + 1)
	}
	return nil
}

func (e *Engine) rewriteLevel(level int, table map[string]map[string]memtable.Record) error {
	cols := compaction.Columns(table)
	path := e.levelPath(level)
	if err := sstable.Write(path, cols, table, e.opts.Compressor, e.opts.Serializer); err != nil {
		return err
	}
	t, err := sstable.Open(path, e.opts.Compressor, e.opts.Serializer)
	if err != nil {
		return err
	}
	e.levels[level] = t
	return nil
}

// readAllColumns loads every column of t into memory, skipping (and
// logging) any column that fails to decompress or decode rather than
// failing the caller outright — the same non-fatal corruption handling
// applied at Open and in Get/Query.
func (e *Engine) readAllColumns(t *sstable.Table) map[string]map[string]memtable.Record {
	out := make(map[string]map[string]memtable.Record)
	for _, col := range t.Columns() {
		kv, err := t.Read(col)
		if err != nil {
			e.opts.Logger.Warn("sstable column unreadable, dropping from merge",
				zap.String("column", col), zap.Error(err))
			continue
		}
		out[col] = kv
	}
	return out
}

func totalEntries(t *sstable.Table) int {
	n := 0
	for _, col := range t.Columns() {
		kv, err := t.Read(col)
		if err != nil {
			continue
		}
		n += len(kv)
	}
	return n
}
