// Package compaction implements the per-key merge used both to fold a
// flushed memtable snapshot into a level's existing columns and to
// cascade one level's contents into the next.
package compaction

import (
	"sort"

	"github.com/embedkv/colstore/memtable"
)

// Merge folds src into dst, column by column, key by key. For a key
// present in both, the record with the higher Seq wins (last-writer-wins
// across sources). dropTombstones, when true, drops tombstone records
// entirely instead of carrying them forward — used when compacting into
// the last level, where there is nothing further downstream left for the
// tombstone to shadow.
func Merge(dst, src map[string]map[string]memtable.Record, dropTombstones bool) map[string]map[string]memtable.Record {
	out := make(map[string]map[string]memtable.Record, len(dst))
	for col, kv := range dst {
		bucket := make(map[string]memtable.Record, len(kv))
		for k, r := range kv {
			bucket[k] = r
		}
		out[col] = bucket
	}

	for col, kv := range src {
		bucket, ok := out[col]
		if !ok {
			bucket = make(map[string]memtable.Record, len(kv))
			out[col] = bucket
		}
		for k, r := range kv {
			if existing, ok := bucket[k]; ok && existing.Seq >= r.Seq {
				continue
			}
			bucket[k] = r
		}
	}

	if dropTombstones {
		for col, kv := range out {
			for k, r := range kv {
				if r.Tombstone {
					delete(kv, k)
				}
			}
			if len(kv) == 0 {
				delete(out, col)
			}
		}
	}
	return out
}

// Columns returns the column names of table in a deterministic order
// (ascending by name) rather than any external index — used when a merge
// result needs a stable write order for sstable.Write.
func Columns(table map[string]map[string]memtable.Record) []string {
	cols := make([]string, 0, len(table))
	for c := range table {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}
