// Package memtable holds the mutable in-memory write buffer fronting the
// WAL: a mapping column -> (key -> Record). It has no persistence of its
// own and does not preserve insertion order within a column.
package memtable

import "sort"

type Memtable struct {
	cols map[string]map[string]Record
	size int // total insertions, not distinct keys
}

func New() *Memtable {
	return &Memtable{cols: make(map[string]map[string]Record)}
}

// Put inserts or overwrites column/key and always increments size, per
// spec: size tracks insertions, not distinct keys.
func (m *Memtable) Put(column, key string, r Record) {
	bucket, ok := m.cols[column]
	if !ok {
		bucket = make(map[string]Record)
		m.cols[column] = bucket
	}
	bucket[key] = r
	m.size++
}

// Delete removes column/key if present and decrements size when a removal
// actually occurred.
func (m *Memtable) Delete(column, key string) {
	bucket, ok := m.cols[column]
	if !ok {
		return
	}
	if _, ok := bucket[key]; ok {
		delete(bucket, key)
		m.size--
	}
}

func (m *Memtable) Get(column, key string) (Record, bool) {
	bucket, ok := m.cols[column]
	if !ok {
		return Record{}, false
	}
	r, ok := bucket[key]
	return r, ok
}

// Size returns the running insertion count (not distinct key count).
func (m *Memtable) Size() int {
	return m.size
}

// Snapshot returns a copy of the current contents; the caller owns it.
func (m *Memtable) Snapshot() map[string]map[string]Record {
	out := make(map[string]map[string]Record, len(m.cols))
	for col, bucket := range m.cols {
		b := make(map[string]Record, len(bucket))
		for k, r := range bucket {
			b[k] = r
		}
		out[col] = b
	}
	return out
}

// SortedKeys returns the column's keys in ascending lexicographic order.
// The memtable itself does not preserve order; range queries and SSTable
// builds sort at call time.
func (m *Memtable) SortedKeys(column string) []string {
	bucket := m.cols[column]
	keys := make([]string, 0, len(bucket))
	for k := range bucket {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Columns returns the set of columns with at least one entry.
func (m *Memtable) Columns() []string {
	cols := make([]string, 0, len(m.cols))
	for c := range m.cols {
		cols = append(cols, c)
	}
	return cols
}

// Clear empties the memtable and resets size to 0.
func (m *Memtable) Clear() {
	m.cols = make(map[string]map[string]Record)
	m.size = 0
}
