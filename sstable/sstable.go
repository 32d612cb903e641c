// Package sstable implements the immutable on-disk segment: one
// compressed block per column, plus a footer-persisted index so columns()
// is recoverable on open without re-parsing the whole file.
//
// File layout:
//
//	repeat:  [compressed_block_bytes]
//	footer:  repeat N times [column_len:u32 | column_bytes | start:u64 | end:u64]
//	                        [N:u32 | footer_offset:u64 | magic:u32]
package sstable

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/embedkv/colstore/codec"
	"github.com/embedkv/colstore/memtable"
)

const footerMagic uint32 = 0x434f4c31 // "COL1"

var ErrCorrupt = errors.New("sstable: corrupt")

type indexEntry struct {
	column string
	start  uint64
	end    uint64
}

// Table is a (file path, column index) pair. An empty table (no columns)
// is valid.
type Table struct {
	path  string
	index []indexEntry

	compressor codec.Compressor
	serializer codec.Serializer
}

// Open loads an existing SSTable's footer index into memory. A missing
// file is treated as an empty table, matching the recovery contract: an
// SSTable path is preallocated but may not have been written yet.
func Open(path string, comp codec.Compressor, ser codec.Serializer) (*Table, error) {
	t := &Table{path: path, compressor: comp, serializer: ser}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return t, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if st.Size() == 0 {
		return t, nil
	}
	if st.Size() < 4+8+4 {
		return t, ErrCorrupt
	}

	tail := make([]byte, 4+8+4)
	if _, err := f.ReadAt(tail, st.Size()-int64(len(tail))); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(tail[0:4])
	footerOffset := binary.BigEndian.Uint64(tail[4:12])
	magic := binary.BigEndian.Uint32(tail[12:16])
	if magic != footerMagic {
		return t, ErrCorrupt
	}
	if footerOffset >= uint64(st.Size()) {
		return t, ErrCorrupt
	}

	footerLen := uint64(st.Size()) - footerOffset - uint64(len(tail))
	footerBuf := make([]byte, footerLen)
	if _, err := f.ReadAt(footerBuf, int64(footerOffset)); err != nil {
		return nil, err
	}

	entries := make([]indexEntry, 0, n)
	off := 0
	for i := uint32(0); i < n; i++ {
		if off+4 > len(footerBuf) {
			return t, ErrCorrupt
		}
		colLen := int(binary.BigEndian.Uint32(footerBuf[off : off+4]))
		off += 4
		if off+colLen+8+8 > len(footerBuf) {
			return t, ErrCorrupt
		}
		col := string(footerBuf[off : off+colLen])
		off += colLen
		start := binary.BigEndian.Uint64(footerBuf[off : off+8])
		off += 8
		end := binary.BigEndian.Uint64(footerBuf[off : off+8])
		off += 8
		entries = append(entries, indexEntry{column: col, start: start, end: end})
	}

	t.index = entries
	return t, nil
}

// Columns returns the indexed columns in index (= write-call insertion)
// order.
func (t *Table) Columns() []string {
	cols := make([]string, len(t.index))
	for i, e := range t.index {
		cols[i] = e.column
	}
	return cols
}

// Read returns the key->Record mapping for column, or an empty map if the
// column isn't indexed.
func (t *Table) Read(column string) (map[string]memtable.Record, error) {
	for _, e := range t.index {
		if e.column != column {
			continue
		}
		f, err := os.Open(t.path)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()

		buf := make([]byte, e.end-e.start)
		if _, err := f.ReadAt(buf, int64(e.start)); err != nil {
			return nil, err
		}
		raw, err := t.compressor.Decompress(buf)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		var out map[string]memtable.Record
		if err := t.serializer.Decode(raw, &out); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return out, nil
	}
	return map[string]memtable.Record{}, nil
}

// Write atomically replaces the file's contents with table, built via a
// uuid-suffixed temp file renamed over path. Columns are written in the
// iteration order of the columns slice (stable within one call). An empty
// table truncates the file to zero bytes.
func Write(path string, columns []string, table map[string]map[string]memtable.Record, comp codec.Compressor, ser codec.Serializer) error {
	tmpPath := filepath.Join(filepath.Dir(path), fmt.Sprintf("%s.%s.tmp", filepath.Base(path), uuid.NewString()))

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmpPath) }()

	var entries []indexEntry
	var offset uint64
	if len(table) > 0 {
		for _, col := range columns {
			kv, ok := table[col]
			if !ok || len(kv) == 0 {
				continue
			}
			raw, err := ser.Encode(kv)
			if err != nil {
				_ = f.Close()
				return err
			}
			compressed, err := comp.Compress(raw)
			if err != nil {
				_ = f.Close()
				return err
			}
			if _, err := f.Write(compressed); err != nil {
				_ = f.Close()
				return err
			}
			entries = append(entries, indexEntry{column: col, start: offset, end: offset + uint64(len(compressed))})
			offset += uint64(len(compressed))
		}
	}

	if len(entries) == 0 {
		if err := f.Sync(); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		return os.Rename(tmpPath, path)
	}

	footerOffset := offset
	for _, e := range entries {
		var colLenBuf [4]byte
		binary.BigEndian.PutUint32(colLenBuf[:], uint32(len(e.column)))
		if _, err := f.Write(colLenBuf[:]); err != nil {
			_ = f.Close()
			return err
		}
		if _, err := f.Write([]byte(e.column)); err != nil {
			_ = f.Close()
			return err
		}
		var rangeBuf [16]byte
		binary.BigEndian.PutUint64(rangeBuf[0:8], e.start)
		binary.BigEndian.PutUint64(rangeBuf[8:16], e.end)
		if _, err := f.Write(rangeBuf[:]); err != nil {
			_ = f.Close()
			return err
		}
	}

	var tail [4 + 8 + 4]byte
	binary.BigEndian.PutUint32(tail[0:4], uint32(len(entries)))
	binary.BigEndian.PutUint64(tail[4:12], footerOffset)
	binary.BigEndian.PutUint32(tail[12:16], footerMagic)
	if _, err := f.Write(tail[:]); err != nil {
		_ = f.Close()
		return err
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
