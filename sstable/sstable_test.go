package sstable

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/embedkv/colstore/codec"
	"github.com/embedkv/colstore/memtable"
)

func testCodec() (codec.Compressor, codec.Serializer) {
	return codec.NewZstdCompressor(), codec.JSONSerializer{}
}

func TestWriteReadRoundTrip(t *testing.T) {
	comp, ser := testCodec()
	dir := t.TempDir()
	path := filepath.Join(dir, "sstable_0.db")

	table := map[string]map[string]memtable.Record{
		"col": {
			"k1": {Value: []byte(`{"n":1}`), Seq: 1},
			"k2": {Value: []byte(`{"n":2}`), Seq: 2},
		},
	}
	if err := Write(path, []string{"col"}, table, comp, ser); err != nil {
		t.Fatal(err)
	}

	tbl, err := Open(path, comp, ser)
	if err != nil {
		t.Fatal(err)
	}
	cols := tbl.Columns()
	if len(cols) != 1 || cols[0] != "col" {
		t.Fatalf("unexpected columns: %v", cols)
	}
	kv, err := tbl.Read("col")
	if err != nil {
		t.Fatal(err)
	}
	if string(kv["k1"].Value) != `{"n":1}` {
		t.Fatalf("unexpected k1 value: %+v", kv["k1"])
	}
	if len(kv) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(kv))
	}
}

func TestReadMissingColumnReturnsEmpty(t *testing.T) {
	comp, ser := testCodec()
	dir := t.TempDir()
	path := filepath.Join(dir, "sstable_0.db")
	if err := Write(path, nil, nil, comp, ser); err != nil {
		t.Fatal(err)
	}
	tbl, err := Open(path, comp, ser)
	if err != nil {
		t.Fatal(err)
	}
	kv, err := tbl.Read("nope")
	if err != nil {
		t.Fatal(err)
	}
	if len(kv) != 0 {
		t.Fatalf("expected empty map, got %v", kv)
	}
}

func TestEmptyTableTruncatesToZero(t *testing.T) {
	comp, ser := testCodec()
	dir := t.TempDir()
	path := filepath.Join(dir, "sstable_0.db")

	table := map[string]map[string]memtable.Record{"col": {"k": {Seq: 1}}}
	if err := Write(path, []string{"col"}, table, comp, ser); err != nil {
		t.Fatal(err)
	}
	if err := Write(path, nil, nil, comp, ser); err != nil {
		t.Fatal(err)
	}
	st, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if st.Size() != 0 {
		t.Fatalf("expected zero-byte file after empty write, got %d bytes", st.Size())
	}
	tbl, err := Open(path, comp, ser)
	if err != nil {
		t.Fatal(err)
	}
	if len(tbl.Columns()) != 0 {
		t.Fatalf("expected no columns after empty write, got %v", tbl.Columns())
	}
}

func TestOpenMissingFileIsEmptyTable(t *testing.T) {
	comp, ser := testCodec()
	dir := t.TempDir()
	tbl, err := Open(filepath.Join(dir, "does_not_exist.db"), comp, ser)
	if err != nil {
		t.Fatal(err)
	}
	if len(tbl.Columns()) != 0 {
		t.Fatalf("expected empty table for missing file, got %v", tbl.Columns())
	}
}
