package engine

import "errors"

var (
	// ErrDirectoryInit: cannot create or open the database directory.
	// Fatal on construction.
	ErrDirectoryInit = errors.New("engine: cannot initialize database directory")

	// ErrWalIO: a WAL append failed its sync. The memtable is never
	// mutated for an un-synced record.
	ErrWalIO = errors.New("engine: wal append failed")

	// ErrSerialization: value cannot be encoded or decoded. Surfaced to
	// the caller verbatim.
	ErrSerialization = errors.New("engine: value serialization failed")

	ErrClosed        = errors.New("engine: closed")
	ErrColumnTooLong = errors.New("engine: column exceeds 32 bytes encoded")
	ErrKeyTooLong    = errors.New("engine: key exceeds 32 bytes encoded")
)
