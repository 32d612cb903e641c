package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/embedkv/colstore/bloom"
	"github.com/embedkv/colstore/codec"
)

const numLevels = 3

type Options struct {
	Dir string // base directory; created if missing

	// FlushThreshold triggers a synchronous flush once the memtable's
	// insertion count (not distinct key count) exceeds it.
	FlushThreshold int

	// CompactionEntryThreshold triggers compaction of level i into i+1
	// once level i's total entry count exceeds it. Counts total entries,
	// not columns — see SPEC_FULL.md Open Question 3.
	CompactionEntryThreshold int

	// FlushInterval is the background worker's wake period.
	FlushInterval time.Duration

	BloomBits uint32
	BloomK    uint8

	Compressor codec.Compressor
	Serializer codec.Serializer
	Logger     *zap.Logger
}

func DefaultOptions() Options {
	return Options{
		Dir:                      ".",
		FlushThreshold:           200,
		CompactionEntryThreshold: 200,
		FlushInterval:            30 * time.Second,
		BloomBits:                bloom.DefaultBits,
		BloomK:                   bloom.DefaultK,
		Compressor:               codec.NewZstdCompressor(),
		Serializer:               codec.JSONSerializer{},
		Logger:                   zap.NewNop(),
	}
}

func (o *Options) fillDefaults() {
	d := DefaultOptions()
	if o.Dir == "" {
		o.Dir = d.Dir
	}
	if o.FlushThreshold <= 0 {
		o.FlushThreshold = d.FlushThreshold
	}
	if o.CompactionEntryThreshold <= 0 {
		o.CompactionEntryThreshold = d.CompactionEntryThreshold
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = d.FlushInterval
	}
	if o.BloomBits == 0 {
		o.BloomBits = d.BloomBits
	}
	if o.BloomK == 0 {
		o.BloomK = d.BloomK
	}
	if o.Compressor == nil {
		o.Compressor = d.Compressor
	}
	if o.Serializer == nil {
		o.Serializer = d.Serializer
	}
	if o.Logger == nil {
		o.Logger = d.Logger
	}
}
