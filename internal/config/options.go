// Package config defines the storage engine's Options (spec.md §6) and
// validates them at Open, mirroring the teacher's own internal.Config
// struct-plus-defaults shape and original_source's named default
// constants in app/core/config/defaults.py.
package config

import (
	"fmt"

	"github.com/Alfurquan/bitcaskpy/internal/bcerrors"
)

const (
	DefaultFsyncIntervalSeconds = 5
	DefaultMaxSegmentSize       = 10 * 1024 * 1024 // 10 MiB
	DefaultMaxEntriesPerSegment = 1000
	DefaultMaxKeySize           = 1024
	DefaultMaxValueSize         = 1 * 1024 * 1024 // 1 MiB
)

// Options configures a Store at Open. Zero-value fields are replaced by
// DefaultOptions()'s values via Options.WithDefaults before validation, so
// callers only need to set the fields they want to override.
type Options struct {
	// Sync forces every append to fsync the active segment's .log before
	// returning. Off by default; see FsyncOnAppend, which is the same
	// knob under the name spec.md §6 uses.
	Sync bool

	// FsyncOnAppend is an alias kept for spec.md §6's exact field name.
	// Open treats Sync and FsyncOnAppend as the same setting; set either.
	FsyncOnAppend bool

	// FsyncIntervalSeconds is how often the background worker flushes the
	// active segment's .log and .index and persists the active segment's
	// .hint. The worker runs whether or not FsyncOnAppend is set.
	FsyncIntervalSeconds int

	// MaxSegmentSize is the hard upper bound, in bytes, on a sealed
	// segment's .log size. The record that would exceed it rotates the
	// segment first; it is never written then rotated.
	MaxSegmentSize int

	// MaxEntriesPerSegment is the hard upper bound on live + tombstone
	// records written to one segment.
	MaxEntriesPerSegment int

	// MaxKeySize bounds key length in bytes (1..1024).
	MaxKeySize int

	// MaxValueSize bounds value length in bytes.
	MaxValueSize int
}

// DefaultOptions returns the spec.md §6 defaults.
func DefaultOptions() Options {
	return Options{
		Sync:                 false,
		FsyncOnAppend:        false,
		FsyncIntervalSeconds: DefaultFsyncIntervalSeconds,
		MaxSegmentSize:       DefaultMaxSegmentSize,
		MaxEntriesPerSegment: DefaultMaxEntriesPerSegment,
		MaxKeySize:           DefaultMaxKeySize,
		MaxValueSize:         DefaultMaxValueSize,
	}
}

// WithDefaults returns a copy of o with every zero-valued field replaced
// by the corresponding DefaultOptions() value. Sync and FsyncOnAppend are
// folded together: if either is true, both become true.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()

	if o.FsyncIntervalSeconds == 0 {
		o.FsyncIntervalSeconds = d.FsyncIntervalSeconds
	}
	if o.MaxSegmentSize == 0 {
		o.MaxSegmentSize = d.MaxSegmentSize
	}
	if o.MaxEntriesPerSegment == 0 {
		o.MaxEntriesPerSegment = d.MaxEntriesPerSegment
	}
	if o.MaxKeySize == 0 {
		o.MaxKeySize = d.MaxKeySize
	}
	if o.MaxValueSize == 0 {
		o.MaxValueSize = d.MaxValueSize
	}

	fsync := o.Sync || o.FsyncOnAppend
	o.Sync = fsync
	o.FsyncOnAppend = fsync

	return o
}

// Validate checks the invariants spec.md §6 requires at Open: positive
// thresholds, a key/value/header combination that can fit in an empty
// segment, and a sane fsync interval.
func (o Options) Validate() error {
	if o.MaxSegmentSize <= 0 {
		return fmt.Errorf("config: max segment size must be positive: %w", bcerrors.ErrInvalidConfig)
	}
	if o.MaxEntriesPerSegment <= 0 {
		return fmt.Errorf("config: max entries per segment must be positive: %w", bcerrors.ErrInvalidConfig)
	}
	if o.MaxKeySize <= 0 || o.MaxKeySize > 1024 {
		return fmt.Errorf("config: max key size must be in (0, 1024]: %w", bcerrors.ErrInvalidConfig)
	}
	if o.MaxValueSize < 0 {
		return fmt.Errorf("config: max value size must be non-negative: %w", bcerrors.ErrInvalidConfig)
	}
	if o.FsyncIntervalSeconds <= 0 {
		return fmt.Errorf("config: fsync interval must be positive: %w", bcerrors.ErrInvalidConfig)
	}

	// A single record (header + max key + max value) must fit in an
	// otherwise-empty segment, or no segment could ever accept it.
	maxRecordSize := 17 + o.MaxKeySize + o.MaxValueSize
	if maxRecordSize > o.MaxSegmentSize {
		return fmt.Errorf("config: max record size %d exceeds max segment size %d: %w", maxRecordSize, o.MaxSegmentSize, bcerrors.ErrInvalidConfig)
	}

	return nil
}
