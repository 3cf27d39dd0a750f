// Package bcerrors holds the error taxonomy shared across the storage
// engine. Every package wraps one of these sentinels with fmt.Errorf so
// callers can test with errors.Is instead of string matching.
package bcerrors

import "errors"

var (
	// ErrInvalidKey is returned when a key is empty or exceeds MaxKeySize.
	ErrInvalidKey = errors.New("invalid key")

	// ErrOversizedValue is returned when a value exceeds MaxValueSize.
	ErrOversizedValue = errors.New("value exceeds maximum size")

	// ErrOversizedRecord is returned when a single record cannot fit in
	// any segment, even an empty one.
	ErrOversizedRecord = errors.New("record exceeds segment capacity")

	// ErrTruncated is returned when a read encounters fewer bytes than a
	// record's header declares. During a log scan this is tolerated and
	// the partial tail is discarded; during a direct ReadAt it is fatal.
	ErrTruncated = errors.New("truncated record")

	// ErrInvalidRecord is returned when a well-framed region of the log
	// fails to decode (e.g. a key that is not valid UTF-8). A tombstone
	// byte other than 0 or 1 is not an error; it decodes as a delete.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrSegmentFull is returned internally when an append would push a
	// segment's size or entry count over its configured threshold. The
	// manager catches this and rotates.
	ErrSegmentFull = errors.New("segment full")

	// ErrSegmentSealed is returned when an append is attempted against a
	// segment that is no longer active.
	ErrSegmentSealed = errors.New("segment sealed")

	// ErrKeydirStale is returned when the record read back at a keydir
	// location has a timestamp that disagrees with the keydir entry. This
	// is treated as keydir corruption, not a retryable condition.
	ErrKeydirStale = errors.New("keydir entry stale")

	// ErrAlreadyLocked is returned by Open when the data directory is
	// already held by another store instance.
	ErrAlreadyLocked = errors.New("data directory already locked by another instance")

	// ErrInvalidConfig is returned when Options fail validation at Open.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrStoreClosed is returned by any operation performed after Close.
	ErrStoreClosed = errors.New("store is closed")

	// ErrSegmentNotFound is returned when the manager is asked to read
	// from a segment id it does not know about.
	ErrSegmentNotFound = errors.New("segment not found")
)
