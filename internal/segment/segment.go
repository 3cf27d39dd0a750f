// Package segment owns the on-disk representation of one append-only log
// file plus its .hint and .log.index sidecars, and the manager that
// discovers, routes reads to, and rotates between many of them.
package segment

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/Alfurquan/bitcaskpy/internal/bcerrors"
	"github.com/Alfurquan/bitcaskpy/internal/record"
)

const (
	logSuffix  = ".log"
	hintSuffix = ".hint"
	// indexSuffix is appended to the .log path, so the sidecar ends up
	// named segment_<id>.log.index as spec'd.
	indexSuffix = ".index"
)

// ScannedRecord pairs a decoded record with the byte offset it was read from,
// for callers (recovery, Scan) that need both.
type ScannedRecord struct {
	Offset int64
	Record record.Record
}

// Segment owns one segment_<id>.log file plus its sidecars. It moves
// through exactly one transition: Active -> Sealed. Sealed is terminal;
// a segment is never reopened as active within the same store lifetime.
type Segment struct {
	mu sync.Mutex

	id   int
	dir  string
	path string

	file   *os.File // nil once sealed
	active bool
	closed bool

	size       int64
	entries    int
	maxSize    int
	maxEntries int
	createdAt  int64

	// syncInterval and lastSyncedAt throttle the periodic background
	// fsync worker: Sync is a no-op until at least syncInterval has
	// elapsed since the segment's last sync. Defaulted per-segment from
	// Options.FsyncIntervalSeconds rather than left an implicit,
	// store-global cadence.
	syncInterval time.Duration
	lastSyncedAt time.Time
}

// ID returns the segment's identifier.
func (s *Segment) ID() int { return s.id }

// Size returns the current size, in bytes, of the segment's .log.
func (s *Segment) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Entries returns the number of records (including tombstones) appended
// to this segment so far.
func (s *Segment) Entries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries
}

// IsActive reports whether the segment still accepts appends.
func (s *Segment) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Create makes a fresh segment_<id>.log, an initial .hint, and an empty
// .log.index, and opens it active for writes. syncInterval is the
// segment's own periodic-sync cadence, normally derived from
// Options.FsyncIntervalSeconds.
func Create(dir string, id, maxSize, maxEntries int, syncInterval time.Duration) (*Segment, error) {
	path := logFileName(dir, id)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("segment: create %s: %w", path, err)
	}

	now := time.Now().UnixMilli()
	s := &Segment{
		id:           id,
		dir:          dir,
		path:         path,
		file:         f,
		active:       true,
		maxSize:      maxSize,
		maxEntries:   maxEntries,
		createdAt:    now,
		syncInterval: syncInterval,
		lastSyncedAt: time.Now(),
	}

	if err := s.persistHint(now); err != nil {
		f.Close()
		return nil, err
	}

	if err := os.WriteFile(indexPath(path), nil, 0644); err != nil {
		f.Close()
		return nil, fmt.Errorf("segment: create index for %s: %w", path, err)
	}

	return s, nil
}

// OpenExisting reopens a previously created segment_<id>.log. asActive
// controls whether it is reopened for writes or opened sealed/read-only.
// Metadata comes from the .hint sidecar when present and consistent with
// the file's actual size; otherwise it is reconstructed by scanning.
// syncInterval is the segment's own periodic-sync cadence, normally
// derived from Options.FsyncIntervalSeconds.
func OpenExisting(dir string, id, maxSize, maxEntries int, asActive bool, syncInterval time.Duration) (*Segment, error) {
	path := logFileName(dir, id)

	flag := os.O_RDONLY
	if asActive {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, fmt.Errorf("segment: open %s: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("segment: stat %s: %w", path, err)
	}

	s := &Segment{
		id:           id,
		dir:          dir,
		path:         path,
		file:         f,
		active:       asActive,
		maxSize:      maxSize,
		maxEntries:   maxEntries,
		size:         fi.Size(),
		syncInterval: syncInterval,
		lastSyncedAt: time.Now(),
	}

	hint, herr := readHint(path)
	if herr == nil && hint.Size == fi.Size() {
		s.entries = hint.Entries
		s.createdAt = hint.CreatedAtMs
		if hint.LastSyncedAtMs > 0 {
			s.lastSyncedAt = time.UnixMilli(hint.LastSyncedAtMs)
		}
	} else {
		entries, ok, serr := s.Scan()
		if serr != nil {
			f.Close()
			return nil, serr
		}
		s.entries = len(entries)
		s.createdAt = time.Now().UnixMilli()

		if !ok {
			// Scan stopped at a partial trailing write. Roll the file back
			// to the offset right after the last complete record so the
			// next Append overwrites the garbage instead of leaving it
			// stranded between two valid records.
			var validSize int64
			if n := len(entries); n > 0 {
				last := entries[n-1]
				validSize = last.Offset + int64(record.FramedSize(len(last.Record.Key), len(last.Record.Value)))
			}
			if asActive {
				if err := s.file.Truncate(validSize); err != nil {
					f.Close()
					return nil, fmt.Errorf("segment: truncate partial write %s: %w", path, err)
				}
			}
			s.size = validSize
		}
	}

	if !asActive {
		s.closed = true
		if err := s.file.Close(); err != nil {
			return nil, fmt.Errorf("segment: close sealed %s: %w", path, err)
		}
		s.file = nil
	}

	return s, nil
}

// Append writes one framed record to the .log, appends the matching
// .log.index line, and advances in-memory counters. It returns the
// record's byte offset within the .log.
func (s *Segment) Append(r record.Record, maxValueSize int, fsyncOnAppend bool) (offset int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return 0, bcerrors.ErrSegmentSealed
	}

	framed, err := record.Encode(r.Timestamp, r.Tombstone, r.Key, r.Value, maxValueSize)
	if err != nil {
		return 0, err
	}

	if s.size+int64(len(framed)) > int64(s.maxSize) || s.entries+1 > s.maxEntries {
		return 0, bcerrors.ErrSegmentFull
	}

	offset = s.size
	if _, err := s.file.WriteAt(framed, offset); err != nil {
		return 0, fmt.Errorf("segment: append to %s: %w", s.path, err)
	}
	if fsyncOnAppend {
		if err := s.file.Sync(); err != nil {
			return 0, fmt.Errorf("segment: fsync %s: %w", s.path, err)
		}
	}

	if err := appendIndexLine(s.path, indexLine{
		Key:        string(r.Key),
		SegmentID:  s.id,
		Offset:     offset,
		FramedSize: int64(len(framed)),
		Timestamp:  r.Timestamp,
		Tombstone:  r.Tombstone,
	}); err != nil {
		// .index failures are tolerated; recovery can regenerate it from
		// the .log, which already holds the authoritative write.
	}

	s.size += int64(len(framed))
	s.entries++

	return offset, nil
}

// ReadAt reads and decodes the record at offset.
func (s *Segment) ReadAt(offset int64) (*record.Record, error) {
	s.mu.Lock()
	f := s.file
	s.mu.Unlock()

	if f == nil {
		ro, err := os.Open(s.path)
		if err != nil {
			return nil, fmt.Errorf("segment: open %s for read: %w", s.path, err)
		}
		defer ro.Close()
		f = ro
	}

	header := make([]byte, record.HeaderSize)
	if _, err := f.ReadAt(header, offset); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, bcerrors.ErrTruncated
		}
		return nil, fmt.Errorf("segment: read header at %d: %w", offset, err)
	}

	_, _, keySize, valueSize, err := record.DecodeHeader(header)
	if err != nil {
		return nil, err
	}

	total := record.FramedSize(int(keySize), int(valueSize))
	buf := make([]byte, total)
	if _, err := f.ReadAt(buf, offset); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, bcerrors.ErrTruncated
		}
		return nil, fmt.Errorf("segment: read record at %d: %w", offset, err)
	}

	return record.Decode(buf)
}

// Seal persists a final .hint, closes the write handle, and marks the
// segment read-only. Seal is idempotent.
func (s *Segment) Seal() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	if s.file != nil {
		if err := s.file.Sync(); err != nil {
			return fmt.Errorf("segment: sync %s on seal: %w", s.path, err)
		}
	}

	s.active = false
	s.closed = true

	if err := s.persistHintLocked(s.createdAt); err != nil {
		return err
	}

	if s.file != nil {
		if err := s.file.Close(); err != nil {
			return fmt.Errorf("segment: close %s on seal: %w", s.path, err)
		}
		s.file = nil
	}

	return nil
}

// Sync flushes the .log and .log.index to disk and persists the .hint
// without sealing, throttled
// by the segment's own syncInterval: a call before syncInterval has
// elapsed since the last sync is a no-op. Used by the periodic
// background fsync worker.
func (s *Segment) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	if s.syncInterval > 0 && time.Since(s.lastSyncedAt) < s.syncInterval {
		return nil
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("segment: periodic sync %s: %w", s.path, err)
	}
	// .index sync failures are tolerated like .index write failures.
	if idx, err := os.OpenFile(indexPath(s.path), os.O_WRONLY, 0); err == nil {
		idx.Sync()
		idx.Close()
	}
	s.lastSyncedAt = time.Now()
	return s.persistHintLocked(s.createdAt)
}

// Scan walks the .log sequentially from offset 0, decoding every
// complete record. A partial trailing record (truncated mid-write) is
// discarded silently rather than reported as an error; ok is false when
// trailing bytes had to be discarded and true otherwise.
func (s *Segment) Scan() (records []ScannedRecord, ok bool, err error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, false, fmt.Errorf("segment: open %s for scan: %w", s.path, err)
	}
	defer f.Close()

	ok = true
	var offset int64

	header := make([]byte, record.HeaderSize)
	for {
		n, rerr := f.ReadAt(header, offset)
		if rerr != nil && rerr != io.EOF {
			return nil, false, fmt.Errorf("segment: scan %s: %w", s.path, rerr)
		}
		if n < record.HeaderSize {
			if n > 0 {
				ok = false
			}
			break
		}

		_, _, keySize, valueSize, derr := record.DecodeHeader(header)
		if derr != nil {
			// A malformed header mid-log (not at EOF) is an interior
			// corruption, not a clean truncation; surface it so Open
			// can refuse rather than silently losing data.
			return nil, false, fmt.Errorf("segment: %s: interior corruption at offset %d: %w", s.path, offset, derr)
		}

		total := record.FramedSize(int(keySize), int(valueSize))
		buf := make([]byte, total)
		n, rerr = f.ReadAt(buf, offset)
		if n < total {
			ok = false
			break
		}
		if rerr != nil && rerr != io.EOF {
			return nil, false, fmt.Errorf("segment: scan %s: %w", s.path, rerr)
		}

		rec, derr := record.Decode(buf)
		if derr != nil {
			return nil, false, fmt.Errorf("segment: %s: interior corruption at offset %d: %w", s.path, offset, derr)
		}

		records = append(records, ScannedRecord{Offset: offset, Record: *rec})
		offset += int64(total)
	}

	return records, ok, nil
}

// ReadIndex parses the segment's .log.index sidecar. ok is false if the
// file is missing, empty, or contains a malformed line, in which case
// the caller should fall back to Scan.
func (s *Segment) ReadIndex() ([]IndexEntry, bool, error) {
	lines, ok, err := readIndex(s.path)
	if err != nil || !ok {
		return nil, ok, err
	}

	entries := make([]IndexEntry, len(lines))
	for i, l := range lines {
		entries[i] = IndexEntry{
			Key:        l.Key,
			SegmentID:  l.SegmentID,
			Offset:     l.Offset,
			FramedSize: l.FramedSize,
			Timestamp:  l.Timestamp,
			Tombstone:  l.Tombstone,
		}
	}
	return entries, true, nil
}

// RebuildIndex derives a fresh .log.index from Scan and atomically
// replaces whatever sidecar currently exists.
func (s *Segment) RebuildIndex() error {
	scanned, _, err := s.Scan()
	if err != nil {
		return err
	}

	lines := make([]indexLine, 0, len(scanned))
	for _, sr := range scanned {
		lines = append(lines, indexLine{
			Key:        string(sr.Record.Key),
			SegmentID:  s.id,
			Offset:     sr.Offset,
			FramedSize: int64(record.FramedSize(len(sr.Record.Key), len(sr.Record.Value))),
			Timestamp:  sr.Record.Timestamp,
			Tombstone:  sr.Record.Tombstone,
		})
	}

	return rewriteIndex(s.path, lines)
}

func (s *Segment) persistHint(createdAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistHintLocked(createdAt)
}

func (s *Segment) persistHintLocked(createdAt int64) error {
	activeFlag, closedFlag := 0, 0
	if s.active {
		activeFlag = 1
	}
	if s.closed {
		closedFlag = 1
	}

	return writeHint(s.path, hintInfo{
		ID:             s.id,
		Path:           s.path,
		Size:           s.size,
		Entries:        s.entries,
		MaxSize:        s.maxSize,
		MaxEntries:     s.maxEntries,
		Active:         activeFlag,
		Closed:         closedFlag,
		CreatedAtMs:    createdAt,
		LastSyncedAtMs: time.Now().UnixMilli(),
	})
}
