// Package store is the top-level coordinator that binds the record codec,
// segment manager, and keydir together behind put/get/delete/close, and
// runs recovery when a data directory is opened.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Alfurquan/bitcaskpy/internal/bcerrors"
	"github.com/Alfurquan/bitcaskpy/internal/config"
	"github.com/Alfurquan/bitcaskpy/internal/events"
	"github.com/Alfurquan/bitcaskpy/internal/keydir"
	"github.com/Alfurquan/bitcaskpy/internal/lock"
	"github.com/Alfurquan/bitcaskpy/internal/record"
	"github.com/Alfurquan/bitcaskpy/internal/segment"
)

// Store is the storage engine's public surface: Put, Get, Delete, Close.
// One Store owns exactly one data directory for its lifetime; a second
// Open on the same directory fails with ErrAlreadyLocked.
type Store struct {
	mu sync.RWMutex

	dir     string
	opts    config.Options
	sink    events.Sink
	lockFd  *os.File
	manager *segment.Manager
	keydir  *keydir.Keydir

	closed bool

	fsyncCancel context.CancelFunc
	fsyncDone   chan struct{}
}

// Open creates dir if missing, acquires the directory lock, opens the
// segment manager, runs recovery, and starts the periodic background
// fsync worker. sink may be nil, in which case events are discarded.
func Open(dir string, opts config.Options, sink events.Sink) (*Store, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = events.NopSink{}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("store: create dir %s: %w", dir, err)
	}

	lockFd, err := lock.LockDirectory(dir)
	if err != nil {
		return nil, err
	}

	syncInterval := time.Duration(opts.FsyncIntervalSeconds) * time.Second
	manager, err := segment.Open(dir, opts.MaxSegmentSize, opts.MaxEntriesPerSegment, syncInterval, sink)
	if err != nil {
		lock.UnlockDirectory(lockFd)
		return nil, err
	}

	s := &Store{
		dir:     dir,
		opts:    opts,
		sink:    sink,
		lockFd:  lockFd,
		manager: manager,
		keydir:  keydir.New(),
	}

	if err := s.recover(); err != nil {
		manager.Close()
		lock.UnlockDirectory(lockFd)
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.fsyncCancel = cancel
	s.fsyncDone = make(chan struct{})
	go s.fsyncLoop(ctx)

	return s, nil
}

// recover rebuilds the keydir from every segment the manager discovered,
// ascending by segment id: index sidecar first, log scan as fallback,
// regenerating the sidecar when the fallback fires.
func (s *Store) recover() error {
	for _, seg := range s.manager.All() {
		lines, ok, err := readSegmentIndex(seg)
		if err == nil && ok {
			for _, l := range lines {
				applyIndexLine(s.keydir, l)
			}
			continue
		}

		s.sink.Emit(events.Event{Kind: events.KindRecoveryFallback, SegmentID: seg.ID()})

		scanned, _, err := seg.Scan()
		if err != nil {
			return fmt.Errorf("store: recovery scan of segment %d: %w", seg.ID(), err)
		}
		for _, sr := range scanned {
			applyScannedRecord(s.keydir, seg.ID(), sr)
		}
		if err := seg.RebuildIndex(); err != nil {
			// Sidecar regeneration is best-effort; the log remains the
			// source of truth and the next recovery will retry.
			s.sink.Emit(events.Event{Kind: events.KindRecoveryFallback, SegmentID: seg.ID(), Err: err})
		}
	}

	s.sink.Emit(events.Event{Kind: events.KindRecoveryComplete, Message: fmt.Sprintf("%d live keys", s.keydir.Len())})
	return nil
}

func (s *Store) fsyncLoop(ctx context.Context) {
	defer close(s.fsyncDone)

	ticker := time.NewTicker(time.Duration(s.opts.FsyncIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			if !s.closed {
				s.manager.SyncActive()
			}
			s.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}

// Put validates key and value, appends a live record with the current
// wall-clock timestamp, and updates the keydir.
func (s *Store) Put(key string, value []byte) error {
	return s.write(key, value, false, "")
}

// Delete appends a tombstone record for key and removes it from the
// keydir. Deleting an absent key still writes a tombstone; it is a no-op
// observably but keeps recovery simple.
func (s *Store) Delete(key string) error {
	return s.write(key, nil, true, "")
}

// Scoped ties a request id to every event emitted by the operations
// called on it, for a service layer that wants to correlate a store's
// structured events back to the connection or request that caused them.
// The core itself stays oblivious to request IDs; Scoped is purely a
// thin decorator around Store.
type Scoped struct {
	store     *Store
	requestID string
}

// WithRequestID returns a view of the store that stamps requestID on
// every event emitted by operations called through it.
func (s *Store) WithRequestID(requestID string) *Scoped {
	return &Scoped{store: s, requestID: requestID}
}

func (r *Scoped) Put(key string, value []byte) error {
	return r.store.write(key, value, false, r.requestID)
}

func (r *Scoped) Delete(key string) error {
	return r.store.write(key, nil, true, r.requestID)
}

func (r *Scoped) Get(key string) ([]byte, bool, error) {
	return r.store.get(key, r.requestID)
}

func (s *Store) write(key string, value []byte, tombstone bool, requestID string) error {
	if err := validateKey(key, s.opts.MaxKeySize); err != nil {
		return err
	}
	if !tombstone && len(value) > s.opts.MaxValueSize {
		return fmt.Errorf("store: value for key %q: %w", key, bcerrors.ErrOversizedValue)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return bcerrors.ErrStoreClosed
	}

	start := time.Now()
	rec := record.Record{
		Timestamp: uint64(time.Now().UnixMilli()),
		Tombstone: tombstone,
		Key:       []byte(key),
		Value:     value,
	}

	segmentID, offset, err := s.manager.Append(rec, s.opts.MaxValueSize, s.opts.Sync)
	if err != nil {
		return fmt.Errorf("store: append key %q: %w", key, err)
	}

	if tombstone {
		s.keydir.Delete(key)
		s.sink.Emit(events.Event{Kind: events.KindStoreDelete, Key: key, SegmentID: segmentID, Offset: offset, DurationMillis: elapsedMs(start), RequestID: requestID})
		return nil
	}

	s.keydir.Put(key, keydir.Entry{
		SegmentID:  segmentID,
		Offset:     offset,
		RecordSize: int64(record.FramedSize(len(key), len(value))),
		ValueSize:  uint32(len(value)),
		Timestamp:  rec.Timestamp,
		Tombstone:  false,
	})
	s.sink.Emit(events.Event{Kind: events.KindStorePut, Key: key, SegmentID: segmentID, Offset: offset, DurationMillis: elapsedMs(start), RequestID: requestID})
	return nil
}

// Get returns the value for key, or (nil, false) if absent or deleted.
func (s *Store) Get(key string) ([]byte, bool, error) {
	return s.get(key, "")
}

func (s *Store) get(key string, requestID string) ([]byte, bool, error) {
	start := time.Now()

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, false, bcerrors.ErrStoreClosed
	}
	entry, ok := s.keydir.Get(key)
	s.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}

	rec, err := s.manager.Read(entry.SegmentID, entry.Offset)
	if err != nil {
		return nil, false, fmt.Errorf("store: read key %q: %w", key, err)
	}

	if rec.Tombstone || rec.Timestamp != entry.Timestamp {
		// The keydir should never point at a tombstone or a stale
		// timestamp; either means a write raced recovery or rotation.
		// Surface it as a visible anomaly, not a silent error return.
		s.sink.Emit(events.Event{Kind: events.KindStoreGetTombstone, Key: key, SegmentID: entry.SegmentID, Offset: entry.Offset, RequestID: requestID})
		return nil, false, fmt.Errorf("store: key %q: %w", key, bcerrors.ErrKeydirStale)
	}

	s.sink.Emit(events.Event{Kind: events.KindStoreGet, Key: key, SegmentID: entry.SegmentID, Offset: entry.Offset, DurationMillis: elapsedMs(start), RequestID: requestID})
	return rec.Value, true, nil
}

// Keys returns a snapshot of every live key.
func (s *Store) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, bcerrors.ErrStoreClosed
	}
	return s.keydir.Keys(), nil
}

// Len returns the number of live keys.
func (s *Store) Len() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, bcerrors.ErrStoreClosed
	}
	return s.keydir.Len(), nil
}

// Close seals the active segment, stops the background fsync worker, and
// releases the directory lock. Operations after Close fail with
// ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.fsyncCancel != nil {
		s.fsyncCancel()
		<-s.fsyncDone
	}

	var errs []error
	if err := s.manager.Close(); err != nil {
		errs = append(errs, err)
	}
	lock.UnlockDirectory(s.lockFd)

	return errors.Join(errs...)
}

func validateKey(key string, maxKeySize int) error {
	if len(key) == 0 {
		return fmt.Errorf("store: %w: empty key", bcerrors.ErrInvalidKey)
	}
	if len(key) > maxKeySize {
		return fmt.Errorf("store: %w: key exceeds %d bytes", bcerrors.ErrInvalidKey, maxKeySize)
	}
	if !utf8.ValidString(key) {
		return fmt.Errorf("store: %w: key is not valid UTF-8", bcerrors.ErrInvalidKey)
	}
	return nil
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
