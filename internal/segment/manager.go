package segment

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Alfurquan/bitcaskpy/internal/bcerrors"
	"github.com/Alfurquan/bitcaskpy/internal/events"
	"github.com/Alfurquan/bitcaskpy/internal/record"
)

var segmentFilePattern = regexp.MustCompile(`^segment_(\d+)\.log$`)

// Manager discovers segments on open, holds exactly one active segment,
// rotates when thresholds are exceeded, and routes reads by segment id.
// It is the sole owner of every Segment it holds; callers never keep
// their own Segment references across a rotation.
type Manager struct {
	mu sync.Mutex

	dir          string
	maxSize      int
	maxEntries   int
	syncInterval time.Duration
	sink         events.Sink

	active *Segment
	sealed map[int]*Segment
	nextID int
}

// Open enumerates segment_<id>.log files in dir, sorts them by id, opens
// every one but the highest-id file sealed, and reopens the highest-id
// file active if it still has room; otherwise it seals that file too and
// starts a fresh active segment. An empty directory gets segment 0.
// syncInterval is handed to every Segment as its own periodic-sync
// cadence; sink receives a segment_rotate event each time Append rotates
// to a fresh active segment. sink may be nil, in which case events are
// discarded.
func Open(dir string, maxSize, maxEntries int, syncInterval time.Duration, sink events.Sink) (*Manager, error) {
	if sink == nil {
		sink = events.NopSink{}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("segment: create dir %s: %w", dir, err)
	}

	ids, err := discoverSegmentIDs(dir)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		dir:          dir,
		maxSize:      maxSize,
		maxEntries:   maxEntries,
		syncInterval: syncInterval,
		sink:         sink,
		sealed:       make(map[int]*Segment),
	}

	if len(ids) == 0 {
		active, err := Create(dir, 0, maxSize, maxEntries, syncInterval)
		if err != nil {
			return nil, err
		}
		m.active = active
		m.nextID = 1
		return m, nil
	}

	for _, id := range ids[:len(ids)-1] {
		sealed, err := OpenExisting(dir, id, maxSize, maxEntries, false, syncInterval)
		if err != nil {
			return nil, err
		}
		m.sealed[id] = sealed
	}

	highest := ids[len(ids)-1]
	candidate, err := OpenExisting(dir, highest, maxSize, maxEntries, true, syncInterval)
	if err != nil {
		return nil, err
	}

	if candidate.Size() < int64(maxSize) && candidate.Entries() < maxEntries {
		m.active = candidate
		m.nextID = highest + 1
	} else {
		if err := candidate.Seal(); err != nil {
			return nil, err
		}
		m.sealed[highest] = candidate

		fresh, err := Create(dir, highest+1, maxSize, maxEntries, syncInterval)
		if err != nil {
			return nil, err
		}
		m.active = fresh
		m.nextID = highest + 2
	}

	return m, nil
}

func discoverSegmentIDs(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("segment: read dir %s: %w", dir, err)
	}

	var ids []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := segmentFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// Append writes r through the active segment, rotating exactly once and
// retrying if the active segment is full. A record that would not fit
// even an empty segment fails with ErrOversizedRecord.
func (m *Manager) Append(r record.Record, maxValueSize int, fsyncOnAppend bool) (segmentID int, offset int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	offset, err = m.active.Append(r, maxValueSize, fsyncOnAppend)
	if err == nil {
		return m.active.id, offset, nil
	}
	if err != bcerrors.ErrSegmentFull {
		return 0, 0, err
	}

	framedSize := record.FramedSize(len(r.Key), len(r.Value))
	if framedSize > m.maxSize {
		return 0, 0, bcerrors.ErrOversizedRecord
	}

	if err := m.rotateLocked(); err != nil {
		return 0, 0, err
	}

	offset, err = m.active.Append(r, maxValueSize, fsyncOnAppend)
	if err != nil {
		return 0, 0, err
	}
	return m.active.id, offset, nil
}

func (m *Manager) rotateLocked() error {
	sealedID := m.active.id
	if err := m.active.Seal(); err != nil {
		return err
	}
	m.sealed[sealedID] = m.active

	fresh, err := Create(m.dir, m.nextID, m.maxSize, m.maxEntries, m.syncInterval)
	if err != nil {
		return err
	}
	m.active = fresh
	m.nextID++

	m.sink.Emit(events.Event{
		Kind:      events.KindSegmentRotate,
		SegmentID: fresh.id,
		Message:   fmt.Sprintf("sealed segment %d", sealedID),
	})
	return nil
}

// ActiveID returns the id of the currently active segment.
func (m *Manager) ActiveID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active.id
}

// Read delegates to the segment identified by segmentID.
func (m *Manager) Read(segmentID int, offset int64) (*record.Record, error) {
	m.mu.Lock()
	seg := m.segmentLocked(segmentID)
	m.mu.Unlock()

	if seg == nil {
		return nil, bcerrors.ErrSegmentNotFound
	}
	return seg.ReadAt(offset)
}

func (m *Manager) segmentLocked(id int) *Segment {
	if m.active != nil && m.active.id == id {
		return m.active
	}
	return m.sealed[id]
}

// All returns every known segment (sealed first, in ascending id order,
// then active last), for recovery to iterate in order.
func (m *Manager) All() []*Segment {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int, 0, len(m.sealed))
	for id := range m.sealed {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	all := make([]*Segment, 0, len(ids)+1)
	for _, id := range ids {
		all = append(all, m.sealed[id])
	}
	all = append(all, m.active)
	return all
}

// SyncActive flushes the active segment's .log and .log.index and
// persists its .hint,
// without sealing it. Used by the periodic background fsync worker.
func (m *Manager) SyncActive() error {
	m.mu.Lock()
	active := m.active
	m.mu.Unlock()
	return active.Sync()
}

// Close seals the active segment and releases every handle this manager
// holds.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.active.Seal()
}
