// Package keydir implements the in-memory index mapping each live key to
// the location of its most recent record. It is the structure that lets
// Get answer with a single seek instead of scanning every segment.
package keydir

import "sync"

// Entry is the location of one key's most recent record on disk, plus
// enough of the record's own metadata to resolve conflicts between two
// entries claiming the same key during recovery.
type Entry struct {
	SegmentID  int
	Offset     int64
	RecordSize int64
	ValueSize  uint32
	Timestamp  uint64
	Tombstone  bool
}

// newer reports whether candidate should replace existing as the live
// entry for a key. Ties are broken first by segment id, then by offset
// within that segment — both ascending — so that recovery produces the
// same keydir regardless of the order segments are scanned in.
func newer(existing, candidate Entry) bool {
	if candidate.Timestamp != existing.Timestamp {
		return candidate.Timestamp > existing.Timestamp
	}
	if candidate.SegmentID != existing.SegmentID {
		return candidate.SegmentID > existing.SegmentID
	}
	return candidate.Offset > existing.Offset
}

// Keydir is a concurrency-safe key -> Entry map. The zero value is not
// usable; construct with New.
type Keydir struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New returns an empty Keydir.
func New() *Keydir {
	return &Keydir{entries: make(map[string]Entry)}
}

// Put unconditionally installs entry as key's current location. Callers
// that need conflict resolution (recovery, replaying a segment that may
// be older than what's already indexed) should use Observe instead.
func (k *Keydir) Put(key string, entry Entry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.entries[key] = entry
}

// Observe installs candidate as key's entry only if it is newer than
// whatever is currently indexed (or nothing is indexed yet), per the
// timestamp/segment/offset tie-break in newer. It reports whether the
// candidate won, so recovery can detect and log superseded duplicates.
func (k *Keydir) Observe(key string, candidate Entry) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	existing, ok := k.entries[key]
	if !ok || newer(existing, candidate) {
		k.entries[key] = candidate
		return true
	}
	return false
}

// Delete removes key from the index. It is a no-op if key is absent.
func (k *Keydir) Delete(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.entries, key)
}

// ObserveDelete removes key from the index only if candidate — the
// tombstone record's own location and timestamp — is newer than whatever
// is currently indexed, per the same tie-break newer uses for Observe. A
// tombstone does not automatically win: under a clock regression an
// already-applied put with a larger timestamp still stands. It reports
// whether the tombstone won, mirroring Observe's return value.
func (k *Keydir) ObserveDelete(key string, candidate Entry) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	existing, ok := k.entries[key]
	if !ok || newer(existing, candidate) {
		delete(k.entries, key)
		return true
	}
	return false
}

// Get returns key's current entry and whether it was present.
func (k *Keydir) Get(key string) (Entry, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	e, ok := k.entries[key]
	return e, ok
}

// Len returns the number of live keys indexed.
func (k *Keydir) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.entries)
}

// Keys returns a snapshot of every indexed key, in no particular order.
func (k *Keydir) Keys() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()

	keys := make([]string, 0, len(k.entries))
	for key := range k.entries {
		keys = append(keys, key)
	}
	return keys
}
