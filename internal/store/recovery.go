package store

import (
	"github.com/Alfurquan/bitcaskpy/internal/keydir"
	"github.com/Alfurquan/bitcaskpy/internal/segment"
)

func readSegmentIndex(seg *segment.Segment) ([]segment.IndexEntry, bool, error) {
	return seg.ReadIndex()
}

// applyIndexLine folds one .log.index entry into the keydir under the
// global conflict-resolution rule: both tombstones and live entries go
// through the same timestamp/segment/offset comparison, so a tombstone
// observed out of order never overrides a chronologically later put.
func applyIndexLine(k *keydir.Keydir, l segment.IndexEntry) {
	entry := keydir.Entry{
		SegmentID:  l.SegmentID,
		Offset:     l.Offset,
		RecordSize: l.FramedSize,
		Timestamp:  l.Timestamp,
		Tombstone:  l.Tombstone,
	}
	if l.Tombstone {
		k.ObserveDelete(l.Key, entry)
		return
	}
	k.Observe(l.Key, entry)
}

// applyScannedRecord is applyIndexLine's counterpart for the full-log-scan
// fallback path.
func applyScannedRecord(k *keydir.Keydir, segmentID int, sr segment.ScannedRecord) {
	entry := keydir.Entry{
		SegmentID:  segmentID,
		Offset:     sr.Offset,
		RecordSize: int64(len(sr.Record.Key) + len(sr.Record.Value) + 17),
		ValueSize:  uint32(len(sr.Record.Value)),
		Timestamp:  sr.Record.Timestamp,
		Tombstone:  sr.Record.Tombstone,
	}
	if sr.Record.Tombstone {
		k.ObserveDelete(string(sr.Record.Key), entry)
		return
	}
	k.Observe(string(sr.Record.Key), entry)
}
