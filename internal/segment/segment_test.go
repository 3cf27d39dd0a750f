package segment

import (
	"os"
	"testing"
	"time"

	"github.com/Alfurquan/bitcaskpy/internal/bcerrors"
	"github.com/Alfurquan/bitcaskpy/internal/record"
)

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "segment-test-*")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func TestCreateAppendReadAt(t *testing.T) {
	dir := tempDir(t)
	s, err := Create(dir, 0, 1<<20, 100, time.Minute)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	r := record.Record{Timestamp: 1, Key: []byte("k"), Value: []byte("v")}
	offset, err := s.Append(r, 1<<20, false)
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := s.ReadAt(offset)
	if err != nil {
		t.Fatalf("read at: %v", err)
	}
	if string(got.Key) != "k" || string(got.Value) != "v" {
		t.Errorf("unexpected record: %+v", got)
	}
}

func TestAppendFailsWhenSealed(t *testing.T) {
	dir := tempDir(t)
	s, _ := Create(dir, 0, 1<<20, 100, time.Minute)
	if err := s.Seal(); err != nil {
		t.Fatalf("seal: %v", err)
	}

	_, err := s.Append(record.Record{Key: []byte("k")}, 1<<20, false)
	if err != bcerrors.ErrSegmentSealed {
		t.Fatalf("expected ErrSegmentSealed, got %v", err)
	}
}

func TestAppendFailsWhenFull(t *testing.T) {
	dir := tempDir(t)
	s, _ := Create(dir, 0, 1<<20, 1, time.Minute)

	if _, err := s.Append(record.Record{Key: []byte("k1")}, 1<<20, false); err != nil {
		t.Fatalf("first append: %v", err)
	}
	if _, err := s.Append(record.Record{Key: []byte("k2")}, 1<<20, false); err != bcerrors.ErrSegmentFull {
		t.Fatalf("expected ErrSegmentFull, got %v", err)
	}
}

func TestSealIsIdempotent(t *testing.T) {
	dir := tempDir(t)
	s, _ := Create(dir, 0, 1<<20, 100, time.Minute)

	if err := s.Seal(); err != nil {
		t.Fatalf("first seal: %v", err)
	}
	if err := s.Seal(); err != nil {
		t.Fatalf("second seal: %v", err)
	}
}

func TestScanDiscardsTrailingPartialRecord(t *testing.T) {
	dir := tempDir(t)
	s, _ := Create(dir, 0, 1<<20, 100, time.Minute)
	s.Append(record.Record{Timestamp: 1, Key: []byte("a"), Value: []byte("1")}, 1<<20, false)
	s.Append(record.Record{Timestamp: 2, Key: []byte("b"), Value: []byte("2")}, 1<<20, false)

	if err := s.file.Truncate(s.size - 3); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	s.size -= 3

	records, ok, err := s.Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if ok {
		t.Error("expected ok=false after truncation")
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 complete record, got %d", len(records))
	}
	if string(records[0].Record.Key) != "a" {
		t.Errorf("unexpected surviving record: %+v", records[0])
	}
}

func TestOpenExistingReconstructsFromScanWithoutHint(t *testing.T) {
	dir := tempDir(t)
	s, _ := Create(dir, 0, 1<<20, 100, time.Minute)
	s.Append(record.Record{Timestamp: 1, Key: []byte("a"), Value: []byte("1")}, 1<<20, false)
	if err := os.Remove(hintPath(s.path)); err != nil {
		t.Fatalf("remove hint: %v", err)
	}
	s.file.Close()

	reopened, err := OpenExisting(dir, 0, 1<<20, 100, true, time.Minute)
	if err != nil {
		t.Fatalf("open existing: %v", err)
	}
	if reopened.Entries() != 1 {
		t.Errorf("expected 1 entry reconstructed from scan, got %d", reopened.Entries())
	}
}

func TestOpenExistingTruncatesTrailingPartialWrite(t *testing.T) {
	dir := tempDir(t)
	s, _ := Create(dir, 0, 1<<20, 100, time.Minute)
	s.Append(record.Record{Timestamp: 1, Key: []byte("a"), Value: []byte("1")}, 1<<20, false)
	goodSize := s.size
	s.Append(record.Record{Timestamp: 2, Key: []byte("b"), Value: []byte("2")}, 1<<20, false)

	// Simulate a crash mid-append: chop off the tail of the second record,
	// leaving garbage trailing the first, still-valid one.
	if err := s.file.Truncate(s.size - 3); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if err := os.Remove(hintPath(s.path)); err != nil {
		t.Fatalf("remove hint: %v", err)
	}
	s.file.Close()

	reopened, err := OpenExisting(dir, 0, 1<<20, 100, true, time.Minute)
	if err != nil {
		t.Fatalf("open existing: %v", err)
	}
	if reopened.Entries() != 1 {
		t.Errorf("expected 1 surviving entry, got %d", reopened.Entries())
	}
	if reopened.Size() != goodSize {
		t.Errorf("expected in-memory size rolled back to %d, got %d", goodSize, reopened.Size())
	}

	fi, err := os.Stat(reopened.path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if fi.Size() != goodSize {
		t.Errorf("expected file truncated to %d bytes, got %d", goodSize, fi.Size())
	}

	offset, err := reopened.Append(record.Record{Timestamp: 3, Key: []byte("c"), Value: []byte("3")}, 1<<20, false)
	if err != nil {
		t.Fatalf("append after truncation: %v", err)
	}
	if offset != goodSize {
		t.Errorf("expected new record written at offset %d (overwriting garbage), got %d", goodSize, offset)
	}

	records, ok, err := reopened.Scan()
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !ok {
		t.Error("expected clean scan after garbage was overwritten")
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records (a, c), got %d", len(records))
	}
	if string(records[1].Record.Key) != "c" {
		t.Errorf("expected second record to be the newly appended one, got %q", records[1].Record.Key)
	}
}

func TestRebuildIndexMatchesScan(t *testing.T) {
	dir := tempDir(t)
	s, _ := Create(dir, 0, 1<<20, 100, time.Minute)
	s.Append(record.Record{Timestamp: 1, Key: []byte("a"), Value: []byte("1")}, 1<<20, false)
	s.Append(record.Record{Timestamp: 2, Key: []byte("b"), Value: []byte("2")}, 1<<20, false)

	if err := os.Remove(indexPath(s.path)); err != nil {
		t.Fatalf("remove index: %v", err)
	}
	if err := s.RebuildIndex(); err != nil {
		t.Fatalf("rebuild index: %v", err)
	}

	lines, ok, err := readIndex(s.path)
	if err != nil || !ok {
		t.Fatalf("read rebuilt index: ok=%v err=%v", ok, err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 index lines, got %d", len(lines))
	}
}
