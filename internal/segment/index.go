package segment

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Alfurquan/bitcaskpy/internal/fsutil"
)

// indexLine is one decoded line of a segment's .log.index sidecar.
type indexLine struct {
	Key        string
	SegmentID  int
	Offset     int64
	FramedSize int64
	Timestamp  uint64
	Tombstone  bool
}

// IndexEntry is the exported shape of indexLine, for callers outside this
// package (recovery) that need to read a segment's sidecar without
// touching its internals.
type IndexEntry struct {
	Key        string
	SegmentID  int
	Offset     int64
	FramedSize int64
	Timestamp  uint64
	Tombstone  bool
}

func indexPath(logPath string) string {
	return logPath + indexSuffix
}

// escapeKey backslash-escapes tab, newline, and backslash so a key can
// never be mistaken for a field or line separator in the index.
func escapeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\t':
			b.WriteString(`\t`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func unescapeKey(s string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		i++
		if i >= len(s) {
			return "", fmt.Errorf("segment: index key ends in bare backslash")
		}
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 't':
			b.WriteByte('\t')
		case 'n':
			b.WriteByte('\n')
		default:
			return "", fmt.Errorf("segment: index key has invalid escape \\%c", s[i])
		}
	}
	return b.String(), nil
}

func formatIndexLine(l indexLine) string {
	tomb := 0
	if l.Tombstone {
		tomb = 1
	}
	return fmt.Sprintf("%s\t%d\t%d\t%d\t%d\t%d\n",
		escapeKey(l.Key), l.SegmentID, l.Offset, l.FramedSize, l.Timestamp, tomb)
}

func parseIndexLine(line string) (indexLine, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 6 {
		return indexLine{}, fmt.Errorf("segment: malformed index line: %d fields", len(fields))
	}

	key, err := unescapeKey(fields[0])
	if err != nil {
		return indexLine{}, err
	}
	segID, err := strconv.Atoi(fields[1])
	if err != nil {
		return indexLine{}, fmt.Errorf("segment: malformed segment id: %w", err)
	}
	offset, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return indexLine{}, fmt.Errorf("segment: malformed offset: %w", err)
	}
	framedSize, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return indexLine{}, fmt.Errorf("segment: malformed framed size: %w", err)
	}
	timestamp, err := strconv.ParseUint(fields[4], 10, 64)
	if err != nil {
		return indexLine{}, fmt.Errorf("segment: malformed timestamp: %w", err)
	}
	tombField, err := strconv.Atoi(fields[5])
	if err != nil {
		return indexLine{}, fmt.Errorf("segment: malformed tombstone flag: %w", err)
	}

	return indexLine{
		Key:        key,
		SegmentID:  segID,
		Offset:     offset,
		FramedSize: framedSize,
		Timestamp:  timestamp,
		Tombstone:  tombField != 0,
	}, nil
}

// appendIndexLine appends one formatted line to the segment's .log.index,
// creating the file if it does not exist yet.
func appendIndexLine(logPath string, l indexLine) error {
	f, err := os.OpenFile(indexPath(logPath), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("segment: open index: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatIndexLine(l)); err != nil {
		return fmt.Errorf("segment: append index line: %w", err)
	}
	return nil
}

// readIndex parses every well-formed line of a segment's .log.index. It
// stops and reports ok=false at the first malformed line: per spec, a
// malformed index aborts the whole file and triggers scan-based recovery
// rather than returning a partial result.
func readIndex(logPath string) (lines []indexLine, ok bool, err error) {
	f, err := os.Open(indexPath(logPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		parsed, err := parseIndexLine(line)
		if err != nil {
			return nil, false, nil
		}
		lines = append(lines, parsed)
	}
	if err := scanner.Err(); err != nil {
		return nil, false, err
	}
	if len(lines) == 0 {
		return nil, false, nil
	}
	return lines, true, nil
}

// rewriteIndex atomically replaces the segment's .log.index with lines,
// used when recovery regenerates the sidecar from a full log scan.
func rewriteIndex(logPath string, lines []indexLine) error {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(formatIndexLine(l))
	}
	return fsutil.AtomicWriteFile(indexPath(logPath), []byte(b.String()), 0644)
}
