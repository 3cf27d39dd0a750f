// Package record implements the on-disk log record codec: the atomic unit
// of the append-only log that every segment is made of.
//
// Layout (all integers big-endian, fixed header 17 bytes):
//
//	offset 0  : u64 timestamp_ms
//	offset 8  : u8  tombstone (0|1)
//	offset 9  : u32 key_size
//	offset 13 : u32 value_size
//	offset 17 : key_size bytes (UTF-8 key)
//	offset 17+key_size : value_size bytes (value)
package record

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/Alfurquan/bitcaskpy/internal/bcerrors"
)

// HeaderSize is the fixed-length portion of every framed record.
const HeaderSize = 17

// MaxKeySize is the hard upper bound on key length, independent of any
// configured maximum (spec: 1 <= key_size <= 1024).
const MaxKeySize = 1024

// Record is a single decoded log entry.
type Record struct {
	Timestamp uint64
	Tombstone bool
	Key       []byte
	Value     []byte
}

// FramedSize returns the total on-disk length of a record with the given
// key and value sizes, without constructing the record itself.
func FramedSize(keySize, valueSize int) int {
	return HeaderSize + keySize + valueSize
}

// Encode serializes a record. It fails with ErrInvalidKey if the key is
// empty or longer than MaxKeySize, and ErrOversizedValue if value is
// longer than maxValueSize (pass 0 to skip the value-size check).
func Encode(timestampMs uint64, tombstone bool, key, value []byte, maxValueSize int) ([]byte, error) {
	if len(key) == 0 || len(key) > MaxKeySize {
		return nil, fmt.Errorf("record: key length %d: %w", len(key), bcerrors.ErrInvalidKey)
	}
	if maxValueSize > 0 && len(value) > maxValueSize {
		return nil, fmt.Errorf("record: value length %d exceeds %d: %w", len(value), maxValueSize, bcerrors.ErrOversizedValue)
	}

	buf := make([]byte, FramedSize(len(key), len(value)))
	binary.BigEndian.PutUint64(buf[0:8], timestampMs)
	if tombstone {
		buf[8] = 1
	} else {
		buf[8] = 0
	}
	binary.BigEndian.PutUint32(buf[9:13], uint32(len(key)))
	binary.BigEndian.PutUint32(buf[13:17], uint32(len(value)))
	copy(buf[17:17+len(key)], key)
	copy(buf[17+len(key):], value)

	return buf, nil
}

// DecodeHeader parses just the fixed 17-byte header, returning the
// declared key and value sizes so a caller can decide how many more bytes
// to read before calling Decode.
func DecodeHeader(header []byte) (timestampMs uint64, tombstone bool, keySize, valueSize uint32, err error) {
	if len(header) < HeaderSize {
		return 0, false, 0, 0, fmt.Errorf("record: header length %d: %w", len(header), bcerrors.ErrTruncated)
	}

	timestampMs = binary.BigEndian.Uint64(header[0:8])
	// Fail-closed toward deletion: any tombstone byte other than 0 is
	// treated as a delete so a corrupted flag byte never resurrects data.
	tombstone = header[8] != 0
	keySize = binary.BigEndian.Uint32(header[9:13])
	valueSize = binary.BigEndian.Uint32(header[13:17])
	return timestampMs, tombstone, keySize, valueSize, nil
}

// Decode parses a complete framed record (header + key + value). data
// shorter than the header-declared total length fails with ErrTruncated; a
// key that is not valid UTF-8 fails with ErrInvalidRecord.
func Decode(data []byte) (*Record, error) {
	timestampMs, tombstone, keySize, valueSize, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}

	total := FramedSize(int(keySize), int(valueSize))
	if len(data) < total {
		return nil, fmt.Errorf("record: declared length %d, got %d: %w", total, len(data), bcerrors.ErrTruncated)
	}

	key := data[HeaderSize : HeaderSize+int(keySize)]
	value := data[HeaderSize+int(keySize) : total]

	if !utf8.Valid(key) {
		return nil, fmt.Errorf("record: key is not valid UTF-8: %w", bcerrors.ErrInvalidRecord)
	}

	return &Record{
		Timestamp: timestampMs,
		Tombstone: tombstone,
		Key:       append([]byte(nil), key...),
		Value:     append([]byte(nil), value...),
	}, nil
}
