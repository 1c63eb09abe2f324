package records

import (
	"encoding/binary"
	"fmt"

	"github.com/d21d3q/sma2mqtt/internal/frame"
)

// DataType classifies the value encoding of an OBIS record. The low
// nibble of the type byte fixes the value width on the wire.
type DataType byte

const (
	// TypeActual is a 4-byte signed instantaneous value.
	TypeActual DataType = 4
	// TypeCounter is an 8-byte unsigned cumulative counter.
	TypeCounter DataType = 8
	// TypeVersion is the 4-byte firmware version field on channel key
	// VersionKey.
	TypeVersion DataType = 0
)

// VersionKey identifies the firmware version record (channel 144, index 0).
const VersionKey uint16 = 0x9000

const headerLen = 4

// Record is one OBIS-coded measurement cut from the record stream. The
// raw transmitted integer lands in Value, or in Counter for counter
// records, which the protocol declares unsigned 64-bit; scaling to
// physical units happens in the channels package.
type Record struct {
	Channel byte
	Index   byte
	Type    DataType
	Tariff  byte
	Value   int64   // sign already applied for actual values
	Counter uint64  // raw value of a counter record
	Version [4]byte // raw bytes of a version record
}

// Key folds channel and index into the 16-bit lookup key used by the
// channel table, channel in the high byte.
func (r Record) Key() uint16 {
	return uint16(r.Channel)<<8 | uint16(r.Index)
}

// Scan walks the OBIS record stream of a telegram payload and returns the
// records in wire order. The scan is all-or-nothing: a record running past
// the end of the payload fails with frame.ErrTruncatedFrame and no partial
// result is returned.
func Scan(payload []byte) ([]Record, error) {
	var recs []Record
	pos := 0
	for pos < len(payload) {
		if len(payload)-pos < headerLen {
			return nil, fmt.Errorf("%w: record header at offset %d", frame.ErrTruncatedFrame, frame.HeaderLen+pos)
		}
		r := Record{
			Channel: payload[pos],
			Index:   payload[pos+1],
			Type:    DataType(payload[pos+2]),
			Tariff:  payload[pos+3],
		}
		// Counters carry 8 value bytes; everything else, including
		// unknown types, carries 4.
		width := 4
		if r.Type == TypeCounter {
			width = 8
		}
		if len(payload)-pos < headerLen+width {
			return nil, fmt.Errorf("%w: %d value bytes at offset %d", frame.ErrTruncatedFrame, width, frame.HeaderLen+pos+headerLen)
		}
		value := payload[pos+headerLen : pos+headerLen+width]
		switch r.Type {
		case TypeActual:
			r.Value = int64(int32(binary.BigEndian.Uint32(value)))
		case TypeCounter:
			r.Counter = binary.BigEndian.Uint64(value)
		default:
			copy(r.Version[:], value)
			r.Value = int64(binary.BigEndian.Uint32(value))
		}
		recs = append(recs, r)
		pos += headerLen + width
	}
	return recs, nil
}
