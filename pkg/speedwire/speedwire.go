// Package speedwire decodes SMA Speedwire energy-meter datagrams into
// scaled measurement readings.
package speedwire

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/d21d3q/sma2mqtt/internal/channels"
	"github.com/d21d3q/sma2mqtt/internal/frame"
	"github.com/d21d3q/sma2mqtt/internal/records"
)

// Typed decode failures, re-exported for callers that only import the
// public package. All are local-recoverable: log, drop the frame, keep
// listening.
var (
	ErrUnrecognizedProtocol = frame.ErrUnrecognizedProtocol
	ErrMalformedFrame       = frame.ErrMalformedFrame
	ErrTruncatedFrame       = frame.ErrTruncatedFrame
)

// Result captures one fully decoded datagram: the device identity, the
// raw record sequence, and the scaled readings in wire order.
type Result struct {
	Serial    uint32
	Ticker    uint32
	KeepAlive bool
	Records   []records.Record
	Readings  []channels.Reading
}

// Decode parses a raw datagram with the built-in SMA channel table.
// Decoding is stateless; the buffer is never mutated.
func Decode(datagram []byte) (Result, error) {
	return DecodeWithOptions(datagram, Options{})
}

// DecodeWithOptions parses a raw datagram with custom options.
func DecodeWithOptions(datagram []byte, opts Options) (Result, error) {
	t, err := frame.Parse(datagram)
	if err != nil {
		return Result{}, err
	}
	result := Result{
		Serial:    t.Serial,
		Ticker:    t.Ticker,
		KeepAlive: t.KeepAlive,
	}
	if t.KeepAlive {
		return result, nil
	}
	recs, err := records.Scan(t.Payload)
	if err != nil {
		return Result{}, err
	}
	result.Records = recs
	result.Readings = opts.table().Map(recs)
	return result, nil
}

// DecodeHex parses a hex dump of a datagram. Whitespace and the '|' and
// '_' separators common in captures are ignored.
func DecodeHex(raw string, opts Options) (Result, error) {
	data, err := decodeHex(raw)
	if err != nil {
		return Result{}, err
	}
	return DecodeWithOptions(data, opts)
}

// SerialString returns the decimal serial used to label topics.
func (r Result) SerialString() string {
	return strconv.FormatUint(uint64(r.Serial), 10)
}

// TopicSuffix derives the broker topic for a reading,
// <serial>/<measurement name>.
func (r Result) TopicSuffix(rd channels.Reading) string {
	return r.SerialString() + "/" + rd.Name
}

// Values renders the result as the flat name→value map the original
// Energy Meter tooling emits: serial, timestamp, then one entry per
// reading plus a <name>unit entry for dimensioned values. Keep-alive
// telegrams render empty.
func (r Result) Values() map[string]any {
	values := make(map[string]any, 2+2*len(r.Readings))
	if r.KeepAlive {
		return values
	}
	values["serial"] = r.Serial
	values["timestamp"] = r.Ticker
	for _, rd := range r.Readings {
		if rd.Text != "" {
			values[rd.Name] = rd.Text
			continue
		}
		values[rd.Name] = rd.Value
		if rd.Unit != "" {
			values[rd.Name+"unit"] = rd.Unit
		}
	}
	return values
}

// String renders a human-readable representation of the result.
func (r Result) String() string {
	data, err := json.MarshalIndent(r.Values(), "", "  ")
	if err != nil {
		return fmt.Sprintf("serial:%d readings:%d (marshal error: %v)", r.Serial, len(r.Readings), err)
	}
	return string(data)
}

func decodeHex(input string) ([]byte, error) {
	clean := stripSeparators(input)
	if strings.HasPrefix(strings.ToUpper(clean), "0X") {
		clean = clean[2:]
	}
	if len(clean)%2 != 0 {
		return nil, fmt.Errorf("hex frame must contain an even number of digits, got %d", len(clean))
	}
	decoded := make([]byte, len(clean)/2)
	if _, err := hex.Decode(decoded, []byte(clean)); err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	return decoded, nil
}

func stripSeparators(s string) string {
	builder := strings.Builder{}
	builder.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) || r == '|' || r == '_' {
			continue
		}
		builder.WriteRune(r)
	}
	return builder.String()
}
