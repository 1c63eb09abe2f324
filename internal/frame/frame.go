package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
)

// HeaderLen is the fixed Speedwire header size: signature, tag preamble,
// data length, protocol words, device serial and ticker.
const HeaderLen = 28

const (
	lengthOffset = 12
	serialOffset = 20
	tickerOffset = 24

	// The data-length field counts from offset 16, so the declared total
	// frame length is the field value plus 16.
	lengthBase = 16

	// A declared length of exactly 54 marks a keep-alive telegram that
	// carries no measurements.
	keepAliveLen = 54
)

// signature opens every Speedwire datagram.
var signature = []byte{'S', 'M', 'A', 0}

var (
	// ErrUnrecognizedProtocol reports a datagram that is not Speedwire at
	// all. Expected on networks with mixed multicast traffic.
	ErrUnrecognizedProtocol = errors.New("unrecognized protocol signature")

	// ErrMalformedFrame reports a buffer shorter than the fixed header.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrTruncatedFrame reports a declared or implied length running past
	// the end of the buffer.
	ErrTruncatedFrame = errors.New("truncated frame")
)

// Telegram is a validated Speedwire datagram stripped down to the fields
// the energy-meter protocol uses.
type Telegram struct {
	Raw       []byte
	Serial    uint32
	Ticker    uint32
	Length    int // declared total frame length
	KeepAlive bool
	Payload   []byte // OBIS record stream, empty for keep-alive telegrams
}

// Parse validates the fixed header and extracts the device identity. It
// does not interpret the record stream; see the records package.
func Parse(raw []byte) (Telegram, error) {
	if len(raw) < HeaderLen {
		return Telegram{}, fmt.Errorf("%w: %d bytes, header needs %d", ErrMalformedFrame, len(raw), HeaderLen)
	}
	if !bytes.Equal(raw[:len(signature)], signature) {
		return Telegram{}, fmt.Errorf("%w: % X", ErrUnrecognizedProtocol, raw[:len(signature)])
	}
	length := int(binary.BigEndian.Uint16(raw[lengthOffset:lengthOffset+2])) + lengthBase
	if length > len(raw) {
		return Telegram{}, fmt.Errorf("%w: declared length %d exceeds %d-byte buffer", ErrTruncatedFrame, length, len(raw))
	}
	t := Telegram{
		Raw:    raw,
		Serial: binary.BigEndian.Uint32(raw[serialOffset : serialOffset+4]),
		Ticker: binary.BigEndian.Uint32(raw[tickerOffset : tickerOffset+4]),
		Length: length,
	}
	if length == keepAliveLen {
		t.KeepAlive = true
		return t, nil
	}
	if length > HeaderLen {
		t.Payload = raw[HeaderLen:length]
	}
	return t, nil
}

// SerialString returns the decimal serial used to label topics.
func (t Telegram) SerialString() string {
	return strconv.FormatUint(uint64(t.Serial), 10)
}
