package channels

import (
	"fmt"
	"strconv"

	"github.com/d21d3q/sma2mqtt/internal/records"
)

// Entry describes one known measurement channel: the topic name plus the
// units of its instantaneous value and its cumulative counter.
type Entry struct {
	Name        string
	ActualUnit  string
	CounterUnit string
}

// Table maps the 16-bit channel key to its measurement definition. Keys
// the table does not know are dropped during mapping, not errors; the
// protocol defines more channels than any consumer uses.
type Table map[uint16]Entry

// Divisors convert raw transmitted integers to base units. The protocol
// fixes these per unit, not per channel.
var Divisors = map[string]int64{
	"W":     10,
	"VA":    10,
	"VAr":   10,
	"kWh":   3600000,
	"kVAh":  3600000,
	"kVArh": 3600000,
	"A":     1000,
	"V":     1000,
	"°":     1000,
	"Hz":    1000,
}

// SMA is the Home Manager 2.0 channel table.
var SMA = Table{
	// Totals
	1:  {"pconsume", "W", "kWh"},
	2:  {"psupply", "W", "kWh"},
	3:  {"qconsume", "VAr", "kVArh"},
	4:  {"qsupply", "VAr", "kVArh"},
	9:  {"sconsume", "VA", "kVAh"},
	10: {"ssupply", "VA", "kVAh"},
	13: {"cosphi", "°", ""},
	14: {"frequency", "Hz", ""},
	// Phase 1
	21: {"p1consume", "W", "kWh"},
	22: {"p1supply", "W", "kWh"},
	23: {"q1consume", "VAr", "kVArh"},
	24: {"q1supply", "VAr", "kVArh"},
	29: {"s1consume", "VA", "kVAh"},
	30: {"s1supply", "VA", "kVAh"},
	31: {"i1", "A", ""},
	32: {"u1", "V", ""},
	33: {"cosphi1", "°", ""},
	// Phase 2
	41: {"p2consume", "W", "kWh"},
	42: {"p2supply", "W", "kWh"},
	43: {"q2consume", "VAr", "kVArh"},
	44: {"q2supply", "VAr", "kVArh"},
	49: {"s2consume", "VA", "kVAh"},
	50: {"s2supply", "VA", "kVAh"},
	51: {"i2", "A", ""},
	52: {"u2", "V", ""},
	53: {"cosphi2", "°", ""},
	// Phase 3
	61: {"p3consume", "W", "kWh"},
	62: {"p3supply", "W", "kWh"},
	63: {"q3consume", "VAr", "kVArh"},
	64: {"q3supply", "VAr", "kVArh"},
	69: {"s3consume", "VA", "kVAh"},
	70: {"s3supply", "VA", "kVAh"},
	71: {"i3", "A", ""},
	72: {"u3", "V", ""},
	73: {"cosphi3", "°", ""},
	// Common
	records.VersionKey: {"speedwire-version", "", ""},
}

// Reading is one scaled measurement ready for publishing.
type Reading struct {
	Name  string
	Value float64
	Unit  string
	Text  string // set instead of Value for textual readings
}

// Payload renders the value the way it goes onto the wire.
func (r Reading) Payload() string {
	if r.Text != "" {
		return r.Text
	}
	return strconv.FormatFloat(r.Value, 'f', -1, 64)
}

// Map converts scanned records to scaled readings in wire order. Records
// without a table entry or with a type the table cannot place are dropped
// silently. Phase currents get their logical sign from net phase power
// afterwards.
func (t Table) Map(recs []records.Record) []Reading {
	out := make([]Reading, 0, len(recs))
	for _, rec := range recs {
		entry, ok := t[rec.Key()]
		if !ok {
			continue
		}
		switch rec.Type {
		case records.TypeActual:
			out = append(out, Reading{
				Name:  entry.Name,
				Value: scale(rec.Value, divisorFor(entry.ActualUnit)),
				Unit:  entry.ActualUnit,
			})
		case records.TypeCounter:
			out = append(out, Reading{
				Name:  entry.Name + "counter",
				Value: scaleCounter(rec.Counter, divisorFor(entry.CounterUnit)),
				Unit:  entry.CounterUnit,
			})
		case records.TypeVersion:
			// Type 0 means "version" only on the version key; on any
			// other key it is an unknown type and yields nothing.
			if rec.Key() != records.VersionKey {
				continue
			}
			out = append(out, Reading{
				Name: entry.Name,
				Text: FormatVersion(rec.Version),
			})
		}
	}
	deriveSignedCurrents(out)
	return out
}

// scale keeps the integer value exact when the divisor is 1. Energy
// counters accumulate over years; an unscaled counter must not pass
// through a division.
func scale(value, divisor int64) float64 {
	if divisor == 1 {
		return float64(value)
	}
	return float64(value) / float64(divisor)
}

func scaleCounter(value uint64, divisor int64) float64 {
	if divisor == 1 {
		return float64(value)
	}
	return float64(value) / float64(divisor)
}

func divisorFor(unit string) int64 {
	if d, ok := Divisors[unit]; ok {
		return d
	}
	return 1
}

// revisionClass letters as the meter firmware encodes them in the last
// version byte.
var revisionClass = map[byte]string{
	'1': "S",
	'2': "A",
	'3': "B",
	'4': "R",
	'5': "E",
	'6': "N",
}

// FormatVersion renders a firmware version record as
// major.minor.build[.revision]|hex, matching the meter's own tooling.
func FormatVersion(b [4]byte) string {
	ver := fmt.Sprintf("%d.%d.%d", b[0], b[1], b[2])
	if rev, ok := revisionClass[b[3]]; ok {
		ver += "." + rev
	}
	return fmt.Sprintf("%s|%02x%02x%02x", ver, b[0], b[1], b[2])
}

// deriveSignedCurrents flips iN negative when the net phase power
// (pNconsume − pNsupply) flows into the grid. The meter transmits phase
// currents unsigned; import/export direction only exists in the power
// channel pair.
func deriveSignedCurrents(out []Reading) {
	values := make(map[string]float64, len(out))
	index := make(map[string]int, 3)
	for i, r := range out {
		if r.Text != "" {
			continue
		}
		values[r.Name] = r.Value
		if r.Name == "i1" || r.Name == "i2" || r.Name == "i3" {
			index[r.Name] = i
		}
	}
	for phase := 1; phase <= 3; phase++ {
		name := fmt.Sprintf("i%d", phase)
		i, ok := index[name]
		if !ok {
			continue
		}
		net := values[fmt.Sprintf("p%dconsume", phase)] - values[fmt.Sprintf("p%dsupply", phase)]
		if net < 0 {
			out[i].Value = -out[i].Value
		}
	}
}
