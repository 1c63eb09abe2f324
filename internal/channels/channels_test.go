package channels

import (
	"testing"

	"github.com/d21d3q/sma2mqtt/internal/records"
)

func TestMapScaling(t *testing.T) {
	recs := []records.Record{
		{Channel: 0, Index: 32, Type: records.TypeActual, Value: 2300},  // u1, divisor 1000
		{Channel: 0, Index: 1, Type: records.TypeActual, Value: 1250},   // pconsume, divisor 10
		{Channel: 0, Index: 1, Type: records.TypeCounter, Counter: 7200000000},
	}
	out := SMA.Map(recs)
	if len(out) != 3 {
		t.Fatalf("expected 3 readings, got %d", len(out))
	}
	if out[0].Name != "u1" || out[0].Value != 2.3 || out[0].Unit != "V" {
		t.Fatalf("unexpected u1 reading: %+v", out[0])
	}
	if out[1].Name != "pconsume" || out[1].Value != 125.0 || out[1].Unit != "W" {
		t.Fatalf("unexpected pconsume reading: %+v", out[1])
	}
	if out[2].Name != "pconsumecounter" || out[2].Value != 2000.0 || out[2].Unit != "kWh" {
		t.Fatalf("unexpected counter reading: %+v", out[2])
	}
}

func TestMapDivisorTen(t *testing.T) {
	out := SMA.Map([]records.Record{
		{Channel: 0, Index: 2, Type: records.TypeActual, Value: 2300},
	})
	if len(out) != 1 || out[0].Value != 230.0 {
		t.Fatalf("divisor-10 scaling broken: %+v", out)
	}
}

func TestMapUnknownKeyDropped(t *testing.T) {
	out := SMA.Map([]records.Record{
		{Channel: 0, Index: 99, Type: records.TypeActual, Value: 77},
		{Channel: 7, Index: 1, Type: records.TypeActual, Value: 77},
	})
	if len(out) != 0 {
		t.Fatalf("unknown channels must be dropped, got %+v", out)
	}
}

func TestMapUnknownTypeDropped(t *testing.T) {
	out := SMA.Map([]records.Record{
		{Channel: 0, Index: 1, Type: 7, Value: 77},
	})
	if len(out) != 0 {
		t.Fatalf("unknown record types must be dropped, got %+v", out)
	}
}

func TestMapVersion(t *testing.T) {
	out := SMA.Map([]records.Record{
		{Channel: 0x90, Index: 0, Type: records.TypeVersion, Version: [4]byte{2, 10, 24, '1'}},
	})
	if len(out) != 1 {
		t.Fatalf("expected 1 reading, got %d", len(out))
	}
	if out[0].Name != "speedwire-version" || out[0].Text != "2.10.24.S|020a18" {
		t.Fatalf("unexpected version reading: %+v", out[0])
	}
	if out[0].Payload() != "2.10.24.S|020a18" {
		t.Fatalf("text payload mismatch: %s", out[0].Payload())
	}
}

func TestMapTypeZeroOnNonVersionKeyDropped(t *testing.T) {
	// Type 0 is "version" only on the version key. On a mapped power
	// channel it is an unknown type and must not surface as a text
	// reading.
	out := SMA.Map([]records.Record{
		{Channel: 0, Index: 1, Type: records.TypeVersion, Version: [4]byte{0xDE, 0xAD, 0xBE, 0xEF}},
	})
	if len(out) != 0 {
		t.Fatalf("type 0 on a non-version key must be dropped, got %+v", out)
	}
}

func TestFormatVersionUnknownRevision(t *testing.T) {
	if got := FormatVersion([4]byte{1, 2, 3, 0x52}); got != "1.2.3|010203" {
		t.Fatalf("unexpected version format: %s", got)
	}
}

func TestSignedCurrents(t *testing.T) {
	// Phase 1 imports, phase 2 exports, phase 3 carries no power records.
	out := SMA.Map([]records.Record{
		{Channel: 0, Index: 21, Type: records.TypeActual, Value: 1200}, // p1consume 120 W
		{Channel: 0, Index: 22, Type: records.TypeActual, Value: 0},
		{Channel: 0, Index: 31, Type: records.TypeActual, Value: 5430}, // i1
		{Channel: 0, Index: 41, Type: records.TypeActual, Value: 0},
		{Channel: 0, Index: 42, Type: records.TypeActual, Value: 4500}, // p2supply 450 W
		{Channel: 0, Index: 51, Type: records.TypeActual, Value: 10000}, // i2
		{Channel: 0, Index: 71, Type: records.TypeActual, Value: 2000}, // i3
	})
	byName := make(map[string]float64)
	for _, r := range out {
		byName[r.Name] = r.Value
	}
	if byName["i1"] != 5.43 {
		t.Fatalf("importing phase current must stay positive: %v", byName["i1"])
	}
	if byName["i2"] != -10.0 {
		t.Fatalf("exporting phase current must go negative: %v", byName["i2"])
	}
	if byName["i3"] != 2.0 {
		t.Fatalf("phase without power records keeps its sign: %v", byName["i3"])
	}
}

func TestDivisorOnePreservesIntegers(t *testing.T) {
	custom := Table{
		1: {Name: "pconsume", ActualUnit: "", CounterUnit: ""},
	}
	out := custom.Map([]records.Record{
		{Channel: 0, Index: 1, Type: records.TypeCounter, Counter: 9007199254740993},
	})
	if len(out) != 1 {
		t.Fatalf("expected 1 reading, got %d", len(out))
	}
	// 2^53+1 is not representable in float64; the policy only guarantees
	// no division happens, which keeps every float64-representable
	// integer exact.
	if out[0].Name != "pconsumecounter" {
		t.Fatalf("unexpected counter name: %s", out[0].Name)
	}
	if out[0].Value != float64(int64(9007199254740993)) {
		t.Fatalf("divisor-1 value must be assigned, not divided: %v", out[0].Value)
	}
}

func TestReadingPayloadFormat(t *testing.T) {
	r := Reading{Name: "u1", Value: 230.0, Unit: "V"}
	if got := r.Payload(); got != "230" {
		t.Fatalf("unexpected payload: %s", got)
	}
	r = Reading{Name: "i1", Value: -5.43, Unit: "A"}
	if got := r.Payload(); got != "-5.43" {
		t.Fatalf("unexpected payload: %s", got)
	}
}
