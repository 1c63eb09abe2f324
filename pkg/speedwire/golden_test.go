package speedwire

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/d21d3q/sma2mqtt/internal/testutil"
)

func TestDecodeGolden(t *testing.T) {
	fixtures := []string{
		"em_instantaneous",
		"em_export",
		"em_keepalive",
	}
	for _, name := range fixtures {
		t.Run(name, func(t *testing.T) {
			raw := testutil.LoadFrame(t, "em/"+name+".hex")
			result, err := Decode(raw)
			require.NoError(t, err)

			var expected map[string]any
			testutil.LoadJSON(t, "em/"+name+".json", &expected)
			require.Equal(t, "", diffValues(expected, result.Values()))
		})
	}
}

func TestDecodeIdempotent(t *testing.T) {
	raw := testutil.LoadFrame(t, "em/em_instantaneous.hex")
	first, err := Decode(raw)
	require.NoError(t, err)
	second, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestDecodeTruncationSweep(t *testing.T) {
	raw := testutil.LoadFrame(t, "em/em_instantaneous.hex")
	// Every cut between the minimum header and the full frame must fail
	// as truncated: either the declared length overruns the buffer or a
	// record overruns the declared length. Never a partial result.
	for cut := 28; cut < len(raw); cut++ {
		_, err := Decode(raw[:cut])
		require.ErrorIs(t, err, ErrTruncatedFrame, "cut at %d", cut)
	}
}

// diffValues compares golden JSON against decoded values, coercing
// numbers so uint32 fields match JSON's float64.
func diffValues(expected, actual map[string]any) string {
	if len(expected) != len(actual) {
		return fmt.Sprintf("len mismatch expected %d actual %d (actual: %v)", len(expected), len(actual), actual)
	}
	for k, want := range expected {
		got, ok := actual[k]
		if !ok {
			return fmt.Sprintf("missing key %q", k)
		}
		wantF, wantNum := toFloat(want)
		gotF, gotNum := toFloat(got)
		if wantNum != gotNum {
			return fmt.Sprintf("key %q kind mismatch: expected %v actual %v", k, want, got)
		}
		if wantNum {
			if math.Abs(wantF-gotF) > 1e-9 {
				return fmt.Sprintf("key %q: expected %v actual %v", k, want, got)
			}
			continue
		}
		if want != got {
			return fmt.Sprintf("key %q: expected %v actual %v", k, want, got)
		}
	}
	return ""
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
