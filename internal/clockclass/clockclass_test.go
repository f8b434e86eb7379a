package clockclass

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCyclesToNsFromOriginBasic(t *testing.T) {
	cc := New("monotonic", 1_000_000_000)
	ns, err := CyclesToNsFromOrigin(cc, 1000)
	require.NoError(t, err)
	require.Equal(t, int64(1000), ns)
}

func TestCyclesToNsFromOriginAppliesOffsets(t *testing.T) {
	cc := New("monotonic", 1_000_000_000)
	cc.OffsetS = 5
	cc.OffsetCycles = 100
	ns, err := CyclesToNsFromOrigin(cc, 1000)
	require.NoError(t, err)
	require.Equal(t, int64(5_000_000_000+1100), ns)
}

func TestCyclesToNsFromOriginScalesByFrequency(t *testing.T) {
	cc := New("slow", 1_000)
	ns, err := CyclesToNsFromOrigin(cc, 5)
	require.NoError(t, err)
	require.Equal(t, int64(5_000_000), ns)
}

func TestCyclesToNsFromOriginMonotonic(t *testing.T) {
	cc := New("monotonic", 1_000_000_000)
	a, err := CyclesToNsFromOrigin(cc, 100)
	require.NoError(t, err)
	b, err := CyclesToNsFromOrigin(cc, 200)
	require.NoError(t, err)
	require.Less(t, a, b)
}

func TestCyclesToNsFromOriginZeroFrequencyErrors(t *testing.T) {
	cc := New("bad", 0)
	cc.FrequencyHz = 0
	_, err := CyclesToNsFromOrigin(cc, 1)
	require.Error(t, err)
}

func TestCyclesToNsFromOriginNegativeOffsetCyclesUnderflow(t *testing.T) {
	cc := New("monotonic", 1_000_000_000)
	cc.OffsetCycles = -10
	_, err := CyclesToNsFromOrigin(cc, 5)
	require.Error(t, err)
}
