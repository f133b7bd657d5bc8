package governor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDefaultSafePoints(t *testing.T) {
	sp := DefaultSafePoints()
	assert.EqualValues(t, 350, sp.FirstFrequency())
	assert.EqualValues(t, 2000, sp.LastFrequency())
}

func TestEmptySafePointsRejected(t *testing.T) {
	_, err := NewSafePoints(nil)
	assert.Error(t, err)
}

// TestFreqZeroWithHigherVoltageRejected matches spec.md §8: an entry at
// frequency = 0 with higher voltage than a later entry is rejected.
func TestFreqZeroWithHigherVoltageRejected(t *testing.T) {
	_, err := NewSafePoints(map[uint32]uint32{0: 1000, 500: 700})
	assert.Error(t, err)
}

func TestVoltageForPicksFirstEntryGreaterOrEqual(t *testing.T) {
	sp, err := NewSafePoints(map[uint32]uint32{350: 700, 1000: 850, 2000: 1000})
	require.NoError(t, err)

	mv, ok := sp.VoltageFor(600)
	require.True(t, ok)
	assert.EqualValues(t, 850, mv)

	mv, ok = sp.VoltageFor(350)
	require.True(t, ok)
	assert.EqualValues(t, 700, mv)

	_, ok = sp.VoltageFor(2001)
	assert.False(t, ok)
}

// TestSafePointsAlwaysMonotone builds random valid curves and checks
// spec.md §3's invariant holds for every generated curve: both sequences
// non-decreasing, and VoltageFor never returns a lower voltage for a higher
// frequency query.
func TestSafePointsAlwaysMonotone(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(t, "n")

		points := make(map[uint32]uint32, n)
		mhz := uint32(100)
		mv := uint32(600)
		for i := 0; i < n; i++ {
			mhz += rapid.Uint32Range(1, 200).Draw(t, "mhzStep")
			mv += rapid.Uint32Range(0, 50).Draw(t, "mvStep")
			points[mhz] = mv
		}

		sp, err := NewSafePoints(points)
		require.NoError(t, err)

		prevMv := uint32(0)
		prevMhz := uint32(0)
		for f := sp.FirstFrequency(); f <= sp.LastFrequency(); f++ {
			v, ok := sp.VoltageFor(f)
			if !ok {
				continue
			}
			if f > prevMhz {
				assert.GreaterOrEqual(t, v, prevMv)
			}
			prevMhz, prevMv = f, v
		}
	})
}
