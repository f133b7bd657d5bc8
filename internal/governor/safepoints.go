package governor

import (
	"fmt"
	"sort"
)

// SafePoint is one (frequency, voltage) entry on the safe operating curve:
// the minimum voltage in millivolts known to be stable at the given
// frequency in MHz.
type SafePoint struct {
	MHz uint32
	Mv  uint32
}

// SafePoints is an ordered, validated frequency -> minimum-safe-voltage
// curve (spec.md §3). Both the frequency sequence and the voltage sequence
// are non-decreasing.
type SafePoints struct {
	points []SafePoint
}

// DefaultSafePoints is used when no safe-point curve is configured.
func DefaultSafePoints() SafePoints {
	sp, err := NewSafePoints(map[uint32]uint32{350: 700, 2000: 1000})
	if err != nil {
		// The default curve is a compile-time constant known to be valid;
		// a failure here would be a programming error in this package.
		panic(err)
	}
	return sp
}

// NewSafePoints validates and sorts points into a SafePoints curve. It
// rejects an empty map and any entry that would make the voltage sequence
// decrease at a higher frequency than a lower one.
func NewSafePoints(points map[uint32]uint32) (SafePoints, error) {
	if len(points) == 0 {
		return SafePoints{}, fmt.Errorf("governor: safe_points must be non-empty")
	}

	sorted := make([]SafePoint, 0, len(points))
	for mhz, mv := range points {
		sorted = append(sorted, SafePoint{MHz: mhz, Mv: mv})
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MHz < sorted[j].MHz })

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Mv < sorted[i-1].Mv {
			return SafePoints{}, fmt.Errorf(
				"governor: safe_points voltage must be non-decreasing with frequency: %dMHz->%dmV precedes %dMHz->%dmV",
				sorted[i-1].MHz, sorted[i-1].Mv, sorted[i].MHz, sorted[i].Mv,
			)
		}
	}

	return SafePoints{points: sorted}, nil
}

// FirstFrequency returns the lowest configured frequency.
func (s SafePoints) FirstFrequency() uint32 {
	return s.points[0].MHz
}

// LastFrequency returns the highest configured frequency.
func (s SafePoints) LastFrequency() uint32 {
	return s.points[len(s.points)-1].MHz
}

// VoltageFor returns the voltage of the first entry whose key is >= f. An
// empty ok means f exceeds the highest configured safe point.
func (s SafePoints) VoltageFor(f uint32) (mv uint32, ok bool) {
	for _, p := range s.points {
		if p.MHz >= f {
			return p.Mv, true
		}
	}
	return 0, false
}
