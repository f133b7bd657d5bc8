package governor

import "math/bits"

// state holds the fields spec.md §3 carries across iterations.
type state struct {
	currFreq         uint32
	targetFreq       uint32
	maxFreqEffective uint32
	status           int32 // hysteresis counter; spec.md bounds it within int16 range
	samples          uint64
}

// recordSample shifts the 64-bit active-sample window left by one, ORing in
// 1 if active is true, per spec.md §4.5 step 1.
func (s *state) recordSample(active bool) {
	s.samples <<= 1
	if active {
		s.samples |= 1
	}
}

// averageLoad returns the fraction of the 64-sample window that was active.
func (s *state) averageLoad() float64 {
	return float64(bits.OnesCount64(s.samples)) / 64.0
}

// burstLength returns the number of contiguous most-recent active samples
// (spec.md §4.5 step 1: trailing_zeros(¬samples)).
func (s *state) burstLength() int {
	return bits.TrailingZeros64(^s.samples)
}
