package governor

import "fmt"

// BeyondMaxSafePointError is returned when the governor would otherwise
// command a frequency with no matching safe-point entry. spec.md §7 treats
// this as a programming error: the clamp in Step guarantees it cannot occur
// as long as configuration invariants hold.
type BeyondMaxSafePointError struct {
	RequestedMHz uint32
}

func (e *BeyondMaxSafePointError) Error() string {
	return fmt.Sprintf("governor: %d MHz has no safe point at or above it", e.RequestedMHz)
}
