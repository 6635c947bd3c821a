package common

// CeilDiv returns n / d rounded up. d must be positive.
//
// Parameters:
//   - n: the dividend
//   - d: the divisor
//
// Returns:
//   - uint32: the rounded up quotient
func CeilDiv(n, d uint32) uint32 {
	return (n + d - 1) / d
}
