package competition

import (
	"math/bits"

	"github.com/wingame/winchain/core"
)

// Entitlements splits pot across n ranks according to curve, best rank
// first. Shares decrease monotonically by rank. Integer division rounds each
// share down; the undistributed remainder (pot minus the sum of all shares)
// belongs to the operator, so shares plus remainder always equal pot exactly.
func Entitlements(curve core.PayoutCurve, pot uint64, n uint32) []uint64 {
	if n == 0 {
		return nil
	}
	weights := make([]uint64, n)
	var sum uint64
	for r := uint32(0); r < n; r++ {
		w := uint64(n - r)
		if curve == core.CurveQuadratic {
			w *= w
		}
		weights[r] = w
		sum += w
	}

	shares := make([]uint64, n)
	for r, w := range weights {
		// pot*w can exceed 64 bits; w <= sum keeps the 128-bit quotient
		// below pot, so Div64 cannot overflow.
		hi, lo := bits.Mul64(pot, w)
		q, _ := bits.Div64(hi, lo, sum)
		shares[r] = q
	}
	return shares
}

// OperatorRemainder returns the rounding remainder accruing to the operator
// for the given split.
func OperatorRemainder(pot uint64, shares []uint64) uint64 {
	rest := pot
	for _, s := range shares {
		rest -= s
	}
	return rest
}
