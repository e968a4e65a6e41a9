package sessions

import (
	"fmt"
	"math"
)

// amountBound is 2^63; it is exact in float64 unlike math.MaxInt64.
const amountBound = 1 << 63

// TruncateAmount converts a decimal amount to minor units, truncating toward
// zero. NaN and values outside the int64 range are rejected.
func TruncateAmount(v float64) (int64, error) {
	t := math.Trunc(v)
	if math.IsNaN(t) || t >= amountBound || t < -amountBound {
		return 0, fmt.Errorf("%w: amount out of range", ErrInvalidInput)
	}
	return int64(t), nil
}
