package sessions

import (
	"errors"
	"math"
	"testing"
)

func TestTruncateAmount(t *testing.T) {
	t.Parallel()

	valid := map[float64]int64{
		0:          0,
		12.99:      12,
		-12.99:     -12,
		500:        500,
		-(1 << 63): math.MinInt64,
	}
	for in, want := range valid {
		got, err := TruncateAmount(in)
		if err != nil {
			t.Fatalf("TruncateAmount(%v): %v", in, err)
		}
		if got != want {
			t.Fatalf("TruncateAmount(%v) = %d, want %d", in, got, want)
		}
	}

	for _, in := range []float64{1e30, -1e30, 1 << 63, math.Inf(1), math.Inf(-1), math.NaN()} {
		_, err := TruncateAmount(in)
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("TruncateAmount(%v): expected ErrInvalidInput, got %v", in, err)
		}
		if err.Error() != "invalid session input: amount out of range" {
			t.Fatalf("unexpected message %q", err.Error())
		}
	}
}
