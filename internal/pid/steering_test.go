package pid

import (
	"math"
	"testing"
)

func TestSteeringFactorKnownPoints(t *testing.T) {
	cases := []struct {
		steer  float64
		factor float64
	}{
		{0, 1.0},
		{0.15, 1.0},
		{0.3, 1.0},
		{-0.3, 1.0},
		{0.65, 0.9},
		{1.0, 0.8},
		{-1.0, 0.8},
	}
	for _, tc := range cases {
		if got := steeringFactor(tc.steer); math.Abs(got-tc.factor) > 1e-9 {
			t.Fatalf("steeringFactor(%f) = %f, want %f", tc.steer, got, tc.factor)
		}
	}
}

func TestSteeringFactorMonotoneAboveSensitivity(t *testing.T) {
	prev := steeringFactor(0.3)
	for steer := 0.31; steer <= 1.0; steer += 0.01 {
		got := steeringFactor(steer)
		if got >= prev {
			t.Fatalf("factor did not decrease at %f: %f -> %f", steer, prev, got)
		}
		prev = got
	}
}
