package helper

import "math"

func RoundDownToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	steps := math.Floor(px/tick + 1e-12)
	return steps * tick
}

func RoundUpToTick(px, tick float64) float64 {
	if tick <= 0 {
		return px
	}
	steps := math.Ceil(px/tick - 1e-12)
	return steps * tick
}

// RoundDownToLot — объём вниз до шага лота.
func RoundDownToLot(sz, lot float64) float64 {
	if lot <= 0 {
		return sz
	}
	steps := math.Floor(sz/lot + 1e-9)
	return steps * lot
}

func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// WithinBand — |a-b|/b <= tol (tol в долях, например 0.002).
func WithinBand(a, b, tol float64) bool {
	if b == 0 {
		return false
	}
	return math.Abs(a-b)/math.Abs(b) <= tol
}
