package pricing

import "math"

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func ptr(v float64) *float64 {
	return &v
}
