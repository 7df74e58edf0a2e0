package utils

import "math"

// Int16ToFloat32 maps a signed 16-bit PCM sample onto [-1, 1).
func Int16ToFloat32(x int16) float32 {
	return float32(x) / 32768.0
}

// Float32ToInt16 maps a float sample to signed 16-bit PCM. Values outside
// [-1, 1] are clamped and the fractional part is truncated toward zero, so
// Float32ToInt16(Int16ToFloat32(x)) == x for every int16 x.
func Float32ToInt16(x float32) int16 {
	scaled := float64(x) * 32768.0
	if scaled > math.MaxInt16 {
		return math.MaxInt16
	}

	if scaled < math.MinInt16 {
		return math.MinInt16
	}

	return int16(scaled)
}

// ClampFloat32 limits a float sample to the nominal [-1, 1] range.
func ClampFloat32(x float32) float32 {
	if x > 1 {
		return 1
	}

	if x < -1 {
		return -1
	}

	return x
}
