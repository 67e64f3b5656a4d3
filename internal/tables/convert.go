package tables

import "math"

func toUint64(v any) uint64 {
	switch n := v.(type) {
	case int64:
		return uint64(n)
	case uint64:
		return n
	case int:
		return uint64(n)
	case int32:
		return uint64(n)
	case uint32:
		return uint64(n)
	case uint16:
		return uint64(n)
	case byte:
		return uint64(n)
	}
	return 0
}

func mathFloat32bits(v any) uint32 {
	switch n := v.(type) {
	case float64:
		return math.Float32bits(float32(n))
	case float32:
		return math.Float32bits(n)
	}
	return 0
}

func mathFloat64bits(v any) uint64 {
	switch n := v.(type) {
	case float64:
		return math.Float64bits(n)
	case float32:
		return math.Float64bits(float64(n))
	}
	return 0
}
