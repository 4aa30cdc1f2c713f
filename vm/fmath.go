package vm

import "math"

// Checked float-to-integer conversion. The source value is truncated
// toward zero and must then fall strictly inside an exclusive (lo, hi)
// window; the window constants are the nearest representable floats just
// outside the destination range, so the strict comparison admits exactly
// the in-range values. NaN reports a bad conversion, everything else out
// of window reports integer overflow.

func checkedF32ToInt(v float32, width int) (int64, TrapKind, bool) {
	var lo, hi float32
	if width == 32 {
		lo, hi = -2147483904.0, 2147483648.0
	} else {
		lo, hi = -9223373136366403584.0, 9223372036854775808.0
	}
	if v != v {
		return 0, TrapBadConversionToInteger, false
	}
	t := float32(math.Trunc(float64(v)))
	if !(lo < t && t < hi) {
		return 0, TrapIntegerOverflow, false
	}
	return int64(t), 0, true
}

func checkedF32ToUint(v float32, width int) (uint64, TrapKind, bool) {
	var hi float32
	if width == 32 {
		hi = 4294967296.0
	} else {
		hi = 18446744073709551616.0
	}
	if v != v {
		return 0, TrapBadConversionToInteger, false
	}
	t := float32(math.Trunc(float64(v)))
	if !(-1.0 < t && t < hi) {
		return 0, TrapIntegerOverflow, false
	}
	return uint64(t), 0, true
}

func checkedF64ToInt(v float64, width int) (int64, TrapKind, bool) {
	var lo, hi float64
	if width == 32 {
		lo, hi = -2147483649.0, 2147483648.0
	} else {
		lo, hi = -9223372036854777856.0, 9223372036854775808.0
	}
	if v != v {
		return 0, TrapBadConversionToInteger, false
	}
	t := math.Trunc(v)
	if !(lo < t && t < hi) {
		return 0, TrapIntegerOverflow, false
	}
	return int64(t), 0, true
}

func checkedF64ToUint(v float64, width int) (uint64, TrapKind, bool) {
	var hi float64
	if width == 32 {
		hi = 4294967296.0
	} else {
		hi = 18446744073709551616.0
	}
	if v != v {
		return 0, TrapBadConversionToInteger, false
	}
	t := math.Trunc(v)
	if !(-1.0 < t && t < hi) {
		return 0, TrapIntegerOverflow, false
	}
	return uint64(t), 0, true
}

// Saturating conversions. Go's float-to-int conversion is undefined for
// out-of-range values, so the clamping is spelled out: NaN becomes 0 and
// out-of-range values stick at the nearest representable bound.

func satF64ToI32(v float64) int32 {
	switch {
	case v != v:
		return 0
	case v <= math.MinInt32:
		return math.MinInt32
	case v >= math.MaxInt32:
		return math.MaxInt32
	default:
		return int32(v)
	}
}

func satF64ToU32(v float64) uint32 {
	switch {
	case v != v:
		return 0
	case v <= 0:
		return 0
	case v >= math.MaxUint32:
		return math.MaxUint32
	default:
		return uint32(v)
	}
}

func satF64ToI64(v float64) int64 {
	switch {
	case v != v:
		return 0
	case v <= math.MinInt64:
		return math.MinInt64
	case v >= math.MaxInt64:
		return math.MaxInt64
	default:
		return int64(v)
	}
}

func satF64ToU64(v float64) uint64 {
	switch {
	case v != v:
		return 0
	case v <= 0:
		return 0
	case v >= math.MaxUint64:
		return math.MaxUint64
	default:
		return uint64(v)
	}
}
