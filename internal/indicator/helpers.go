package indicator

import "math"

// Last 返回序列最后一个值,若为空则返回 NaN。
func Last(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return values[len(values)-1]
}

// Prev 返回序列倒数第二个值,若不足两个元素则返回 NaN。
func Prev(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	return values[len(values)-2]
}

// At 返回序列第 i 个值,越界时返回 NaN。
func At(values []float64, i int) float64 {
	if i < 0 || i >= len(values) {
		return math.NaN()
	}
	return values[i]
}

// SliceTail 返回序列末尾 n 个值,不足时返回全部。
func SliceTail(values []float64, n int) []float64 {
	if n <= 0 || len(values) == 0 {
		return nil
	}
	if len(values) <= n {
		dst := make([]float64, len(values))
		copy(dst, values)
		return dst
	}
	dst := make([]float64, n)
	copy(dst, values[len(values)-n:])
	return dst
}

// SafeDivide 除法保护,除数为0时返回0。
func SafeDivide(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
