package indicator

import (
	"math"

	talib "github.com/markcheno/go-talib"
)

// 本包约定:所有指标函数输入输出等长,暖机期内的值为 NaN 而非 0。
// EMA 例外,自首个元素起即有定义。布林带使用样本标准差(ddof=1)。

// dxEpsilon 防止 DX 公式在 +DI 与 -DI 同时接近 0 时除零。
const dxEpsilon = 1e-10

// SMA 计算简单移动平均,前 window-1 个值为 NaN。
func SMA(values []float64, window int) []float64 {
	n := len(values)
	if n == 0 {
		return nil
	}
	if window <= 0 || window > n {
		return nanSlice(n)
	}
	out := talib.Sma(values, window)
	for i := 0; i < window-1; i++ {
		out[i] = math.NaN()
	}
	return out
}

// EMA 计算指数移动平均,平滑系数 α=2/(span+1),首值取首个输入价格。
func EMA(values []float64, span int) []float64 {
	n := len(values)
	if n == 0 {
		return nil
	}
	if span <= 0 {
		return nanSlice(n)
	}
	alpha := 2.0 / (float64(span) + 1.0)
	out := make([]float64, n)
	out[0] = values[0]
	for i := 1; i < n; i++ {
		out[i] = alpha*values[i] + (1.0-alpha)*out[i-1]
	}
	return out
}

// RSI 计算相对强弱指数。涨跌幅分别取滚动简单均值(非指数平滑),
// 窗口内无下跌时按边界规则取 100。
func RSI(prices []float64, period int) []float64 {
	n := len(prices)
	if n == 0 {
		return nil
	}
	if period <= 0 || period > n {
		return nanSlice(n)
	}

	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		delta := prices[i] - prices[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}

	avgGain := SMA(gains, period)
	avgLoss := SMA(losses, period)

	out := nanSlice(n)
	for i := period - 1; i < n; i++ {
		gain, loss := avgGain[i], avgLoss[i]
		if math.IsNaN(gain) || math.IsNaN(loss) {
			continue
		}
		if loss == 0 {
			out[i] = 100
			continue
		}
		rs := gain / loss
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// RollingStd 计算滚动样本标准差(ddof=1),window 小于 2 时全为 NaN。
func RollingStd(values []float64, window int) []float64 {
	n := len(values)
	out := nanSlice(n)
	if window < 2 || window > n {
		return out
	}
	for i := window - 1; i < n; i++ {
		mean := 0.0
		for j := i - window + 1; j <= i; j++ {
			mean += values[j]
		}
		mean /= float64(window)

		sumSq := 0.0
		for j := i - window + 1; j <= i; j++ {
			d := values[j] - mean
			sumSq += d * d
		}
		out[i] = math.Sqrt(sumSq / float64(window-1))
	}
	return out
}

// BollingerBands 计算布林带,返回上轨、中轨、下轨。
// 中轨为 SMA,带宽为 numStd 倍滚动样本标准差。
func BollingerBands(prices []float64, window int, numStd float64) (upper, middle, lower []float64) {
	n := len(prices)
	middle = SMA(prices, window)
	std := RollingStd(prices, window)
	upper = nanSlice(n)
	lower = nanSlice(n)
	for i := 0; i < n; i++ {
		if math.IsNaN(middle[i]) || math.IsNaN(std[i]) {
			continue
		}
		upper[i] = middle[i] + numStd*std[i]
		lower[i] = middle[i] - numStd*std[i]
	}
	return upper, middle, lower
}

// TrueRange 计算真实波幅:max(high-low, |high-prevClose|, |low-prevClose|),
// 首个元素无前收盘价,取 high-low。
func TrueRange(high, low, close []float64) []float64 {
	n := len(close)
	if n == 0 {
		return nil
	}
	out := make([]float64, n)
	out[0] = high[0] - low[0]
	for i := 1; i < n; i++ {
		hl := high[i] - low[i]
		hc := math.Abs(high[i] - close[i-1])
		lc := math.Abs(low[i] - close[i-1])
		out[i] = math.Max(hl, math.Max(hc, lc))
	}
	return out
}

// ATR 计算平均真实波幅,为真实波幅的滚动简单均值。
func ATR(high, low, close []float64, period int) []float64 {
	return SMA(TrueRange(high, low, close), period)
}

// ADX 计算平均趋向指数。DX 分母带 epsilon 保护,
// 完整定义需要 2*(window-1) 根之后的历史。
func ADX(high, low, close []float64, window int) []float64 {
	n := len(close)
	if n == 0 {
		return nil
	}
	if window <= 0 || window > n {
		return nanSlice(n)
	}

	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	avgPlus := SMA(plusDM, window)
	avgMinus := SMA(minusDM, window)
	atr := ATR(high, low, close, window)

	dx := nanSlice(n)
	for i := window - 1; i < n; i++ {
		if math.IsNaN(atr[i]) || atr[i] == 0 {
			continue
		}
		plusDI := 100 * avgPlus[i] / atr[i]
		minusDI := 100 * avgMinus[i] / atr[i]
		dx[i] = math.Abs(plusDI-minusDI) / (plusDI + minusDI + dxEpsilon) * 100
	}
	return rollingMeanNaN(dx, window)
}

// RollingMax 计算滚动最大值,前 window-1 个值为 NaN。
func RollingMax(values []float64, window int) []float64 {
	n := len(values)
	if n == 0 {
		return nil
	}
	if window <= 0 || window > n {
		return nanSlice(n)
	}
	out := talib.Max(values, window)
	for i := 0; i < window-1; i++ {
		out[i] = math.NaN()
	}
	return out
}

// RollingMin 计算滚动最小值,前 window-1 个值为 NaN。
func RollingMin(values []float64, window int) []float64 {
	n := len(values)
	if n == 0 {
		return nil
	}
	if window <= 0 || window > n {
		return nanSlice(n)
	}
	out := talib.Min(values, window)
	for i := 0; i < window-1; i++ {
		out[i] = math.NaN()
	}
	return out
}

// rollingMeanNaN 按窗口计算均值,窗口内含 NaN 时结果为 NaN。
// 用于 DX 等自带暖机期的中间序列。
func rollingMeanNaN(values []float64, window int) []float64 {
	n := len(values)
	out := nanSlice(n)
	if window <= 0 || window > n {
		return out
	}
	for i := window - 1; i < n; i++ {
		sum := 0.0
		valid := true
		for j := i - window + 1; j <= i; j++ {
			if math.IsNaN(values[j]) {
				valid = false
				break
			}
			sum += values[j]
		}
		if valid {
			out[i] = sum / float64(window)
		}
	}
	return out
}
