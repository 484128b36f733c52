package indicator

import (
	"fmt"
	"sync"

	"trades-backtest/internal/market"
)

// Calculator 绑定一条价格序列,为批量回测缓存指标列,
// 避免参数扫描中对同一列的重复计算。并发安全。
// 返回的切片与缓存共享,调用方不得修改。
type Calculator struct {
	series market.Series
	mu     sync.Mutex
	cache  map[string][]float64
}

// NewCalculator 创建绑定到给定序列的 Calculator。
func NewCalculator(series market.Series) *Calculator {
	return &Calculator{
		series: series,
		cache:  make(map[string][]float64),
	}
}

// Series 返回绑定的价格序列。
func (c *Calculator) Series() market.Series {
	return c.series
}

// Len 返回绑定序列的长度。
func (c *Calculator) Len() int {
	return c.series.Len()
}

// SMA 返回收盘价的简单移动平均列。
func (c *Calculator) SMA(window int) []float64 {
	return c.column(fmt.Sprintf("sma:%d", window), func() []float64 {
		return SMA(c.series.Close, window)
	})
}

// EMA 返回收盘价的指数移动平均列。
func (c *Calculator) EMA(span int) []float64 {
	return c.column(fmt.Sprintf("ema:%d", span), func() []float64 {
		return EMA(c.series.Close, span)
	})
}

// RSI 返回收盘价的相对强弱指数列。
func (c *Calculator) RSI(period int) []float64 {
	return c.column(fmt.Sprintf("rsi:%d", period), func() []float64 {
		return RSI(c.series.Close, period)
	})
}

// VolumeSMA 返回成交量的简单移动平均列。
func (c *Calculator) VolumeSMA(window int) []float64 {
	return c.column(fmt.Sprintf("volsma:%d", window), func() []float64 {
		return SMA(c.series.Volume, window)
	})
}

// ATR 返回平均真实波幅列。
func (c *Calculator) ATR(period int) []float64 {
	return c.column(fmt.Sprintf("atr:%d", period), func() []float64 {
		return ATR(c.series.High, c.series.Low, c.series.Close, period)
	})
}

// ADX 返回平均趋向指数列。
func (c *Calculator) ADX(window int) []float64 {
	return c.column(fmt.Sprintf("adx:%d", window), func() []float64 {
		return ADX(c.series.High, c.series.Low, c.series.Close, window)
	})
}

// RollingMax 返回收盘价的滚动最大值列。
func (c *Calculator) RollingMax(window int) []float64 {
	return c.column(fmt.Sprintf("rmax:%d", window), func() []float64 {
		return RollingMax(c.series.Close, window)
	})
}

// RollingMin 返回收盘价的滚动最小值列。
func (c *Calculator) RollingMin(window int) []float64 {
	return c.column(fmt.Sprintf("rmin:%d", window), func() []float64 {
		return RollingMin(c.series.Close, window)
	})
}

// Bollinger 返回布林带上中下轨。
func (c *Calculator) Bollinger(window int, numStd float64) (upper, middle, lower []float64) {
	keyU := fmt.Sprintf("boll_u:%d:%g", window, numStd)
	keyM := fmt.Sprintf("boll_m:%d:%g", window, numStd)
	keyL := fmt.Sprintf("boll_l:%d:%g", window, numStd)

	c.mu.Lock()
	defer c.mu.Unlock()
	if u, ok := c.cache[keyU]; ok {
		return u, c.cache[keyM], c.cache[keyL]
	}
	u, m, l := BollingerBands(c.series.Close, window, numStd)
	c.cache[keyU] = u
	c.cache[keyM] = m
	c.cache[keyL] = l
	return u, m, l
}

func (c *Calculator) column(key string, compute func() []float64) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if col, ok := c.cache[key]; ok {
		return col
	}
	col := compute()
	c.cache[key] = col
	return col
}
