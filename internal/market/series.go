package market

import (
	"fmt"
	"math"
	"time"
)

// PricePoint 表示单个交易日的行情点。High/Low/Volume 可选,
// S2FDeviation 为价格相对 S2F 模型值的偏离百分比,缺失时为 NaN。
type PricePoint struct {
	Date         time.Time
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       float64
	S2FDeviation float64
}

// Series 将日线行情拆分为便于指标计算的列式序列。
// 序列一经构建视为只读,各切片长度一致且按日期升序排列。
type Series struct {
	Dates        []time.Time
	Open         []float64
	High         []float64
	Low          []float64
	Close        []float64
	Volume       []float64
	S2FDeviation []float64
}

// NewSeries 从行情点创建 Series,日期统一为 UTC。
func NewSeries(points []PricePoint) Series {
	length := len(points)
	series := Series{
		Dates:        make([]time.Time, length),
		Open:         make([]float64, length),
		High:         make([]float64, length),
		Low:          make([]float64, length),
		Close:        make([]float64, length),
		Volume:       make([]float64, length),
		S2FDeviation: make([]float64, length),
	}

	for i := 0; i < length; i++ {
		point := points[i]
		series.Dates[i] = point.Date.UTC()
		series.Open[i] = point.Open
		series.High[i] = point.High
		series.Low[i] = point.Low
		series.Close[i] = point.Close
		series.Volume[i] = point.Volume
		series.S2FDeviation[i] = point.S2FDeviation
	}

	return series
}

// Len 返回序列长度。
func (s Series) Len() int {
	return len(s.Close)
}

// Prefix 返回前 n 个点的只读视图,底层数组与原序列共享。
func (s Series) Prefix(n int) Series {
	if n < 0 {
		n = 0
	}
	if n > s.Len() {
		n = s.Len()
	}
	return Series{
		Dates:        s.Dates[:n],
		Open:         s.Open[:n],
		High:         s.High[:n],
		Low:          s.Low[:n],
		Close:        s.Close[:n],
		Volume:       s.Volume[:n],
		S2FDeviation: s.S2FDeviation[:n],
	}
}

// Range 返回日期闭区间 [from, to] 内的只读视图。
func (s Series) Range(from, to time.Time) Series {
	start := 0
	for start < s.Len() && s.Dates[start].Before(from) {
		start++
	}
	end := start
	for end < s.Len() && !s.Dates[end].After(to) {
		end++
	}
	return Series{
		Dates:        s.Dates[start:end],
		Open:         s.Open[start:end],
		High:         s.High[start:end],
		Low:          s.Low[start:end],
		Close:        s.Close[start:end],
		Volume:       s.Volume[start:end],
		S2FDeviation: s.S2FDeviation[start:end],
	}
}

// Validate 校验序列是否满足引擎前置条件:日期严格递增、收盘价为正。
func (s Series) Validate() error {
	for i := 0; i < s.Len(); i++ {
		if s.Close[i] <= 0 || math.IsNaN(s.Close[i]) {
			return fmt.Errorf("价格序列第 %d 个点收盘价非法: %v", i, s.Close[i])
		}
		if i > 0 && !s.Dates[i].After(s.Dates[i-1]) {
			return fmt.Errorf("价格序列第 %d 个点日期未严格递增: %s", i, s.Dates[i].Format("2006-01-02"))
		}
	}
	return nil
}
