package analytics

import (
	"math"

	"trades-backtest/internal/indicator"
	"trades-backtest/internal/market"
)

// 区间周期标签,按首尾价格之比划分。
const (
	CycleBull     = "bull"
	CycleBear     = "bear"
	CycleSideways = "sideways"
)

// 市场环境标签,按最新价格相对长期均线的偏离划分。
const (
	EnvBull    = "bull"
	EnvBear    = "bear"
	EnvNeutral = "neutral"
)

const (
	cycleBullRatio = 1.2
	cycleBearRatio = 0.8

	envFastSMAWindow    = 50
	envSMAWindow        = 200
	defaultEnvThreshold = 0.05
)

// ClassifyCycle 按区间首尾价格之比划分周期:涨两成为牛,跌两成为熊,
// 其余为震荡。起始价非正时视为震荡。
func ClassifyCycle(startPrice, endPrice float64) string {
	if startPrice <= 0 || math.IsNaN(startPrice) || math.IsNaN(endPrice) {
		return CycleSideways
	}
	change := endPrice / startPrice
	switch {
	case change >= cycleBullRatio:
		return CycleBull
	case change <= cycleBearRatio:
		return CycleBear
	default:
		return CycleSideways
	}
}

// DetectEnvironment 以最新收盘价相对 SMA200 的偏离判断市场环境,
// threshold 非正时取 0.05。历史不足均线窗口时返回 neutral。
func DetectEnvironment(series market.Series, threshold float64) string {
	if threshold <= 0 {
		threshold = defaultEnvThreshold
	}
	n := series.Len()
	if n == 0 {
		return EnvNeutral
	}

	sma := indicator.At(indicator.SMA(series.Close, envSMAWindow), n-1)
	if math.IsNaN(sma) || sma <= 0 {
		return EnvNeutral
	}

	price := series.Close[n-1]
	switch {
	case price > sma*(1+threshold):
		return EnvBull
	case price < sma*(1-threshold):
		return EnvBear
	default:
		return EnvNeutral
	}
}
