package s2f

import (
	"math"
	"time"
)

// 比特币减半周期与 Stock-to-Flow 估值模型。
// 区块高度按创世日期与平均出块速度估算,无需链上数据。

const (
	halvingBlocks  = 210000
	blocksPerHour  = 6
	blocksPerYear  = blocksPerHour * 24 * 365
	fallbackCycle  = 1460 // 最后一次已知减半之后按约四年推算
	modelCoeff     = 0.4  // 模型价格 = modelCoeff * ratio^3
	baseReward     = 6.25
	supplyPerEpoch = 50.0
)

var genesisDate = time.Date(2009, 1, 3, 0, 0, 0, 0, time.UTC)

// halvingDates 包含历史减半日期与下一次的估算日期。
var halvingDates = []time.Time{
	time.Date(2012, 11, 28, 0, 0, 0, 0, time.UTC),
	time.Date(2016, 7, 9, 0, 0, 0, 0, time.UTC),
	time.Date(2020, 5, 11, 0, 0, 0, 0, time.UTC),
	time.Date(2024, 4, 19, 0, 0, 0, 0, time.UTC),
	time.Date(2028, 1, 1, 0, 0, 0, 0, time.UTC),
}

// Phase 表示减半周期内的阶段。
type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseAccumulation
	PhaseBull
	PhaseDistribution
	PhasePreHalving
)

func (p Phase) String() string {
	switch p {
	case PhaseAccumulation:
		return "accumulation"
	case PhaseBull:
		return "bull"
	case PhaseDistribution:
		return "distribution"
	case PhasePreHalving:
		return "pre_halving"
	default:
		return "unknown"
	}
}

// CycleInfo 描述某一日期在减半周期中的位置。
type CycleInfo struct {
	Phase          Phase
	RiskMultiplier float64
	Position       float64
	LastHalving    time.Time
	NextHalving    time.Time
}

// Cycle 计算给定日期的周期信息。早于首次减半的日期无周期可言,返回 false。
func Cycle(date time.Time) (CycleInfo, bool) {
	date = date.UTC()

	var last time.Time
	found := false
	for _, d := range halvingDates {
		if !d.After(date) {
			last = d
			found = true
		}
	}
	if !found {
		return CycleInfo{Phase: PhaseUnknown}, false
	}

	next := last.AddDate(0, 0, fallbackCycle)
	for _, d := range halvingDates {
		if d.After(date) {
			next = d
			break
		}
	}

	daysSince := date.Sub(last).Hours() / 24
	totalDays := next.Sub(last).Hours() / 24
	position := daysSince / totalDays

	info := CycleInfo{
		Position:    position,
		LastHalving: last,
		NextHalving: next,
	}
	switch {
	case position < 0.25:
		info.Phase = PhaseAccumulation
		info.RiskMultiplier = 2.0
	case position < 0.5:
		info.Phase = PhaseBull
		info.RiskMultiplier = 1.5
	case position < 0.75:
		info.Phase = PhaseDistribution
		info.RiskMultiplier = 1.0
	default:
		info.Phase = PhasePreHalving
		info.RiskMultiplier = 0.5
	}
	return info, true
}

// EstimateBlockHeight 按创世日期与每小时6个区块估算区块高度。
func EstimateBlockHeight(date time.Time) int64 {
	hours := date.UTC().Sub(genesisDate).Hours()
	if hours < 0 {
		return 0
	}
	return int64(hours * blocksPerHour)
}

// Ratio 按估算区块高度计算 Stock-to-Flow 比值:
// 存量为几何级数闭式累计供给,流量为当前区块奖励的年化产出。
func Ratio(blockHeight int64) float64 {
	halvingNumber := blockHeight / halvingBlocks
	supply := supplyPerEpoch * (1 - math.Pow(0.5, float64(halvingNumber))) * halvingBlocks * 2
	flow := baseReward / math.Pow(2, float64(halvingNumber)) * blocksPerYear
	if flow <= 0 {
		return math.Inf(1)
	}
	return supply / flow
}

// ModelPrice 计算 S2F 模型价格。
func ModelPrice(ratio float64) float64 {
	return modelCoeff * math.Pow(ratio, 3)
}

// Deviation 计算价格相对模型价格的偏离(小数,0.5 表示高出 50%)。
func Deviation(price float64, date time.Time) float64 {
	model := ModelPrice(Ratio(EstimateBlockHeight(date)))
	if model <= 0 {
		return math.NaN()
	}
	return (price - model) / model
}

// DeviationPct 计算百分比形式的偏离,供价格管道落库使用。
func DeviationPct(price float64, date time.Time) float64 {
	return Deviation(price, date) * 100
}
