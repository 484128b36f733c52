package strategy

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"trades-backtest/internal/market"
)

// table 承载以名字索引的数值参数,参数清扫时每个网格点都会生成一份。
type table map[string]float64

func (t table) intVal(key string) int {
	return int(math.Round(t[key]))
}

func (t table) flag(key string, fallback bool) bool {
	v, ok := t[key]
	if !ok {
		return fallback
	}
	return v > 0.5
}

type builder struct {
	keys  []string
	build func(t table) (Strategy, error)
}

var builders = map[string]builder{
	"ema_s2f": {
		keys: []string{"fast_span", "slow_span"},
		build: func(t table) (Strategy, error) {
			return NewEMACrossS2F(EMACrossS2FParams{
				FastSpan: t.intVal("fast_span"),
				SlowSpan: t.intVal("slow_span"),
			})
		},
	},
	"s2f": {
		keys: []string{"buy_threshold", "sell_threshold"},
		build: func(t table) (Strategy, error) {
			return NewS2FThreshold(S2FThresholdParams{
				BuyThreshold:  t["buy_threshold"],
				SellThreshold: t["sell_threshold"],
			})
		},
	},
	"rsi_reversion": {
		keys: []string{"period", "oversold", "overbought"},
		build: func(t table) (Strategy, error) {
			return NewRSIMeanReversion(RSIMeanReversionParams{
				Period:     t.intVal("period"),
				Oversold:   t["oversold"],
				Overbought: t["overbought"],
			})
		},
	},
	"breakout_atr": {
		keys: []string{"window", "atr_period"},
		build: func(t table) (Strategy, error) {
			return NewBreakoutATR(BreakoutATRParams{
				Window:    t.intVal("window"),
				ATRPeriod: t.intVal("atr_period"),
			})
		},
	},
	"ema_rsi_trend": {
		keys: []string{
			"fast_span", "medium_span", "slow_span",
			"rsi_period", "rsi_overbought", "rsi_oversold",
			"volume_window", "volume_multiplier",
		},
		build: func(t table) (Strategy, error) {
			return NewEMARSITrend(EMARSITrendParams{
				FastSpan:         t.intVal("fast_span"),
				MediumSpan:       t.intVal("medium_span"),
				SlowSpan:         t.intVal("slow_span"),
				RSIPeriod:        t.intVal("rsi_period"),
				RSIOverbought:    t["rsi_overbought"],
				RSIOversold:      t["rsi_oversold"],
				VolumeWindow:     t.intVal("volume_window"),
				VolumeMultiplier: t["volume_multiplier"],
			})
		},
	},
	"halving": {
		keys: []string{
			"ema_fast", "ema_medium", "ema_slow", "ema_trend",
			"rsi_period", "rsi_oversold", "rsi_overbought",
			"boll_window", "boll_std", "boll_proximity",
			"volume_window", "volume_multiplier", "atr_period", "use_s2f",
		},
		build: func(t table) (Strategy, error) {
			return NewHalvingCycle(HalvingCycleParams{
				EMAFast:          t.intVal("ema_fast"),
				EMAMedium:        t.intVal("ema_medium"),
				EMASlow:          t.intVal("ema_slow"),
				EMATrend:         t.intVal("ema_trend"),
				RSIPeriod:        t.intVal("rsi_period"),
				RSIOversold:      t["rsi_oversold"],
				RSIOverbought:    t["rsi_overbought"],
				BollWindow:       t.intVal("boll_window"),
				BollStd:          t["boll_std"],
				BollProximity:    t["boll_proximity"],
				VolumeWindow:     t.intVal("volume_window"),
				VolumeMultiplier: t["volume_multiplier"],
				ATRPeriod:        t.intVal("atr_period"),
				UseS2F:           t.flag("use_s2f", false),
			})
		},
	},
	"accumulation": {
		keys: []string{
			"sma_fast", "sma_slow", "rsi_period", "rsi_oversold", "rsi_extreme",
			"boll_window", "boll_std", "boll_tolerance",
			"support_window", "support_proximity", "trend_filter",
		},
		build: func(t table) (Strategy, error) {
			return NewAccumulation(AccumulationParams{
				SMAFast:          t.intVal("sma_fast"),
				SMASlow:          t.intVal("sma_slow"),
				RSIPeriod:        t.intVal("rsi_period"),
				RSIOversold:      t["rsi_oversold"],
				RSIExtreme:       t["rsi_extreme"],
				BollWindow:       t.intVal("boll_window"),
				BollStd:          t["boll_std"],
				BollTolerance:    t["boll_tolerance"],
				SupportWindow:    t.intVal("support_window"),
				SupportProximity: t["support_proximity"],
				TrendFilter:      t.flag("trend_filter", true),
			})
		},
	},
}

// Names 返回全部已注册策略名,按字典序排列。
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New 按名字构建策略。缺失的参数取各策略默认值,未知参数名视为配置
// 错误立即返回,避免参数清扫时拼写错误被静默忽略。
func New(name string, params map[string]float64) (Strategy, error) {
	b, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("未知策略 %q, 可选: %s: %w", name, strings.Join(Names(), ", "), market.ErrInvalidParameter)
	}
	allowed := make(map[string]struct{}, len(b.keys))
	for _, key := range b.keys {
		allowed[key] = struct{}{}
	}
	for key := range params {
		if _, ok := allowed[key]; !ok {
			return nil, fmt.Errorf("策略 %s 不支持参数 %q: %w", name, key, market.ErrInvalidParameter)
		}
	}
	return b.build(table(params))
}
