package advisor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"text/template"
	"time"

	"trades-backtest/internal/backtest"
)

// maxSweepRows 限制注入提示词的清扫头部行数,避免提示词无限膨胀。
const maxSweepRows = 5

const reviewTemplate = `
你是一个资深的加密货币量化策略评审员。你的任务是根据一次回测的绩效数据，评估该策略参数组合的可信度与风险，并给出改进建议。

回测概要：
{{ .SummaryJSON }}
{{ if .SweepJSON }}
同一策略参数清扫的头部结果（已按排名排序）：
{{ .SweepJSON }}
{{ end }}
评审时请遵循：
1. 先看收益与最大回撤的配比，判断风险调整后收益是否达标；
2. 结合交易次数与胜率，判断样本量是否足以支撑结论；
3. 若提供了参数清扫结果，判断最优参数是否孤立（过拟合迹象）；
4. 夏普比率按日收益年化口径计算，注意与月度口径的差异；
5. 只评估回测本身，不要给出任何实盘操作指令。

请严格输出唯一的 JSON 对象，格式如下：
{
  "rating": "STRONG|ACCEPTABLE|WEAK|OVERFIT_RISK",   // 综合评级
  "summary": "...",                                  // 一段话概括策略表现
  "risks": ["..."],                                  // 主要风险点，可为空数组
  "suggestions": ["..."],                            // 改进建议，可为空数组
  "confidence": 0.0-1.0                              // 结论信心度
}

注意事项：
- rating 只能取给定四个值之一。
- summary 不能为空；risks 与 suggestions 中不得包含空字符串。
- 除 JSON 对象外不要输出任何其他内容。
`

var tmpl = template.Must(template.New("review").Parse(reviewTemplate))

// ReviewInput 汇总一次回测供模型点评的上下文。SweepRows 可选,
// 传入时应当已按排名排序,只有头部若干行会进入提示词。
type ReviewInput struct {
	Symbol    string
	Strategy  string
	Params    map[string]float64
	Result    backtest.Result
	SweepRows []backtest.SweepRow
}

// runDigest 是注入提示词的回测摘要。夏普、CAGR 与盈亏比可能出现
// NaN 或无穷,以字符串形式序列化避免 JSON 编码失败。
type runDigest struct {
	Symbol          string             `json:"symbol"`
	Strategy        string             `json:"strategy"`
	Params          map[string]float64 `json:"params,omitempty"`
	InitialCapital  float64            `json:"initial_capital"`
	InvestedCapital float64            `json:"invested_capital"`
	FinalCapital    float64            `json:"final_capital"`
	TotalReturnPct  float64            `json:"total_return_pct"`
	CAGRPct         string             `json:"cagr_pct"`
	SharpeRatio     string             `json:"sharpe_ratio"`
	MaxDrawdownPct  float64            `json:"max_drawdown_pct"`
	WinRatePct      float64            `json:"win_rate_pct"`
	ProfitFactor    string             `json:"profit_factor"`
	TradeCount      int                `json:"trade_count"`
	WinningTrades   int                `json:"winning_trades"`
	LosingTrades    int                `json:"losing_trades"`
	BestTradePct    float64            `json:"best_trade_pct"`
	WorstTradePct   float64            `json:"worst_trade_pct"`
	AvgHoldingDays  float64            `json:"avg_holding_days"`
	StartDate       string             `json:"start_date,omitempty"`
	EndDate         string             `json:"end_date,omitempty"`
}

type sweepDigest struct {
	Params         map[string]float64 `json:"params"`
	FinalCapital   float64            `json:"final_capital"`
	TotalReturnPct float64            `json:"total_return_pct"`
	SharpeRatio    string             `json:"sharpe_ratio"`
	MaxDrawdownPct float64            `json:"max_drawdown_pct"`
	WinRatePct     float64            `json:"win_rate_pct"`
	ProfitFactor   string             `json:"profit_factor"`
	TradeCount     int                `json:"trade_count"`
	Err            string             `json:"error,omitempty"`
}

type promptContext struct {
	SummaryJSON string
	SweepJSON   string
}

// BuildPrompt 把回测结果渲染成提示词字符串。
func BuildPrompt(input ReviewInput) (string, error) {
	summaryJSON, err := json.MarshalIndent(buildRunDigest(input), "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化回测摘要失败: %w", err)
	}

	var sweepJSON string
	if len(input.SweepRows) > 0 {
		rows := input.SweepRows
		if len(rows) > maxSweepRows {
			rows = rows[:maxSweepRows]
		}
		digests := make([]sweepDigest, 0, len(rows))
		for _, row := range rows {
			digests = append(digests, sweepDigest{
				Params:         row.Params,
				FinalCapital:   row.FinalCapital,
				TotalReturnPct: row.TotalReturnPct,
				SharpeRatio:    formatMetric(row.SharpeRatio),
				MaxDrawdownPct: row.MaxDrawdownPct,
				WinRatePct:     row.WinRatePct,
				ProfitFactor:   formatMetric(row.ProfitFactor),
				TradeCount:     row.TradeCount,
				Err:            row.Err,
			})
		}
		encoded, err := json.MarshalIndent(digests, "", "  ")
		if err != nil {
			return "", fmt.Errorf("序列化清扫摘要失败: %w", err)
		}
		sweepJSON = string(encoded)
	}

	var buf bytes.Buffer
	if err = tmpl.Execute(&buf, promptContext{
		SummaryJSON: string(summaryJSON),
		SweepJSON:   sweepJSON,
	}); err != nil {
		return "", fmt.Errorf("渲染提示词失败: %w", err)
	}

	return buf.String(), nil
}

func buildRunDigest(input ReviewInput) runDigest {
	result := input.Result
	digest := runDigest{
		Symbol:          input.Symbol,
		Strategy:        input.Strategy,
		Params:          input.Params,
		InitialCapital:  result.InitialCapital,
		InvestedCapital: result.InvestedCapital,
		FinalCapital:    result.FinalCapital,
		TotalReturnPct:  result.Metrics.TotalReturnPct,
		CAGRPct:         formatMetric(result.Metrics.CAGRPct),
		SharpeRatio:     formatMetric(result.Metrics.SharpeRatio),
		MaxDrawdownPct:  result.Metrics.MaxDrawdownPct,
		WinRatePct:      result.Metrics.WinRatePct,
		ProfitFactor:    formatMetric(result.Metrics.ProfitFactor),
		TradeCount:      result.Metrics.TradeCount,
	}

	if len(result.Trades) > 0 {
		digest.BestTradePct = result.Trades[0].PnlPct
		digest.WorstTradePct = result.Trades[0].PnlPct
		totalHolding := 0
		for _, trade := range result.Trades {
			if trade.Pnl > 0 {
				digest.WinningTrades++
			} else {
				digest.LosingTrades++
			}
			if trade.PnlPct > digest.BestTradePct {
				digest.BestTradePct = trade.PnlPct
			}
			if trade.PnlPct < digest.WorstTradePct {
				digest.WorstTradePct = trade.PnlPct
			}
			totalHolding += trade.HoldingDays
		}
		digest.AvgHoldingDays = float64(totalHolding) / float64(len(result.Trades))
	}

	if len(result.EquityCurve) > 0 {
		digest.StartDate = result.EquityCurve[0].Date.Format(time.DateOnly)
		digest.EndDate = result.EquityCurve[len(result.EquityCurve)-1].Date.Format(time.DateOnly)
	}

	return digest
}

// formatMetric 将可能为 NaN 或无穷的指标转成稳定的字符串表示。
func formatMetric(f float64) string {
	switch {
	case math.IsNaN(f):
		return "n/a"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	default:
		return strconv.FormatFloat(f, 'f', 4, 64)
	}
}
