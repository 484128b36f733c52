package backtest

import (
	"time"
)

// PositionSide 表示持仓方向。
type PositionSide int

const (
	SideFlat PositionSide = iota
	SideLong
	SideShort
)

func (s PositionSide) String() string {
	switch s {
	case SideLong:
		return "LONG"
	case SideShort:
		return "SHORT"
	default:
		return "FLAT"
	}
}

// 平仓原因,随成交记录落盘。
const (
	ReasonSignal        = "signal"
	ReasonStopLoss      = "stop loss"
	ReasonTakeProfit    = "take profit"
	ReasonEndOfBacktest = "end of backtest"
)

// Position 描述当前持仓。StopLossPct/TakeProfitPct 为本仓生效的阈值,
// 开仓时已应用策略给出的倍率,0 表示不启用。
type Position struct {
	Side          PositionSide
	Size          float64
	EntryPrice    float64
	EntryDate     time.Time
	EntryIndex    int
	StopLossPct   float64
	TakeProfitPct float64

	entryCommission float64
}

// Trade 记录一笔已平仓交易。Pnl 为扣除双边手续费后的净盈亏,
// PnlPct 为不含手续费的价格涨跌百分比。
type Trade struct {
	Side        string    `json:"side"`
	EntryDate   time.Time `json:"entry_date"`
	ExitDate    time.Time `json:"exit_date"`
	EntryPrice  float64   `json:"entry_price"`
	ExitPrice   float64   `json:"exit_price"`
	Size        float64   `json:"size"`
	Pnl         float64   `json:"pnl"`
	PnlPct      float64   `json:"pnl_pct"`
	Commission  float64   `json:"commission"`
	Reason      string    `json:"reason"`
	HoldingDays int       `json:"holding_days"`
}

// EquitySample 记录单个交易日收盘后的净值构成,Equity = Cash + PositionValue。
type EquitySample struct {
	Date          time.Time `json:"date"`
	Cash          float64   `json:"cash"`
	PositionValue float64   `json:"position_value"`
	Equity        float64   `json:"equity"`
}

// Simulator 维护单仓位状态机:FLAT/LONG/SHORT 三态,现金与持仓分账,
// 总净值 = 现金 + 浮动盈亏。开平仓各收一次手续费,杠杆放大名义仓位
// 而不占用额外现金。
type Simulator struct {
	cfg      Config
	cash     float64
	invested float64
	position Position
	trades   []Trade
	curve    []EquitySample
}

// NewSimulator 创建模拟器,cfg 须已通过 normalize 与 Validate。
func NewSimulator(cfg Config) *Simulator {
	return &Simulator{
		cfg:      cfg,
		cash:     cfg.InitialCapital,
		invested: cfg.InitialCapital,
	}
}

// Cash 返回当前现金。
func (s *Simulator) Cash() float64 {
	return s.cash
}

// Invested 返回累计投入本金(初始资金加历次注资)。
func (s *Simulator) Invested() float64 {
	return s.invested
}

// Position 返回当前持仓的副本。
func (s *Simulator) Position() Position {
	return s.position
}

// Trades 返回已平仓交易的副本。
func (s *Simulator) Trades() []Trade {
	return append([]Trade(nil), s.trades...)
}

// EquityCurve 返回净值曲线的副本。
func (s *Simulator) EquityCurve() []EquitySample {
	return append([]EquitySample(nil), s.curve...)
}

// Equity 返回给定价格下的总净值。
func (s *Simulator) Equity(price float64) float64 {
	return s.cash + s.positionValue(price)
}

// positionValue 返回持仓在给定价格下的浮动盈亏。
func (s *Simulator) positionValue(price float64) float64 {
	switch s.position.Side {
	case SideLong:
		return s.position.Size * (price - s.position.EntryPrice)
	case SideShort:
		return s.position.Size * (s.position.EntryPrice - price)
	default:
		return 0
	}
}

// Inject 追加现金并计入投入本金。
func (s *Simulator) Inject(amount float64) {
	if amount <= 0 {
		return
	}
	s.cash += amount
	s.invested += amount
}

// OpenLong 按现金比例开多仓。fraction 为投入现金的比例,杠杆在内部
// 放大名义仓位;fraction 非正或现金耗尽时不开仓,返回是否成交。
func (s *Simulator) OpenLong(date time.Time, index int, price, fraction, stopPct, takePct float64) bool {
	return s.open(SideLong, date, index, price, fraction, stopPct, takePct)
}

// OpenShort 按现金比例开空仓,规则与 OpenLong 对称。
func (s *Simulator) OpenShort(date time.Time, index int, price, fraction, stopPct, takePct float64) bool {
	return s.open(SideShort, date, index, price, fraction, stopPct, takePct)
}

func (s *Simulator) open(side PositionSide, date time.Time, index int, price, fraction, stopPct, takePct float64) bool {
	if s.position.Side != SideFlat || fraction <= 0 || price <= 0 || s.cash <= 0 {
		return false
	}
	if fraction > 1 {
		fraction = 1
	}

	size := s.cash * fraction * s.cfg.Leverage / price
	commission := size * price * s.cfg.CommissionRate
	s.cash -= commission

	s.position = Position{
		Side:            side,
		Size:            size,
		EntryPrice:      price,
		EntryDate:       date,
		EntryIndex:      index,
		StopLossPct:     stopPct,
		TakeProfitPct:   takePct,
		entryCommission: commission,
	}
	return true
}

// Close 以给定价格平仓并记录成交。持仓盈亏与平仓手续费一并结入现金。
func (s *Simulator) Close(date time.Time, index int, price float64, reason string) {
	if s.position.Side == SideFlat {
		return
	}

	pos := s.position
	gross := s.positionValue(price)
	exitCommission := pos.Size * price * s.cfg.CommissionRate
	s.cash += gross - exitCommission

	pnlPct := (price - pos.EntryPrice) / pos.EntryPrice * 100
	if pos.Side == SideShort {
		pnlPct = -pnlPct
	}

	s.trades = append(s.trades, Trade{
		Side:        pos.Side.String(),
		EntryDate:   pos.EntryDate,
		ExitDate:    date,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   price,
		Size:        pos.Size,
		Pnl:         gross - pos.entryCommission - exitCommission,
		PnlPct:      pnlPct,
		Commission:  pos.entryCommission + exitCommission,
		Reason:      reason,
		HoldingDays: int(date.Sub(pos.EntryDate).Hours() / 24),
	})
	s.position = Position{}
}

// CheckExits 用当日收盘价检查止损止盈,任一触发即平仓。
// 止损优先于止盈,两者都在策略信号之前判定。
func (s *Simulator) CheckExits(date time.Time, index int, price float64) bool {
	if s.position.Side == SideFlat {
		return false
	}

	pos := s.position
	movePct := (price - pos.EntryPrice) / pos.EntryPrice
	if pos.Side == SideShort {
		movePct = -movePct
	}

	if pos.StopLossPct > 0 && movePct <= -pos.StopLossPct {
		s.Close(date, index, price, ReasonStopLoss)
		return true
	}
	if pos.TakeProfitPct > 0 && movePct >= pos.TakeProfitPct {
		s.Close(date, index, price, ReasonTakeProfit)
		return true
	}
	return false
}

// MarkEquity 在当日所有动作完成后记录净值样本。
func (s *Simulator) MarkEquity(date time.Time, price float64) {
	positionValue := s.positionValue(price)
	s.curve = append(s.curve, EquitySample{
		Date:          date,
		Cash:          s.cash,
		PositionValue: positionValue,
		Equity:        s.cash + positionValue,
	})
}
