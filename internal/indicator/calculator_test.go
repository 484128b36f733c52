package indicator

import (
	"testing"
	"time"

	"trades-backtest/internal/market"
)

func makeCalcSeries(closes []float64) market.Series {
	points := make([]market.PricePoint, len(closes))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		points[i] = market.PricePoint{
			Date:   base.AddDate(0, 0, i),
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: 1000,
		}
	}
	return market.NewSeries(points)
}

func TestCalculatorCachesColumns(t *testing.T) {
	calc := NewCalculator(makeCalcSeries([]float64{10, 11, 12, 13, 14, 15}))

	first := calc.EMA(3)
	second := calc.EMA(3)
	if len(first) == 0 || &first[0] != &second[0] {
		t.Fatalf("expected cached column to be reused")
	}

	other := calc.EMA(4)
	if &first[0] == &other[0] {
		t.Fatalf("expected different span to produce a different column")
	}
}

func TestCalculatorBollingerCache(t *testing.T) {
	calc := NewCalculator(makeCalcSeries([]float64{10, 11, 12, 13, 14, 15}))

	u1, m1, l1 := calc.Bollinger(3, 2)
	u2, m2, l2 := calc.Bollinger(3, 2)
	if &u1[0] != &u2[0] || &m1[0] != &m2[0] || &l1[0] != &l2[0] {
		t.Fatalf("expected cached bands to be reused")
	}
}

func TestCalculatorLen(t *testing.T) {
	calc := NewCalculator(makeCalcSeries([]float64{1, 2, 3}))
	if calc.Len() != 3 {
		t.Fatalf("expected len 3, got %d", calc.Len())
	}
}
