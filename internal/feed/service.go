package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trades-backtest/internal/market"
	"trades-backtest/internal/s2f"
)

// syncConcurrency 限制多交易对并发同步的协程数,拉取端还有
// 交易所限速兜底。
const syncConcurrency = 4

type candleFetcher interface {
	FetchDailyCandles(ctx context.Context, symbol string, since, until time.Time) ([]market.PricePoint, error)
}

type priceStore interface {
	UpsertPrices(ctx context.Context, symbol string, points []market.PricePoint) error
	LatestDate(ctx context.Context, symbol string) (time.Time, bool, error)
}

// Service 组合行情拉取与入库,实现增量同步。
type Service struct {
	client candleFetcher
	store  priceStore
	logger *zap.Logger
}

// NewService 创建行情同步服务。
func NewService(client candleFetcher, store priceStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		client: client,
		store:  store,
		logger: logger,
	}
}

// SyncSymbol 增量同步单个交易对:起点取 since 与库内最新日期次日的
// 较晚者,拉到最新一根后入库,返回新增行数。比特币交易对在入库前
// 补算 S2F 偏离。
func (s *Service) SyncSymbol(ctx context.Context, symbol string, since time.Time) (int, error) {
	latest, ok, err := s.store.LatestDate(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("查询 %s 同步进度失败: %w", symbol, err)
	}

	start := since
	if ok {
		next := latest.AddDate(0, 0, 1)
		if next.After(start) {
			start = next
		}
	}

	points, err := s.client.FetchDailyCandles(ctx, symbol, start, time.Time{})
	if err != nil {
		return 0, fmt.Errorf("拉取 %s 日线失败: %w", symbol, err)
	}
	if len(points) == 0 {
		s.logger.Info("行情已是最新", zap.String("symbol", symbol))
		return 0, nil
	}

	if isBitcoin(symbol) {
		for i := range points {
			points[i].S2FDeviation = s2f.DeviationPct(points[i].Close, points[i].Date)
		}
	}

	if err := s.store.UpsertPrices(ctx, symbol, points); err != nil {
		return 0, fmt.Errorf("写入 %s 行情失败: %w", symbol, err)
	}

	s.logger.Info("行情同步完成",
		zap.String("symbol", symbol),
		zap.Int("rows", len(points)),
		zap.Time("first", points[0].Date),
		zap.Time("last", points[len(points)-1].Date),
	)
	return len(points), nil
}

// SyncAll 并发同步多个交易对,任一失败即整体失败。返回各交易对的
// 新增行数。
func (s *Service) SyncAll(ctx context.Context, symbols []string, since time.Time) (map[string]int, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("同步交易对列表为空: %w", market.ErrInvalidParameter)
	}

	counts := make([]int, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(syncConcurrency)
	for i, symbol := range symbols {
		g.Go(func() error {
			n, err := s.SyncSymbol(gctx, symbol, since)
			if err != nil {
				return err
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := make(map[string]int, len(symbols))
	for i, symbol := range symbols {
		result[symbol] = counts[i]
	}
	return result, nil
}

// isBitcoin 判断交易对的基础资产是否为比特币,S2F 模型只对它有意义。
func isBitcoin(symbol string) bool {
	base, _, found := strings.Cut(symbol, "/")
	if !found {
		base = symbol
	}
	return strings.EqualFold(base, "BTC")
}
