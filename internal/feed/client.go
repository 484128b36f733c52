package feed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"trades-backtest/internal/config"
	"trades-backtest/internal/market"
)

const (
	timeframeDaily = "1d"
	// pageLimit 为单次请求的最大K线数,与 Binance 的上限一致。
	pageLimit = 1000
	dayMillis = int64(24 * time.Hour / time.Millisecond)
)

// Client 负责从交易所拉取日线行情并实现重试机制。同一个 Client
// 可服务多个交易对。
type Client struct {
	cfg      config.FeedConfig
	logger   *zap.Logger
	exchange *ccxt.Binance

	marketsMu     sync.Mutex
	marketsLoaded bool
}

// NewClient 构造现货行情客户端,目前只支持 binance。
func NewClient(cfg config.FeedConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !strings.EqualFold(cfg.Name, "binance") {
		return nil, fmt.Errorf("不支持的行情源 %q: %w", cfg.Name, market.ErrInvalidParameter)
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": cfg.RateLimit,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "spot",
		},
	}
	if cfg.Timeout > 0 {
		userConfig["timeout"] = cfg.Timeout.Milliseconds()
	}
	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}

	ex := ccxt.NewBinance(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	return &Client{
		cfg:      cfg,
		logger:   logger,
		exchange: ex,
	}, nil
}

// FetchDailyCandles 拉取 [since, until] 闭区间内的日线并转换为行情点,
// 按 since 游标分页直到区间取尽。until 为零值时取到最新一根,
// S2F 偏离在此阶段一律为 NaN,由同步服务按需补算。
func (c *Client) FetchDailyCandles(ctx context.Context, symbol string, since, until time.Time) ([]market.PricePoint, error) {
	if symbol == "" {
		return nil, fmt.Errorf("交易对符号不能为空: %w", market.ErrInvalidParameter)
	}

	var cursor int64
	if !since.IsZero() {
		cursor = since.UTC().UnixMilli()
	}
	var untilMs int64
	if !until.IsZero() {
		untilMs = until.UTC().UnixMilli()
	}

	var points []market.PricePoint
	for {
		var raw []ccxt.OHLCV
		err := c.callWithRetry(ctx, fmt.Sprintf("fetch_ohlcv_%s", symbol), func() error {
			if err := c.ensureMarketsLoaded(ctx); err != nil {
				return err
			}

			result, err := c.exchange.FetchOHLCV(
				symbol,
				ccxt.WithFetchOHLCVTimeframe(timeframeDaily),
				ccxt.WithFetchOHLCVSince(cursor),
				ccxt.WithFetchOHLCVLimit(pageLimit),
			)
			if err != nil {
				return err
			}

			raw = result
			return nil
		})
		if err != nil {
			return nil, err
		}
		if len(raw) == 0 {
			break
		}

		reachedEnd := false
		for _, item := range raw {
			if untilMs > 0 && item.Timestamp > untilMs {
				reachedEnd = true
				break
			}
			// 分页衔接处交易所可能重发最后一根,按时间戳去重。
			if len(points) > 0 && item.Timestamp <= points[len(points)-1].Date.UnixMilli() {
				continue
			}
			points = append(points, market.PricePoint{
				Date:         time.UnixMilli(item.Timestamp).UTC(),
				Open:         item.Open,
				High:         item.High,
				Low:          item.Low,
				Close:        item.Close,
				Volume:       item.Volume,
				S2FDeviation: math.NaN(),
			})
		}
		if reachedEnd || len(raw) < pageLimit {
			break
		}
		cursor = raw[len(raw)-1].Timestamp + dayMillis
	}

	c.logger.Debug("日线行情拉取完成",
		zap.String("symbol", symbol),
		zap.Int("count", len(points)),
	)
	return points, nil
}

func (c *Client) ensureMarketsLoaded(ctx context.Context) error {
	if c.marketsLoaded {
		return nil
	}

	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded {
		return nil
	}

	loadErr := c.callWithRetry(ctx, "load_markets", func() error {
		_, err := c.exchange.LoadMarkets()
		return err
	})
	if loadErr != nil {
		return loadErr
	}

	c.marketsLoaded = true
	c.logger.Info("已完成市场元数据加载", zap.String("exchange", c.cfg.Name))
	return nil
}

func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := c.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("行情调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		normalizedErr, retry := c.classifyError(err)

		if errors.Is(normalizedErr, ErrMaintenance) {
			c.logger.Warn("交易所维护中",
				zap.String("operation", operation),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		if !retry || attempt >= c.cfg.Retry.MaxAttempts {
			c.logger.Error("行情调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		c.logger.Warn("行情调用失败,等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalizedErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

func (c *Client) classifyError(err error) (error, bool) {
	if err == nil {
		return nil, false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return err, true
		case ccxt.OnMaintenanceErrType:
			message := strings.TrimSpace(ccxtErr.Message)
			if message == "" {
				message = "exchange under maintenance"
			}
			return fmt.Errorf("%w: %s", ErrMaintenance, message), false
		default:
			return err, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return err, true
	}

	return err, false
}
