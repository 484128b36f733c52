package market

import "errors"

// ErrInvalidParameter 表示回测配置或策略参数越界,调用方需修正后重试,
// 模拟不会启动。
var ErrInvalidParameter = errors.New("参数越界")

// ErrInsufficientData 表示历史数据短于策略暖机窗口。引擎内部会将其
// 恢复为零交易结果,仅当数据层完全无数据时才向调用方返回。
var ErrInsufficientData = errors.New("历史数据不足")
