package utils

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Backoff 第 attempt 次（从 0 开始）重试前的等待时间：base * 2^attempt，不超过 max
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if max > 0 && d >= max {
			return max
		}
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

// Retry 尝试执行 fn，失败后按指数退避等待再试，最多 retries 次。
// 每次调用 fn 之前等待（第一次等待 base），ctx 取消时立即返回
func Retry(ctx context.Context, retries int, base, max time.Duration, fn func(attempt int) error) error {
	var err error
	for i := 0; i < retries; i++ {
		timer := time.NewTimer(Backoff(base, max, i))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		err = fn(i + 1)
		if err == nil {
			return nil
		}
	}
	return fmt.Errorf("after %d attempts, last error: %w", retries, err)
}

// NormalizeSymbol 统一交易对写法：去掉分隔符并转为大写，例如 btc/usdt => BTCUSDT
func NormalizeSymbol(symbol string) string {
	s := strings.TrimSpace(symbol)
	s = strings.NewReplacer("/", "", "-", "", "_", "").Replace(s)
	return strings.ToUpper(s)
}
