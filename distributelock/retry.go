package distributelock

import (
	"context"
	"errors"

	retry "github.com/avast/retry-go/v5"
	"github.com/fyerfyer/fyer-lock/internal/ferr"
	"go.uber.org/zap"
)

// withRetry 只在存储不可用时按指数退避重试
// 锁竞争失败不是错误，不会触发重试
func withRetry[T any](ctx context.Context, o *LockOption, op string, fn func() (T, error)) (T, error) {
	return retry.NewWithData[T](
		retry.Context(ctx),
		retry.Attempts(o.RetryAttempts),
		retry.Delay(o.RetryDelay),
		retry.MaxDelay(o.RetryMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ferr.ErrStoreUnavailable)
		}),
		retry.OnRetry(func(n uint, err error) {
			o.Logger.Warn("store operation failed, retrying",
				zap.String("op", op),
				zap.Uint("attempt", n+1),
				zap.Error(err))
		}),
	).Do(fn)
}
