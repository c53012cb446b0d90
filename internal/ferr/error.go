package ferr

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable 存储不可用
	// 连接失败、超时或熔断打开时返回，与锁竞争失败严格区分
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidLockState 锁状态非法
	// 未持有就解锁、重复解锁、重复注册完成回调等编程错误，不应重试
	ErrInvalidLockState = errors.New("invalid lock state")

	// ErrUnsupportedOperation 不支持的操作
	// ImmediateLock 上调用阻塞式获取等方法时返回
	ErrUnsupportedOperation = fmt.Errorf("%w: operation not supported", ErrInvalidLockState)

	// ErrLeaseExpiredElsewhere 租约已在别处过期
	// 解锁时发现存储中的值与 token 不一致或 key 已不存在
	ErrLeaseExpiredElsewhere = errors.New("lease expired, lock may be held by another owner")
)

var (
	// ErrEmptyResource 资源名为空
	ErrEmptyResource = errors.New("resource must not be empty")

	// ErrNilStore 存储为空
	ErrNilStore = errors.New("store is nil")

	// ErrInvalidOption 非法配置
	ErrInvalidOption = errors.New("invalid option")
)

// Unavailable 将底层错误包装为 ErrStoreUnavailable
// nil、已经包装过的错误以及 context 错误原样返回
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
