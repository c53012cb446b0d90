package distributelock

import (
	"context"
	"time"
)

// parker 阻塞等待原语
// permit 容量为1，在 park 之前到达的唤醒不会丢失，重复唤醒会合并
type parker struct {
	permit chan struct{}
}

func newParker() *parker {
	return &parker{permit: make(chan struct{}, 1)}
}

// unpark 由订阅回调调用，不会阻塞
func (p *parker) unpark() {
	select {
	case p.permit <- struct{}{}:
	default:
	}
}

// park 等待唤醒、超时或上下文取消
func (p *parker) park(ctx context.Context, timeout time.Duration) (WakeReason, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.permit:
		return WakeMessage, nil
	case <-timer.C:
		return WakeTimeout, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
