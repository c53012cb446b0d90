package distributelock

import (
	"context"
	"time"
)

// Locker 分布式锁接口
type Locker interface {
	// Lock 获取锁
	// 获取失败会阻塞直到获取成功或上下文取消
	Lock(ctx context.Context) error

	// TryLock 尝试获取一次锁
	// 锁被占用时返回 false, nil
	TryLock(ctx context.Context) (bool, error)

	// Unlock 释放锁
	Unlock(ctx context.Context) error
}

// CompletionHook 工作单元完成时的回调注册点
// 例如数据库事务提交或回滚之后
type CompletionHook interface {
	AfterCompletion(fn func(ctx context.Context) error) error
}

// CompletionHookFunc 将普通函数适配为 CompletionHook
type CompletionHookFunc func(fn func(ctx context.Context) error) error

func (f CompletionHookFunc) AfterCompletion(fn func(ctx context.Context) error) error {
	return f(fn)
}

// Phase 获取成功所处的阶段
type Phase string

const (
	PhaseImmediate Phase = "immediate"
	PhaseSpin      Phase = "spin"
	PhaseBlock     Phase = "block"
)

// WakeReason 阻塞等待被唤醒的原因
type WakeReason string

const (
	WakeMessage WakeReason = "message"
	WakeTimeout WakeReason = "timeout"
)

// Result 续约与释放的结果
type Result string

const (
	ResultOK       Result = "ok"
	ResultLost     Result = "lost"
	ResultMismatch Result = "mismatch"
	ResultError    Result = "error"
)

// Recorder 锁事件记录器
// 实现需要并发安全，metrics 包提供 Prometheus 实现
type Recorder interface {
	// Acquired 获取成功，wait 为从调用到获取成功的耗时
	Acquired(resource string, phase Phase, wait time.Duration)
	// Woken 阻塞等待被唤醒
	Woken(resource string, reason WakeReason)
	// Renewed 一次续约的结果
	Renewed(resource string, result Result)
	// Released 一次释放的结果
	Released(resource string, result Result)
}

type noopRecorder struct{}

func (noopRecorder) Acquired(string, Phase, time.Duration) {}
func (noopRecorder) Woken(string, WakeReason)             {}
func (noopRecorder) Renewed(string, Result)               {}
func (noopRecorder) Released(string, Result)              {}
