package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fyerfyer/fyer-lock/distributelock"
	"github.com/fyerfyer/fyer-lock/store/memstore"
)

// unitOfWork 模拟事务，提交后执行回调
type unitOfWork struct {
	callbacks []func(ctx context.Context) error
}

func (u *unitOfWork) AfterCompletion(fn func(ctx context.Context) error) error {
	u.callbacks = append(u.callbacks, fn)
	return nil
}

func (u *unitOfWork) Commit(ctx context.Context) error {
	var errs []error
	for _, fn := range u.callbacks {
		errs = append(errs, fn(ctx))
	}
	return errors.Join(errs...)
}

func main() {
	fmt.Println("Immediate Lock Example")
	fmt.Println("======================")

	ctx := context.Background()
	client, err := distributelock.NewClient(memstore.New(), distributelock.WithNamespace("example"))
	if err != nil {
		log.Fatalf("Failed to create lock client: %v", err)
	}

	first, err := client.TryLock(ctx, "order-42")
	if err != nil {
		log.Fatalf("TryLock failed: %v", err)
	}
	fmt.Printf("first attempt: locked=%v token=%s\n", first.Locked(), first.Token())

	second, err := client.TryLock(ctx, "order-42")
	if err != nil {
		log.Fatalf("TryLock failed: %v", err)
	}
	fmt.Printf("second attempt: locked=%v\n", second.Locked())

	// 不会自动续约，需要时手动延长
	if ok, err := first.RefreshExpiry(ctx, time.Minute); err == nil && ok {
		ttl, _ := first.RemainingTTL(ctx)
		fmt.Printf("lease extended, remaining %v\n", ttl.Round(time.Second))
	}

	// 工作单元结束后释放
	uow := &unitOfWork{}
	if err := first.UnlockOnCompletion(uow); err != nil {
		log.Fatalf("Failed to register release: %v", err)
	}
	fmt.Printf("before commit: locked=%v\n", first.Locked())
	if err := uow.Commit(ctx); err != nil {
		log.Fatalf("Commit failed: %v", err)
	}
	fmt.Printf("after commit: locked=%v\n", first.Locked())

	third, err := client.TryLock(ctx, "order-42")
	if err != nil {
		log.Fatalf("TryLock failed: %v", err)
	}
	fmt.Printf("third attempt: locked=%v\n", third.Locked())
	_ = third.Unlock(ctx)
}
