package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fyerfyer/fyer-lock/distributelock"
	"github.com/fyerfyer/fyer-lock/internal/flog"
	"github.com/fyerfyer/fyer-lock/store/memstore"
)

func main() {
	fmt.Println("Blocking Lock Example")
	fmt.Println("=====================")

	logger, err := flog.New(flog.Config{Level: "debug", Format: flog.FormatConsole, Output: "stdout"})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	client, err := distributelock.NewClient(memstore.New(),
		distributelock.WithNamespace("example"),
		distributelock.WithLeaseTTL(3*time.Second),
		distributelock.WithRenewInterval(time.Second),
		distributelock.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to create lock client: %v", err)
	}

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			l, err := client.NewLock("inventory")
			if err != nil {
				log.Printf("worker %d: %v", worker, err)
				return
			}
			start := time.Now()
			if err := l.Lock(ctx); err != nil {
				log.Printf("worker %d: lock failed: %v", worker, err)
				return
			}
			fmt.Printf("worker %d acquired after %v (renewing=%v)\n", worker, time.Since(start).Round(time.Millisecond), l.Renewing())

			// 持有时间超过租约，续约保证锁不会过期
			time.Sleep(4 * time.Second)

			if err := l.Unlock(ctx); err != nil {
				log.Printf("worker %d: unlock failed: %v", worker, err)
				return
			}
			fmt.Printf("worker %d released\n", worker)
		}(i)
	}
	wg.Wait()
	fmt.Println("All workers done")
}
