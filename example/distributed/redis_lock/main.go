package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fyerfyer/fyer-lock/distributelock"
	"github.com/fyerfyer/fyer-lock/store/breakerstore"
	"github.com/fyerfyer/fyer-lock/store/redisstore"
	"github.com/redis/go-redis/v9"
)

// 两个客户端模拟两个进程，共享同一个 Redis
func main() {
	fmt.Println("Redis Lock Example")
	fmt.Println("==================")

	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Redis is not reachable at localhost:6379: %v", err)
	}

	newClient := func(name string) *distributelock.Client {
		rs, err := redisstore.New(rdb)
		if err != nil {
			log.Fatalf("Failed to create store: %v", err)
		}
		bs, err := breakerstore.New(rs, breakerstore.Settings{Name: name})
		if err != nil {
			log.Fatalf("Failed to create breaker: %v", err)
		}
		c, err := distributelock.NewClient(bs,
			distributelock.WithNamespace("example"),
			distributelock.WithHostname(name))
		if err != nil {
			log.Fatalf("Failed to create lock client: %v", err)
		}
		return c
	}
	alice, bob := newClient("alice"), newClient("bob")

	a, _ := alice.NewLock("payments")
	if err := a.Lock(ctx); err != nil {
		log.Fatalf("alice failed to lock: %v", err)
	}
	fmt.Printf("alice holds %s\n", a.Key())

	done := make(chan struct{})
	go func() {
		defer close(done)
		b, _ := bob.NewLock("payments")
		start := time.Now()
		if err := b.Lock(ctx); err != nil {
			log.Printf("bob failed to lock: %v", err)
			return
		}
		fmt.Printf("bob acquired after %v\n", time.Since(start).Round(time.Millisecond))
		_ = b.Unlock(ctx)
	}()

	time.Sleep(2 * time.Second)
	// 释放时发布消息，bob 立即被唤醒
	if err := a.Unlock(ctx); err != nil {
		log.Fatalf("alice failed to unlock: %v", err)
	}
	fmt.Println("alice released")
	<-done
}
